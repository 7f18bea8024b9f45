package config

import (
	"os"
	"strconv"

	"cloud.google.com/go/spanner/apiv1/spannerpb"
)

const (
	EnvEmulatorHost               = "SPANNER_EMULATOR_HOST"
	EnvExtendedTracing            = "SPANNER_ENABLE_EXTENDED_TRACING"
	EnvMultiplexedSessions        = "GOOGLE_CLOUD_SPANNER_MULTIPLEXED_SESSIONS"
	EnvMultiplexedSessionsForRW   = "GOOGLE_CLOUD_SPANNER_MULTIPLEXED_SESSIONS_FOR_RW"
	EnvOptimizerVersion           = "SPANNER_OPTIMIZER_VERSION"
	EnvOptimizerStatisticsPackage = "SPANNER_OPTIMIZER_STATISTICS_PACKAGE"
)

var lookupEnv = os.LookupEnv

// FromEnv overlays the configuration with environment variables. Unset and
// unparsable boolean variables leave the configuration as is.
func FromEnv() Option {
	return func(c *Config) {
		if host, ok := lookupEnv(EnvEmulatorHost); ok && host != "" {
			WithEmulator(host)(c)
		}
		if enabled, ok := envBool(EnvExtendedTracing); ok {
			c.extendedTracing = enabled
		}
		if enabled, ok := envBool(EnvMultiplexedSessions); ok {
			c.sessionPool.Multiplexed = enabled
		}
		if enabled, ok := envBool(EnvMultiplexedSessionsForRW); ok {
			c.sessionPool.MultiplexedReadWrite = enabled
		}

		version, _ := lookupEnv(EnvOptimizerVersion)
		statistics, _ := lookupEnv(EnvOptimizerStatisticsPackage)
		if version != "" || statistics != "" {
			c.envQueryOptions = &spannerpb.ExecuteSqlRequest_QueryOptions{
				OptimizerVersion:           version,
				OptimizerStatisticsPackage: statistics,
			}
		}
	}
}

func envBool(name string) (value, ok bool) {
	s, ok := lookupEnv(name)
	if !ok {
		return false, false
	}
	value, err := strconv.ParseBool(s)
	if err != nil {
		return false, false
	}

	return value, true
}
