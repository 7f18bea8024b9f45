package config

import (
	"crypto/tls"
	"crypto/x509"
	"time"

	"cloud.google.com/go/spanner/apiv1/spannerpb"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"
	"google.golang.org/grpc"

	"github.com/spanner-go/spanner-go-sdk/log"
)

const (
	DefaultEndpoint    = "spanner.googleapis.com:443"
	DefaultDialTimeout = 5 * time.Second

	// Scope is the OAuth2 scope requested for default credentials.
	Scope = "https://www.googleapis.com/auth/spanner.data"
)

// Config contains database handle configuration options.
type Config struct {
	endpoint        string
	database        string
	secure          bool
	emulator        bool
	tlsConfig       *tls.Config
	tokenSource     oauth2.TokenSource
	credentialsJSON []byte
	userAgent       string
	compression     bool
	dialTimeout     time.Duration
	balancing       BalancingPolicy
	grpcOptions     []grpc.DialOption

	logger          log.Logger
	clock           clockwork.Clock
	tracerProvider  trace.TracerProvider
	extendedTracing bool
	endToEndTracing bool

	sessionPool       SessionPoolConfig
	transaction       TransactionConfig
	queryOptions      *spannerpb.ExecuteSqlRequest_QueryOptions
	envQueryOptions   *spannerpb.ExecuteSqlRequest_QueryOptions
	maxBufferedChunks int
}

// Endpoint is the host:port of the Spanner API or the emulator.
func (c *Config) Endpoint() string {
	return c.endpoint
}

// Database is the full database name: projects/<p>/instances/<i>/databases/<d>.
func (c *Config) Database() string {
	return c.database
}

func (c *Config) Secure() bool {
	return c.secure
}

// Emulator reports whether the handle talks to the emulator. The emulator needs
// neither TLS nor credentials.
func (c *Config) Emulator() bool {
	return c.emulator
}

func (c *Config) TLSConfig() *tls.Config {
	return c.tlsConfig
}

// TokenSource is the explicitly configured token source, nil means default credentials.
func (c *Config) TokenSource() oauth2.TokenSource {
	return c.tokenSource
}

// CredentialsJSON is a service account or authorized user JSON key.
func (c *Config) CredentialsJSON() []byte {
	return c.credentialsJSON
}

func (c *Config) UserAgent() string {
	return c.userAgent
}

func (c *Config) DialTimeout() time.Duration {
	return c.dialTimeout
}

func (c *Config) Logger() log.Logger {
	return c.logger
}

func (c *Config) Clock() clockwork.Clock {
	return c.clock
}

// TracerProvider is nil unless set, then the global provider is used.
func (c *Config) TracerProvider() trace.TracerProvider {
	return c.tracerProvider
}

// ExtendedTracing adds SQL text to spans.
func (c *Config) ExtendedTracing() bool {
	return c.extendedTracing
}

// EndToEndTracing asks the server to join the caller's traces.
func (c *Config) EndToEndTracing() bool {
	return c.endToEndTracing
}

func (c *Config) SessionPool() SessionPoolConfig {
	return c.sessionPool
}

func (c *Config) Transaction() TransactionConfig {
	return c.transaction
}

// QueryOptions is the client layer of query options.
func (c *Config) QueryOptions() *spannerpb.ExecuteSqlRequest_QueryOptions {
	return c.queryOptions
}

// EnvQueryOptions is the environment layer of query options. It takes
// precedence over QueryOptions.
func (c *Config) EnvQueryOptions() *spannerpb.ExecuteSqlRequest_QueryOptions {
	return c.envQueryOptions
}

// MaxBufferedChunks bounds the rows a result stream holds while it waits for a
// resume token.
func (c *Config) MaxBufferedChunks() int {
	return c.maxBufferedChunks
}

type Option func(c *Config)

func WithEndpoint(endpoint string) Option {
	return func(c *Config) {
		c.endpoint = endpoint
	}
}

func WithDatabase(database string) Option {
	return func(c *Config) {
		c.database = database
	}
}

func WithSecure(secure bool) Option {
	return func(c *Config) {
		c.secure = secure
	}
}

// WithEmulator points the handle to an emulator at host and turns off TLS and credentials.
func WithEmulator(host string) Option {
	return func(c *Config) {
		c.endpoint = host
		c.secure = false
		c.emulator = true
	}
}

func WithCertificate(certificate *x509.Certificate) Option {
	return func(c *Config) {
		c.tlsConfig.RootCAs.AddCert(certificate)
	}
}

func WithMinTLSVersion(minVersion uint16) Option {
	return func(c *Config) {
		c.tlsConfig.MinVersion = minVersion
	}
}

func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(c *Config) {
		c.tokenSource = ts
	}
}

func WithCredentialsJSON(json []byte) Option {
	return func(c *Config) {
		c.credentialsJSON = json
	}
}

func WithUserAgent(userAgent string) Option {
	return func(c *Config) {
		c.userAgent = userAgent
	}
}

// WithCompression turns on gzip compression of requests.
func WithCompression(enabled bool) Option {
	return func(c *Config) {
		c.compression = enabled
	}
}

func WithDialTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.dialTimeout = timeout
	}
}

func WithGrpcOptions(option ...grpc.DialOption) Option {
	return func(c *Config) {
		c.grpcOptions = append(c.grpcOptions, option...)
	}
}

func WithLogger(l log.Logger) Option {
	return func(c *Config) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithClock(clock clockwork.Clock) Option {
	return func(c *Config) {
		if clock != nil {
			c.clock = clock
		}
	}
}

func WithTracerProvider(provider trace.TracerProvider) Option {
	return func(c *Config) {
		c.tracerProvider = provider
	}
}

func WithExtendedTracing(enabled bool) Option {
	return func(c *Config) {
		c.extendedTracing = enabled
	}
}

func WithEndToEndTracing(enabled bool) Option {
	return func(c *Config) {
		c.endToEndTracing = enabled
	}
}

// WithQueryOptions sets the client layer of query options.
func WithQueryOptions(opts *spannerpb.ExecuteSqlRequest_QueryOptions) Option {
	return func(c *Config) {
		c.queryOptions = opts
	}
}

func WithMaxBufferedChunks(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.maxBufferedChunks = n
		}
	}
}

func New(opts ...Option) *Config {
	c := defaultConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	return c
}

func certPool() (certPool *x509.CertPool) {
	defer func() {
		// on darwin system panic raced on checking system security
		if e := recover(); e != nil {
			certPool = x509.NewCertPool()
		}
	}()
	var err error
	certPool, err = x509.SystemCertPool()
	if err != nil {
		certPool = x509.NewCertPool()
	}

	return certPool
}

func defaultConfig() *Config {
	return &Config{
		endpoint: DefaultEndpoint,
		secure:   true,
		tlsConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
			RootCAs:    certPool(),
		},
		dialTimeout:       DefaultDialTimeout,
		balancing:         DefaultBalancingPolicy,
		logger:            log.Nop(),
		clock:             clockwork.NewRealClock(),
		sessionPool:       DefaultSessionPoolConfig,
		transaction:       DefaultTransactionConfig,
		maxBufferedChunks: DefaultMaxBufferedChunks,
	}
}
