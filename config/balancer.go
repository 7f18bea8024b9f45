package config

import "fmt"

// BalancingPolicy picks the gRPC load balancing policy over the addresses the
// endpoint resolves to.
type BalancingPolicy uint8

const (
	BalancingPolicyRoundRobin BalancingPolicy = iota
	BalancingPolicyPickFirst

	DefaultBalancingPolicy = BalancingPolicyRoundRobin
)

func (p BalancingPolicy) String() string {
	switch p {
	case BalancingPolicyRoundRobin:
		return "round_robin"
	case BalancingPolicyPickFirst:
		return "pick_first"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(p))
	}
}

func (p BalancingPolicy) serviceConfig() string {
	return fmt.Sprintf(`{"loadBalancingConfig": [{%q:{}}]}`, p.String())
}

func WithBalancingPolicy(p BalancingPolicy) Option {
	return func(c *Config) {
		c.balancing = p
	}
}
