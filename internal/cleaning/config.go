package cleaning

// Assignment policies.
const (
	PolicyRoundRobin = "round_robin"
	PolicyWeighted   = "weighted"
)

// Config configures auto-assignment.
type Config struct {
	// Policy is round_robin (weight only orders the pool) or weighted
	// (smooth weighted round-robin, tasks proportional to weight).
	Policy string `mapstructure:"policy" default:"round_robin"`
}
