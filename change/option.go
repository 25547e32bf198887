package change

import (
	"context"
	"log/slog"
)

// Policy decides whether a change may be executed. A non-nil error rejects
// the change. See package privacy for rule based policies.
type Policy interface {
	EvalChange(context.Context, Change) error
}

type config struct {
	log    *slog.Logger
	policy Policy
}

// Option configures a Planner or an Executor.
type Option func(*config)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.log = l
	}
}

// WithPolicy sets the policy an Executor evaluates before running a change.
// Planners ignore it.
func WithPolicy(p Policy) Option {
	return func(c *config) {
		c.policy = p
	}
}

func newConfig(opts []Option) config {
	c := config{log: slog.Default()}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}
