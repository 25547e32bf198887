// Package config loads the settings of a mapping, its dialect and the
// write planner from a YAML file and RELAGG_* environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"slices"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/syssam/relagg/aggpath"
	"github.com/syssam/relagg/change"
	"github.com/syssam/relagg/dialect"
	"github.com/syssam/relagg/loader"
	"github.com/syssam/relagg/mapping"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "RELAGG_"

// Config represents a relagg.yml configuration file.
//
//	dialect: postgres
//	log_level: debug
//	naming:
//	  pluralize_tables: true
//	  schema_expression: "${var.tenant}"
//	vars:
//	  tenant: acme
//	planner:
//	  parallelism: 8
type Config struct {
	// Dialect is one of mysql, sqlite or postgres.
	Dialect string `yaml:"dialect,omitempty" env:"DIALECT"`

	// LogLevel is a slog level name such as "debug" or "warn".
	LogLevel string `yaml:"log_level,omitempty" env:"LOG_LEVEL"`

	Naming  NamingConfig  `yaml:"naming,omitempty" envPrefix:"NAMING_"`
	Planner PlannerConfig `yaml:"planner,omitempty" envPrefix:"PLANNER_"`
	Loader  LoaderConfig  `yaml:"loader,omitempty" envPrefix:"LOADER_"`

	// Vars are visible to name expressions as var.<name>. In the
	// environment they are written as "k1:v1,k2:v2".
	Vars map[string]string `yaml:"vars,omitempty" env:"VARS"`
}

// NamingConfig configures the default naming strategy.
type NamingConfig struct {
	Schema          string `yaml:"schema,omitempty" env:"SCHEMA"`
	TablePrefix     string `yaml:"table_prefix,omitempty" env:"TABLE_PREFIX"`
	PluralizeTables bool   `yaml:"pluralize_tables,omitempty" env:"PLURALIZE_TABLES"`
	UpperCase       bool   `yaml:"upper_case,omitempty" env:"UPPER_CASE"`

	// SchemaExpression is an HCL template resolving the schema of every
	// table. It takes precedence over Schema.
	SchemaExpression string `yaml:"schema_expression,omitempty" env:"SCHEMA_EXPRESSION"`
}

// PlannerConfig configures change planning.
type PlannerConfig struct {
	// Parallelism limits the aggregates planned concurrently.
	Parallelism int `yaml:"parallelism,omitempty" env:"PARALLELISM"`
}

// LoaderConfig configures aggregate loading.
type LoaderConfig struct {
	// SingleQuery loads supported aggregates with one statement.
	SingleQuery bool `yaml:"single_query,omitempty" env:"SINGLE_QUERY"`
}

// Default returns the configuration used for unset settings.
func Default() *Config {
	return &Config{
		Dialect:  dialect.Postgres,
		LogLevel: "info",
		Planner:  PlannerConfig{Parallelism: runtime.GOMAXPROCS(0)},
		Loader:   LoaderConfig{SingleQuery: true},
	}
}

// Load reads the configuration file at path over the defaults and applies
// the environment overrides. A missing file, or an empty path, leaves the
// defaults in place.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to path.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks the settings.
func (c *Config) Validate() error {
	var errs []error
	if !slices.Contains([]string{dialect.MySQL, dialect.SQLite, dialect.Postgres}, c.Dialect) {
		errs = append(errs, fmt.Errorf("config: unknown dialect %q", c.Dialect))
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, fmt.Errorf("config: log_level: %w", err))
	}
	if c.Planner.Parallelism < 1 {
		errs = append(errs, fmt.Errorf("config: planner.parallelism must be positive, got %d", c.Planner.Parallelism))
	}
	if c.Naming.SchemaExpression != "" {
		if _, err := mapping.Expression(c.Naming.SchemaExpression); err != nil {
			errs = append(errs, fmt.Errorf("config: naming.schema_expression: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Level returns the configured log level.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	err := l.UnmarshalText([]byte(c.LogLevel))
	return l, err
}

// Logger returns a text logger writing to w at the configured level.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	l, _ := c.Level()
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: l}))
}

// NamingStrategy returns the naming strategy described by the naming
// settings.
func (c *Config) NamingStrategy() mapping.NamingStrategy {
	return mapping.DefaultNamingStrategy{
		SchemaName:  c.Naming.Schema,
		TablePrefix: c.Naming.TablePrefix,
		Pluralize:   c.Naming.PluralizeTables,
		UpperCase:   c.Naming.UpperCase,
	}
}

// MappingOptions returns the mapping.Context options described by the
// configuration.
func (c *Config) MappingOptions(log *slog.Logger) ([]mapping.Option, error) {
	opts := []mapping.Option{
		mapping.WithNamingStrategy(c.NamingStrategy()),
		mapping.WithVars(c.Vars),
	}
	if c.Naming.SchemaExpression != "" {
		expr, err := mapping.Expression(c.Naming.SchemaExpression)
		if err != nil {
			return nil, err
		}
		opts = append(opts, mapping.WithSchema(expr))
	}
	if log != nil {
		opts = append(opts, mapping.WithLogger(log))
	}
	return opts, nil
}

// NewContext returns a mapping context configured by c and the extra
// options.
func (c *Config) NewContext(log *slog.Logger, extra ...mapping.Option) (*mapping.Context, error) {
	opts, err := c.MappingOptions(log)
	if err != nil {
		return nil, err
	}
	return mapping.NewContext(append(opts, extra...)...)
}

// PlanAll plans the given roots with at most planner.parallelism planning
// calls running at a time.
func (c *Config) PlanAll(ctx context.Context, p *change.Planner, kind change.Kind, roots []any) ([]*change.Plan, error) {
	return change.PlanAll(ctx, p, kind, roots, c.Planner.Parallelism)
}

// SaveAll plans the saves of all roots with at most planner.parallelism
// planning calls running at a time and combines them in ct.
func (c *Config) SaveAll(ctx context.Context, p *change.Planner, ct change.Container, roots []any) error {
	return change.SaveAll(ctx, p, ct, roots, c.Planner.Parallelism)
}

// Generator returns the single-query loader generator for the configured
// dialect, or nil when loader.single_query is disabled.
func (c *Config) Generator(paths *aggpath.Factory, log *slog.Logger) *loader.Generator {
	if !c.Loader.SingleQuery {
		return nil
	}
	var opts []loader.Option
	if log != nil {
		opts = append(opts, loader.WithLogger(log))
	}
	return loader.NewGenerator(paths, c.Dialect, opts...)
}
