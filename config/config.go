package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/randalmurphal/council/budget"
	"github.com/randalmurphal/council/cost"
	"github.com/randalmurphal/council/gatekeeper"
	"github.com/randalmurphal/council/gateway"
	"github.com/randalmurphal/council/model"
	"github.com/randalmurphal/council/orchestrator"
	"github.com/randalmurphal/council/provider"
	"github.com/randalmurphal/council/stage"
	"github.com/randalmurphal/council/tracker"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. COUNCIL_GATEWAY_URL.
const EnvPrefix = "COUNCIL"

// Config is the full council configuration.
type Config struct {
	Gateway   provider.Config   `json:"gateway" mapstructure:"gateway"`
	Search    provider.Config   `json:"search" mapstructure:"search"`
	Fallbacks map[string]string `json:"fallbacks,omitempty" mapstructure:"fallbacks" jsonschema:"description=alias to next alias tried on failure"`
	Roles     map[string]string `json:"roles,omitempty" mapstructure:"roles" jsonschema:"description=protocol role to model alias overrides"`

	// PricingFile is an optional TOML file of price overrides.
	PricingFile string `json:"pricing_file,omitempty" mapstructure:"pricing_file"`

	Budget   BudgetConfig   `json:"budget" mapstructure:"budget"`
	Pipeline PipelineConfig `json:"pipeline" mapstructure:"pipeline"`
	Tracker  TrackerConfig  `json:"tracker" mapstructure:"tracker"`
	Metrics  MetricsConfig  `json:"metrics" mapstructure:"metrics"`
	Events   EventsConfig   `json:"events" mapstructure:"events"`
	Log      LogConfig      `json:"log" mapstructure:"log"`
}

// BudgetConfig holds spend limits.
type BudgetConfig struct {
	Monthly      float64 `json:"monthly" mapstructure:"monthly" jsonschema:"minimum=0"`
	Ceiling      float64 `json:"ceiling" mapstructure:"ceiling" jsonschema:"description=per-query cost ceiling in USD"`
	GateFraction float64 `json:"gate_fraction" mapstructure:"gate_fraction" jsonschema:"minimum=0,maximum=1"`
	MinInvoke    float64 `json:"min_invoke" mapstructure:"min_invoke"`
}

// PipelineConfig holds orchestration settings.
type PipelineConfig struct {
	Deadline     time.Duration `json:"deadline" mapstructure:"deadline"`
	CallTimeout  time.Duration `json:"call_timeout,omitempty" mapstructure:"call_timeout"`
	RatifyPolicy string        `json:"ratify_policy" mapstructure:"ratify_policy" jsonschema:"enum=always,enum=never,enum=conditional"`
	MaxInFlight  int           `json:"max_in_flight" mapstructure:"max_in_flight"`
	MaxRetries   int           `json:"max_retries" mapstructure:"max_retries"`
	Temperature  float64       `json:"temperature" mapstructure:"temperature"`
}

// TrackerConfig controls the call record store.
type TrackerConfig struct {
	// Path of the sqlite database. Empty disables persistence.
	Path          string        `json:"path,omitempty" mapstructure:"path"`
	QueueSize     int           `json:"queue_size" mapstructure:"queue_size"`
	BatchSize     int           `json:"batch_size" mapstructure:"batch_size"`
	FlushInterval time.Duration `json:"flush_interval" mapstructure:"flush_interval"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	// Addr to listen on, e.g. ":9090". Empty disables the endpoint.
	Addr string `json:"addr,omitempty" mapstructure:"addr"`
}

// EventsConfig controls budget event publishing.
type EventsConfig struct {
	// NATSURL enables NATS publishing when set.
	NATSURL string `json:"nats_url,omitempty" mapstructure:"nats_url"`
	Subject string `json:"subject" mapstructure:"subject"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `json:"level" mapstructure:"level" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
	Format string `json:"format" mapstructure:"format" jsonschema:"enum=text,enum=json"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Gateway: provider.DefaultConfig(),
		Search:  provider.DefaultSearchConfig(),
		Budget: BudgetConfig{
			Monthly:      budget.DefaultMonthlyBudget,
			Ceiling:      cost.DefaultCeiling,
			GateFraction: gatekeeper.DefaultGateFraction,
			MinInvoke:    gatekeeper.DefaultMinInvoke,
		},
		Pipeline: PipelineConfig{
			Deadline:     orchestrator.DefaultDeadline,
			RatifyPolicy: string(orchestrator.DefaultRatifyPolicy),
			MaxInFlight:  stage.DefaultMaxInFlight,
			MaxRetries:   gateway.DefaultMaxRetries,
			Temperature:  orchestrator.DefaultTemperature,
		},
		Tracker: TrackerConfig{
			QueueSize:     tracker.DefaultQueueSize,
			BatchSize:     tracker.DefaultBatchSize,
			FlushInterval: tracker.DefaultFlushInterval,
		},
		Events: EventsConfig{Subject: "council.events"},
		Log:    LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads the config file at path, applies COUNCIL_* environment
// overrides and defaults, and validates the result. An empty path loads
// defaults and environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path = strings.TrimSpace(path); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("load config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.WeaklyTypedInput = true
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("load config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &cfg, nil
}

// setDefaults registers every scalar key so AutomaticEnv can override keys
// that the file does not mention.
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("gateway.url", d.Gateway.URL)
	v.SetDefault("gateway.api_key", d.Gateway.APIKey)
	v.SetDefault("gateway.timeout", d.Gateway.Timeout)
	v.SetDefault("search.url", d.Search.URL)
	v.SetDefault("search.api_key", d.Search.APIKey)
	v.SetDefault("search.timeout", d.Search.Timeout)
	v.SetDefault("search.max_results", d.Search.MaxResults)
	v.SetDefault("search.models", d.Search.Models)
	v.SetDefault("pricing_file", d.PricingFile)

	v.SetDefault("budget.monthly", d.Budget.Monthly)
	v.SetDefault("budget.ceiling", d.Budget.Ceiling)
	v.SetDefault("budget.gate_fraction", d.Budget.GateFraction)
	v.SetDefault("budget.min_invoke", d.Budget.MinInvoke)

	v.SetDefault("pipeline.deadline", d.Pipeline.Deadline)
	v.SetDefault("pipeline.call_timeout", d.Pipeline.CallTimeout)
	v.SetDefault("pipeline.ratify_policy", d.Pipeline.RatifyPolicy)
	v.SetDefault("pipeline.max_in_flight", d.Pipeline.MaxInFlight)
	v.SetDefault("pipeline.max_retries", d.Pipeline.MaxRetries)
	v.SetDefault("pipeline.temperature", d.Pipeline.Temperature)

	v.SetDefault("tracker.path", d.Tracker.Path)
	v.SetDefault("tracker.queue_size", d.Tracker.QueueSize)
	v.SetDefault("tracker.batch_size", d.Tracker.BatchSize)
	v.SetDefault("tracker.flush_interval", d.Tracker.FlushInterval)

	v.SetDefault("metrics.addr", d.Metrics.Addr)
	v.SetDefault("events.nats_url", d.Events.NATSURL)
	v.SetDefault("events.subject", d.Events.Subject)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// Validate checks ranges and rejects cyclic fallback chains.
func (c *Config) Validate() error {
	var errs []error
	if err := c.Gateway.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("gateway: %w", err))
	}
	if err := c.Search.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("search: %w", err))
	}
	if err := c.FallbackChain().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("fallbacks: %w", err))
	}

	if c.Budget.Monthly <= 0 {
		errs = append(errs, errors.New("budget.monthly must be positive"))
	}
	if c.Budget.Ceiling <= 0 {
		errs = append(errs, errors.New("budget.ceiling must be positive"))
	}
	if c.Budget.GateFraction <= 0 || c.Budget.GateFraction > 1 {
		errs = append(errs, fmt.Errorf("budget.gate_fraction %v must be in (0, 1]", c.Budget.GateFraction))
	}
	if c.Budget.MinInvoke < 0 {
		errs = append(errs, errors.New("budget.min_invoke must be non-negative"))
	}

	if c.Pipeline.Deadline <= 0 {
		errs = append(errs, errors.New("pipeline.deadline must be positive"))
	}
	if c.Pipeline.CallTimeout < 0 {
		errs = append(errs, errors.New("pipeline.call_timeout must be non-negative"))
	}
	if _, err := orchestrator.ParseRatifyPolicy(c.Pipeline.RatifyPolicy); err != nil {
		errs = append(errs, fmt.Errorf("pipeline: %w", err))
	}
	if c.Pipeline.MaxInFlight < 1 {
		errs = append(errs, errors.New("pipeline.max_in_flight must be at least 1"))
	}
	if c.Pipeline.MaxRetries < 0 {
		errs = append(errs, errors.New("pipeline.max_retries must be non-negative"))
	}
	if c.Pipeline.Temperature < 0 || c.Pipeline.Temperature > 2 {
		errs = append(errs, fmt.Errorf("pipeline.temperature %v must be in [0, 2]", c.Pipeline.Temperature))
	}

	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log: %w", err))
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log: unknown format %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// FallbackChain returns the built-in chain with configured entries applied.
func (c *Config) FallbackChain() model.FallbackChain {
	chain := model.DefaultFallbacks()
	for k, v := range model.FromStrings(c.Fallbacks) {
		chain[k] = v
	}
	return chain
}

// RatifyPolicy returns the parsed ratification policy.
func (c *Config) RatifyPolicy() orchestrator.RatifyPolicy {
	p, err := orchestrator.ParseRatifyPolicy(c.Pipeline.RatifyPolicy)
	if err != nil {
		return orchestrator.DefaultRatifyPolicy
	}
	return p
}

// Selector builds a role selector with the configured overrides.
func (c *Config) Selector() *model.Selector {
	return model.NewSelector(model.WithRoleOverrides(c.Roles))
}
