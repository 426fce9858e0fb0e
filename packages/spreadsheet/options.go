package spreadsheet

import (
	"fmt"
	"log/slog"
)

// IterationPolicy lets cells on a cycle converge instead of becoming
// circular errors
type IterationPolicy struct {
	MaxIterations int
	MaxChange     float64
}

type config struct {
	logger    *slog.Logger
	registry  *Registry
	formatter NumberFormatter
	iteration *IterationPolicy
}

// Option configures an Engine or a Spreadsheet
type Option func(*config) error

func defaultConfig() *config {
	return &config{
		logger:    slog.New(slog.DiscardHandler),
		formatter: PatternFormatter{},
	}
}

func applyOptions(opts []Option) (*config, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, wrapApplicationError(InvalidArgument, "invalid option", err)
		}
	}
	if cfg.registry == nil {
		cfg.registry = NewBuiltinRegistry()
	}
	cfg.logger = cfg.logger.WithGroup("spreadsheet")
	return cfg, nil
}

// WithLogHandler sends logs to handler
func WithLogHandler(handler slog.Handler) Option {
	return func(cfg *config) error {
		if handler == nil {
			return fmt.Errorf("log handler cannot be nil")
		}
		cfg.logger = slog.New(handler)
		return nil
	}
}

// WithLogger uses an existing logger
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *config) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithRegistry replaces the built-in function library
func WithRegistry(registry *Registry) Option {
	return func(cfg *config) error {
		if registry == nil {
			return fmt.Errorf("registry cannot be nil")
		}
		cfg.registry = registry
		return nil
	}
}

// WithFormatter replaces the formatter used by TEXT
func WithFormatter(formatter NumberFormatter) Option {
	return func(cfg *config) error {
		if formatter == nil {
			return fmt.Errorf("formatter cannot be nil")
		}
		cfg.formatter = formatter
		return nil
	}
}

// WithIteration enables iterative calculation of circular references
func WithIteration(maxIterations int, maxChange float64) Option {
	return func(cfg *config) error {
		if maxIterations < 1 {
			return fmt.Errorf("max iterations must be positive, got %d", maxIterations)
		}
		if maxChange < 0 {
			return fmt.Errorf("max change cannot be negative, got %v", maxChange)
		}
		cfg.iteration = &IterationPolicy{MaxIterations: maxIterations, MaxChange: maxChange}
		return nil
	}
}
