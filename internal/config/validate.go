package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateRunner(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validatePolling(); err != nil {
		return err
	}
	if err := c.validateStall(); err != nil {
		return err
	}
	if err := c.validateJournal(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateRunner() error {
	if c.Runner.Endpoint == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = defaultConfigPath
		}
		return fmt.Errorf("runner.endpoint is required. Set SHUTTLE_ENDPOINT env var or edit %s (create with 'shuttle config init')", defaultPath)
	}
	parsed, err := url.Parse(c.Runner.Endpoint)
	if err != nil {
		return fmt.Errorf("runner.endpoint: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return errors.New("runner.endpoint must be an http or https URL")
	}
	if parsed.Host == "" {
		return errors.New("runner.endpoint must include a host")
	}
	return ensurePositiveMap(map[string]int{
		"runner.request_timeout":        c.Runner.RequestTimeout,
		"runner.retry_max_attempts":     c.Runner.RetryMaxAttempts,
		"notifications.request_timeout": c.Notifications.RequestTimeout,
	})
}

func (c *Config) validateWorkflow() error {
	return ensurePositiveMap(map[string]int{
		"workflow.image_batch_size":   c.Workflow.ImageBatchSize,
		"workflow.product_batch_size": c.Workflow.ProductBatchSize,
	})
}

func (c *Config) validatePolling() error {
	if err := ensurePositiveMap(map[string]int{
		"polling.fast":   c.Polling.Fast,
		"polling.active": c.Polling.Active,
		"polling.normal": c.Polling.Normal,
		"polling.slow":   c.Polling.Slow,
		"polling.idle":   c.Polling.Idle,
	}); err != nil {
		return err
	}
	names := []string{"fast", "active", "normal", "slow", "idle"}
	values := []int{c.Polling.Fast, c.Polling.Active, c.Polling.Normal, c.Polling.Slow, c.Polling.Idle}
	for i := 1; i < len(values); i++ {
		if values[i] < values[i-1] {
			return fmt.Errorf("polling.%s must be >= polling.%s", names[i], names[i-1])
		}
	}
	return nil
}

func (c *Config) validateStall() error {
	cfg := c.Stall
	if err := ensurePositiveMap(map[string]int{
		"stall.min_ms":      cfg.MinMS,
		"stall.max_ms":      cfg.MaxMS,
		"stall.default_ms":  cfg.DefaultMS,
		"stall.min_samples": cfg.MinSamples,
		"stall.max_samples": cfg.MaxSamples,
	}); err != nil {
		return err
	}
	if cfg.MinMS > cfg.MaxMS {
		return errors.New("stall.min_ms must be <= stall.max_ms")
	}
	if cfg.DefaultMS < cfg.MinMS || cfg.DefaultMS > cfg.MaxMS {
		return errors.New("stall.default_ms must be between stall.min_ms and stall.max_ms")
	}
	if cfg.Multiplier <= 0 {
		return errors.New("stall.multiplier must be positive")
	}
	if cfg.MaxSamples < cfg.MinSamples {
		return errors.New("stall.max_samples must be >= stall.min_samples")
	}
	return nil
}

func (c *Config) validateJournal() error {
	if c.Journal.RetentionDays < 0 {
		return errors.New("journal.retention_days must be >= 0")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
