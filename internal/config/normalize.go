package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeRunner()
	c.normalizeWorkflow()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("SHUTTLE_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeRunner() {
	if value, ok := os.LookupEnv("SHUTTLE_ENDPOINT"); ok && strings.TrimSpace(value) != "" {
		c.Runner.Endpoint = value
	}
	if value, ok := os.LookupEnv("SHUTTLE_NONCE"); ok && strings.TrimSpace(value) != "" {
		c.Runner.Nonce = value
	}
	c.Runner.Endpoint = strings.TrimRight(strings.TrimSpace(c.Runner.Endpoint), "/")
	c.Runner.Nonce = strings.TrimSpace(c.Runner.Nonce)
	c.Runner.StartAction = strings.TrimSpace(c.Runner.StartAction)
	if c.Runner.StartAction == "" {
		c.Runner.StartAction = defaultStartAction
	}
	c.Runner.ProgressAction = strings.TrimSpace(c.Runner.ProgressAction)
	if c.Runner.ProgressAction == "" {
		c.Runner.ProgressAction = defaultProgressAction
	}
	c.Runner.CancelAction = strings.TrimSpace(c.Runner.CancelAction)
	if c.Runner.CancelAction == "" {
		c.Runner.CancelAction = defaultCancelAction
	}
	if c.Runner.RequestTimeout <= 0 {
		c.Runner.RequestTimeout = defaultRunnerRequestTimeout
	}
	if c.Runner.RetryMaxAttempts <= 0 {
		c.Runner.RetryMaxAttempts = defaultRunnerRetryMaxAttempts
	}
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.StartCooldown < 0 {
		c.Workflow.StartCooldown = 0
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("SHUTTLE_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
