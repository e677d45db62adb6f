package config

const (
	defaultConfigPath             = "~/.config/shuttle/config.toml"
	defaultStateDir               = "~/.local/share/shuttle"
	defaultLogDir                 = "~/.local/share/shuttle/logs"
	defaultAPIBind                = "127.0.0.1:7491"
	defaultStartAction            = "shuttle_start_batch"
	defaultProgressAction         = "shuttle_sync_progress"
	defaultCancelAction           = "shuttle_cancel_sync"
	defaultRunnerRequestTimeout   = 30
	defaultRunnerRetryMaxAttempts = 3
	defaultImageBatchSize         = 25
	defaultProductBatchSize       = 50
	defaultStartCooldownSeconds   = 5
	defaultPollFast               = 1
	defaultPollActive             = 2
	defaultPollNormal             = 5
	defaultPollSlow               = 10
	defaultPollIdle               = 30
	defaultStallMinMS             = 30000
	defaultStallMaxMS             = 300000
	defaultStallDefaultMS         = 60000
	defaultStallMultiplier        = 3.0
	defaultStallMinSamples        = 3
	defaultStallMaxSamples        = 20
	defaultNotifyRequestTimeout   = 10
	defaultJournalRetentionDays   = 30
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
	defaultLogRetentionDays       = 14
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
			APIBind:  defaultAPIBind,
		},
		Runner: Runner{
			StartAction:      defaultStartAction,
			ProgressAction:   defaultProgressAction,
			CancelAction:     defaultCancelAction,
			RequestTimeout:   defaultRunnerRequestTimeout,
			RetryMaxAttempts: defaultRunnerRetryMaxAttempts,
		},
		Workflow: Workflow{
			ImageBatchSize:   defaultImageBatchSize,
			ProductBatchSize: defaultProductBatchSize,
			ChainPhases:      true,
			ResumeOnStart:    true,
			StartCooldown:    defaultStartCooldownSeconds,
		},
		Polling: Polling{
			Fast:   defaultPollFast,
			Active: defaultPollActive,
			Normal: defaultPollNormal,
			Slow:   defaultPollSlow,
			Idle:   defaultPollIdle,
		},
		Stall: Stall{
			Enabled:    true,
			MinMS:      defaultStallMinMS,
			MaxMS:      defaultStallMaxMS,
			DefaultMS:  defaultStallDefaultMS,
			Multiplier: defaultStallMultiplier,
			MinSamples: defaultStallMinSamples,
			MaxSamples: defaultStallMaxSamples,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			PhaseCompleted: true,
			Stalls:         true,
			Errors:         true,
		},
		Journal: Journal{
			Enabled:       true,
			RetentionDays: defaultJournalRetentionDays,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
