package config

const (
	defaultConfigPath        = "~/.config/chromascale/config.toml"
	defaultInputDir          = "~/Pictures/chromascale/in"
	defaultOutputDir         = "~/Pictures/chromascale/out"
	defaultStateDir          = "~/.local/share/chromascale"
	defaultSkipThresholdPx   = 2000
	defaultBatchIntervalMS   = 1000
	defaultStableWaitMS      = 500
	defaultPollIntervalMS    = 500
	defaultMaxParallelChecks = 4
	defaultTransformBinary   = "realesrgan-ncnn-vulkan"
	defaultTransformModel    = "realesrgan-x4plus"
	defaultTransformScale    = 4
	defaultTransformDevice   = "auto"
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
	defaultLogRetentionDays  = 30
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			InputDir:  defaultInputDir,
			OutputDir: defaultOutputDir,
			StateDir:  defaultStateDir,
		},
		Processing: Processing{
			ReplaceInPlace:  false,
			SkipThresholdPx: defaultSkipThresholdPx,
		},
		Watcher: Watcher{
			BatchIntervalMS:   defaultBatchIntervalMS,
			StableWaitMS:      defaultStableWaitMS,
			PollIntervalMS:    defaultPollIntervalMS,
			MaxParallelChecks: defaultMaxParallelChecks,
		},
		Transform: Transform{
			Binary: defaultTransformBinary,
			Model:  defaultTransformModel,
			Scale:  defaultTransformScale,
			Device: defaultTransformDevice,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
