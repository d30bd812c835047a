package config

const (
	defaultLogDir        = "~/.local/share/mediapool/logs"
	defaultReportDirName = "_reports"
	defaultLogFormat     = "console"
	defaultLogLevel      = "info"
	defaultPolicy        = PolicyPrompt
)

// Prompt policies for the back-sync decision.
const (
	PolicyPrompt = "prompt"
	PolicyAlways = "always"
	PolicyNever  = "never"
)

func defaultExcludes() []string {
	return []string{".DS_Store", "._*"}
}

func defaultBacksyncGlobs() []string {
	return []string{"*.mp4", "*.MP4"}
}

func minimalRsyncFlags() []string {
	return []string{"-r", "--progress"}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			LogDir: defaultLogDir,
		},
		Sync: Sync{
			Excludes:      defaultExcludes(),
			BacksyncGlobs: defaultBacksyncGlobs(),
			ReportDirName: defaultReportDirName,
			Policy:        defaultPolicy,
		},
		Journal: Journal{
			Enabled: true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
