package config

func Defaults() *Config {
	return &Config{
		LogLevel: "info",
		Instagram: InstagramConfig{
			SessionPath: "~/.igbridge/session.json",
			ProfileDir:  "~/.igbridge/chrome-profile",
		},
		Bridge: BridgeConfig{
			PollIntervalSeconds:    30,
			DownloadTimeoutSeconds: 60,
			MaxFileSizeMB:          50,
			ThreadLimit:            10,
			MessagesPerThread:      5,
			MaxRetries:             10,
			RetryBaseDelaySeconds:  5,
			DBPath:                 "~/.igbridge/bridge.db",
			TempDir:                "~/.igbridge/tmp",
		},
	}
}
