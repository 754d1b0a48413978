package config

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Timeout:          30000, // 30 seconds
		FollowRedirects:  BoolPtr(true),
		MaxRedirects:     10,
		ValidateSSL:      BoolPtr(true),
		Proxy:            "",
		Headers:          nil,
		MaxConcurrent:    0, // unlimited
		RateLimit:        0, // unlimited
		ProgressInterval: 100,
		LogLevel:         "info",
		OutputDir:        "",
		NoColor:          BoolPtr(false),
	}
}

// IsDefault returns true if the config matches defaults
func (c *Config) IsDefault() bool {
	defaults := DefaultConfig()
	return c.Timeout == defaults.Timeout &&
		c.GetFollowRedirects() == defaults.GetFollowRedirects() &&
		c.MaxRedirects == defaults.MaxRedirects &&
		c.GetValidateSSL() == defaults.GetValidateSSL() &&
		c.Proxy == defaults.Proxy &&
		len(c.Headers) == 0 &&
		c.MaxConcurrent == defaults.MaxConcurrent &&
		c.RateLimit == defaults.RateLimit &&
		c.ProgressInterval == defaults.ProgressInterval &&
		c.LogLevel == defaults.LogLevel &&
		c.OutputDir == defaults.OutputDir &&
		c.GetNoColor() == defaults.GetNoColor()
}
