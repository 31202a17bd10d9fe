package config

// Default limits. The context caps keep prompts inside typical model context
// windows; the retry and timeout values favor interactive latency over
// durability.
const (
	DefaultModel          = "gpt-4o"
	DefaultAPIKeyEnv      = "OPENAI_API_KEY"
	DefaultMaxFileBytes   = 100 * 1024
	DefaultMaxTotalBytes  = 500 * 1024
	DefaultMaxFiles       = 12
	DefaultMaxRetries     = 3
	DefaultTimeoutSeconds = 120
	DefaultTemperature    = 0.2
)

// NewDefaults returns a configuration populated with the default values.
func NewDefaults() *Config {
	return &Config{
		Model:     DefaultModel,
		APIKeyEnv: DefaultAPIKeyEnv,
		Context: ContextConfig{
			MaxFileBytes:  DefaultMaxFileBytes,
			MaxTotalBytes: DefaultMaxTotalBytes,
			MaxFiles:      DefaultMaxFiles,
		},
		LLM: LLMConfig{
			MaxRetries:     DefaultMaxRetries,
			TimeoutSeconds: DefaultTimeoutSeconds,
			Temperature:    DefaultTemperature,
		},
	}
}

// applyDefaults fills zero-valued fields after decoding, so a partial
// kestrel.toml only overrides what it names.
func (c *Config) applyDefaults() {
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.APIKeyEnv == "" {
		c.APIKeyEnv = DefaultAPIKeyEnv
	}
	if c.Context.MaxFileBytes == 0 {
		c.Context.MaxFileBytes = DefaultMaxFileBytes
	}
	if c.Context.MaxTotalBytes == 0 {
		c.Context.MaxTotalBytes = DefaultMaxTotalBytes
	}
	if c.Context.MaxFiles == 0 {
		c.Context.MaxFiles = DefaultMaxFiles
	}
	if c.LLM.MaxRetries == 0 {
		c.LLM.MaxRetries = DefaultMaxRetries
	}
	if c.LLM.TimeoutSeconds == 0 {
		c.LLM.TimeoutSeconds = DefaultTimeoutSeconds
	}
	if c.LLM.Temperature == 0 {
		c.LLM.Temperature = DefaultTemperature
	}
}
