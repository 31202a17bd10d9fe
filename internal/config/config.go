// Package config defines Kestrel's configuration, loaded from kestrel.toml
// with CLI flags taking precedence over file values.
package config

// Config is the top-level configuration structure mapping to kestrel.toml.
type Config struct {
	// Model is the chat model identifier sent to the completion API.
	Model string `toml:"model"`

	// APIBaseURL overrides the completion endpoint, for local or proxied
	// deployments. Empty means the client library default.
	APIBaseURL string `toml:"api_base_url"`

	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string `toml:"api_key_env"`

	// AutoAccept applies edits without prompting for confirmation.
	AutoAccept bool `toml:"auto_accept"`

	Context ContextConfig `toml:"context"`
	LLM     LLMConfig     `toml:"llm"`
}

// ContextConfig maps to the [context] section: limits on how much project
// content is gathered into the model prompt.
type ContextConfig struct {
	// MaxFileBytes caps the content read from a single file.
	MaxFileBytes int `toml:"max_file_bytes"`

	// MaxTotalBytes caps the combined content across all files.
	MaxTotalBytes int `toml:"max_total_bytes"`

	// MaxFiles caps how many relevant files are included.
	MaxFiles int `toml:"max_files"`

	// IgnorePatterns are doublestar globs excluded from the scan, in
	// addition to the built-in defaults.
	IgnorePatterns []string `toml:"ignore_patterns"`
}

// LLMConfig maps to the [llm] section: completion-call behavior.
type LLMConfig struct {
	// MaxRetries bounds transient-failure retries per request.
	MaxRetries int `toml:"max_retries"`

	// TimeoutSeconds bounds a single completion call.
	TimeoutSeconds int `toml:"timeout_seconds"`

	// Temperature is passed through to the completion API.
	Temperature float64 `toml:"temperature"`
}
