package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Profile holds the user's persistent provider preferences.
type Profile struct {
	LLMProvider string `json:"llm_provider,omitempty"` // openai, anthropic, gemini, kimi, etc.
	APIKey      string `json:"api_key,omitempty"`      // The API key for the selected provider
	Model       string `json:"model,omitempty"`        // Default model name
	BaseURL     string `json:"base_url,omitempty"`     // Optional override for API base URL
}

// Manager handles loading and saving the profile.
type Manager struct {
	configDir string
}

// NewManager creates a profile manager under the user config directory.
func NewManager() (*Manager, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user config dir: %w", err)
	}
	return NewManagerAt(filepath.Join(configDir, "jewelbot")), nil
}

// NewManagerAt creates a profile manager rooted at dir.
func NewManagerAt(dir string) *Manager {
	return &Manager{configDir: dir}
}

// GetConfigPath returns the absolute path to the config.json file.
func (m *Manager) GetConfigPath() string {
	return filepath.Join(m.configDir, "config.json")
}

// Load reads the profile from disk.
// If the file does not exist, it returns an empty Profile and no error.
func (m *Manager) Load() (*Profile, error) {
	data, err := os.ReadFile(m.GetConfigPath())
	if os.IsNotExist(err) {
		return &Profile{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse config json: %w", err)
	}
	return &p, nil
}

// Save writes the profile to disk with restricted permissions (0600).
func (m *Manager) Save(p *Profile) error {
	if err := os.MkdirAll(m.configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// API keys live here, so owner read/write only.
	if err := os.WriteFile(m.GetConfigPath(), data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// envKeys maps a provider to its key, model and base URL variables.
var envKeys = map[string][3]string{
	"openai":    {"OPENAI_API_KEY", "OPENAI_MODEL", "OPENAI_BASE_URL"},
	"anthropic": {"ANTHROPIC_API_KEY", "ANTHROPIC_MODEL", ""},
	"gemini":    {"GEMINI_API_KEY", "GEMINI_MODEL", ""},
	"kimi":      {"KIMI_API_KEY", "KIMI_MODEL", "KIMI_BASE_URL"},
	"deepseek":  {"DEEPSEEK_API_KEY", "DEEPSEEK_MODEL", "DEEPSEEK_BASE_URL"},
	"groq":      {"GROQ_API_KEY", "GROQ_MODEL", "GROQ_BASE_URL"},
}

// ApplyToEnv exports the profile as provider environment variables.
// Variables already set in the environment win over the saved profile.
func (p *Profile) ApplyToEnv() {
	if p.LLMProvider == "" {
		return
	}
	setDefault("LLM_PROVIDER", p.LLMProvider)

	keys, ok := envKeys[p.LLMProvider]
	if !ok {
		return
	}
	if p.APIKey != "" {
		setDefault(keys[0], p.APIKey)
	}
	if p.Model != "" {
		setDefault(keys[1], p.Model)
	}
	if p.BaseURL != "" && keys[2] != "" {
		setDefault(keys[2], p.BaseURL)
	}
}

func setDefault(key, value string) {
	if os.Getenv(key) == "" {
		os.Setenv(key, value)
	}
}
