package plugin

import (
	"encoding/json"
	"fmt"

	"github.com/dashchat/grafana-dashchat-plugin/pkg/llm"
)

// PluginSettings holds the panel's user-configured options. The
// initalChatMessage key is spelled the way the frontend sends it.
type PluginSettings struct {
	GrafanaURL         string `json:"grafanaUrl"`
	GrafanaAPIKey      string `json:"grafanaApiKey"`
	GroqAPIKey         string `json:"groqApiKey"`
	InitialChatMessage string `json:"initalChatMessage"`
	Model              string `json:"llmUsed"`
}

// LoadSettings loads plugin settings from JSON
func LoadSettings(jsonData []byte) (*PluginSettings, error) {
	settings := &PluginSettings{}

	if len(jsonData) == 0 {
		return settings, nil
	}

	if err := json.Unmarshal(jsonData, settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
	}

	return settings, nil
}

// ApplySecrets overlays decrypted secure values onto the settings
func (s *PluginSettings) ApplySecrets(secrets map[string]string) {
	if secrets == nil {
		return
	}

	if v := secrets["groqApiKey"]; v != "" {
		s.GroqAPIKey = v
	}
	if v := secrets["grafanaApiKey"]; v != "" {
		s.GrafanaAPIKey = v
	}
}

// Validate checks if required settings are present and fills defaults
func (s *PluginSettings) Validate() error {
	if s.GroqAPIKey == "" {
		return fmt.Errorf("Groq API key is required")
	}

	if s.GrafanaURL == "" {
		return fmt.Errorf("Grafana URL is required")
	}

	if s.Model == "" {
		s.Model = llm.DefaultModel
	}

	return nil
}
