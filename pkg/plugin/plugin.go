package plugin

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dashchat/grafana-dashchat-plugin/pkg/agent"
	"github.com/dashchat/grafana-dashchat-plugin/pkg/dashboard"
	"github.com/dashchat/grafana-dashchat-plugin/pkg/harvest"
	"github.com/dashchat/grafana-dashchat-plugin/pkg/llm"
	"github.com/dashchat/grafana-dashchat-plugin/pkg/query"
	"github.com/grafana/grafana-plugin-sdk-go/backend"
	"github.com/grafana/grafana-plugin-sdk-go/backend/log"
)

// Make sure Plugin implements required interfaces
var (
	_ backend.CallResourceHandler = (*Plugin)(nil)
)

// Plugin is the main plugin struct that manages instances
type Plugin struct {
	mu        sync.RWMutex
	instances map[int64]*Instance
}

// Instance represents a plugin instance for one organization
type Instance struct {
	agentManager *agent.Manager
	assembler    *harvest.Assembler
	grafana      *dashboard.Client
	settings     *PluginSettings
}

// NewPlugin creates a new Plugin
func NewPlugin() *Plugin {
	return &Plugin{
		instances: make(map[int64]*Instance),
	}
}

// CallResource handles HTTP requests to plugin resources
func (p *Plugin) CallResource(ctx context.Context, req *backend.CallResourceRequest, sender backend.CallResourceResponseSender) error {
	log.DefaultLogger.Info("CallResource", "path", req.Path, "method", req.Method)

	// Get or create instance
	instance, err := p.getInstance(req.PluginContext)
	if err != nil {
		return p.sendError(sender, 500, fmt.Sprintf("Failed to get plugin instance: %v", err))
	}

	// Route to appropriate handler
	switch req.Path {
	case "chat":
		return instance.handleChat(ctx, req, sender)
	case "history":
		return instance.handleHistory(ctx, req, sender)
	case "reset":
		return instance.handleReset(ctx, req, sender)
	case "context":
		return instance.handleContext(ctx, req, sender)
	case "health":
		return instance.handleHealth(ctx, req, sender)
	default:
		return p.sendError(sender, 404, "Not found")
	}
}

// getInstance gets or creates an instance for the given plugin context
func (p *Plugin) getInstance(pluginCtx backend.PluginContext) (*Instance, error) {
	// Use OrgID as the instance key since this is a panel plugin
	instanceID := pluginCtx.OrgID

	// Check if instance already exists
	p.mu.RLock()
	instance, exists := p.instances[instanceID]
	p.mu.RUnlock()

	if exists {
		return instance, nil
	}

	// Create new instance
	p.mu.Lock()
	defer p.mu.Unlock()

	// Double-check after acquiring write lock
	if instance, exists = p.instances[instanceID]; exists {
		return instance, nil
	}

	instance, err := p.createInstance(pluginCtx)
	if err != nil {
		return nil, err
	}

	p.instances[instanceID] = instance
	return instance, nil
}

// createInstance creates a new plugin instance
func (p *Plugin) createInstance(pluginCtx backend.PluginContext) (*Instance, error) {
	log.DefaultLogger.Info("Creating new plugin instance", "org_id", pluginCtx.OrgID)

	// Get settings from AppInstanceSettings if available, otherwise use DataSourceInstanceSettings
	var jsonData []byte
	var decryptedSecrets map[string]string

	if pluginCtx.AppInstanceSettings != nil {
		jsonData = pluginCtx.AppInstanceSettings.JSONData
		decryptedSecrets = pluginCtx.AppInstanceSettings.DecryptedSecureJSONData
	} else if pluginCtx.DataSourceInstanceSettings != nil {
		jsonData = pluginCtx.DataSourceInstanceSettings.JSONData
		decryptedSecrets = pluginCtx.DataSourceInstanceSettings.DecryptedSecureJSONData
	}

	// Parse plugin settings
	pluginSettings, err := LoadSettings(jsonData)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	// Overlay decrypted secrets and validate
	pluginSettings.ApplySecrets(decryptedSecrets)
	if err := pluginSettings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}

	// Create Groq completion client
	groqClient, err := llm.NewGroqClient(pluginSettings.GroqAPIKey, pluginSettings.Model)
	if err != nil {
		return nil, fmt.Errorf("failed to create Groq client: %w", err)
	}

	// Wire the data harvesting pipeline
	grafanaClient := dashboard.NewClient(pluginSettings.GrafanaURL, pluginSettings.GrafanaAPIKey)
	registry := query.NewGrafanaRegistry(pluginSettings.GrafanaURL, pluginSettings.GrafanaAPIKey)
	assembler := harvest.NewAssembler(grafanaClient, query.NewExecutor(registry))

	agentManager := agent.NewManager(groqClient, assembler, pluginSettings.InitialChatMessage)

	return &Instance{
		agentManager: agentManager,
		assembler:    assembler,
		grafana:      grafanaClient,
		settings:     pluginSettings,
	}, nil
}

// sendJSON sends a JSON response
func (i *Instance) sendJSON(sender backend.CallResourceResponseSender, status int, data interface{}) error {
	body, err := json.Marshal(data)
	if err != nil {
		return i.sendError(sender, 500, fmt.Sprintf("Failed to marshal JSON: %v", err))
	}

	return sender.Send(&backend.CallResourceResponse{
		Status:  status,
		Headers: map[string][]string{"Content-Type": {"application/json"}},
		Body:    body,
	})
}

// sendError sends an error response
func (i *Instance) sendError(sender backend.CallResourceResponseSender, status int, message string) error {
	return i.sendJSON(sender, status, map[string]string{"error": message})
}

// sendError on Plugin for use before instance is available
func (p *Plugin) sendError(sender backend.CallResourceResponseSender, status int, message string) error {
	body, _ := json.Marshal(map[string]string{"error": message})
	return sender.Send(&backend.CallResourceResponse{
		Status:  status,
		Headers: map[string][]string{"Content-Type": {"application/json"}},
		Body:    body,
	})
}
