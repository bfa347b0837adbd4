package plugin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/grafana/grafana-plugin-sdk-go/backend"
	"github.com/grafana/grafana-plugin-sdk-go/backend/log"
)

// handleChat runs one conversation turn
func (i *Instance) handleChat(ctx context.Context, req *backend.CallResourceRequest, sender backend.CallResourceResponseSender) error {
	// Parse request body
	var chatReq ChatRequest
	if err := json.Unmarshal(req.Body, &chatReq); err != nil {
		return i.sendError(sender, 400, fmt.Sprintf("Invalid request body: %v", err))
	}

	// Validate request
	if chatReq.Message == "" {
		return i.sendError(sender, 400, "Message is required")
	}

	// Generate session ID if not provided
	if chatReq.SessionID == "" {
		chatReq.SessionID = uuid.NewString()
	}

	log.DefaultLogger.Info("Chat request",
		"session", chatReq.SessionID,
		"dashboard", chatReq.DashboardUID,
		"message_length", len(chatReq.Message))

	// Run the turn
	reply, err := i.agentManager.Submit(ctx, chatReq.SessionID, chatReq.DashboardUID, chatReq.Message)
	if err != nil {
		log.DefaultLogger.Error("Chat turn failed", "session", chatReq.SessionID, "error", err)
		return i.sendError(sender, 502, fmt.Sprintf("Chat failed: %v", err))
	}

	return i.sendJSON(sender, 200, ChatResponse{
		Reply:     reply,
		SessionID: chatReq.SessionID,
	})
}

// handleHistory returns the renderable transcript for a session
func (i *Instance) handleHistory(_ context.Context, req *backend.CallResourceRequest, sender backend.CallResourceResponseSender) error {
	sessionID := queryParam(req.URL, "session_id")
	if sessionID == "" {
		return i.sendError(sender, 400, "session_id is required")
	}

	return i.sendJSON(sender, 200, HistoryResponse{
		Messages:  i.agentManager.History(sessionID),
		SessionID: sessionID,
	})
}

// handleReset clears a session's transcript
func (i *Instance) handleReset(_ context.Context, req *backend.CallResourceRequest, sender backend.CallResourceResponseSender) error {
	var resetReq SessionRequest
	if err := json.Unmarshal(req.Body, &resetReq); err != nil {
		return i.sendError(sender, 400, fmt.Sprintf("Invalid request body: %v", err))
	}

	if resetReq.SessionID == "" {
		return i.sendError(sender, 400, "session_id is required")
	}

	i.agentManager.Reset(resetReq.SessionID)
	log.DefaultLogger.Info("Session reset", "session", resetReq.SessionID)

	return i.sendJSON(sender, 200, map[string]string{"status": "reset"})
}

// handleContext previews the assembled dashboard context without
// starting a conversation
func (i *Instance) handleContext(ctx context.Context, req *backend.CallResourceRequest, sender backend.CallResourceResponseSender) error {
	dashboardUID := queryParam(req.URL, "dashboard_uid")

	assembled, err := i.assembler.Build(ctx, dashboardUID)
	if err != nil {
		log.DefaultLogger.Error("Context assembly failed", "dashboard", dashboardUID, "error", err)
		return i.sendError(sender, 502, fmt.Sprintf("Context assembly failed: %v", err))
	}

	return i.sendJSON(sender, 200, ContextResponse{
		Context:      assembled,
		DashboardUID: dashboardUID,
	})
}

// handleHealth returns health status
func (i *Instance) handleHealth(ctx context.Context, _ *backend.CallResourceRequest, sender backend.CallResourceResponseSender) error {
	const healthTimeout = 3 * time.Second

	overallStatus := "healthy"
	response := map[string]interface{}{
		"status": "healthy",
		"model":  i.settings.Model,
	}

	// Check Grafana API reachability
	grafanaCtx, cancel := context.WithTimeout(ctx, healthTimeout)
	err := i.grafana.Health(grafanaCtx)
	cancel()

	if err != nil {
		overallStatus = "unhealthy"
		response["grafana"] = map[string]interface{}{
			"ok":    false,
			"error": err.Error(),
		}
	} else {
		response["grafana"] = map[string]interface{}{
			"ok": true,
		}
	}

	response["status"] = overallStatus
	statusCode := 200
	if overallStatus != "healthy" {
		statusCode = 503
	}

	return i.sendJSON(sender, statusCode, response)
}

// queryParam extracts one query string parameter from a resource URL
func queryParam(rawURL, key string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return parsed.Query().Get(key)
}
