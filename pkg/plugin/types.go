package plugin

import "github.com/dashchat/grafana-dashchat-plugin/pkg/agent"

// ChatRequest represents an incoming chat request
type ChatRequest struct {
	Message      string `json:"message"`
	SessionID    string `json:"session_id"`
	DashboardUID string `json:"dashboard_uid"`
}

// ChatResponse represents a chat response
type ChatResponse struct {
	Reply     string `json:"reply"`
	SessionID string `json:"session_id"`
}

// SessionRequest names a session for reset requests
type SessionRequest struct {
	SessionID string `json:"session_id"`
}

// HistoryResponse carries the renderable transcript of a session
type HistoryResponse struct {
	Messages  []agent.Message `json:"messages"`
	SessionID string          `json:"session_id"`
}

// ContextResponse carries a preview of the assembled dashboard context
type ContextResponse struct {
	Context      string `json:"context"`
	DashboardUID string `json:"dashboard_uid"`
}
