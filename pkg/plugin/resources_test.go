package plugin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dashchat/grafana-dashchat-plugin/pkg/agent"
	"github.com/dashchat/grafana-dashchat-plugin/pkg/dashboard"
	"github.com/grafana/grafana-plugin-sdk-go/backend"
	"github.com/sashabaranov/go-openai"
)

type fakeSender struct {
	responses []*backend.CallResourceResponse
}

func (f *fakeSender) Send(resp *backend.CallResourceResponse) error {
	f.responses = append(f.responses, resp)
	return nil
}

func (f *fakeSender) last(t *testing.T) *backend.CallResourceResponse {
	t.Helper()
	if len(f.responses) == 0 {
		t.Fatal("No response was sent")
	}
	return f.responses[len(f.responses)-1]
}

type fakeCompleter struct {
	reply string
	err   error
}

func (f *fakeCompleter) Complete(_ context.Context, _ []openai.ChatCompletionMessage) (string, error) {
	return f.reply, f.err
}

type fakeContexts struct{ context string }

func (f *fakeContexts) Build(_ context.Context, _ string) (string, error) {
	return f.context, nil
}

func testInstance(completer agent.Completer) *Instance {
	return &Instance{
		agentManager: agent.NewManager(completer, &fakeContexts{context: "ctx"}, ""),
		settings:     &PluginSettings{GrafanaURL: "http://localhost:3000", GroqAPIKey: "sk", Model: "llama-3.3-70b-versatile"},
	}
}

func TestHandleChat(t *testing.T) {
	instance := testInstance(&fakeCompleter{reply: "the answer"})
	sender := &fakeSender{}

	body, _ := json.Marshal(ChatRequest{Message: "X", DashboardUID: "dash-1"})
	req := &backend.CallResourceRequest{Path: "chat", Method: "POST", Body: body}

	if err := instance.handleChat(context.Background(), req, sender); err != nil {
		t.Fatalf("handleChat() error = %v", err)
	}

	resp := sender.last(t)
	if resp.Status != 200 {
		t.Fatalf("Status = %d, want 200, body: %s", resp.Status, resp.Body)
	}

	var chatResp ChatResponse
	if err := json.Unmarshal(resp.Body, &chatResp); err != nil {
		t.Fatalf("Response is not valid JSON: %v", err)
	}
	if chatResp.Reply != "the answer" {
		t.Errorf("Reply = %q, want the answer", chatResp.Reply)
	}
	if chatResp.SessionID == "" {
		t.Error("SessionID should be generated when not provided")
	}
}

func TestHandleChatValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "invalid body",
			body: `{"message":`,
		},
		{
			name: "missing message",
			body: `{"session_id":"s1"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			instance := testInstance(&fakeCompleter{reply: "ok"})
			sender := &fakeSender{}

			req := &backend.CallResourceRequest{Path: "chat", Method: "POST", Body: []byte(tt.body)}
			if err := instance.handleChat(context.Background(), req, sender); err != nil {
				t.Fatalf("handleChat() error = %v", err)
			}

			if resp := sender.last(t); resp.Status != 400 {
				t.Errorf("Status = %d, want 400", resp.Status)
			}
		})
	}
}

func TestHandleChatCompletionFailure(t *testing.T) {
	instance := testInstance(&fakeCompleter{err: errors.New("network down")})
	sender := &fakeSender{}

	body, _ := json.Marshal(ChatRequest{Message: "X", SessionID: "s1"})
	req := &backend.CallResourceRequest{Path: "chat", Method: "POST", Body: body}

	if err := instance.handleChat(context.Background(), req, sender); err != nil {
		t.Fatalf("handleChat() error = %v", err)
	}

	if resp := sender.last(t); resp.Status != 502 {
		t.Errorf("Status = %d, want 502", resp.Status)
	}

	// The submitted user message survives the failed turn
	history := instance.agentManager.History("s1")
	if len(history) != 1 || history[0].Content != "X" {
		t.Errorf("History after failed completion = %v, want just the user message", history)
	}
}

func TestHandleHistoryAndReset(t *testing.T) {
	instance := testInstance(&fakeCompleter{reply: "hi"})
	sender := &fakeSender{}

	body, _ := json.Marshal(ChatRequest{Message: "X", SessionID: "s1"})
	req := &backend.CallResourceRequest{Path: "chat", Method: "POST", Body: body}
	if err := instance.handleChat(context.Background(), req, sender); err != nil {
		t.Fatalf("handleChat() error = %v", err)
	}

	histReq := &backend.CallResourceRequest{Path: "history", Method: "GET", URL: "/history?session_id=s1"}
	if err := instance.handleHistory(context.Background(), histReq, sender); err != nil {
		t.Fatalf("handleHistory() error = %v", err)
	}

	var histResp HistoryResponse
	if err := json.Unmarshal(sender.last(t).Body, &histResp); err != nil {
		t.Fatalf("History response is not valid JSON: %v", err)
	}
	if len(histResp.Messages) != 2 {
		t.Fatalf("History has %d messages, want user+assistant", len(histResp.Messages))
	}

	resetBody, _ := json.Marshal(SessionRequest{SessionID: "s1"})
	resetReq := &backend.CallResourceRequest{Path: "reset", Method: "POST", Body: resetBody}
	if err := instance.handleReset(context.Background(), resetReq, sender); err != nil {
		t.Fatalf("handleReset() error = %v", err)
	}
	if resp := sender.last(t); resp.Status != 200 {
		t.Errorf("Reset status = %d, want 200", resp.Status)
	}

	if len(instance.agentManager.History("s1")) != 0 {
		t.Error("History should be empty after reset")
	}
}

func TestHandleHistoryMissingSession(t *testing.T) {
	instance := testInstance(&fakeCompleter{})
	sender := &fakeSender{}

	req := &backend.CallResourceRequest{Path: "history", Method: "GET", URL: "/history"}
	if err := instance.handleHistory(context.Background(), req, sender); err != nil {
		t.Fatalf("handleHistory() error = %v", err)
	}

	if resp := sender.last(t); resp.Status != 400 {
		t.Errorf("Status = %d, want 400", resp.Status)
	}
}

func TestHandleHealth(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		wantStatus int
	}{
		{
			name:       "grafana reachable",
			statusCode: http.StatusOK,
			wantStatus: 200,
		},
		{
			name:       "grafana down",
			statusCode: http.StatusServiceUnavailable,
			wantStatus: 503,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path == "/api/health" {
					w.WriteHeader(tt.statusCode)
				}
			}))
			defer server.Close()

			instance := testInstance(&fakeCompleter{})
			instance.grafana = dashboard.NewClient(server.URL, "")
			sender := &fakeSender{}

			req := &backend.CallResourceRequest{Path: "health", Method: "GET"}
			if err := instance.handleHealth(context.Background(), req, sender); err != nil {
				t.Fatalf("handleHealth() error = %v", err)
			}

			if resp := sender.last(t); resp.Status != tt.wantStatus {
				t.Errorf("Status = %d, want %d", resp.Status, tt.wantStatus)
			}
		})
	}
}

func TestCallResourceUnknownPath(t *testing.T) {
	p := NewPlugin()
	sender := &fakeSender{}

	settings, _ := json.Marshal(map[string]string{
		"grafanaUrl": "http://localhost:3000",
		"groqApiKey": "sk-test",
	})
	req := &backend.CallResourceRequest{
		Path:   "nope",
		Method: "GET",
		PluginContext: backend.PluginContext{
			OrgID: 1,
			AppInstanceSettings: &backend.AppInstanceSettings{
				JSONData: settings,
			},
		},
	}

	if err := p.CallResource(context.Background(), req, sender); err != nil {
		t.Fatalf("CallResource() error = %v", err)
	}

	if resp := sender.last(t); resp.Status != 404 {
		t.Errorf("Status = %d, want 404", resp.Status)
	}
}

func TestGetInstanceCaches(t *testing.T) {
	p := NewPlugin()

	settings, _ := json.Marshal(map[string]string{
		"grafanaUrl": "http://localhost:3000",
		"groqApiKey": "sk-test",
	})
	pluginCtx := backend.PluginContext{
		OrgID: 7,
		AppInstanceSettings: &backend.AppInstanceSettings{
			JSONData: settings,
		},
	}

	first, err := p.getInstance(pluginCtx)
	if err != nil {
		t.Fatalf("getInstance() error = %v", err)
	}
	second, err := p.getInstance(pluginCtx)
	if err != nil {
		t.Fatalf("getInstance() error = %v", err)
	}

	if first != second {
		t.Error("getInstance() should reuse the instance for the same org")
	}
}

func TestQueryParam(t *testing.T) {
	tests := []struct {
		name string
		url  string
		key  string
		want string
	}{
		{
			name: "present",
			url:  "/context?dashboard_uid=dash-1",
			key:  "dashboard_uid",
			want: "dash-1",
		},
		{
			name: "absent",
			url:  "/context",
			key:  "dashboard_uid",
			want: "",
		},
		{
			name: "empty url",
			url:  "",
			key:  "x",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := queryParam(tt.url, tt.key); got != tt.want {
				t.Errorf("queryParam(%q, %q) = %q, want %q", tt.url, tt.key, got, tt.want)
			}
		})
	}
}
