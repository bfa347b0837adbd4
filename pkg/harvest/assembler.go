package harvest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dashchat/grafana-dashchat-plugin/pkg/dashboard"
	"github.com/dashchat/grafana-dashchat-plugin/pkg/query"
	"github.com/grafana/grafana-plugin-sdk-go/backend/log"
)

// Context text wrapping the serialized panel results
const (
	contextPrefix = "The user is viewing a dashboard with the following panels and their current data:\n\n"
	contextSuffix = "\n\nUse this data to answer questions about the dashboard."
)

// PanelResult is one panel's harvested data: its display metadata plus
// the rows returned by re-running its query
type PanelResult struct {
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Rows        []query.Row `json:"rows"`
}

// MetadataService fetches dashboard metadata by UID
type MetadataService interface {
	Dashboard(ctx context.Context, uid string) (*dashboard.Dashboard, error)
}

// QueryRunner executes one extracted panel query
type QueryRunner interface {
	Run(ctx context.Context, desc dashboard.QueryDescriptor) ([]query.Row, error)
}

// Assembler harvests the current data behind a dashboard's panels and
// packages it as context text for the first model turn
type Assembler struct {
	metadata MetadataService
	runner   QueryRunner
}

// NewAssembler creates a context assembler
func NewAssembler(metadata MetadataService, runner QueryRunner) *Assembler {
	return &Assembler{
		metadata: metadata,
		runner:   runner,
	}
}

// Build fetches the dashboard, re-runs every panel query concurrently
// and serializes the results into one context string. A missing UID or
// a dashboard without queryable targets yields an empty context. A
// failing query drops that panel's rows but never the assembly.
func (a *Assembler) Build(ctx context.Context, dashboardUID string) (string, error) {
	if dashboardUID == "" {
		log.DefaultLogger.Warn("No dashboard UID; skipping context assembly")
		return "", nil
	}

	dash, err := a.metadata.Dashboard(ctx, dashboardUID)
	if err != nil {
		return "", fmt.Errorf("failed to fetch dashboard %s: %w", dashboardUID, err)
	}

	descriptors := dashboard.ExtractQueries(dash.Panels)

	queryable := descriptors[:0]
	for _, desc := range descriptors {
		if desc.RawSQL != "" {
			queryable = append(queryable, desc)
		}
	}

	if len(queryable) == 0 {
		log.DefaultLogger.Info("Dashboard has no queryable targets", "uid", dashboardUID)
		return "", nil
	}

	results := make([]PanelResult, len(queryable))
	var wg sync.WaitGroup

	for i, desc := range queryable {
		wg.Add(1)
		go func(i int, desc dashboard.QueryDescriptor) {
			defer wg.Done()

			rows, err := a.runner.Run(ctx, desc)
			if err != nil {
				log.DefaultLogger.Warn("Panel query failed; omitting its data",
					"panel", desc.PanelTitle, "datasource", desc.DataSource, "error", err)
				rows = []query.Row{}
			}

			results[i] = PanelResult{
				Title:       desc.PanelTitle,
				Description: desc.PanelDescription,
				Rows:        rows,
			}
		}(i, desc)
	}

	wg.Wait()

	payload, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to serialize panel results: %w", err)
	}

	return contextPrefix + string(payload) + contextSuffix, nil
}
