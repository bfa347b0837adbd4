package dashboard

import (
	"bytes"
	"encoding/json"

	"github.com/grafana/grafana-plugin-sdk-go/backend/log"
)

// UnknownDataSource is the sentinel used when a target does not declare
// a data source.
const UnknownDataSource = "Unknown"

// Target is a single query definition attached to a panel
type Target struct {
	Datasource json.RawMessage `json:"datasource"`
	RawSQL     string          `json:"rawSql"`
	RefID      string          `json:"refId"`
	Format     string          `json:"format"`
}

// Panel is one dashboard panel as stored in dashboard JSON
type Panel struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Targets     []Target `json:"targets"`
}

// QueryDescriptor is one extracted panel query with its panel's
// display metadata attached
type QueryDescriptor struct {
	DataSource       string
	RawSQL           string
	RefID            string
	Format           string
	PanelTitle       string
	PanelDescription string
}

// ExtractQueries flattens a dashboard's panel collection into query
// descriptors, one per target, preserving panel-then-target order.
// The panel collection may arrive as a JSON array or as a JSON string
// wrapping that array (some dashboard storage serializes panels
// twice). Malformed input yields an empty result, never an error.
// Targets without raw SQL are retained; filtering is the caller's job.
func ExtractQueries(panels json.RawMessage) []QueryDescriptor {
	raw := bytes.TrimSpace(panels)
	if len(raw) == 0 {
		log.DefaultLogger.Warn("Dashboard has no panel list")
		return []QueryDescriptor{}
	}

	// Serialized-text form: unwrap the string, then parse its content.
	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			log.DefaultLogger.Warn("Failed to parse serialized panel list", "error", err)
			return []QueryDescriptor{}
		}
		raw = []byte(inner)
	}

	var list []Panel
	if err := json.Unmarshal(raw, &list); err != nil {
		log.DefaultLogger.Warn("Panel list is not a valid panel array", "error", err)
		return []QueryDescriptor{}
	}

	descriptors := []QueryDescriptor{}
	for _, panel := range list {
		for _, target := range panel.Targets {
			descriptors = append(descriptors, QueryDescriptor{
				DataSource:       dataSourceName(target.Datasource),
				RawSQL:           target.RawSQL,
				RefID:            target.RefID,
				Format:           target.Format,
				PanelTitle:       panel.Title,
				PanelDescription: panel.Description,
			})
		}
	}

	return descriptors
}

// dataSourceName resolves a target's datasource field, which dashboard
// JSON stores either as a plain name string or as a {uid, type} ref
// object. Missing or unrecognizable values map to the Unknown sentinel.
func dataSourceName(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return UnknownDataSource
	}

	var name string
	if err := json.Unmarshal(trimmed, &name); err == nil {
		if name == "" {
			return UnknownDataSource
		}
		return name
	}

	var ref struct {
		UID  string `json:"uid"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(trimmed, &ref); err == nil {
		if ref.UID != "" {
			return ref.UID
		}
		if ref.Name != "" {
			return ref.Name
		}
	}

	return UnknownDataSource
}
