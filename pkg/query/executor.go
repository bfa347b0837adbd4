package query

import (
	"context"
	"errors"
	"fmt"

	"github.com/dashchat/grafana-dashchat-plugin/pkg/dashboard"
)

// ErrMissingDataSource indicates a query target that declares no data
// source at all.
var ErrMissingDataSource = errors.New("query target has no data source")

// Fixed execution window for re-issued panel queries
const (
	timeFrom      = "now-1h"
	timeTo        = "now"
	intervalMS    = 60000
	maxDataPoints = 500
	timezone      = "browser"
)

// Request is one query execution request against a resolved data source
type Request struct {
	RefID         string
	RawSQL        string
	Format        string
	From          string
	To            string
	IntervalMS    int64
	MaxDataPoints int64
	Timezone      string
}

// Batch is one emission from a data source's response stream. Either
// Frames or Err is set.
type Batch struct {
	Frames []Frame
	Err    error
}

// Handle executes queries against one resolved data source. The
// returned channel carries response batches and is closed when the
// stream ends.
type Handle interface {
	Query(ctx context.Context, req Request) <-chan Batch
}

// Registry resolves data source names to query handles
type Registry interface {
	Get(ctx context.Context, name string) (Handle, error)
}

// Executor re-runs panel queries over a fixed recent time window and
// normalizes their responses
type Executor struct {
	registry Registry
}

// NewExecutor creates an executor backed by the given registry
func NewExecutor(registry Registry) *Executor {
	return &Executor{registry: registry}
}

// Run executes one extracted panel query and returns its normalized
// rows. Only the first batch of the response stream is consumed; a
// stream that errors or closes before emitting fails the run.
func (e *Executor) Run(ctx context.Context, desc dashboard.QueryDescriptor) ([]Row, error) {
	if desc.DataSource == "" {
		return nil, ErrMissingDataSource
	}

	handle, err := e.registry.Get(ctx, desc.DataSource)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data source %q: %w", desc.DataSource, err)
	}

	req := Request{
		RefID:         desc.RefID,
		RawSQL:        desc.RawSQL,
		Format:        desc.Format,
		From:          timeFrom,
		To:            timeTo,
		IntervalMS:    intervalMS,
		MaxDataPoints: maxDataPoints,
		Timezone:      timezone,
	}
	if req.RefID == "" {
		req.RefID = "A"
	}
	if req.Format == "" {
		req.Format = "table"
	}

	batch, ok := <-handle.Query(ctx, req)
	if !ok {
		return nil, fmt.Errorf("data source %q closed without a response", desc.DataSource)
	}
	if batch.Err != nil {
		return nil, fmt.Errorf("query %s on %q failed: %w", req.RefID, desc.DataSource, batch.Err)
	}

	return NormalizeFrames(batch.Frames), nil
}
