package query

import (
	"github.com/grafana/grafana-plugin-sdk-go/backend/log"
)

// Row is one data row keyed by column name
type Row map[string]interface{}

// FieldSchema describes one column of a frame
type FieldSchema struct {
	Name string `json:"name"`
}

// FrameSchema holds the column definitions of a frame
type FrameSchema struct {
	Fields []FieldSchema `json:"fields"`
}

// FrameData holds the column values of a frame, one array per field
type FrameData struct {
	Values [][]interface{} `json:"values"`
}

// Frame is one columnar response unit from a data source
type Frame struct {
	Schema FrameSchema `json:"schema"`
	Data   FrameData   `json:"data"`
}

// NormalizeFrames converts a columnar query response into row-oriented
// records. The row count is taken from the first field of the first
// frame; additional frames are ignored.
func NormalizeFrames(frames []Frame) []Row {
	if len(frames) == 0 {
		log.DefaultLogger.Warn("Cannot normalize response: no frames")
		return []Row{}
	}

	frame := frames[0]
	if len(frame.Schema.Fields) == 0 {
		log.DefaultLogger.Warn("Cannot normalize response: frame has no fields")
		return []Row{}
	}

	rowCount := 0
	if len(frame.Data.Values) > 0 {
		rowCount = len(frame.Data.Values[0])
	}

	rows := make([]Row, 0, rowCount)
	for i := 0; i < rowCount; i++ {
		row := make(Row, len(frame.Schema.Fields))
		for j, field := range frame.Schema.Fields {
			// A column shorter than the row count leaves the cell
			// missing rather than failing the whole response.
			if j < len(frame.Data.Values) && i < len(frame.Data.Values[j]) {
				row[field.Name] = frame.Data.Values[j][i]
			}
		}
		rows = append(rows, row)
	}

	return rows
}
