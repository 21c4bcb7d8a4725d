package models

import "time"

// ImportStep tracks progress through the column-mapping wizard. The flow
// is linear; stepping back is allowed from Map and Preview only.
type ImportStep string

const (
	ImportStepUpload  ImportStep = "upload"
	ImportStepMap     ImportStep = "map"
	ImportStepPreview ImportStep = "preview"
	ImportStepResults ImportStep = "results"
)

// ImportField describes one target field a spreadsheet column can map to.
type ImportField struct {
	Key      string `json:"key"`
	Label    string `json:"label"`
	Required bool   `json:"required"`
}

// ImportSession is the server-side state of one wizard run.
type ImportSession struct {
	ID        string              `json:"id"`
	Target    string              `json:"target"`
	Step      ImportStep          `json:"step"`
	Headers   []string            `json:"headers"`
	Rows      []map[string]string `json:"-"`
	Mapping   map[string]string   `json:"mapping"`
	Result    *ImportResult       `json:"result,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
	ExpiresAt time.Time           `json:"expires_at"`
}

// ImportResult reports the outcome of a committed import.
type ImportResult struct {
	Success      bool     `json:"success"`
	SuccessCount int      `json:"successCount"`
	Errors       []string `json:"errors"`
}
