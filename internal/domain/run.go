package domain

import (
	"time"

	"github.com/jiuai233/StreamDeck/internal/protocol"
)

// DefaultIcon is the placeholder icon reference used when no asset was found.
const DefaultIcon = "default.png"

// Entry is the result for one model, in the remote's model-list order.
type Entry struct {
	Model   protocol.Model    `json:"model"`
	Icon    string            `json:"icon"`
	Hotkeys []protocol.Hotkey `json:"hotkeys"`
	Skipped bool              `json:"skipped,omitempty"`
	Failure string            `json:"failure,omitempty"`
}

// Placeholder builds the entry recorded for a model that could not be processed.
func Placeholder(m protocol.Model, icon string, cause error) Entry {
	e := Entry{
		Model:   m,
		Icon:    icon,
		Hotkeys: []protocol.Hotkey{},
		Skipped: true,
	}
	if cause != nil {
		e.Failure = cause.Error()
	}
	return e
}

// RunResult is the outcome of one full enumeration pass.
type RunResult struct {
	RunID      string    `json:"run_id"`
	Endpoint   string    `json:"endpoint"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Entries    []Entry   `json:"entries"`
	Succeeded  int       `json:"succeeded"`
	Skipped    int       `json:"skipped"`
}

// Add appends an entry and updates the counters.
func (r *RunResult) Add(e Entry) {
	r.Entries = append(r.Entries, e)
	if e.Skipped {
		r.Skipped++
	} else {
		r.Succeeded++
	}
}
