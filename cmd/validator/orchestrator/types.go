// types.go
package orchestrator

import (
	"time"

	"github.com/ddeveloper72/hl7validator/cmd/validator/corrector"
	"github.com/ddeveloper72/hl7validator/cmd/validator/gazelle"
	"github.com/ddeveloper72/hl7validator/cmd/validator/resultstore"
)

// TerminalStatus is the outcome of an auto-validate run. A failed run
// is never reported as success: exhausting the iteration cap and
// making no progress are distinct outcomes.
type TerminalStatus int

const (
	StatusPassed TerminalStatus = iota
	StatusFailedMaxIterations
	StatusFailedNoProgress
)

func (s TerminalStatus) String() string {
	switch s {
	case StatusPassed:
		return "PASSED"
	case StatusFailedMaxIterations:
		return "FAILED_MAX_ITERATIONS"
	case StatusFailedNoProgress:
		return "FAILED_NO_PROGRESS"
	default:
		return "UNDEFINED"
	}
}

func (s TerminalStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Iteration is one submit-and-check cycle. Corrections holds the
// batch applied after this cycle's report, feeding the next cycle's
// input; it is nil on the terminal iteration.
type Iteration struct {
	Attempt      int                     `json:"attempt"`
	Status       gazelle.Status          `json:"status"`
	ErrorCount   int                     `json:"errorCount"`
	WarningCount int                     `json:"warningCount"`
	Errors       []gazelle.ReportedError `json:"errors,omitempty"`
	Corrections  *corrector.Batch        `json:"corrections,omitempty"`
	ReportURL    string                  `json:"reportUrl,omitempty"`
}

// Result is the full outcome of an auto-validate run: the terminal
// status, every iteration's detail, and the final corrected buffer.
type Result struct {
	ID               resultstore.ReportID `json:"id"`
	Filename         string               `json:"filename"`
	MessageType      string               `json:"messageType"`
	Final            TerminalStatus       `json:"final"`
	Iterations       []Iteration          `json:"iterations"`
	CorrectedContent []byte               `json:"-"`
	Corrections      corrector.Summary    `json:"corrections"`
	FinalReportURL   string               `json:"finalReportUrl,omitempty"`
	StartedAt        time.Time            `json:"startedAt"`
	CompletedAt      time.Time            `json:"completedAt"`
}
