// types.go
package gazelle

import (
	"errors"
	"strings"
	"time"
)

// Status is the normalized outcome of one validation attempt.
type Status int

const (
	StatusUndefined Status = iota
	StatusPassed
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPassed:
		return "PASSED"
	case StatusFailed:
		return "FAILED"
	default:
		return "UNDEFINED"
	}
}

// ParseStatus maps Gazelle's overall-result strings (PASSED,
// DONE_PASSED, FAILED, DONE_FAILED, ...) onto a Status.
func ParseStatus(raw string) Status {
	upper := strings.ToUpper(raw)
	switch {
	case strings.Contains(upper, "PASSED"):
		return StatusPassed
	case strings.Contains(upper, "FAILED"):
		return StatusFailed
	default:
		return StatusUndefined
	}
}

// ReportedError is one failed constraint from a validation report.
type ReportedError struct {
	Type        string `json:"type"`
	Location    string `json:"location"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
	Severity    string `json:"severity"`
}

// Report is the normalized validation report for one submission.
type Report struct {
	Status       Status          `json:"status"`
	ErrorCount   int             `json:"errorCount"`
	WarningCount int             `json:"warningCount"`
	Errors       []ReportedError `json:"errors"`
	Warnings     []ReportedError `json:"warnings"`
	Oid          string          `json:"oid"`
	PermalinkURL string          `json:"permalinkUrl"`
}

// Submission identifies an accepted validation request on the EVS
// side. The privacy key is required to view the report permalink.
type Submission struct {
	Oid        string
	PrivacyKey string
	Location   string
}

type Config struct {
	// BaseURI of the EVS instance, e.g. https://testing.ehealthireland.ie
	BaseURI string

	// APIKey is sent as "Authorization: GazelleAPIKey <key>".
	APIKey string

	// HTTPTimeout bounds each individual HTTP call.
	HTTPTimeout time.Duration

	// PollInterval and MaxPollTime bound the report polling loop. The
	// report endpoint answers 404 while the validation is still being
	// processed.
	PollInterval time.Duration
	MaxPollTime  time.Duration
}

var (
	// ErrUnauthorized means the EVS rejected the API key.
	ErrUnauthorized = errors.New("gazelle: unauthorized, check API key")

	// ErrReportPending means the report was still not available when
	// the polling window closed.
	ErrReportPending = errors.New("gazelle: report not ready within polling window")
)
