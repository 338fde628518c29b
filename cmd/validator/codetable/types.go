// types.go
package codetable

import (
	"github.com/rs/zerolog"
)

// CodeTable holds one HL7 table definition. Immutable after load.
type CodeTable struct {
	ID          string
	Name        string
	Description string
	codes       map[string]struct{}
	sorted      []string
	aliases     map[string]string
}

// Codes returns the table's valid codes in sorted order.
func (t *CodeTable) Codes() []string {
	out := make([]string, len(t.sorted))
	copy(out, t.sorted)
	return out
}

// Contains reports whether code is a member of the table. Exact,
// case-sensitive match.
func (t *CodeTable) Contains(code string) bool {
	_, ok := t.codes[code]
	return ok
}

// Service answers code-membership and similar-code queries against the
// loaded tables. Read-only after New, safe for concurrent use.
type Service struct {
	tables    map[string]*CodeTable
	threshold float64
	log       zerolog.Logger
}

type Config struct {
	// LocalPath is the JSON file holding the table definitions.
	LocalPath string

	// SimilarityThreshold is the minimum score (0-1) a candidate must
	// reach in FindSimilar before it is suggested.
	SimilarityThreshold float64
}

// tableFile is the on-disk shape of a single table entry.
type tableFile struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Codes       []string          `json:"codes"`
	Aliases     map[string]string `json:"aliases,omitempty"`
}
