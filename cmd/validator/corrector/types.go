// types.go
package corrector

// Category classifies a correction. Critical structural fixes are
// always applied first: downstream XML parsing depends on them.
type Category int

const (
	CategoryCritical Category = iota
	CategoryCode
	CategoryField
)

func (c Category) String() string {
	switch c {
	case CategoryCritical:
		return "critical-fix"
	case CategoryCode:
		return "code-fix"
	case CategoryField:
		return "field-insertion"
	default:
		return "unknown"
	}
}

// Correction records one applied transformation.
type Correction struct {
	Category    Category `json:"category"`
	Field       string   `json:"field,omitempty"`
	Location    string   `json:"location,omitempty"`
	OldValue    string   `json:"oldValue,omitempty"`
	NewValue    string   `json:"newValue,omitempty"`
	Table       string   `json:"table,omitempty"`
	Description string   `json:"description"`
}

// Unresolved records an error that could not be mapped to a fix. It
// never aborts the batch; the value is left for manual review.
type Unresolved struct {
	Location    string `json:"location"`
	Description string `json:"description"`
	Reason      string `json:"reason"`
}

// Batch accumulates the corrections of one pass. Immutable once
// returned by the Corrector.
type Batch struct {
	Corrections []Correction `json:"corrections"`
	Skipped     []Unresolved `json:"skipped,omitempty"`
}

// Total is the number of corrections applied. It always equals the
// sum of the per-category counts.
func (b *Batch) Total() int {
	return len(b.Corrections)
}

func (b *Batch) CountByCategory(c Category) int {
	n := 0
	for _, corr := range b.Corrections {
		if corr.Category == c {
			n++
		}
	}
	return n
}

func (b *Batch) CriticalFixes() int   { return b.CountByCategory(CategoryCritical) }
func (b *Batch) CodeFixes() int       { return b.CountByCategory(CategoryCode) }
func (b *Batch) FieldInsertions() int { return b.CountByCategory(CategoryField) }

func (b *Batch) add(c Correction) {
	b.Corrections = append(b.Corrections, c)
}

func (b *Batch) skip(location, description, reason string) {
	b.Skipped = append(b.Skipped, Unresolved{
		Location:    location,
		Description: description,
		Reason:      reason,
	})
}

// Summary is the flattened count breakdown attached to API responses
// and history rows.
type Summary struct {
	Total           int `json:"total"`
	CriticalFixes   int `json:"criticalFixes"`
	CodeFixes       int `json:"codeFixes"`
	FieldInsertions int `json:"fieldInsertions"`
	Unresolved      int `json:"unresolved"`
}

func (b *Batch) Summary() Summary {
	return Summary{
		Total:           b.Total(),
		CriticalFixes:   b.CriticalFixes(),
		CodeFixes:       b.CodeFixes(),
		FieldInsertions: b.FieldInsertions(),
		Unresolved:      len(b.Skipped),
	}
}

// Placeholder describes the minimal valid structure inserted for a
// missing mandatory field: the enclosing element, the child element
// to create, and the value it carries.
type Placeholder struct {
	Parent  string `json:"parent"`
	Element string `json:"element"`
	Value   string `json:"value"`
}
