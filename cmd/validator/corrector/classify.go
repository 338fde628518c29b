// classify.go
package corrector

import (
	"regexp"
	"strings"

	"github.com/ddeveloper72/hl7validator/cmd/validator/gazelle"
)

type fixKind int

const (
	fixKindNone fixKind = iota
	fixKindCode
	fixKindMissingField
)

var (
	tableRefPattern    = regexp.MustCompile(`HL7\d{4}`)
	quotedValuePattern = regexp.MustCompile(`'([^']+)'`)
)

// classify decides which correction rule an error maps onto. The
// wording varies between validator versions, so this matches the
// phrases observed in Gazelle reports rather than a fixed grammar.
func classify(e gazelle.ReportedError) fixKind {
	desc := strings.ToLower(e.Description)
	typ := strings.ToLower(e.Type)

	if tableRefPattern.MatchString(e.Description) {
		switch {
		case strings.Contains(desc, "not in"),
			strings.Contains(desc, "not a valid"),
			strings.Contains(desc, "code system"),
			strings.Contains(desc, "not found in"),
			strings.Contains(typ, "value not in"):
			return fixKindCode
		}
	}

	switch {
	case strings.Contains(desc, "missing"),
		strings.Contains(desc, "shall be present"),
		strings.Contains(desc, "must be present"),
		strings.Contains(desc, "is required"),
		strings.Contains(typ, "missing"):
		return fixKindMissingField
	}

	return fixKindNone
}

// tableRef extracts the HL7 table identifier an error refers to.
func tableRef(e gazelle.ReportedError) string {
	if t := tableRefPattern.FindString(e.Description); t != "" {
		return t
	}
	return tableRefPattern.FindString(e.Type)
}

// quotedValue extracts the offending value when the description quotes
// it, e.g. "value 'HIPEHOS' is not in table HL70301".
func quotedValue(e gazelle.ReportedError) string {
	m := quotedValuePattern.FindStringSubmatch(e.Description)
	if m == nil {
		return ""
	}
	return m[1]
}
