// location.go
package corrector

import (
	"regexp"
	"strconv"
	"strings"
)

// fieldRef is a parsed error location. Gazelle reports locations
// either as an XPath-like element path (/SIU_S12/SCH/SCH.2/EI.4) or
// in segment-field notation (SCH-2.4).
type fieldRef struct {
	Segment   string // SCH
	Field     int    // 2
	Component int    // 4, 0 when absent
	Element   string // EI.4 when the path names the element type
}

// Parent is the field-level element enclosing the value, e.g. SCH.2.
func (r fieldRef) Parent() string {
	if r.Segment == "" || r.Field == 0 {
		return ""
	}
	return r.Segment + "." + strconv.Itoa(r.Field)
}

// Key is the segment-field notation used for placeholder lookups,
// e.g. SCH-6.3.
func (r fieldRef) Key() string {
	if r.Segment == "" || r.Field == 0 {
		return ""
	}
	key := r.Segment + "-" + strconv.Itoa(r.Field)
	if r.Component > 0 {
		key += "." + strconv.Itoa(r.Component)
	}
	return key
}

var (
	// SCH.2, ZRF.10 ... segment field tags: 2-3 letter segment names.
	segmentFieldPattern = regexp.MustCompile(`\b([A-Z][A-Z0-9]{2})\.(\d+)\b`)
	// EI.4, HD.3, CE.3 ... composite element tags.
	elementTagPattern = regexp.MustCompile(`\b([A-Z]{2,3})\.(\d+)\b`)
	// SCH-2.4 / SCH-2 segment-field notation.
	dashPattern = regexp.MustCompile(`\b([A-Z][A-Z0-9]{2})-(\d+)(?:\.(\d+))?\b`)
)

// parseLocation extracts a fieldRef from an error location string.
func parseLocation(location string) (fieldRef, bool) {
	if m := dashPattern.FindStringSubmatch(location); m != nil {
		ref := fieldRef{Segment: m[1]}
		ref.Field, _ = strconv.Atoi(m[2])
		if m[3] != "" {
			ref.Component, _ = strconv.Atoi(m[3])
		}
		ref.Element = lastElementTag(location, ref.Parent())
		return ref, true
	}

	// Path form: the last SEG.n component is the field, anything
	// dotted after it names the element type.
	matches := segmentFieldPattern.FindAllStringSubmatchIndex(location, -1)
	if len(matches) == 0 {
		// Bare element reference such as "EI.4".
		if elem := lastElementTag(location, ""); elem != "" {
			ref := fieldRef{Element: elem}
			if m := elementTagPattern.FindStringSubmatch(elem); m != nil {
				ref.Component, _ = strconv.Atoi(m[2])
			}
			return ref, true
		}
		return fieldRef{}, false
	}

	last := matches[len(matches)-1]
	ref := fieldRef{Segment: location[last[2]:last[3]]}
	ref.Field, _ = strconv.Atoi(location[last[4]:last[5]])

	rest := location[last[1]:]
	if elem := lastElementTag(rest, ""); elem != "" {
		ref.Element = elem
		if m := elementTagPattern.FindStringSubmatch(elem); m != nil {
			ref.Component, _ = strconv.Atoi(m[2])
		}
	}
	return ref, true
}

// lastElementTag returns the last composite element tag in s that is
// not the parent field tag itself.
func lastElementTag(s, parent string) string {
	matches := elementTagPattern.FindAllString(s, -1)
	for i := len(matches) - 1; i >= 0; i-- {
		tag := matches[i]
		if tag == parent {
			continue
		}
		// Field tags of three-letter segments look identical to
		// composite tags; skip anything shaped like SEG.n that also
		// appears as a path component.
		if strings.Contains(s, "/"+tag+"/") {
			continue
		}
		return tag
	}
	return ""
}
