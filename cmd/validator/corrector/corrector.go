// corrector.go
package corrector

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ddeveloper72/hl7validator/cmd/validator/codetable"
	"github.com/ddeveloper72/hl7validator/cmd/validator/gazelle"
)

const (
	bom            = "\uFEFF"
	xmlDeclaration = `<?xml version="1.0" encoding="UTF-8"?>`
)

// Corrector rewrites HL7v2 XML message buffers to remove known-bad
// patterns. It never mutates the caller's buffer; every pass returns
// a fresh one together with the batch of corrections applied.
type Corrector struct {
	tables       *codetable.Service
	placeholders map[string]Placeholder
	governed     map[string]string
	log          zerolog.Logger
}

type Config struct {
	// Placeholders maps an error location key (e.g. "SCH-6.3") onto
	// the structure inserted when that mandatory field is missing.
	Placeholders map[string]Placeholder

	// GovernedElements maps element tags onto the code table that
	// governs them, for blind first-pass scans without an error list.
	GovernedElements map[string]string
}

// DefaultPlaceholders covers the required fields Healthlink messages
// are known to omit.
func DefaultPlaceholders() map[string]Placeholder {
	return map[string]Placeholder{
		// SCH-6.3 (name of coding system) is required when SCH-6 is
		// present in SIU messages.
		"SCH-6.3": {Parent: "SCH.6", Element: "CE.3", Value: "HL70276"},
	}
}

// DefaultGovernedElements lists the universal-ID-type elements that
// Healthlink feeds routinely fill with site-local system names.
func DefaultGovernedElements() map[string]string {
	return map[string]string{
		"HD.3": "HL70301",
		"EI.4": "HL70301",
	}
}

func NewCorrector(tables *codetable.Service, config Config, log zerolog.Logger) *Corrector {
	if config.Placeholders == nil {
		config.Placeholders = DefaultPlaceholders()
	}
	if config.GovernedElements == nil {
		config.GovernedElements = DefaultGovernedElements()
	}
	return &Corrector{
		tables:       tables,
		placeholders: config.Placeholders,
		governed:     config.GovernedElements,
		log:          log.With().Str("component", "corrector").Logger(),
	}
}

// Apply corrects the message using a validation error list to target
// specific locations. Errors that cannot be mapped to a fix are
// recorded as skipped; the batch always carries whatever succeeded.
func (c *Corrector) Apply(input []byte, errs []gazelle.ReportedError) ([]byte, *Batch) {
	content := string(input)
	batch := &Batch{}

	content = c.applyCriticalFixes(content, batch)

	for _, e := range errs {
		switch classify(e) {
		case fixKindCode:
			content = c.applyCodeFix(content, e, batch)
		case fixKindMissingField:
			content = c.applyFieldInsertion(content, e, batch)
		default:
			batch.skip(e.Location, e.Description, "no automatic correction rule for this error")
		}
	}

	c.log.Debug().
		Int("corrections", batch.Total()).
		Int("skipped", len(batch.Skipped)).
		Msg("Applied targeted corrections")

	return []byte(content), batch
}

// Prepare corrects the message blindly, without an error list: the
// critical structural fixes plus a scan of table-governed elements
// and empty required fields. Used as the first pass before the first
// submission.
func (c *Corrector) Prepare(input []byte) ([]byte, *Batch) {
	content := string(input)
	batch := &Batch{}

	content = c.applyCriticalFixes(content, batch)
	content = c.scanGovernedElements(content, batch)
	content = c.fillEmptyRequiredFields(content, batch)

	c.log.Debug().
		Int("corrections", batch.Total()).
		Msg("Applied first-pass corrections")

	return []byte(content), batch
}

// applyCriticalFixes strips a leading UTF-8 BOM and ensures an XML
// declaration. Both break the EVS XML-to-ER7 conversion and must be
// fixed before any other correction can be located in the text.
func (c *Corrector) applyCriticalFixes(content string, batch *Batch) string {
	if strings.HasPrefix(content, bom) {
		content = strings.TrimPrefix(content, bom)
		batch.add(Correction{
			Category:    CategoryCritical,
			Field:       "BOM",
			Description: "Removed UTF-8 BOM (byte order mark)",
		})
	}

	if !strings.HasPrefix(strings.TrimLeft(content, " \t\r\n"), "<?xml") {
		content = xmlDeclaration + "\n" + content
		batch.add(Correction{
			Category:    CategoryCritical,
			Field:       "XML declaration",
			NewValue:    xmlDeclaration,
			Description: "Added XML declaration header",
		})
	}

	return content
}

// applyCodeFix replaces an invalid table code with the most similar
// valid one. The replacement is scoped to the element named by the
// error location, never a global substitution.
func (c *Corrector) applyCodeFix(content string, e gazelle.ReportedError, batch *Batch) string {
	table := tableRef(e)
	ref, ok := parseLocation(e.Location)
	if !ok {
		batch.skip(e.Location, e.Description, "unrecognized error location")
		return content
	}

	scopeStart, scopeEnd := 0, len(content)
	if parent := ref.Parent(); parent != "" {
		if s, end, found := elementSpan(content, parent); found {
			scopeStart, scopeEnd = s, end
		} else if ref.Element == "" {
			batch.skip(e.Location, e.Description, "segment field not found in message")
			return content
		}
	}
	scope := content[scopeStart:scopeEnd]

	elem := ref.Element
	oldValue := quotedValue(e)
	idx := -1

	switch {
	case elem != "" && oldValue != "":
		idx = strings.Index(scope, "<"+elem+">"+oldValue+"</"+elem+">")
		if idx < 0 {
			batch.skip(e.Location, e.Description, "message text does not match reported location")
			return content
		}
	case elem != "":
		oldValue, idx = findInvalidValue(scope, elem, table, c.tables)
		if idx < 0 {
			batch.skip(e.Location, e.Description, "no invalid value found at reported location")
			return content
		}
	default:
		elem, oldValue, idx = findInvalidChild(scope, oldValue, table, c.tables)
		if idx < 0 {
			batch.skip(e.Location, e.Description, "offending value not found in message")
			return content
		}
	}

	candidates := c.tables.FindSimilar(table, oldValue)
	if len(candidates) == 0 {
		batch.skip(e.Location, e.Description, "no similar valid code in "+table)
		return content
	}
	newValue := candidates[0]

	oldElem := "<" + elem + ">" + oldValue + "</" + elem + ">"
	newElem := "<" + elem + ">" + newValue + "</" + elem + ">"
	abs := scopeStart + idx
	content = content[:abs] + newElem + content[abs+len(oldElem):]

	batch.add(Correction{
		Category:    CategoryCode,
		Field:       elem,
		Location:    e.Location,
		OldValue:    oldValue,
		NewValue:    newValue,
		Table:       table,
		Description: fmt.Sprintf("%s is not a valid %s code, replaced with %s", oldValue, table, newValue),
	})
	return content
}

// applyFieldInsertion creates a minimal valid structure for a missing
// mandatory field: fill the element if it is present but empty,
// otherwise insert it after its preceding sibling.
func (c *Corrector) applyFieldInsertion(content string, e gazelle.ReportedError, batch *Batch) string {
	ref, ok := parseLocation(e.Location)
	if !ok {
		batch.skip(e.Location, e.Description, "unrecognized error location")
		return content
	}

	ph, found := c.placeholders[ref.Key()]
	if !found {
		ph, found = c.inferPlaceholder(content, ref)
	}
	if !found {
		batch.skip(e.Location, e.Description, "no placeholder schema for this field")
		return content
	}

	if updated, ok := fillEmptyElement(content, ph); ok {
		batch.add(Correction{
			Category:    CategoryField,
			Field:       ph.Element,
			Location:    e.Location,
			NewValue:    ph.Value,
			Description: fmt.Sprintf("Filled empty required field %s with %s", ref.Key(), ph.Value),
		})
		return updated
	}

	if updated, ok := insertElement(content, ph, ref.Component); ok {
		batch.add(Correction{
			Category:    CategoryField,
			Field:       ph.Element,
			Location:    e.Location,
			NewValue:    ph.Value,
			Description: fmt.Sprintf("Inserted missing required field %s with placeholder %s", ref.Key(), ph.Value),
		})
		return updated
	}

	batch.skip(e.Location, e.Description, "field location not found in message")
	return content
}

// inferPlaceholder derives an insertion schema from the message itself
// when no configured one exists: the composite prefix comes from the
// field's existing sibling elements.
func (c *Corrector) inferPlaceholder(content string, ref fieldRef) (Placeholder, bool) {
	parent := ref.Parent()
	if parent == "" || ref.Component == 0 {
		return Placeholder{}, false
	}

	start, end, found := elementSpan(content, parent)
	if !found {
		return Placeholder{}, false
	}

	m := childTagPattern.FindStringSubmatch(content[start:end])
	if m == nil {
		return Placeholder{}, false
	}

	return Placeholder{
		Parent:  parent,
		Element: m[1] + "." + strconv.Itoa(ref.Component),
		Value:   "UNKNOWN",
	}, true
}

// scanGovernedElements checks every table-governed element against its
// code table and repairs invalid values in place.
func (c *Corrector) scanGovernedElements(content string, batch *Batch) string {
	tags := make([]string, 0, len(c.governed))
	for tag := range c.governed {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	for _, tag := range tags {
		table := c.governed[tag]
		re := elementValuePattern(tag)

		offset := 0
		for {
			m := re.FindStringSubmatchIndex(content[offset:])
			if m == nil {
				break
			}
			value := content[offset+m[2] : offset+m[3]]
			matchStart, matchEnd := offset+m[0], offset+m[1]

			if strings.TrimSpace(value) == "" || c.tables.IsValid(table, value) {
				offset = matchEnd
				continue
			}

			candidates := c.tables.FindSimilar(table, value)
			if len(candidates) == 0 {
				batch.skip(tag, value, "no similar valid code in "+table)
				offset = matchEnd
				continue
			}

			replacement := "<" + tag + ">" + candidates[0] + "</" + tag + ">"
			content = content[:matchStart] + replacement + content[matchEnd:]
			batch.add(Correction{
				Category:    CategoryCode,
				Field:       tag,
				OldValue:    value,
				NewValue:    candidates[0],
				Table:       table,
				Description: fmt.Sprintf("%s is not a valid %s code, replaced with %s", value, table, candidates[0]),
			})
			offset = matchStart + len(replacement)
		}
	}

	return content
}

// fillEmptyRequiredFields fills configured placeholder fields that are
// present but empty. Missing fields are not inserted blindly; that
// needs an error from the validator naming them.
func (c *Corrector) fillEmptyRequiredFields(content string, batch *Batch) string {
	keys := make([]string, 0, len(c.placeholders))
	for key := range c.placeholders {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		ph := c.placeholders[key]
		updated, ok := fillEmptyElement(content, ph)
		if !ok {
			continue
		}
		content = updated
		batch.add(Correction{
			Category:    CategoryField,
			Field:       ph.Element,
			Location:    key,
			NewValue:    ph.Value,
			Description: fmt.Sprintf("Filled empty required field %s with %s", key, ph.Value),
		})
	}

	return content
}

var childTagPattern = regexp.MustCompile(`<([A-Z]{2,3})\.\d+>`)

// elementValuePattern matches one element with simple text content,
// capturing the value.
func elementValuePattern(tag string) *regexp.Regexp {
	return regexp.MustCompile(`<` + regexp.QuoteMeta(tag) + `>([^<]*)</` + regexp.QuoteMeta(tag) + `>`)
}

// elementSpan returns the span of the first occurrence of tag,
// including its open and close tags.
func elementSpan(content, tag string) (int, int, bool) {
	open := "<" + tag + ">"
	start := strings.Index(content, open)
	if start < 0 {
		// Open tag with attributes.
		start = strings.Index(content, "<"+tag+" ")
		if start < 0 {
			return 0, 0, false
		}
	}

	closing := "</" + tag + ">"
	rel := strings.Index(content[start:], closing)
	if rel < 0 {
		return 0, 0, false
	}
	return start, start + rel + len(closing), true
}

// fillEmptyElement fills a present-but-empty placeholder element
// inside its parent.
func fillEmptyElement(content string, ph Placeholder) (string, bool) {
	if ph.Parent == "" || ph.Element == "" {
		return content, false
	}
	pattern := regexp.MustCompile(
		`(<` + regexp.QuoteMeta(ph.Parent) + `>(?s:.*?)<` + regexp.QuoteMeta(ph.Element) + `>)(\s*)(</` + regexp.QuoteMeta(ph.Element) + `>)`)
	m := pattern.FindStringSubmatchIndex(content)
	if m == nil {
		return content, false
	}
	// Splice the value over the empty group.
	return content[:m[4]] + ph.Value + content[m[5]:], true
}

// insertElement inserts the placeholder element inside its parent,
// after the preceding sibling when one exists, else before the parent
// close tag.
func insertElement(content string, ph Placeholder, component int) (string, bool) {
	start, end, found := elementSpan(content, ph.Parent)
	if !found {
		return content, false
	}

	insertAt := end - len("</"+ph.Parent+">")
	if component > 1 {
		prefix := strings.SplitN(ph.Element, ".", 2)[0]
		for prev := component - 1; prev >= 1; prev-- {
			siblingClose := "</" + prefix + "." + strconv.Itoa(prev) + ">"
			if rel := strings.Index(content[start:end], siblingClose); rel >= 0 {
				insertAt = start + rel + len(siblingClose)
				break
			}
		}
	}

	elem := "<" + ph.Element + ">" + ph.Value + "</" + ph.Element + ">"
	return content[:insertAt] + elem + content[insertAt:], true
}

// findInvalidValue locates the first occurrence of tag in scope whose
// value is not valid under table. Returns the value and the match
// offset within scope, or -1.
func findInvalidValue(scope, tag, table string, tables *codetable.Service) (string, int) {
	re := elementValuePattern(tag)
	offset := 0
	for {
		m := re.FindStringSubmatchIndex(scope[offset:])
		if m == nil {
			return "", -1
		}
		value := scope[offset+m[2] : offset+m[3]]
		if strings.TrimSpace(value) != "" && !tables.IsValid(table, value) {
			return value, offset + m[0]
		}
		offset += m[1]
	}
}

// findInvalidChild scans all composite children in scope for the
// offending value. Used when the error location does not name the
// element type.
func findInvalidChild(scope, wantValue, table string, tables *codetable.Service) (string, string, int) {
	re := regexp.MustCompile(`<([A-Z]{2,3}\.\d+)>([^<]*)</([A-Z]{2,3}\.\d+)>`)
	offset := 0
	for {
		m := re.FindStringSubmatchIndex(scope[offset:])
		if m == nil {
			return "", "", -1
		}
		tag := scope[offset+m[2] : offset+m[3]]
		value := scope[offset+m[4] : offset+m[5]]
		closeTag := scope[offset+m[6] : offset+m[7]]

		if tag == closeTag && strings.TrimSpace(value) != "" {
			if wantValue != "" && value == wantValue {
				return tag, value, offset + m[0]
			}
			if wantValue == "" && !tables.IsValid(table, value) {
				return tag, value, offset + m[0]
			}
		}
		offset += m[1]
	}
}
