// report.go
package corrector

import (
	"fmt"
	"strings"
)

// Markdown renders a human-readable correction report for the batch.
func (b *Batch) Markdown() string {
	if b.Total() == 0 && len(b.Skipped) == 0 {
		return "No corrections were needed.\n"
	}

	var sb strings.Builder
	sb.WriteString("# HL7 Message Auto-Correction Report\n\n")
	fmt.Fprintf(&sb, "**Total Corrections Applied:** %d\n", b.Total())

	writeSection := func(title string, category Category) {
		var items []Correction
		for _, c := range b.Corrections {
			if c.Category == category {
				items = append(items, c)
			}
		}
		if len(items) == 0 {
			return
		}
		fmt.Fprintf(&sb, "\n## %s (%d)\n\n", title, len(items))
		for i, c := range items {
			fmt.Fprintf(&sb, "### %d. %s\n", i+1, c.Description)
			if c.Location != "" {
				fmt.Fprintf(&sb, "- **Location:** `%s`\n", c.Location)
			}
			if c.Table != "" {
				fmt.Fprintf(&sb, "- **Table:** %s\n", c.Table)
			}
			if c.OldValue != "" {
				fmt.Fprintf(&sb, "- **Old Value:** `%s`\n", c.OldValue)
			}
			if c.NewValue != "" {
				fmt.Fprintf(&sb, "- **New Value:** `%s`\n", c.NewValue)
			}
		}
	}

	writeSection("Critical Fixes", CategoryCritical)
	writeSection("Code Value Corrections", CategoryCode)
	writeSection("Field Insertions", CategoryField)

	if len(b.Skipped) > 0 {
		fmt.Fprintf(&sb, "\n## Unresolved (%d)\n\n", len(b.Skipped))
		sb.WriteString("These errors could not be fixed automatically and need manual review.\n\n")
		for i, u := range b.Skipped {
			fmt.Fprintf(&sb, "### %d. %s\n", i+1, u.Reason)
			if u.Location != "" {
				fmt.Fprintf(&sb, "- **Location:** `%s`\n", u.Location)
			}
			if u.Description != "" {
				fmt.Fprintf(&sb, "- **Error:** %s\n", u.Description)
			}
		}
	}

	return sb.String()
}
