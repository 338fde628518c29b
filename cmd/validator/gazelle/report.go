// report.go
package gazelle

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// FetchReport polls the report endpoint for a submission until the
// report is available and returns it in normalized form. The endpoint
// answers 404 while the validation is still being processed.
func (c *Client) FetchReport(ctx context.Context, sub *Submission) (*Report, error) {
	reportURL := fmt.Sprintf("%s%s/%s/report", c.baseURI, validationsPath, sub.Oid)

	deadline := time.Now().Add(c.maxPollTime)
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reportURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/xml")
		c.signRequest(req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch report: %w", err)
		}

		switch resp.StatusCode {
		case http.StatusOK:
			defer resp.Body.Close()
			report, err := parseReportXML(resp.Body)
			if err != nil {
				return nil, err
			}
			report.Oid = sub.Oid
			report.PermalinkURL = c.permalink(sub)
			c.log.Debug().
				Str("oid", sub.Oid).
				Stringer("status", report.Status).
				Int("errors", len(report.Errors)).
				Int("warnings", len(report.Warnings)).
				Msg("Fetched validation report")
			return report, nil
		case http.StatusNotFound:
			// Still processing.
			resp.Body.Close()
			if time.Now().After(deadline) {
				return nil, ErrReportPending
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.pollInterval):
			}
		case http.StatusUnauthorized:
			resp.Body.Close()
			return nil, ErrUnauthorized
		default:
			status := resp.StatusCode
			resp.Body.Close()
			return nil, fmt.Errorf("report fetch failed with HTTP %d", status)
		}
	}
}

// permalink builds the web report URL a user can open in a browser.
func (c *Client) permalink(sub *Submission) string {
	url := fmt.Sprintf("%s/evs/report.seam?oid=%s", c.baseURI, sub.Oid)
	if sub.PrivacyKey != "" {
		url += "&privacyKey=" + sub.PrivacyKey
	}
	return url
}

// parseReportXML walks a gvr validation report and normalizes it. The
// report nests constraints at varying depths depending on validator
// version, so this walks tokens rather than relying on a fixed
// structure: validationOverview and counters contribute attributes,
// every failed constraint contributes an error or warning.
func parseReportXML(r io.Reader) (*Report, error) {
	report := &Report{}
	decoder := xml.NewDecoder(r)

	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse validation report: %w", err)
		}

		start, ok := token.(xml.StartElement)
		if !ok {
			continue
		}

		switch start.Name.Local {
		case "validationOverview":
			report.Status = ParseStatus(attr(start, "validationOverallResult"))
		case "counters":
			report.ErrorCount, _ = strconv.Atoi(attr(start, "numberOfErrors"))
			report.WarningCount, _ = strconv.Atoi(attr(start, "numberOfWarnings"))
		case "constraint":
			issue, failed := decodeConstraint(decoder, start)
			if !failed {
				continue
			}
			switch {
			case issue.Priority == "MANDATORY" && issue.Severity == "ERROR":
				report.Errors = append(report.Errors, issue)
			case issue.Severity == "WARNING":
				report.Warnings = append(report.Warnings, issue)
			}
		}
	}

	// Some validator versions omit the overview; fall back to counters.
	if report.Status == StatusUndefined {
		if report.ErrorCount == 0 && report.WarningCount == 0 && len(report.Errors) == 0 {
			report.Status = StatusPassed
		} else if report.ErrorCount > 0 || len(report.Errors) > 0 {
			report.Status = StatusFailed
		}
	}

	return report, nil
}

// decodeConstraint consumes one constraint element and reports whether
// its test result was FAILED.
func decodeConstraint(decoder *xml.Decoder, start xml.StartElement) (ReportedError, bool) {
	issue := ReportedError{
		Priority: attr(start, "priority"),
		Severity: attr(start, "severity"),
	}
	failed := strings.EqualFold(attr(start, "testResult"), "FAILED")

	var raw struct {
		Description string `xml:"constraintDescription"`
		Location    string `xml:"locationInValidatedObject"`
		Type        string `xml:"constraintType"`
	}
	if err := decoder.DecodeElement(&raw, &start); err != nil {
		return issue, false
	}

	issue.Description = strings.TrimSpace(raw.Description)
	issue.Location = strings.TrimSpace(raw.Location)
	issue.Type = strings.TrimSpace(raw.Type)
	return issue, failed
}

func attr(start xml.StartElement, name string) string {
	for _, a := range start.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}
