package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ddeveloper72/hl7validator/cmd/validator/codetable"
	"github.com/ddeveloper72/hl7validator/cmd/validator/corrector"
	"github.com/ddeveloper72/hl7validator/cmd/validator/gazelle"
	"github.com/ddeveloper72/hl7validator/cmd/validator/resultstore"
)

const testTables = `{
  "HL70301": {
    "name": "Universal ID Type",
    "codes": ["DNS", "GUID", "ISO", "L", "UUID"],
    "aliases": {"HIPEHOS": "L"}
  },
  "HL70276": {
    "name": "Appointment Reason Codes",
    "codes": ["CHECKUP", "ROUTINE"]
  }
}`

// stubClient serves the i-th configured report for the i-th
// submission, repeating the last one when submissions keep coming.
type stubClient struct {
	reports   []*gazelle.Report
	submitted [][]byte
	submitErr error
	fetchErr  error
}

func (s *stubClient) Submit(_ context.Context, _ string, content []byte, _ string) (*gazelle.Submission, error) {
	if s.submitErr != nil {
		return nil, s.submitErr
	}
	buf := make([]byte, len(content))
	copy(buf, content)
	s.submitted = append(s.submitted, buf)
	return &gazelle.Submission{Oid: fmt.Sprintf("oid-%d", len(s.submitted))}, nil
}

func (s *stubClient) FetchReport(_ context.Context, sub *gazelle.Submission) (*gazelle.Report, error) {
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	i := len(s.submitted) - 1
	if i >= len(s.reports) {
		i = len(s.reports) - 1
	}
	return s.reports[i], nil
}

func passedReport() *gazelle.Report {
	return &gazelle.Report{Status: gazelle.StatusPassed, PermalinkURL: "https://evs.example.org/evs/report.seam?oid=x"}
}

func failedReport(errs ...gazelle.ReportedError) *gazelle.Report {
	return &gazelle.Report{
		Status:     gazelle.StatusFailed,
		ErrorCount: len(errs),
		Errors:     errs,
	}
}

func codeError() gazelle.ReportedError {
	return gazelle.ReportedError{
		Location:    "/SIU_S12/SCH/SCH.2/EI.4",
		Description: "value 'HIPEHOS' is not in code system HL70301",
		Priority:    "MANDATORY",
		Severity:    "ERROR",
	}
}

func newTestService(t *testing.T, client ValidationClient, config Config) (*Service, *resultstore.Store) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "tables.json")
	require.NoError(t, os.WriteFile(path, []byte(testTables), 0644))
	tables, err := codetable.NewService(codetable.Config{LocalPath: path}, zerolog.Nop())
	require.NoError(t, err)

	corr := corrector.NewCorrector(tables, corrector.Config{}, zerolog.Nop())
	store := resultstore.NewStore(resultstore.Config{}, zerolog.Nop())
	t.Cleanup(store.Stop)

	return NewService(client, corr, store, config, zerolog.Nop()), store
}

const validMessage = `<?xml version="1.0" encoding="UTF-8"?><SIU_S12><SCH><SCH.2><EI.4>ISO</EI.4></SCH.2></SCH></SIU_S12>`

const invalidCodeMessage = `<?xml version="1.0" encoding="UTF-8"?><SIU_S12><SCH><SCH.2><EI.4>HIPEHOS</EI.4></SCH.2></SCH></SIU_S12>`

func TestAutoValidate_PassesFirstTry(t *testing.T) {
	client := &stubClient{reports: []*gazelle.Report{passedReport()}}
	service, store := newTestService(t, client, Config{})

	result, err := service.AutoValidate(context.Background(), "msg.xml", []byte(validMessage), "oid")
	require.NoError(t, err)

	assert.Equal(t, StatusPassed, result.Final)
	assert.Len(t, result.Iterations, 1)
	assert.Equal(t, "SIU^S12", result.MessageType)
	assert.Equal(t, 0, result.Corrections.Total)

	stored, ok := store.Get(result.ID)
	require.True(t, ok)
	assert.Same(t, result, stored)
}

func TestAutoValidate_CorrectsAndPasses(t *testing.T) {
	client := &stubClient{reports: []*gazelle.Report{
		failedReport(codeError()),
		passedReport(),
	}}
	service, _ := newTestService(t, client, Config{})

	result, err := service.AutoValidate(context.Background(), "msg.xml", []byte(invalidCodeMessage), "oid")
	require.NoError(t, err)

	assert.Equal(t, StatusPassed, result.Final)
	require.Len(t, result.Iterations, 2)

	first := result.Iterations[0]
	assert.Equal(t, gazelle.StatusFailed, first.Status)
	require.NotNil(t, first.Corrections)
	assert.Equal(t, 1, first.Corrections.CodeFixes())

	// The second submission carries the corrected buffer.
	require.Len(t, client.submitted, 2)
	assert.Contains(t, string(client.submitted[1]), "<EI.4>L</EI.4>")
	assert.Contains(t, string(result.CorrectedContent), "<EI.4>L</EI.4>")

	assert.Equal(t, 1, result.Corrections.CodeFixes)
	assert.Equal(t, 1, result.Corrections.Total)
}

func TestAutoValidate_MaxIterations(t *testing.T) {
	// The validator keeps demanding a field the corrector keeps
	// inserting; the run must stop at the iteration cap, and the last
	// iteration must not get a corrective pass.
	insertionError := gazelle.ReportedError{
		Location:    "SCH-6.3",
		Description: "SCH-6.3 Name of Coding System is missing",
	}
	client := &stubClient{reports: []*gazelle.Report{failedReport(insertionError)}}
	service, _ := newTestService(t, client, Config{MaxIterations: 3})

	content := `<?xml version="1.0" encoding="UTF-8"?><SIU_S12><SCH><SCH.6><CE.1>CHECKUP</CE.1></SCH.6></SCH></SIU_S12>`
	result, err := service.AutoValidate(context.Background(), "msg.xml", []byte(content), "oid")
	require.NoError(t, err)

	assert.Equal(t, StatusFailedMaxIterations, result.Final)
	require.Len(t, result.Iterations, 3)
	assert.Len(t, client.submitted, 3)

	assert.NotNil(t, result.Iterations[0].Corrections)
	assert.NotNil(t, result.Iterations[1].Corrections)
	assert.Nil(t, result.Iterations[2].Corrections)
}

func TestAutoValidate_NoProgressWhenNothingCorrectable(t *testing.T) {
	unfixable := gazelle.ReportedError{
		Location:    "/SIU_S12/SCH/SCH.1",
		Description: "datatype does not conform to the profile",
	}
	client := &stubClient{reports: []*gazelle.Report{failedReport(unfixable)}}
	service, _ := newTestService(t, client, Config{})

	result, err := service.AutoValidate(context.Background(), "msg.xml", []byte(validMessage), "oid")
	require.NoError(t, err)

	assert.Equal(t, StatusFailedNoProgress, result.Final)
	require.Len(t, result.Iterations, 1)
	require.NotNil(t, result.Iterations[0].Corrections)
	assert.Equal(t, 0, result.Iterations[0].Corrections.Total())
	assert.Equal(t, 1, result.Corrections.Unresolved)
}

func TestAutoValidate_NoProgressWhenFailedWithoutErrors(t *testing.T) {
	client := &stubClient{reports: []*gazelle.Report{failedReport()}}
	service, _ := newTestService(t, client, Config{})

	result, err := service.AutoValidate(context.Background(), "msg.xml", []byte(validMessage), "oid")
	require.NoError(t, err)

	assert.Equal(t, StatusFailedNoProgress, result.Final)
	require.Len(t, result.Iterations, 1)
	assert.Nil(t, result.Iterations[0].Corrections)
}

func TestAutoValidate_TransportErrorsSurface(t *testing.T) {
	transportErr := errors.New("connection refused")

	t.Run("submit", func(t *testing.T) {
		client := &stubClient{submitErr: transportErr}
		service, _ := newTestService(t, client, Config{})

		_, err := service.AutoValidate(context.Background(), "msg.xml", []byte(validMessage), "oid")
		require.Error(t, err)
		assert.ErrorIs(t, err, transportErr)
		assert.ErrorContains(t, err, "submission 1")
	})

	t.Run("fetch", func(t *testing.T) {
		client := &stubClient{fetchErr: transportErr}
		service, _ := newTestService(t, client, Config{})

		_, err := service.AutoValidate(context.Background(), "msg.xml", []byte(validMessage), "oid")
		require.Error(t, err)
		assert.ErrorIs(t, err, transportErr)
	})
}

func TestValidate_SingleCycle(t *testing.T) {
	client := &stubClient{reports: []*gazelle.Report{failedReport(codeError())}}
	service, _ := newTestService(t, client, Config{})

	report, err := service.Validate(context.Background(), "msg.xml", []byte(invalidCodeMessage), "oid")
	require.NoError(t, err)

	assert.Equal(t, gazelle.StatusFailed, report.Status)
	// A single cycle never corrects or resubmits.
	assert.Len(t, client.submitted, 1)
}

func TestWithClient(t *testing.T) {
	shared := &stubClient{reports: []*gazelle.Report{passedReport()}}
	personal := &stubClient{reports: []*gazelle.Report{passedReport()}}
	service, _ := newTestService(t, shared, Config{})

	_, err := service.WithClient(personal).AutoValidate(context.Background(), "msg.xml", []byte(validMessage), "oid")
	require.NoError(t, err)

	assert.Empty(t, shared.submitted)
	assert.Len(t, personal.submitted, 1)
}

func TestTerminalStatusText(t *testing.T) {
	tests := []struct {
		status TerminalStatus
		want   string
	}{
		{StatusPassed, "PASSED"},
		{StatusFailedMaxIterations, "FAILED_MAX_ITERATIONS"},
		{StatusFailedNoProgress, "FAILED_NO_PROGRESS"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.status.String())
		text, err := tt.status.MarshalText()
		require.NoError(t, err)
		assert.Equal(t, tt.want, string(text))
	}
}
