// service.go
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ddeveloper72/hl7validator/cmd/validator/corrector"
	"github.com/ddeveloper72/hl7validator/cmd/validator/gazelle"
	"github.com/ddeveloper72/hl7validator/cmd/validator/resultstore"
)

// ValidationClient is the external validator boundary the loop drives.
// *gazelle.Client satisfies it.
type ValidationClient interface {
	Submit(ctx context.Context, filename string, content []byte, validatorOID string) (*gazelle.Submission, error)
	FetchReport(ctx context.Context, sub *gazelle.Submission) (*gazelle.Report, error)
}

// Service drives the iterate-correct-revalidate loop and stores
// outcomes in the result store.
type Service struct {
	client        ValidationClient
	corrector     *corrector.Corrector
	store         *resultstore.Store
	maxIterations int
	totalTimeout  time.Duration
	log           zerolog.Logger
}

type Config struct {
	// MaxIterations caps the number of submit-and-check cycles per
	// auto-validate run.
	MaxIterations int

	// TotalTimeout bounds the wall-clock time of a whole run,
	// covering every network call it makes.
	TotalTimeout time.Duration
}

func NewService(client ValidationClient, corr *corrector.Corrector, store *resultstore.Store, config Config, log zerolog.Logger) *Service {
	if config.MaxIterations == 0 {
		config.MaxIterations = 10
	}
	if config.TotalTimeout == 0 {
		config.TotalTimeout = 10 * time.Minute
	}
	return &Service{
		client:        client,
		corrector:     corr,
		store:         store,
		maxIterations: config.MaxIterations,
		totalTimeout:  config.TotalTimeout,
		log:           log.With().Str("component", "orchestrator").Logger(),
	}
}

// WithClient returns a shallow copy of the service using the given
// client. Used to validate with a caller's own API key.
func (s *Service) WithClient(client ValidationClient) *Service {
	clone := *s
	clone.client = client
	return &clone
}

// Validate runs a single submit-and-check cycle without correction.
func (s *Service) Validate(ctx context.Context, filename string, content []byte, validatorOID string) (*gazelle.Report, error) {
	sub, err := s.client.Submit(ctx, filename, content, validatorOID)
	if err != nil {
		return nil, err
	}
	return s.client.FetchReport(ctx, sub)
}

// AutoValidate drives the correction loop: submit, and while the
// report fails with a non-empty error list, correct and resubmit.
// Terminal outcomes are passing, exhausting the iteration cap, or a
// corrective pass that fixes nothing. Transport errors surface
// immediately and do not consume iterations. Every iteration's detail
// is retained in the result.
func (s *Service) AutoValidate(ctx context.Context, filename string, content []byte, validatorOID string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, s.totalTimeout)
	defer cancel()

	result := &Result{
		Filename:    filename,
		MessageType: gazelle.DetectMessageType(content),
		StartedAt:   time.Now(),
	}
	current := content

	for attempt := 1; attempt <= s.maxIterations; attempt++ {
		sub, err := s.client.Submit(ctx, filename, current, validatorOID)
		if err != nil {
			return nil, fmt.Errorf("submission %d failed: %w", attempt, err)
		}
		report, err := s.client.FetchReport(ctx, sub)
		if err != nil {
			return nil, fmt.Errorf("report fetch for submission %d failed: %w", attempt, err)
		}

		iter := Iteration{
			Attempt:      attempt,
			Status:       report.Status,
			ErrorCount:   report.ErrorCount,
			WarningCount: report.WarningCount,
			Errors:       report.Errors,
			ReportURL:    report.PermalinkURL,
		}
		result.FinalReportURL = report.PermalinkURL

		if report.Status == gazelle.StatusPassed {
			result.Iterations = append(result.Iterations, iter)
			result.Final = StatusPassed
			break
		}

		if len(report.Errors) == 0 {
			// Failed without actionable errors; nothing to correct.
			result.Iterations = append(result.Iterations, iter)
			result.Final = StatusFailedNoProgress
			break
		}

		if attempt == s.maxIterations {
			result.Iterations = append(result.Iterations, iter)
			result.Final = StatusFailedMaxIterations
			break
		}

		corrected, batch := s.corrector.Apply(current, report.Errors)
		iter.Corrections = batch
		result.Iterations = append(result.Iterations, iter)

		if batch.Total() == 0 {
			result.Final = StatusFailedNoProgress
			break
		}

		s.log.Info().
			Str("file", filename).
			Int("attempt", attempt).
			Int("errors", len(report.Errors)).
			Int("corrections", batch.Total()).
			Msg("Corrections applied, resubmitting")
		current = corrected
	}

	result.CorrectedContent = current
	result.Corrections = summarize(result.Iterations)
	result.CompletedAt = time.Now()
	result.ID = s.store.Put(result)

	s.log.Info().
		Str("file", filename).
		Stringer("final", result.Final).
		Int("iterations", len(result.Iterations)).
		Int("corrections", result.Corrections.Total).
		Msg("Auto-validate run finished")

	return result, nil
}

// summarize aggregates correction counts across all iterations.
func summarize(iterations []Iteration) corrector.Summary {
	var total corrector.Summary
	for _, iter := range iterations {
		if iter.Corrections == nil {
			continue
		}
		s := iter.Corrections.Summary()
		total.Total += s.Total
		total.CriticalFixes += s.CriticalFixes
		total.CodeFixes += s.CodeFixes
		total.FieldInsertions += s.FieldInsertions
		total.Unresolved += s.Unresolved
	}
	return total
}
