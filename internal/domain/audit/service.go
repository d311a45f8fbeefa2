package audit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ehr/triage/internal/platform/ids"
)

const (
	defaultBatchConcurrency = 16
	asyncWriteTimeout       = 10 * time.Second
)

// Metrics receives audit write failures.
type Metrics interface {
	AuditWriteFailed(action string, async bool)
}

// DeadLetterFunc receives asynchronous writes that could not be persisted so
// they can be reconciled later.
type DeadLetterFunc func(data ActionData, err error)

type Option func(*Service)

// WithBatchConcurrency bounds how many batch items are written at once.
func WithBatchConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.batchConcurrency = n
		}
	}
}

func WithMetrics(m Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithDeadLetter(fn DeadLetterFunc) Option {
	return func(s *Service) { s.deadLetter = fn }
}

// Service records audit entries. Write failures are reported in the Result
// and never returned as errors, so triage flows are not interrupted by audit.
type Service struct {
	repo             Repository
	ids              ids.Generator
	logger           zerolog.Logger
	metrics          Metrics
	deadLetter       DeadLetterFunc
	batchConcurrency int
	now              func() time.Time

	inflight sync.WaitGroup
}

func NewService(repo Repository, gen ids.Generator, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		repo:             repo,
		ids:              gen,
		logger:           logger.With().Str("component", "audit").Logger(),
		batchConcurrency: defaultBatchConcurrency,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LogAction validates and persists one entry. The error return is reserved for
// invalid input; a failed write yields Result{Success: false}.
func (s *Service) LogAction(ctx context.Context, data ActionData) (*Result, error) {
	return s.record(ctx, data, false)
}

func (s *Service) record(ctx context.Context, data ActionData, async bool) (*Result, error) {
	if err := validate(data); err != nil {
		return nil, err
	}

	entry := &LogData{
		ID:        s.ids.Generate(),
		UserID:    data.UserID,
		Action:    data.Action,
		PatientID: data.PatientID,
		Details:   data.Details,
		Metadata:  data.Metadata,
		Timestamp: s.now().UTC(),
	}

	if err := s.repo.Save(ctx, entry); err != nil {
		s.logger.Warn().Err(err).
			Str("action", string(data.Action)).
			Str("user_id", data.UserID).
			Str("patient_id", data.PatientID).
			Msg("failed to persist audit entry")
		if s.metrics != nil && !async {
			s.metrics.AuditWriteFailed(string(data.Action), false)
		}
		return &Result{Success: false, Error: err.Error()}, nil
	}

	return &Result{Success: true, LogID: entry.ID}, nil
}

// LogActionAsync records data in the background and returns immediately.
// Failures go to the log and the dead-letter sink. The write is detached from
// ctx cancellation so a finished request does not abort its audit entry.
func (s *Service) LogActionAsync(ctx context.Context, data ActionData) {
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer func() {
			if r := recover(); r != nil {
				s.fail(data, fmt.Errorf("panic in audit write: %v", r))
			}
		}()

		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), asyncWriteTimeout)
		defer cancel()

		res, err := s.record(writeCtx, data, true)
		switch {
		case err != nil:
			s.fail(data, err)
		case !res.Success:
			s.fail(data, fmt.Errorf("%s", res.Error))
		}
	}()
}

func (s *Service) fail(data ActionData, err error) {
	s.logger.Error().Err(err).
		Str("action", string(data.Action)).
		Str("user_id", data.UserID).
		Str("patient_id", data.PatientID).
		Msg("async audit write failed")
	if s.metrics != nil {
		s.metrics.AuditWriteFailed(string(data.Action), true)
	}
	if s.deadLetter != nil {
		s.deadLetter(data, err)
	}
}

// Wait blocks until every pending LogActionAsync write has finished.
func (s *Service) Wait() {
	s.inflight.Wait()
}

// LogBatch records up to MaxBatchSize entries. Every item is attempted; the
// returned results line up with the input.
func (s *Service) LogBatch(ctx context.Context, batch []ActionData) ([]Result, error) {
	if len(batch) == 0 || len(batch) > MaxBatchSize {
		return nil, &BatchSizeError{Size: len(batch)}
	}

	results := make([]Result, len(batch))
	var g errgroup.Group
	g.SetLimit(s.batchConcurrency)

	for i, data := range batch {
		i, data := i, data
		g.Go(func() error {
			res, err := s.LogAction(ctx, data)
			if err != nil {
				results[i] = Result{Success: false, Error: err.Error()}
				return nil
			}
			results[i] = *res
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if !r.Success {
			failed++
		}
	}
	if failed > 0 {
		s.logger.Warn().Int("size", len(batch)).Int("failed", failed).Msg("audit batch partially failed")
	}
	return results, nil
}

func validate(data ActionData) error {
	if strings.TrimSpace(data.UserID) == "" {
		return &InvalidDataError{Field: "user_id", Reason: "is required"}
	}
	if strings.TrimSpace(string(data.Action)) == "" {
		return &InvalidDataError{Field: "action", Reason: "is required"}
	}
	if !IsValidAction(string(data.Action)) {
		return &InvalidDataError{Field: "action", Reason: fmt.Sprintf("%q is not a known action", data.Action)}
	}
	return nil
}

// -- Queries --

func (s *Service) ByUser(ctx context.Context, userID string, limit, offset int) ([]*LogData, int, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, 0, &InvalidDataError{Field: "user_id", Reason: "is required"}
	}
	return s.Search(ctx, SearchCriteria{UserID: userID, Limit: limit, Offset: offset})
}

func (s *Service) ByPatient(ctx context.Context, patientID string, limit, offset int) ([]*LogData, int, error) {
	if strings.TrimSpace(patientID) == "" {
		return nil, 0, &InvalidDataError{Field: "patient_id", Reason: "is required"}
	}
	return s.Search(ctx, SearchCriteria{PatientID: patientID, Limit: limit, Offset: offset})
}

func (s *Service) ByAction(ctx context.Context, action Action, limit, offset int) ([]*LogData, int, error) {
	if !IsValidAction(string(action)) {
		return nil, 0, &InvalidDataError{Field: "action", Reason: fmt.Sprintf("%q is not a known action", action)}
	}
	return s.Search(ctx, SearchCriteria{Action: action, Limit: limit, Offset: offset})
}

// Search returns entries matching criteria, newest first.
func (s *Service) Search(ctx context.Context, criteria SearchCriteria) ([]*LogData, int, error) {
	if criteria.Action != "" && !IsValidAction(string(criteria.Action)) {
		return nil, 0, &InvalidDataError{Field: "action", Reason: fmt.Sprintf("%q is not a known action", criteria.Action)}
	}
	if criteria.From != nil && criteria.To != nil && criteria.To.Before(*criteria.From) {
		return nil, 0, &InvalidDataError{Field: "to", Reason: "must not be before from"}
	}
	criteria.applyDefaults()
	return s.repo.Search(ctx, criteria)
}
