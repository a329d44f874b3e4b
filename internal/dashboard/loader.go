// Package dashboard joins client fetches into the analytics views. Each view
// load supersedes the previous one: its context is cancelled and its result
// is discarded.
package dashboard

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"studydash/internal/client"
	"studydash/internal/models"
)

// ErrSuperseded is returned by a load that a newer load replaced
var ErrSuperseded = errors.New("load superseded by a newer request")

// DefaultConcurrency bounds parallel per-user expected fetches
const DefaultConcurrency = 4

// pageSize is the largest page the server accepts
const pageSize = 5000

// API is the part of the REST client the loader needs
type API interface {
	ListStudies(ctx context.Context) ([]models.Study, error)
	LabeledResponses(ctx context.Context, studyID int64, q client.ResponseQuery) (*client.ResponsePage, error)
	Facets(ctx context.Context, studyID int64) (*models.Facets, error)
	UserMapping(ctx context.Context, studyID int64, q client.MappingQuery) (map[string]string, error)
	Expected(ctx context.Context, q client.ExpectedQuery) ([]models.ExpectedOccurrence, error)
	StructureCount(ctx context.Context, studyID int64) (*models.StructureCount, error)
}

// Loader runs view loads, at most one of which is current
type Loader struct {
	api         API
	log         *zap.Logger
	concurrency int

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
}

// NewLoader creates a loader over api. concurrency <= 0 uses DefaultConcurrency.
func NewLoader(api API, concurrency int, log *zap.Logger) *Loader {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Loader{api: api, log: log, concurrency: concurrency}
}

// begin starts a new generation, cancelling whatever load was in flight
func (l *Loader) begin(parent context.Context) (context.Context, uint64, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	l.mu.Lock()
	if l.cancel != nil {
		l.cancel()
	}
	l.gen++
	gen := l.gen
	l.cancel = cancel
	l.mu.Unlock()

	return ctx, gen, cancel
}

func (l *Loader) current(gen uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.gen == gen
}

// Cancel abandons the load in flight, if any
func (l *Loader) Cancel() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	l.gen++
}

// run executes fn as the current generation and discards stale results
func run[T any](l *Loader, parent context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, gen, cancel := l.begin(parent)
	defer cancel()

	out, err := fn(ctx)
	if !l.current(gen) {
		var zero T
		return zero, ErrSuperseded
	}
	return out, err
}

// fetchAll pages through every response matching q
func (l *Loader) fetchAll(ctx context.Context, studyID int64, q client.ResponseQuery) ([]models.SurveyResponse, error) {
	var out []models.SurveyResponse
	q.Limit = pageSize
	for {
		page, err := l.api.LabeledResponses(ctx, studyID, q)
		if err != nil {
			return nil, err
		}
		for _, r := range page.Responses {
			out = append(out, r.SurveyResponse)
		}
		q.Skip += len(page.Responses)
		if len(page.Responses) == 0 || q.Skip >= page.Total {
			return out, nil
		}
	}
}

// labels resolves participant labels, degrading to raw IDs on failure
func (l *Loader) labels(ctx context.Context, studyID int64, mq client.MappingQuery) map[string]string {
	if mq.QuestionID == "" {
		return nil
	}
	m, err := l.api.UserMapping(ctx, studyID, mq)
	if err != nil {
		if ctx.Err() == nil {
			l.log.Warn("user mapping unavailable, showing raw ids", zap.Int64("study_id", studyID), zap.Error(err))
		}
		return nil
	}
	return m
}

// study finds studyID among the caller's studies
func (l *Loader) study(ctx context.Context, studyID int64) (*models.Study, error) {
	studies, err := l.api.ListStudies(ctx)
	if err != nil {
		return nil, err
	}
	for i := range studies {
		if studies[i].ID == studyID {
			return &studies[i], nil
		}
	}
	return nil, client.ErrNotFound
}
