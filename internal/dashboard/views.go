package dashboard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"studydash/internal/analytics"
	"studydash/internal/client"
	"studydash/internal/models"
)

// AdherenceRequest selects a study and an optional participant label mapping
type AdherenceRequest struct {
	StudyID int64
	Mapping client.MappingQuery
}

// AdherenceView is the client-side adherence summary
type AdherenceView struct {
	Study     models.Study
	Structure models.StructureCount
	Summaries []analytics.UserSummary
	// Degraded lists the inputs that failed and fell back to defaults
	Degraded []string
}

// TableRequest is one page of the response table
type TableRequest struct {
	StudyID int64
	Query   client.ResponseQuery
	GroupBy analytics.GroupBy
	Mapping client.MappingQuery
}

// TableView is a grouped page of labeled responses
type TableView struct {
	Total  int
	Groups []analytics.Group
	Facets models.Facets
}

// CalendarRequest selects a study's calendar. Notes are keyed by date, then user.
type CalendarRequest struct {
	StudyID int64
	Mapping client.MappingQuery
	Notes   map[string]map[string]string
}

// Adherence loads responses, structure and per-user windows and summarizes
// them. Structure, mapping and expected-window failures degrade to defaults.
func (l *Loader) Adherence(ctx context.Context, req AdherenceRequest) (*AdherenceView, error) {
	return run(l, ctx, func(ctx context.Context) (*AdherenceView, error) {
		study, err := l.study(ctx, req.StudyID)
		if err != nil {
			return nil, fmt.Errorf("failed to load study %d: %w", req.StudyID, err)
		}
		responses, err := l.fetchAll(ctx, req.StudyID, client.ResponseQuery{})
		if err != nil {
			return nil, fmt.Errorf("failed to load responses: %w", err)
		}

		view := &AdherenceView{Study: *study}
		sc, err := l.api.StructureCount(ctx, req.StudyID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			l.log.Warn("structure count unavailable, using defaults", zap.Int64("study_id", req.StudyID), zap.Error(err))
			view.Degraded = append(view.Degraded, "structure")
			sc = &models.StructureCount{StudyDays: study.Days()}
		}
		view.Structure = *sc

		labels := l.labels(ctx, req.StudyID, req.Mapping)
		windows, failed := l.expectedWindows(ctx, study.ID, sc.StudyDays, analytics.Baselines(responses))
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if failed > 0 {
			view.Degraded = append(view.Degraded, fmt.Sprintf("expected windows (%d users)", failed))
		}

		view.Summaries = analytics.SummarizeAdherence(analytics.AdherenceInput{
			Responses: responses,
			Structure: *sc,
			Windows:   windows,
			Labels:    labels,
		})
		return view, nil
	})
}

// expectedWindows fetches each user's windows from their baseline over the
// structure's study length. A failed fetch leaves that user with no windows.
func (l *Loader) expectedWindows(ctx context.Context, studyID int64, studyDays int, baselines map[string]time.Time) (map[string][]models.ExpectedOccurrence, int) {
	var (
		mu      sync.Mutex
		failed  int
		windows = make(map[string][]models.ExpectedOccurrence, len(baselines))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.concurrency)
	for user, baseline := range baselines {
		g.Go(func() error {
			from, to := analytics.WindowRange(baseline, studyDays)
			occ, err := l.api.Expected(gctx, client.ExpectedQuery{StudyID: studyID, UserID: user, From: from, To: to})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if gctx.Err() == nil {
					l.log.Warn("expected windows unavailable", zap.String("user_id", user), zap.Error(err))
				}
				failed++
				windows[user] = nil
				return nil
			}
			windows[user] = occ
			return nil
		})
	}
	_ = g.Wait()
	return windows, failed
}

// Table loads one page of labeled responses and groups it
func (l *Loader) Table(ctx context.Context, req TableRequest) (*TableView, error) {
	return run(l, ctx, func(ctx context.Context) (*TableView, error) {
		page, err := l.api.LabeledResponses(ctx, req.StudyID, req.Query)
		if err != nil {
			return nil, fmt.Errorf("failed to load responses: %w", err)
		}

		view := &TableView{Total: page.Total}
		if facets, err := l.api.Facets(ctx, req.StudyID); err != nil {
			if ctx.Err() == nil {
				l.log.Warn("facets unavailable", zap.Int64("study_id", req.StudyID), zap.Error(err))
			}
		} else {
			view.Facets = *facets
		}

		labels := l.labels(ctx, req.StudyID, req.Mapping)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		view.Groups = analytics.GroupResponses(page.Responses, req.GroupBy, labels)
		return view, nil
	})
}

// Calendar loads every response and lays them out by local day with notes
func (l *Loader) Calendar(ctx context.Context, req CalendarRequest) ([]analytics.CalendarDay, error) {
	return run(l, ctx, func(ctx context.Context) ([]analytics.CalendarDay, error) {
		study, err := l.study(ctx, req.StudyID)
		if err != nil {
			return nil, fmt.Errorf("failed to load study %d: %w", req.StudyID, err)
		}
		responses, err := l.fetchAll(ctx, req.StudyID, client.ResponseQuery{})
		if err != nil {
			return nil, fmt.Errorf("failed to load responses: %w", err)
		}
		labels := l.labels(ctx, req.StudyID, req.Mapping)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return analytics.Calendar(responses, study.Location(), labels, req.Notes), nil
	})
}
