// Package progress derives the dashboard and progress report figures from
// stored test results.
package progress

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/pavelanni/archimedes/internal/model"
	"github.com/pavelanni/archimedes/internal/store"
)

// recentCount is the number of results shown on the dashboard.
const recentCount = 3

// Aggregator reads results and test definitions from the store.
type Aggregator struct {
	store *store.Store
}

// New creates an Aggregator.
func New(s *store.Store) *Aggregator {
	return &Aggregator{store: s}
}

// ListProgress returns every result with its test's day number and title,
// oldest first.
func (a *Aggregator) ListProgress(ctx context.Context) ([]model.ProgressEntry, error) {
	return a.store.ListProgress(ctx)
}

// Summary returns the number of completed tests, the rounded average and
// best scores, and the latest results newest first.
func (a *Aggregator) Summary(ctx context.Context) (model.Summary, error) {
	entries, err := a.store.ListProgress(ctx)
	if err != nil {
		return model.Summary{}, err
	}
	return summarize(entries), nil
}

func summarize(entries []model.ProgressEntry) model.Summary {
	sum := model.Summary{TestsCompleted: len(entries), Recent: []model.ProgressEntry{}}
	if len(entries) == 0 {
		return sum
	}

	total, best := 0, 0
	for _, e := range entries {
		total += e.Score
		best = max(best, e.Score)
	}
	avg := (2*total + len(entries)) / (2 * len(entries))
	sum.AverageScore = &avg
	sum.BestScore = &best

	for i := len(entries) - 1; i >= 0 && len(sum.Recent) < recentCount; i-- {
		sum.Recent = append(sum.Recent, entries[i])
	}
	return sum
}

// TopicBreakdown returns per-topic accuracy across all results. Every
// question of a completed test counts as attempted; unanswered questions
// count as incorrect. Topics are sorted by name.
func (a *Aggregator) TopicBreakdown(ctx context.Context) ([]model.TopicStat, error) {
	entries, err := a.store.ListProgress(ctx)
	if err != nil {
		return nil, err
	}

	tests := make(map[int64]model.MockTest)
	for _, e := range entries {
		if _, ok := tests[e.TestID]; ok {
			continue
		}
		t, err := a.store.GetTest(ctx, e.TestID)
		if err != nil {
			return nil, fmt.Errorf("load test %d: %w", e.TestID, err)
		}
		tests[e.TestID] = t
	}
	return breakdown(entries, tests), nil
}

func breakdown(entries []model.ProgressEntry, tests map[int64]model.MockTest) []model.TopicStat {
	byTopic := make(map[string]*model.TopicStat)
	for _, e := range entries {
		for _, q := range tests[e.TestID].Questions {
			st, ok := byTopic[q.Topic]
			if !ok {
				st = &model.TopicStat{Topic: q.Topic}
				byTopic[q.Topic] = st
			}
			st.Attempted++
			if ans, ok := e.Answers[q.ID]; ok && ans == q.CorrectAnswer {
				st.Correct++
			}
		}
	}

	stats := make([]model.TopicStat, 0, len(byTopic))
	for _, st := range byTopic {
		st.Accuracy = model.Score(st.Correct, st.Attempted)
		stats = append(stats, *st)
	}
	slices.SortFunc(stats, func(x, y model.TopicStat) int { return cmp.Compare(x.Topic, y.Topic) })
	return stats
}

// Export assembles the progress export document.
func (a *Aggregator) Export(ctx context.Context) (model.ProgressExport, error) {
	entries, err := a.store.ListProgress(ctx)
	if err != nil {
		return model.ProgressExport{}, err
	}
	topics, err := a.TopicBreakdown(ctx)
	if err != nil {
		return model.ProgressExport{}, err
	}
	exp := model.ProgressExport{
		ExportedAt: time.Now().UTC(),
		Summary:    summarize(entries),
		Topics:     topics,
		Results:    entries,
	}
	if u, err := a.store.GetUser(ctx); err == nil {
		exp.User = &u
	}
	return exp, nil
}
