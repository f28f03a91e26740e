package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/pavelanni/archimedes/internal/model"
)

// InsertResult stores a completed attempt. CompletedAt defaults to now.
func (s *Store) InsertResult(ctx context.Context, r model.TestResult) (int64, error) {
	answers := r.Answers
	if answers == nil {
		answers = model.Answers{}
	}
	answersJSON, err := json.Marshal(answers)
	if err != nil {
		return 0, fmt.Errorf("encode answers: %w", err)
	}
	completedAt := r.CompletedAt
	if completedAt.IsZero() {
		completedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO test_results (user_id, test_id, score, total_questions, answers_json, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.UserID, r.TestID, r.Score, r.TotalQuestions, string(answersJSON), completedAt,
	)
	if err != nil {
		if isConstraint(err) {
			return 0, fmt.Errorf("user %d, test %d: %w", r.UserID, r.TestID, ErrUnknownReference)
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	slog.Info("stored test result", "id", id, "test_id", r.TestID, "score", r.Score)
	return id, nil
}

// ListProgress returns every result joined with its test's day number and
// title, oldest first.
func (s *Store) ListProgress(ctx context.Context) ([]model.ProgressEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tr.id, tr.user_id, tr.test_id, tr.score, tr.total_questions, tr.answers_json, tr.completed_at,
		        mt.day_number, mt.title
		 FROM test_results tr
		 JOIN mock_tests mt ON tr.test_id = mt.id
		 ORDER BY tr.completed_at ASC, tr.id ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries := []model.ProgressEntry{}
	for rows.Next() {
		var (
			e           model.ProgressEntry
			answersJSON string
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.TestID, &e.Score, &e.TotalQuestions, &answersJSON, &e.CompletedAt,
			&e.DayNumber, &e.Title); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(answersJSON), &e.Answers); err != nil {
			return nil, fmt.Errorf("decode answers of result %d: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
