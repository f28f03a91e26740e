package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/pavelanni/archimedes/internal/model"
)

// CreateTest stores a mock test. Day numbers are unique; a second test for
// the same day fails with ErrDuplicateDay and leaves the first untouched.
func (s *Store) CreateTest(ctx context.Context, t model.MockTest) (int64, error) {
	questionsJSON, err := json.Marshal(t.Questions)
	if err != nil {
		return 0, fmt.Errorf("encode questions: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO mock_tests (day_number, title, questions_json) VALUES (?, ?, ?)`,
		t.DayNumber, t.Title, string(questionsJSON),
	)
	if err != nil {
		if isConstraint(err) {
			return 0, fmt.Errorf("day %d: %w", t.DayNumber, ErrDuplicateDay)
		}
		return 0, err
	}
	return res.LastInsertId()
}

// ListTests returns all mock tests without their questions, ordered by day number.
func (s *Store) ListTests(ctx context.Context) ([]model.TestSummary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, day_number, title FROM mock_tests ORDER BY day_number`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	tests := []model.TestSummary{}
	for rows.Next() {
		var t model.TestSummary
		if err := rows.Scan(&t.ID, &t.DayNumber, &t.Title); err != nil {
			return nil, err
		}
		tests = append(tests, t)
	}
	return tests, rows.Err()
}

// GetTest returns a mock test with its questions decoded.
func (s *Store) GetTest(ctx context.Context, id int64) (model.MockTest, error) {
	var (
		t             model.MockTest
		questionsJSON string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, day_number, title, questions_json FROM mock_tests WHERE id = ?`, id,
	).Scan(&t.ID, &t.DayNumber, &t.Title, &questionsJSON)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if err := json.Unmarshal([]byte(questionsJSON), &t.Questions); err != nil {
		return t, fmt.Errorf("decode questions of test %d: %w", id, err)
	}
	return t, nil
}

// TestCount returns the number of mock tests.
func (s *Store) TestCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM mock_tests`).Scan(&count)
	return count, err
}

// MaxDayNumber returns the highest day number in use, or 0 for an empty catalog.
func (s *Store) MaxDayNumber(ctx context.Context) (int, error) {
	var day int
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(day_number), 0) FROM mock_tests`).Scan(&day)
	return day, err
}
