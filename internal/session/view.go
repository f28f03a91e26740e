package session

import (
	"maps"

	"github.com/pavelanni/archimedes/internal/model"
)

// QuestionView is a question as shown during the attempt, without its
// answer key.
type QuestionView struct {
	ID      int64    `json:"id"`
	Text    string   `json:"text"`
	Options []string `json:"options"`
	Topic   string   `json:"topic"`
}

// ReviewItem annotates one question after the session finished.
// Answer is nil for an unanswered question.
type ReviewItem struct {
	Question    model.Question `json:"question"`
	Answer      *string        `json:"answer"`
	Correct     bool           `json:"correct"`
	Explanation string         `json:"explanation"`
}

// State is a point-in-time snapshot of a session.
type State struct {
	ID             string        `json:"id"`
	TestID         int64         `json:"test_id"`
	DayNumber      int           `json:"day_number"`
	Title          string        `json:"title"`
	TotalQuestions int           `json:"total_questions"`
	CurrentIndex   int           `json:"current_index"`
	Question       *QuestionView `json:"question,omitempty"`
	Answers        model.Answers `json:"answers"`
	TimeLeft       int           `json:"time_left"`
	Finished       bool          `json:"finished"`
	Expired        bool          `json:"expired,omitempty"`
	Score          *int          `json:"score,omitempty"`
	Answered       int           `json:"answered"`
	ResultID       int64         `json:"result_id,omitempty"`
	PersistError   string        `json:"persist_error,omitempty"`
	Review         []ReviewItem  `json:"review,omitempty"`
}

// Snapshot returns the current state. Finished sessions include review data.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := State{
		ID:             s.id,
		TestID:         s.test.ID,
		DayNumber:      s.test.DayNumber,
		Title:          s.test.Title,
		TotalQuestions: len(s.test.Questions),
		CurrentIndex:   s.index,
		Answers:        maps.Clone(s.answers),
		TimeLeft:       int(s.timeLeft.Seconds()),
		Finished:       s.finished,
		Answered:       len(s.answers),
	}

	if !s.finished {
		q := s.test.Questions[s.index]
		st.Question = &QuestionView{ID: q.ID, Text: q.Text, Options: q.Options, Topic: q.Topic}
		return st
	}

	score := s.outcome.Score
	st.Score = &score
	st.Expired = s.outcome.Expired
	st.ResultID = s.outcome.ResultID
	if s.outcome.PersistErr != nil {
		st.PersistError = s.outcome.PersistErr.Error()
	}
	st.Review = review(s.test.Questions, s.answers)
	return st
}

func review(questions []model.Question, answers model.Answers) []ReviewItem {
	items := make([]ReviewItem, 0, len(questions))
	for _, q := range questions {
		item := ReviewItem{Question: q, Explanation: q.Explanation}
		if a, ok := answers[q.ID]; ok {
			item.Answer = &a
			item.Correct = a == q.CorrectAnswer
		}
		items = append(items, item)
	}
	return items
}
