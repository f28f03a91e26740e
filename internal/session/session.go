package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/pavelanni/archimedes/internal/model"
)

const (
	// DefaultDuration is the time allowed for one attempt.
	DefaultDuration = time.Hour
	// DefaultTick is the countdown cadence.
	DefaultTick = time.Second
)

var (
	// ErrFinished is returned for any change attempted after submission.
	ErrFinished = errors.New("session already finished")
	// ErrAbandoned is returned after the session was replaced by a newer one.
	ErrAbandoned = errors.New("session abandoned")
	// ErrInvalidOption is returned when an answer is not one of the question's options.
	ErrInvalidOption = errors.New("option is not one of the question's options")
	// ErrIndexOutOfRange is returned when jumping outside the question list.
	ErrIndexOutOfRange = errors.New("question index out of range")
	// ErrNotRecorded wraps a failure to persist the result. The session is
	// still finished and its score valid.
	ErrNotRecorded = errors.New("result not recorded")
	// ErrEmptyTest is returned when starting a session on a test without questions.
	ErrEmptyTest = errors.New("test has no questions")
)

// Recorder persists the result of a finished attempt.
type Recorder interface {
	InsertResult(ctx context.Context, r model.TestResult) (int64, error)
}

// Options configures the countdown.
type Options struct {
	Duration time.Duration
	Tick     time.Duration
}

func (o Options) withDefaults() Options {
	if o.Duration <= 0 {
		o.Duration = DefaultDuration
	}
	if o.Tick <= 0 {
		o.Tick = DefaultTick
	}
	return o
}

// Outcome is the scored result of a finished session.
type Outcome struct {
	Score      int
	Correct    int
	Total      int
	Answered   int
	Expired    bool
	ResultID   int64
	PersistErr error
	FinishedAt time.Time
}

// Session is one attempt at one mock test. It starts in progress with the
// countdown running and ends finished, either by Submit or by expiry.
type Session struct {
	id       string
	test     model.MockTest
	userID   int64
	recorder Recorder
	tick     time.Duration
	ctx      context.Context

	mu        sync.Mutex
	index     int
	answers   model.Answers
	timeLeft  time.Duration
	finished  bool
	abandoned bool
	outcome   Outcome

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func newSession(ctx context.Context, id string, test model.MockTest, userID int64, rec Recorder, opts Options) *Session {
	opts = opts.withDefaults()
	s := &Session{
		id:       id,
		test:     test,
		userID:   userID,
		recorder: rec,
		tick:     opts.Tick,
		ctx:      context.WithoutCancel(ctx),
		answers:  make(model.Answers),
		timeLeft: opts.Duration,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go s.run()
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Done is closed once the session is finished.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) run() {
	t := time.NewTicker(s.tick)
	defer t.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-t.C:
			if s.countdown() {
				if _, err := s.finish(s.ctx, true); err != nil {
					slog.Error("failed to record expired session", "session_id", s.id, "error", err)
				}
				return
			}
		}
	}
}

// countdown decrements the remaining time and reports whether it ran out.
func (s *Session) countdown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished || s.abandoned {
		return false
	}
	s.timeLeft -= s.tick
	if s.timeLeft < 0 {
		s.timeLeft = 0
	}
	return s.timeLeft == 0
}

func (s *Session) stopTimer() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// checkActive must be called with mu held.
func (s *Session) checkActive() error {
	if s.abandoned {
		return ErrAbandoned
	}
	if s.finished {
		return ErrFinished
	}
	return nil
}

// RecordAnswer sets the answer for the current question, replacing any earlier one.
func (s *Session) RecordAnswer(option string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkActive(); err != nil {
		return err
	}
	q := s.test.Questions[s.index]
	if !q.HasOption(option) {
		return fmt.Errorf("question %d: %q: %w", q.ID, option, ErrInvalidOption)
	}
	s.answers[q.ID] = option
	return nil
}

// JumpTo moves to any question.
func (s *Session) JumpTo(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkActive(); err != nil {
		return err
	}
	if index < 0 || index >= len(s.test.Questions) {
		return fmt.Errorf("index %d of %d: %w", index, len(s.test.Questions), ErrIndexOutOfRange)
	}
	s.index = index
	return nil
}

// Previous moves back one question. It does nothing on the first question.
func (s *Session) Previous() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkActive(); err != nil {
		return err
	}
	if s.index > 0 {
		s.index--
	}
	return nil
}

// Next moves forward one question. On the last question it submits.
func (s *Session) Next(ctx context.Context) error {
	s.mu.Lock()
	if err := s.checkActive(); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.index < len(s.test.Questions)-1 {
		s.index++
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()
	_, err := s.Submit(ctx)
	return err
}

// Submit scores the attempt, finishes the session and records one result.
// Calling it again after the session finished returns the same outcome and
// writes nothing. A persistence failure is returned wrapped in ErrNotRecorded
// while the session stays finished.
func (s *Session) Submit(ctx context.Context) (Outcome, error) {
	return s.finish(ctx, false)
}

func (s *Session) finish(ctx context.Context, expired bool) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.abandoned {
		return Outcome{}, ErrAbandoned
	}
	if s.finished {
		return s.outcome, nil
	}
	s.finished = true
	s.stopTimer()
	defer close(s.done)

	total := len(s.test.Questions)
	correct := model.CountCorrect(s.test.Questions, s.answers)
	s.outcome = Outcome{
		Score:      model.Score(correct, total),
		Correct:    correct,
		Total:      total,
		Answered:   len(s.answers),
		Expired:    expired,
		FinishedAt: time.Now().UTC(),
	}

	id, err := s.recorder.InsertResult(ctx, model.TestResult{
		UserID:         s.userID,
		TestID:         s.test.ID,
		Score:          s.outcome.Score,
		TotalQuestions: total,
		Answers:        maps.Clone(s.answers),
		CompletedAt:    s.outcome.FinishedAt,
	})
	if err != nil {
		s.outcome.PersistErr = fmt.Errorf("%w: %w", ErrNotRecorded, err)
		slog.Warn("session finished but result not recorded", "session_id", s.id, "error", err)
		return s.outcome, s.outcome.PersistErr
	}
	s.outcome.ResultID = id
	slog.Info("session finished", "session_id", s.id, "test_id", s.test.ID,
		"score", s.outcome.Score, "expired", expired)
	return s.outcome, nil
}

// abandon stops the countdown of an unfinished session without recording anything.
func (s *Session) abandon() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	s.abandoned = true
	s.stopTimer()
}

// Outcome returns the outcome and true once the session is finished.
func (s *Session) Outcome() (Outcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcome, s.finished
}

// TimeLeft returns the remaining time.
func (s *Session) TimeLeft() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeLeft
}
