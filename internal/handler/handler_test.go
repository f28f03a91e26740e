package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/archimedes/internal/catalog"
	"github.com/pavelanni/archimedes/internal/i18n"
	"github.com/pavelanni/archimedes/internal/model"
	"github.com/pavelanni/archimedes/internal/progress"
	"github.com/pavelanni/archimedes/internal/session"
	"github.com/pavelanni/archimedes/internal/store"
)

type fakeProvider struct {
	err error
}

func (f *fakeProvider) GenerateQuestions(_ context.Context, day int, _ string) ([]model.Question, error) {
	if f.err != nil {
		return nil, f.err
	}
	return catalog.DiagnosticQuestions(), nil
}

func (f *fakeProvider) ExplainTopic(_ context.Context, topic string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "## " + topic, nil
}

type testServer struct {
	router http.Handler
	store  *store.Store
	testID int64
}

type failingRecorder struct{}

func (failingRecorder) InsertResult(context.Context, model.TestResult) (int64, error) {
	return 0, errors.New("disk full")
}

func newTestServer(t *testing.T, p catalog.ContentProvider) testServer {
	t.Helper()
	return newTestServerWithRecorder(t, p, nil)
}

// newTestServerWithRecorder builds the API with sessions recording through
// rec, or through the store when rec is nil.
func newTestServerWithRecorder(t *testing.T, p catalog.ContentProvider, rec session.Recorder) testServer {
	t.Helper()
	if err := i18n.Init("en"); err != nil {
		t.Fatalf("i18n.Init: %v", err)
	}
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	if _, err := s.EnsureUser(ctx, "Archimedes Scholar"); err != nil {
		t.Fatalf("EnsureUser: %v", err)
	}
	cat := catalog.New(s, p)
	if _, err := cat.Seed(ctx); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	tests, err := cat.ListTests(ctx)
	if err != nil || len(tests) != 1 {
		t.Fatalf("ListTests: %v %v", tests, err)
	}

	if rec == nil {
		rec = s
	}
	mgr := session.NewManager(rec, session.Options{})
	t.Cleanup(mgr.Close)

	r := chi.NewRouter()
	r.Use(i18n.Middleware("en"))
	New(s, cat, progress.New(s), mgr).Routes(r)
	return testServer{router: r, store: s, testID: tests[0].ID}
}

func (ts testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d; body: %s", rec.Code, want, rec.Body.String())
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(t, http.MethodGet, "/healthz", nil)
	expectStatus(t, rec, http.StatusOK)
	if rec.Body.String() != "ok" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestGetUser(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(t, http.MethodGet, "/api/user", nil)
	expectStatus(t, rec, http.StatusOK)
	if u := decode[model.User](t, rec); u.Name != "Archimedes Scholar" {
		t.Errorf("unexpected user %+v", u)
	}

	rec = ts.do(t, http.MethodPatch, "/api/user", map[string]string{"name": "Ada"})
	expectStatus(t, rec, http.StatusOK)
	rec = ts.do(t, http.MethodGet, "/api/user", nil)
	if u := decode[model.User](t, rec); u.Name != "Ada" {
		t.Errorf("rename not stored: %+v", u)
	}

	rec = ts.do(t, http.MethodPatch, "/api/user", map[string]string{"name": "  "})
	expectStatus(t, rec, http.StatusBadRequest)
}

func TestMissingTestThenList(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/api/tests/999", nil)
	expectStatus(t, rec, http.StatusNotFound)
	if body := decode[map[string]string](t, rec); body["error"] != "Test not found" {
		t.Errorf("error body = %v", body)
	}

	rec = ts.do(t, http.MethodGet, "/api/tests", nil)
	expectStatus(t, rec, http.StatusOK)
	tests := decode[[]model.TestSummary](t, rec)
	if len(tests) != 1 || tests[0].Title != "Diagnostic Assessment" || tests[0].DayNumber != 1 {
		t.Errorf("unexpected list %+v", tests)
	}

	rec = ts.do(t, http.MethodGet, "/api/tests/abc", nil)
	expectStatus(t, rec, http.StatusBadRequest)
}

func TestGetTest(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(t, http.MethodGet, "/api/tests/1", nil)
	expectStatus(t, rec, http.StatusOK)
	mt := decode[model.MockTest](t, rec)
	if len(mt.Questions) != 5 || mt.Questions[1].CorrectAnswer != "180" {
		t.Errorf("unexpected test %+v", mt)
	}
	if !strings.Contains(rec.Body.String(), `"correctAnswer"`) {
		t.Error("question JSON should use correctAnswer")
	}
}

func TestCreateTest(t *testing.T) {
	ts := newTestServer(t, nil)
	body := map[string]any{
		"day_number": 2,
		"title":      "Day two",
		"questions":  catalog.DiagnosticQuestions()[:2],
	}
	rec := ts.do(t, http.MethodPost, "/api/tests", body)
	expectStatus(t, rec, http.StatusOK)
	if got := decode[map[string]any](t, rec); got["success"] != true {
		t.Errorf("unexpected body %v", got)
	}

	rec = ts.do(t, http.MethodPost, "/api/tests", body)
	expectStatus(t, rec, http.StatusBadRequest)
	if got := decode[map[string]string](t, rec); got["error"] != "A test already exists for day 2" {
		t.Errorf("unexpected error %v", got)
	}

	rec = ts.do(t, http.MethodPost, "/api/tests", map[string]any{"day_number": 3, "title": "x"})
	expectStatus(t, rec, http.StatusBadRequest)

	req := httptest.NewRequest(http.MethodPost, "/api/tests", strings.NewReader("{not json"))
	raw := httptest.NewRecorder()
	ts.router.ServeHTTP(raw, req)
	expectStatus(t, raw, http.StatusBadRequest)

	rec = ts.do(t, http.MethodGet, "/api/tests", nil)
	if tests := decode[[]model.TestSummary](t, rec); len(tests) != 2 {
		t.Errorf("expected 2 tests, got %+v", tests)
	}
}

func TestUploadTest(t *testing.T) {
	ts := newTestServer(t, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("test_file", "day4.json")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if err := json.NewEncoder(fw).Encode(map[string]any{
		"day_number": 4,
		"title":      "Uploaded",
		"questions":  catalog.DiagnosticQuestions(),
	}); err != nil {
		t.Fatalf("encode: %v", err)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/tests/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	expectStatus(t, rec, http.StatusOK)

	rec = ts.do(t, http.MethodGet, "/api/tests", nil)
	tests := decode[[]model.TestSummary](t, rec)
	if len(tests) != 2 || tests[1].DayNumber != 4 {
		t.Errorf("unexpected list %+v", tests)
	}
}

func TestGenerateTest(t *testing.T) {
	ts := newTestServer(t, &fakeProvider{})
	rec := ts.do(t, http.MethodPost, "/api/tests/generate", map[string]any{"topic_focus": "Geometry"})
	expectStatus(t, rec, http.StatusOK)
	got := decode[map[string]any](t, rec)
	if got["day_number"] != float64(2) || got["title"] != "Mock Test #2" || got["questions"] != float64(5) {
		t.Errorf("unexpected body %v", got)
	}
	if got["message"] != "5 questions generated." {
		t.Errorf("message = %v", got["message"])
	}

	rec = ts.do(t, http.MethodPost, "/api/tests/generate", map[string]any{"day_number": 1})
	expectStatus(t, rec, http.StatusBadRequest)
	if body := decode[map[string]string](t, rec); body["error"] != "A test already exists for day 1" {
		t.Errorf("unexpected error %v", body)
	}
}

func TestGenerateTestEmptyChunkedBody(t *testing.T) {
	ts := newTestServer(t, &fakeProvider{})

	// An io.Reader of unknown length makes the request chunked.
	req := httptest.NewRequest(http.MethodPost, "/api/tests/generate", io.MultiReader())
	if req.ContentLength != -1 {
		t.Fatalf("ContentLength = %d, want -1", req.ContentLength)
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	expectStatus(t, rec, http.StatusOK)
	if got := decode[map[string]any](t, rec); got["day_number"] != float64(2) {
		t.Errorf("unexpected body %v", got)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/tests/generate", io.MultiReader(strings.NewReader("{bad")))
	rec = httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	expectStatus(t, rec, http.StatusBadRequest)
}

func TestGenerateTestFailure(t *testing.T) {
	ts := newTestServer(t, &fakeProvider{err: errors.New("upstream down")})
	rec := ts.do(t, http.MethodPost, "/api/tests/generate", nil)
	expectStatus(t, rec, http.StatusBadGateway)
	if got := decode[map[string]string](t, rec); got["error"] != "Generation failed" {
		t.Errorf("unexpected error %v", got)
	}

	rec = ts.do(t, http.MethodGet, "/api/tests", nil)
	if tests := decode[[]model.TestSummary](t, rec); len(tests) != 1 {
		t.Errorf("catalog changed after failed generation: %+v", tests)
	}
}

func TestTopics(t *testing.T) {
	ts := newTestServer(t, &fakeProvider{})
	rec := ts.do(t, http.MethodGet, "/api/topics", nil)
	expectStatus(t, rec, http.StatusOK)
	if topics := decode[[]model.Topic](t, rec); len(topics) != 6 {
		t.Errorf("expected 6 topics, got %d", len(topics))
	}

	rec = ts.do(t, http.MethodPost, "/api/topics/explain", map[string]string{"topic": "geometry"})
	expectStatus(t, rec, http.StatusOK)
	got := decode[map[string]string](t, rec)
	if got["topic"] != "Geometry & Spatial Reasoning" || got["markdown"] != "## Geometry & Spatial Reasoning" {
		t.Errorf("unexpected body %v", got)
	}
}

func TestExplainFailure(t *testing.T) {
	ts := newTestServer(t, &fakeProvider{err: errors.New("timeout")})
	rec := ts.do(t, http.MethodPost, "/api/topics/explain", map[string]string{"topic": "logic"})
	expectStatus(t, rec, http.StatusBadGateway)
}

func TestResultsAndProgress(t *testing.T) {
	ts := newTestServer(t, nil)

	// Two of five diagnostic answers are correct.
	rec := ts.do(t, http.MethodPost, "/api/results", map[string]any{
		"test_id":         ts.testID,
		"score":           40,
		"total_questions": 5,
		"answers":         map[string]string{"1": "0", "2": "180", "3": "2"},
	})
	expectStatus(t, rec, http.StatusOK)
	if got := decode[map[string]int64](t, rec); got["id"] == 0 {
		t.Errorf("expected result id, got %v", got)
	}

	rec = ts.do(t, http.MethodGet, "/api/progress", nil)
	expectStatus(t, rec, http.StatusOK)
	entries := decode[[]model.ProgressEntry](t, rec)
	if len(entries) != 1 || entries[0].Score != 40 || entries[0].TotalQuestions != 5 || entries[0].Title != "Diagnostic Assessment" {
		t.Fatalf("unexpected progress %+v", entries)
	}
	if entries[0].Answers[2] != "180" {
		t.Errorf("answers not stored: %v", entries[0].Answers)
	}

	rec = ts.do(t, http.MethodGet, "/api/progress/summary", nil)
	expectStatus(t, rec, http.StatusOK)
	sum := decode[model.Summary](t, rec)
	if sum.TestsCompleted != 1 || sum.BestScore == nil || *sum.BestScore != 40 {
		t.Errorf("unexpected summary %+v", sum)
	}

	rec = ts.do(t, http.MethodGet, "/api/progress/topics", nil)
	expectStatus(t, rec, http.StatusOK)
	if stats := decode[[]model.TopicStat](t, rec); len(stats) != 5 {
		t.Errorf("expected 5 topics, got %+v", stats)
	}
}

func TestResultScoreMustMatchAnswers(t *testing.T) {
	ts := newTestServer(t, nil)

	tests := []struct {
		name   string
		body   map[string]any
		status int
	}{
		{"inflated score", map[string]any{"test_id": ts.testID, "score": 100, "total_questions": 5, "answers": map[string]string{}}, http.StatusBadRequest},
		{"wrong total", map[string]any{"test_id": ts.testID, "score": 0, "total_questions": 3, "answers": map[string]string{}}, http.StatusBadRequest},
		{"out of range", map[string]any{"test_id": ts.testID, "score": 140}, http.StatusBadRequest},
		{"unknown test", map[string]any{"test_id": 999, "score": 0}, http.StatusNotFound},
		{"missing test id", map[string]any{"score": 0}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/api/results", tt.body)
			expectStatus(t, rec, tt.status)
		})
	}

	rec := ts.do(t, http.MethodPost, "/api/results", map[string]any{"test_id": ts.testID, "score": 100, "answers": map[string]string{}})
	if got := decode[map[string]string](t, rec); got["error"] != "The score does not match the answers" {
		t.Errorf("unexpected error %v", got)
	}

	rec = ts.do(t, http.MethodGet, "/api/progress", nil)
	if entries := decode[[]model.ProgressEntry](t, rec); len(entries) != 0 {
		t.Fatalf("rejected results must not be stored: %+v", entries)
	}
}

func TestResultScoreComputedWhenOmitted(t *testing.T) {
	ts := newTestServer(t, nil)

	answers := map[string]string{"1": "0", "2": "180", "3": "4", "4": "5,432,109,876", "5": "20"}
	rec := ts.do(t, http.MethodPost, "/api/results", map[string]any{"test_id": ts.testID, "answers": answers})
	expectStatus(t, rec, http.StatusOK)

	rec = ts.do(t, http.MethodGet, "/api/progress", nil)
	entries := decode[[]model.ProgressEntry](t, rec)
	if len(entries) != 1 {
		t.Fatalf("expected one result, got %+v", entries)
	}
	for _, e := range entries {
		if e.Score != 100 || e.TotalQuestions != 5 {
			t.Errorf("stored score=%d total=%d, want 100 and 5", e.Score, e.TotalQuestions)
		}
	}
}

func TestSessionFlow(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/api/sessions", map[string]int64{"test_id": ts.testID})
	expectStatus(t, rec, http.StatusCreated)
	st := decode[session.State](t, rec)
	if st.ID == "" || st.TotalQuestions != 5 || st.TimeLeft != 3600 || st.Question == nil {
		t.Fatalf("unexpected state %+v", st)
	}
	if strings.Contains(rec.Body.String(), "correctAnswer") {
		t.Error("in-progress state must not reveal answers")
	}
	base := "/api/sessions/" + st.ID

	answers := []string{"0", "180", "2", "5,432,109,876", "24"}
	for i, a := range answers {
		rec = ts.do(t, http.MethodPost, base+"/answer", map[string]string{"option": a})
		expectStatus(t, rec, http.StatusOK)
		if i < len(answers)-1 {
			rec = ts.do(t, http.MethodPost, base+"/next", nil)
			expectStatus(t, rec, http.StatusOK)
		}
	}

	rec = ts.do(t, http.MethodPost, base+"/answer", map[string]string{"option": "not an option"})
	expectStatus(t, rec, http.StatusBadRequest)
	rec = ts.do(t, http.MethodPost, base+"/jump", map[string]int{"index": 9})
	expectStatus(t, rec, http.StatusBadRequest)
	rec = ts.do(t, http.MethodPost, base+"/jump", map[string]int{"index": 0})
	expectStatus(t, rec, http.StatusOK)
	rec = ts.do(t, http.MethodPost, base+"/previous", nil)
	expectStatus(t, rec, http.StatusOK)
	if got := decode[session.State](t, rec); got.CurrentIndex != 0 {
		t.Errorf("CurrentIndex = %d, want 0", got.CurrentIndex)
	}

	rec = ts.do(t, http.MethodPost, base+"/submit", nil)
	expectStatus(t, rec, http.StatusOK)
	st = decode[session.State](t, rec)
	if !st.Finished || st.Score == nil || *st.Score != 60 || st.ResultID == 0 || len(st.Review) != 5 {
		t.Fatalf("unexpected finished state %+v", st)
	}

	rec = ts.do(t, http.MethodPost, base+"/submit", nil)
	expectStatus(t, rec, http.StatusOK)
	if again := decode[session.State](t, rec); again.ResultID != st.ResultID {
		t.Errorf("second submit changed result id: %d != %d", again.ResultID, st.ResultID)
	}

	rec = ts.do(t, http.MethodPost, base+"/answer", map[string]string{"option": "0"})
	expectStatus(t, rec, http.StatusConflict)
	rec = ts.do(t, http.MethodPost, base+"/next", nil)
	expectStatus(t, rec, http.StatusConflict)

	rec = ts.do(t, http.MethodGet, "/api/progress", nil)
	if entries := decode[[]model.ProgressEntry](t, rec); len(entries) != 1 || entries[0].Score != 60 {
		t.Errorf("expected one stored result, got %+v", entries)
	}
}

func TestSessionNotFound(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(t, http.MethodGet, "/api/sessions/nope", nil)
	expectStatus(t, rec, http.StatusNotFound)

	rec = ts.do(t, http.MethodPost, "/api/sessions", map[string]int64{"test_id": 404})
	expectStatus(t, rec, http.StatusNotFound)
}

func TestSessionReplaced(t *testing.T) {
	ts := newTestServer(t, nil)
	first := decode[session.State](t, ts.do(t, http.MethodPost, "/api/sessions", map[string]int64{"test_id": ts.testID}))
	second := decode[session.State](t, ts.do(t, http.MethodPost, "/api/sessions", map[string]int64{"test_id": ts.testID}))
	if first.ID == second.ID {
		t.Fatal("expected distinct session ids")
	}
	rec := ts.do(t, http.MethodGet, "/api/sessions/"+first.ID, nil)
	expectStatus(t, rec, http.StatusNotFound)
	rec = ts.do(t, http.MethodGet, "/api/sessions/"+second.ID, nil)
	expectStatus(t, rec, http.StatusOK)
}

func TestSessionPersistFailure(t *testing.T) {
	ts := newTestServerWithRecorder(t, nil, failingRecorder{})

	st := decode[session.State](t, ts.do(t, http.MethodPost, "/api/sessions", map[string]int64{"test_id": ts.testID}))
	base := "/api/sessions/" + st.ID
	expectStatus(t, ts.do(t, http.MethodPost, base+"/answer", map[string]string{"option": "0"}), http.StatusOK)

	rec := ts.do(t, http.MethodPost, base+"/submit", nil)
	expectStatus(t, rec, http.StatusOK)
	st = decode[session.State](t, rec)
	if !st.Finished || st.Score == nil || *st.Score != 20 {
		t.Fatalf("unexpected finished state %+v", st)
	}
	if st.PersistError != "Your result may not have been recorded" {
		t.Errorf("PersistError = %q", st.PersistError)
	}
	if strings.Contains(rec.Body.String(), "disk full") {
		t.Error("storage error must not reach the client")
	}

	req := httptest.NewRequest(http.MethodGet, base, nil)
	req.Header.Set("Accept-Language", "ru")
	ru := httptest.NewRecorder()
	ts.router.ServeHTTP(ru, req)
	if got := decode[session.State](t, ru); got.PersistError != "Результат мог не сохраниться" {
		t.Errorf("PersistError = %q", got.PersistError)
	}
}

func TestLocalizedErrors(t *testing.T) {
	ts := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/tests/999", nil)
	req.Header.Set("Accept-Language", "ru")
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	expectStatus(t, rec, http.StatusNotFound)
	if got := decode[map[string]string](t, rec); got["error"] != "Тест не найден" {
		t.Errorf("unexpected error %v", got)
	}
}
