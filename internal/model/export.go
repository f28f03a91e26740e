package model

import "time"

// ProgressExport is the top-level JSON structure written by the export command.
type ProgressExport struct {
	ExportedAt time.Time       `json:"exported_at"`
	User       *User           `json:"user,omitempty"`
	Summary    Summary         `json:"summary"`
	Topics     []TopicStat     `json:"topics"`
	Results    []ProgressEntry `json:"results"`
}

// Summary holds the dashboard figures.
type Summary struct {
	TestsCompleted int             `json:"tests_completed"`
	AverageScore   *int            `json:"average_score,omitempty"`
	BestScore      *int            `json:"best_score,omitempty"`
	Recent         []ProgressEntry `json:"recent"`
}

// TopicStat is the accuracy for one topic across all stored results.
type TopicStat struct {
	Topic     string `json:"topic"`
	Attempted int    `json:"attempted"`
	Correct   int    `json:"correct"`
	Accuracy  int    `json:"accuracy"`
}
