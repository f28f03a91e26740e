package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"
)

//go:embed templates/*.txt
var templateFS embed.FS

var topicTagRegex = regexp.MustCompile(`(?i)</?\s*topic\b[^>]*>`)

const maxTopicRunes = 200

// Syllabus lists the competition topic categories questions are drawn from.
var Syllabus = []string{
	"Number Sense",
	"Arithmetic",
	"Rates/Ratios",
	"Data/Probability",
	"Logic/Combinatorics",
	"Geometry",
}

const (
	defaultAudience    = "Year 7 student"
	defaultCompetition = "Archimedes Awards UK Final Stage"
	// DefaultNumQuestions is the size of a generated mock test.
	DefaultNumQuestions = 25
	numOptions          = 5
)

var (
	loadOnce    sync.Once
	loadErr     error
	generateTpl *template.Template
	explainTpl  *template.Template
)

// GenerateData holds template data for question generation prompts.
type GenerateData struct {
	Day          int
	NumQuestions int
	NumOptions   int
	Topics       []string
	TopicFocus   string
	Audience     string
	Competition  string
	// WrapObject asks for {"questions": [...]} instead of a bare array, for
	// APIs whose JSON mode only returns objects.
	WrapObject bool
}

// ExplainData holds template data for topic explanation prompts.
type ExplainData struct {
	Topic       string
	Audience    string
	Competition string
}

func load() error {
	loadOnce.Do(func() {
		funcs := template.FuncMap{"join": strings.Join}

		content, err := templateFS.ReadFile("templates/generate.txt")
		if err != nil {
			loadErr = fmt.Errorf("read generate prompt: %w", err)
			return
		}
		generateTpl, err = template.New("generate").Funcs(funcs).Parse(string(content))
		if err != nil {
			loadErr = fmt.Errorf("parse generate prompt: %w", err)
			return
		}

		content, err = templateFS.ReadFile("templates/explain.txt")
		if err != nil {
			loadErr = fmt.Errorf("read explain prompt: %w", err)
			return
		}
		explainTpl, err = template.New("explain").Parse(string(content))
		if err != nil {
			loadErr = fmt.Errorf("parse explain prompt: %w", err)
		}
	})
	return loadErr
}

// BuildGeneratePrompt builds the prompt asking for a mock test for the given day.
func BuildGeneratePrompt(day int, topicFocus string, wrapObject bool) (string, error) {
	if err := load(); err != nil {
		return "", err
	}
	data := GenerateData{
		Day:          day,
		NumQuestions: DefaultNumQuestions,
		NumOptions:   numOptions,
		Topics:       Syllabus,
		TopicFocus:   sanitizeTopic(topicFocus),
		Audience:     defaultAudience,
		Competition:  defaultCompetition,
		WrapObject:   wrapObject,
	}
	var buf bytes.Buffer
	if err := generateTpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// BuildExplainPrompt builds the Learning Center prompt for a topic.
func BuildExplainPrompt(topic string) (string, error) {
	if err := load(); err != nil {
		return "", err
	}
	topic = sanitizeTopic(topic)
	if topic == "" {
		return "", errors.New("empty topic")
	}
	data := ExplainData{
		Topic:       topic,
		Audience:    defaultAudience,
		Competition: defaultCompetition,
	}
	var buf bytes.Buffer
	if err := explainTpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// sanitizeTopic strips delimiter tags and caps the length of user-supplied topic text.
func sanitizeTopic(topic string) string {
	topic = topicTagRegex.ReplaceAllString(topic, "")
	topic = strings.TrimSpace(topic)
	if utf8.RuneCountInString(topic) > maxTopicRunes {
		topic = string([]rune(topic)[:maxTopicRunes])
	}
	return topic
}
