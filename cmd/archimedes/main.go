package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/archimedes/internal/catalog"
	"github.com/pavelanni/archimedes/internal/handler"
	appI18n "github.com/pavelanni/archimedes/internal/i18n"
	"github.com/pavelanni/archimedes/internal/llm"
	"github.com/pavelanni/archimedes/internal/model"
	"github.com/pavelanni/archimedes/internal/progress"
	"github.com/pavelanni/archimedes/internal/session"
	"github.com/pavelanni/archimedes/internal/store"
)

const defaultUserName = "Archimedes Scholar"

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "archimedes",
		Short: "Maths competition preparation backend",
	}

	serve := serveCmd()
	root.AddCommand(serve, exportCmd(), generateCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `archimedes --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addLLMFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("llm-provider", llm.ProviderOpenAI, "Content provider (openai, gemini)")
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "ollama", "API key for the content provider")
	f.String("llm-model", "", "Model name (default llama3.2 for openai, gemini-1.5-flash for gemini)")
	f.Duration("llm-timeout", 2*time.Minute, "Timeout for a single content provider call")
}

func addCommonFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("db", "archimedes.db", "SQLite database path")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":3000", "HTTP listen address")
	f.StringP("lang", "l", "en", "Language of API messages (en, ru)")
	f.String("user-name", defaultUserName, "Name of the student created on first start")
	f.Duration("session-duration", session.DefaultDuration, "Time allowed for one mock test attempt")
	f.Bool("skip-llm-check", false, "Start without checking the content provider")
	addLLMFlags(cmd)
	addCommonFlags(cmd)
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export progress as JSON",
		RunE:  runExport,
	}
	cmd.Flags().StringP("output", "o", "-", "Output file path (- for stdout)")
	addCommonFlags(cmd)
	return cmd
}

func generateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate and store one mock test",
		RunE:  runGenerate,
	}
	f := cmd.Flags()
	f.IntP("day", "d", 0, "Day number of the new test (0 = next free day)")
	f.StringP("topic", "t", "", "Optional topic to focus on")
	f.StringP("lang", "l", "en", "Output language (en, ru)")
	addLLMFlags(cmd)
	addCommonFlags(cmd)
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("ARCHIMEDES")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("archimedes")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/archimedes")
	v.AddConfigPath("/etc/archimedes")
	v.AddConfigPath("/data")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func llmConfig(v *viper.Viper) llm.Config {
	return llm.Config{
		Provider: v.GetString("llm-provider"),
		BaseURL:  v.GetString("llm-url"),
		APIKey:   v.GetString("llm-key"),
		Model:    v.GetString("llm-model"),
		Timeout:  v.GetDuration("llm-timeout"),
	}
}

// closeProvider releases provider resources when the implementation holds any.
func closeProvider(p llm.Provider) {
	if c, ok := p.(io.Closer); ok {
		if err := c.Close(); err != nil {
			slog.Warn("failed to close content provider", "error", err)
		}
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := model.ServerConfig{
		UserName:        v.GetString("user-name"),
		SessionDuration: v.GetDuration("session-duration"),
		Lang:            v.GetString("lang"),
	}

	// Open database.
	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	user, err := db.EnsureUser(ctx, cfg.UserName)
	if err != nil {
		return fmt.Errorf("ensure user: %w", err)
	}

	// Initialize i18n.
	if err := appI18n.Init(cfg.Lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}
	slog.Info("loaded locales", "default", cfg.Lang, "languages", appI18n.Languages())

	lc := llmConfig(v)
	provider, err := llm.New(ctx, lc)
	if err != nil {
		return fmt.Errorf("create content provider: %w", err)
	}
	defer closeProvider(provider)
	if v.GetBool("skip-llm-check") {
		slog.Warn("skipping content provider health check")
	} else {
		if err := provider.Ping(ctx); err != nil {
			return fmt.Errorf("content provider health check: %w", err)
		}
		slog.Info("content provider OK", "provider", lc.Provider, "url", lc.BaseURL, "model", lc.Model)
	}

	cat := catalog.New(db, provider)
	if _, err := cat.Seed(ctx); err != nil {
		return fmt.Errorf("seed catalog: %w", err)
	}

	sessions := session.NewManager(db, session.Options{Duration: cfg.SessionDuration})
	defer sessions.Close()

	h := handler.New(db, cat, progress.New(db), sessions)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(cfg.Lang))
	h.Routes(r)

	srv := &http.Server{
		Addr:              v.GetString("addr"),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("starting server",
		"addr", srv.Addr,
		"user", user.Name,
		"provider", lc.Provider,
		"lang", cfg.Lang,
		"session_duration", cfg.SessionDuration,
	)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	export, err := progress.New(db).Export(cmd.Context())
	if err != nil {
		return fmt.Errorf("export progress: %w", err)
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)

	slog.Info("exported progress", "results", len(export.Results), "output", outPath)
	return nil
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	provider, err := llm.New(ctx, llmConfig(v))
	if err != nil {
		return fmt.Errorf("create content provider: %w", err)
	}
	defer closeProvider(provider)

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}
	ctx = appI18n.WithLocalizer(ctx, appI18n.NewLocalizer(lang))

	cat := catalog.New(db, provider)
	test, err := cat.GenerateNext(ctx, v.GetInt("day"), v.GetString("topic"))
	if err != nil {
		return fmt.Errorf("generate test: %w", err)
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "created %q (day %d, id %d). %s\n",
		test.Title, test.DayNumber, test.ID, appI18n.Tp(ctx, "QuestionsGenerated", len(test.Questions)))
	return nil
}
