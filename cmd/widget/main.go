package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"chat-widget/internal/analytics"
	"chat-widget/internal/config"
	"chat-widget/internal/eventloop"
	"chat-widget/internal/kv"
	"chat-widget/internal/llm"
	"chat-widget/internal/metrics"
	"chat-widget/internal/render"
	"chat-widget/internal/reply"
	"chat-widget/internal/scheduler"
	"chat-widget/internal/theme"
	"chat-widget/internal/transcript"
	"chat-widget/internal/tui"
	"chat-widget/internal/widget"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	cfg := config.New()

	// the terminal belongs to the UI, logs go to a file
	if cfg.LogFilePath != "" {
		f, err := openLogFile(cfg.LogFilePath)
		if err != nil {
			log.Fatalf("failed to open log file: %v", err)
		}
		defer f.Close()
		log.SetOutput(f)
	}

	slots, err := kv.Open(string(cfg.StorageBackend), cfg.StoragePath)
	if err != nil {
		log.Fatalf("failed to open storage: %v", err)
	}
	defer func() {
		if err := slots.Close(); err != nil {
			log.Printf("failed to close storage: %v", err)
		}
	}()

	var rec transcript.Recorder
	if cfg.TranscriptFilePath != "" {
		fr, err := transcript.NewFileRecorder(cfg.TranscriptFilePath)
		if err != nil {
			log.Printf("failed to init transcript recorder: %v", err)
		} else {
			rec = fr
			defer func() {
				if err := fr.Close(); err != nil {
					log.Printf("failed to close transcript: %v", err)
				}
			}()
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()
	if cfg.MetricsAddr != "" {
		go m.Serve(ctx, cfg.MetricsAddr)
	}

	remote, err := llm.NewFactory(cfg).CreateClient(cfg.ReplyProvider)
	if err != nil {
		log.Fatalf("failed to create llm client: %v", err)
	}
	replies := reply.NewGenerator(remote, readSystemPrompt(cfg.SystemPromptPath))

	loop := eventloop.New(eventloop.RealClock())
	loop.Start(ctx)

	app := widget.New(widget.Options{
		Loop:       loop,
		Slots:      slots,
		ChatKey:    cfg.ChatKey,
		ThemeKey:   cfg.ThemeKey,
		Preference: theme.EnvPreference{Override: cfg.PreferredScheme},
		Replies:    replies,
		Recorder:   rec,
		Metrics:    m,
		Context:    ctx,
	})
	renderer := render.New(time.Local)
	if cfg.HTMLSnapshotPath != "" {
		snap, err := render.NewSnapshot(cfg.HTMLSnapshotPath, renderer)
		if err != nil {
			log.Printf("failed to init html snapshot: %v", err)
		} else {
			app.Subscribe(snap)
		}
	}
	app.Boot()

	sched := scheduler.New(cfg.ReportCron)
	if rec != nil {
		sched.SetReportFunction(func(context.Context) error {
			return dailyReport(rec)
		})
	}
	if err := sched.Start(); err != nil {
		log.Printf("failed to start scheduler: %v", err)
	}
	if sched.IsRunning() {
		defer sched.Stop()
	}

	p := tea.NewProgram(tui.New(app, renderer), tea.WithAltScreen())
	tui.Listen(app, p)
	if _, err := p.Run(); err != nil {
		log.Printf("ui error: %v", err)
	}

	cancel()
	<-loop.Done()
}

func dailyReport(rec transcript.Recorder) error {
	from, to := transcript.Day(time.Now().UTC())
	events, err := rec.Range(from, to)
	if err != nil {
		return fmt.Errorf("load transcript: %w", err)
	}
	stats := analytics.AnalyzeDay(events, from)
	log.Printf("daily report:\n%s", stats.Summary())
	js, err := stats.ToJSON()
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	log.Printf("daily report json: %s", js)
	return nil
}

func openLogFile(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

func readSystemPrompt(path string) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("system prompt file not found or unreadable at %s: %v", path, err)
		return ""
	}
	return string(data)
}
