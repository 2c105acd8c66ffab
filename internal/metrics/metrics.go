package metrics

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics counts widget activity on its own registry.
type Metrics struct {
	Registry          *prometheus.Registry
	MessagesAppended  *prometheus.CounterVec
	StatusTransitions *prometheus.CounterVec
	RepliesScheduled  prometheus.Counter
	ReplyFallbacks    prometheus.Counter
	Attachments       prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		MessagesAppended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chat_widget",
			Name:      "messages_appended_total",
			Help:      "Messages appended to the conversation, by author.",
		}, []string{"author"}),
		StatusTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chat_widget",
			Name:      "status_transitions_total",
			Help:      "User message status updates applied, by new status.",
		}, []string{"status"}),
		RepliesScheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chat_widget",
			Name:      "replies_scheduled_total",
			Help:      "Bot replies scheduled.",
		}),
		ReplyFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chat_widget",
			Name:      "reply_fallbacks_total",
			Help:      "Remote replies replaced by the scripted rule table after an error.",
		}),
		Attachments: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chat_widget",
			Name:      "attachments_total",
			Help:      "Files attached, counted by name.",
		}),
	}
	m.Registry.MustRegister(m.MessagesAppended, m.StatusTransitions, m.RepliesScheduled, m.ReplyFallbacks, m.Attachments)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("metrics: listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("metrics: server error: %v", err)
	}
}
