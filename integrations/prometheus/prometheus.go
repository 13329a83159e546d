package prometheus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/fushar/regrader"
	"github.com/fushar/regrader/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Verdicts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "regrader",
		Subsystem: "grader",
		Name:      "verdicts_total",
		Help:      "Number of judged submissions, by overall verdict",
	}, []string{"verdict"})

	JudgeDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "regrader",
		Subsystem: "grader",
		Name:      "judge_duration_seconds",
		Help:      "Time spent judging a single submission",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
	})

	LastHeartbeat = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "regrader",
		Subsystem: "grader",
		Name:      "last_heartbeat_timestamp_seconds",
		Help:      "Unix time of the last successful grader check-in",
	})
)

func init() {
	prometheus.MustRegister(Verdicts, JudgeDuration, LastHeartbeat)
}

func ObserveVerdict(v regrader.Verdict, took time.Duration) {
	Verdicts.WithLabelValues(v.String()).Inc()
	JudgeDuration.Observe(took.Seconds())
}

func ObserveHeartbeat(t time.Time) {
	LastHeartbeat.Set(float64(t.Unix()))
}

// InitMetrics serves /metrics until ctx is done. It returns immediately when metrics are disabled.
func InitMetrics(ctx context.Context, conf config.MetricsConf) error {
	if !conf.Enabled {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	srv := &http.Server{Addr: fmt.Sprintf(":%d", conf.Port), Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.WarnContext(ctx, "Error shutting down metrics server", slog.Any("err", err))
		}
	}()

	slog.InfoContext(ctx, "Serving Prometheus metrics", slog.Int("port", conf.Port))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.ErrorContext(ctx, "Error with Prometheus metrics", slog.Any("err", err))
		return err
	}
	return nil
}
