package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"courtbook/internal/db"
)

type readinessCheck struct {
	name string
	ping func(ctx context.Context) error
}

func healthServer(port int, checks []readinessCheck) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), time.Second)
		defer cancel()

		report := make(map[string]string, len(checks))
		code := http.StatusOK
		for _, c := range checks {
			if err := c.ping(ctx); err != nil {
				report[c.name] = err.Error()
				code = http.StatusServiceUnavailable
				continue
			}
			report[c.name] = "ok"
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(report)
	})
	return &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
}

func metricsServer(port int) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
}

// serveUntilDone runs srv until ctx is cancelled and then shuts it down.
func serveUntilDone(ctx context.Context, name string, srv *http.Server, logger *zerolog.Logger) {
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()

	logger.Info().Str("server", name).Str("addr", srv.Addr).Msg("listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Str("server", name).Msg("server error")
	}
}

// backupJob copies the live database into dir and prunes copies older than
// retention.
type backupJob struct {
	db        *db.DB
	dir       string
	retention time.Duration
	logger    *zerolog.Logger
}

func (j *backupJob) run(ctx context.Context, firstDelay, interval time.Duration) {
	timer := time.NewTimer(firstDelay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-timer.C:
			j.once(ctx, now)
			timer.Reset(interval)
		}
	}
}

func (j *backupJob) once(ctx context.Context, now time.Time) {
	dest := filepath.Join(j.dir, fmt.Sprintf("courtbook_%s.db", now.Format("20060102_150405")))

	start := time.Now()
	if err := j.db.Backup(ctx, dest); err != nil {
		j.logger.Error().Err(err).Str("path", dest).Msg("backup failed")
	} else {
		j.logger.Info().Str("path", dest).Dur("took", time.Since(start)).Msg("backup written")
	}

	deleted, err := j.db.CleanupBackups(j.dir, j.retention)
	switch {
	case err != nil:
		j.logger.Error().Err(err).Msg("backup cleanup failed")
	case deleted > 0:
		j.logger.Info().Int("deleted", deleted).Msg("old backups removed")
	}
}
