// Command lexpdfd serves the extraction pipeline over HTTP.
//
// Endpoints:
//
//	POST /v1/extract           multipart PDF upload (file, optional case_id
//	                           and system_code fields), returns the report
//	GET  /v1/cases/{caseID}/patterns
//	GET  /v1/engines/stats
//	GET  /v1/health
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/lexpdf/contextstore"
	"github.com/hazyhaar/lexpdf/dbopen"
	"github.com/hazyhaar/lexpdf/pipeline"
)

// maxUploadBytes bounds one multipart PDF upload (200 MB).
const maxUploadBytes = 200 << 20

func main() {
	port := env("PORT", "8090")
	cfgPath := env("LEXPDF_CONFIG", "")
	logLevel := env("LOG_LEVEL", "info")

	var lvl slog.Level
	switch logLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	cfg := pipeline.DefaultConfig()
	if cfgPath != "" {
		var err error
		cfg, err = pipeline.LoadConfig(cfgPath)
		if err != nil {
			slog.Error("config", "error", err)
			os.Exit(1)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, err := dbopen.Open(cfg.DBPath,
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(contextstore.Schema))
	if err != nil {
		slog.Error("context store", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	p, err := pipeline.New(cfg, db, logger)
	if err != nil {
		slog.Error("init pipeline", "error", err)
		os.Exit(1)
	}

	uploadDir := filepath.Join(cfg.OutputDir, "uploads")
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		slog.Error("create upload dir", "error", err)
		os.Exit(1)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/v1/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			writeError(w, 503, err)
			return
		}
		writeJSON(w, 200, map[string]string{"status": "ok"})
	})

	r.Post("/v1/extract", extractHandler(p, uploadDir))

	r.Get("/v1/cases/{caseID}/patterns", func(w http.ResponseWriter, r *http.Request) {
		caseID := chi.URLParam(r, "caseID")
		c, err := p.Store().GetCase(r.Context(), caseID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				writeJSON(w, 404, map[string]string{"error": "unknown case"})
				return
			}
			writeError(w, 500, err)
			return
		}
		patterns, err := p.Store().CasePatterns(r.Context(), caseID)
		if err != nil {
			writeError(w, 500, err)
			return
		}
		writeJSON(w, 200, map[string]any{
			"case_id":  c.ID,
			"system":   c.System,
			"patterns": patterns,
		})
	})

	r.Get("/v1/engines/stats", func(w http.ResponseWriter, r *http.Request) {
		stats, err := p.Store().EngineStats(r.Context())
		if err != nil {
			writeError(w, 500, err)
			return
		}
		writeJSON(w, 200, stats)
	})

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      15 * time.Minute, // extraction runs inline
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("lexpdfd starting", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
	slog.Info("server stopped")
}

// extractHandler receives a multipart PDF, spools it to disk and runs the
// pipeline synchronously. The artifact directory path comes back in the
// report.
func extractHandler(p *pipeline.Pipeline, uploadDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			writeError(w, 400, err)
			return
		}
		file, hdr, err := r.FormFile("file")
		if err != nil {
			writeError(w, 400, err)
			return
		}
		defer file.Close()

		tmp, err := os.CreateTemp(uploadDir, "upload-*.pdf")
		if err != nil {
			writeError(w, 500, err)
			return
		}
		defer os.Remove(tmp.Name())
		if _, err := io.Copy(tmp, file); err != nil {
			tmp.Close()
			writeError(w, 500, err)
			return
		}
		tmp.Close()

		job := pipeline.Job{
			Path:       tmp.Name(),
			CaseID:     r.FormValue("case_id"),
			SystemCode: r.FormValue("system_code"),
		}
		if job.CaseID == "" {
			// The spool name is random; key the case on the upload name.
			base := filepath.Base(hdr.Filename)
			job.CaseID = strings.TrimSuffix(base, filepath.Ext(base))
		}

		slog.Info("processing upload",
			"name", hdr.Filename, "size", hdr.Size, "case", job.CaseID)
		rep, err := p.ProcessDocument(r.Context(), job)
		if err != nil {
			writeError(w, 422, err)
			return
		}
		rep.Path = hdr.Filename // the spool path is meaningless to the caller
		writeJSON(w, 200, rep)
	}
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
