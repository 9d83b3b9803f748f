package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/BeyondDrewTV/stylescope/internal/model"
	"github.com/BeyondDrewTV/stylescope/internal/quota"
	"github.com/BeyondDrewTV/stylescope/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the scoring API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(env),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// newRouter builds the HTTP API over the initialized environment.
func newRouter(env *scopeEnv) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/api/score", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Title  string `json:"title"`
			Author string `json:"author"`
			ISBN   string `json:"isbn"`
			UserID string `json:"user_id"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		if body.Title == "" || body.Author == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "title and author are required"})
			return
		}

		identity := quota.IdentityKey(body.UserID, req.RemoteAddr)
		q := model.BookQuery{Title: body.Title, Author: body.Author, ISBN: body.ISBN}

		job, err := env.Runner.Enqueue(req.Context(), q, identity)
		var denied *quota.ErrQuotaExceeded
		switch {
		case errors.As(err, &denied):
			writeJSON(w, http.StatusTooManyRequests, map[string]any{
				"error": "monthly quota exceeded",
				"used":  denied.Used,
				"cap":   denied.Cap,
			})
			return
		case err != nil:
			zap.L().Error("serve: enqueue failed", zap.String("title", q.Title), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
			return
		}

		// A cache hit comes back already completed; everything else polls.
		status := http.StatusAccepted
		if job.Status == model.JobStatusCompleted {
			status = http.StatusOK
		}
		writeJSON(w, status, job)
	})

	r.Get("/api/jobs/{id}", func(w http.ResponseWriter, req *http.Request) {
		job, err := env.Store.GetJob(req.Context(), chi.URLParam(req, "id"))
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "job not found"})
			return
		}
		if err != nil {
			zap.L().Error("serve: get job failed", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
			return
		}
		writeJSON(w, http.StatusOK, job)
	})

	r.Get("/api/usage", func(w http.ResponseWriter, req *http.Request) {
		identity := quota.IdentityKey(req.URL.Query().Get("user_id"), req.RemoteAddr)
		used, cap, err := env.Guard.Usage(req.Context(), identity)
		if err != nil {
			zap.L().Error("serve: get usage failed", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"identity": identity,
			"used":     used,
			"cap":      cap,
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
