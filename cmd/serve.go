package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pokamal0y-ship-it/alpha-project-test1/internal/model"
	"github.com/pokamal0y-ship-it/alpha-project-test1/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP ingest and query server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Recoverer)
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
		}))

		r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Post("/events", func(w http.ResponseWriter, req *http.Request) {
			var envelope model.Envelope
			if err := json.NewDecoder(req.Body).Decode(&envelope); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
				return
			}

			out, err := env.Pipeline.Process(req.Context(), envelope)
			if err != nil {
				zap.L().Error("event processing failed",
					zap.String("source", envelope.Source),
					zap.String("external_id", envelope.ExternalID),
					zap.Error(err),
				)
				writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
				return
			}
			writeJSON(w, http.StatusOK, out)
		})

		r.Get("/opportunities", func(w http.ResponseWriter, req *http.Request) {
			filter := store.OpportunityFilter{}
			q := req.URL.Query()
			if v := q.Get("min_score"); v != "" {
				filter.MinScore, _ = strconv.ParseFloat(v, 64)
			}
			if v := q.Get("priority"); v != "" {
				filter.Priority = model.PriorityLabel(v)
			}
			if v := q.Get("limit"); v != "" {
				filter.Limit, _ = strconv.Atoi(v)
			}
			if v := q.Get("offset"); v != "" {
				filter.Offset, _ = strconv.Atoi(v)
			}

			opps, err := env.Store.ListOpportunities(req.Context(), filter)
			if err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"opportunities": opps, "count": len(opps)})
		})

		r.Get("/events/{id}/ledger", func(w http.ResponseWriter, req *http.Request) {
			id := chi.URLParam(req, "id")
			chain, err := env.Store.DecisionChain(req.Context(), id)
			if err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
				return
			}
			if len(chain) == 0 {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "no decisions for event"})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"raw_event_id": id, "decisions": chain})
		})

		r.Get("/parked", func(w http.ResponseWriter, req *http.Request) {
			entries, err := env.Store.ParkedEvents(req.Context(), 100)
			if err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"parked": entries, "count": len(entries)})
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(),
				time.Duration(cfg.Pipeline.ShutdownTimeout)*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
