package main

import (
	"context"
	"encoding/json"
	"errors"
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

	"github.com/adrata/intel-engine/internal/buyergroup"
	"github.com/adrata/intel-engine/internal/credit"
	"github.com/adrata/intel-engine/internal/intel"
	"github.com/adrata/intel-engine/internal/provider"
	"github.com/adrata/intel-engine/internal/waterfall"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEngine(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(env.Engine),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func newRouter(engine *intel.Engine) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/enrich", handleEnrich(engine))
		r.Post("/buyer-group/{companyID}", handleBuyerGroup(engine))
		r.Post("/rerank", handleRerank(engine))
		r.Get("/queue", handleQueue(engine))
		r.Get("/leads", handleLeads(engine))
		r.Get("/prospects", handleProspects(engine))
		r.Get("/credits", handleCredits(engine))
		r.Post("/engagements", handleEngagement(engine))
	})

	return r
}

func handleEnrich(engine *intel.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var body intel.EnrichRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if body.Query.IsEmpty() {
			writeError(w, http.StatusBadRequest, "identity query is empty")
			return
		}

		contact, err := engine.EnrichPerson(req.Context(), body)
		if err != nil {
			switch {
			case errors.Is(err, waterfall.ErrEnrichmentExhausted):
				writeError(w, http.StatusUnprocessableEntity, "all providers failed")
			default:
				zap.L().Error("enrich failed", zap.Error(err))
				writeError(w, http.StatusInternalServerError, "enrichment failed")
			}
			return
		}
		writeJSON(w, http.StatusOK, contact)
	}
}

func handleBuyerGroup(engine *intel.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		companyID := chi.URLParam(req, "companyID")

		var body buyergroup.Request
		if req.Body != nil && req.ContentLength != 0 {
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
		}

		res, err := engine.ResolveBuyerGroup(req.Context(), companyID, body)
		if err != nil {
			zap.L().Error("buyer group failed", zap.String("company_id", companyID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "classification failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"company_id": companyID,
			"empty":      res.Empty,
			"members":    res.InGroup(),
		})
	}
}

func handleRerank(engine *intel.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			CompanyID   string `json:"company_id"`
			WorkspaceID string `json:"workspace_id"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if (body.CompanyID == "") == (body.WorkspaceID == "") {
			writeError(w, http.StatusBadRequest, "exactly one of company_id or workspace_id is required")
			return
		}

		var (
			res any
			err error
		)
		if body.CompanyID != "" {
			res, err = engine.RerankCompany(req.Context(), body.CompanyID)
		} else {
			res, err = engine.RerankWorkspace(req.Context(), body.WorkspaceID)
		}
		if err != nil {
			zap.L().Error("rerank failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "rerank failed")
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func handleQueue(engine *intel.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		workspaceID := req.URL.Query().Get("workspace_id")
		if workspaceID == "" {
			writeError(w, http.StatusBadRequest, "workspace_id is required")
			return
		}
		top := 25
		if s := req.URL.Query().Get("top"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n < 1 {
				writeError(w, http.StatusBadRequest, "top must be a positive integer")
				return
			}
			top = n
		}

		entries, err := engine.PriorityQueue(req.Context(), workspaceID, top)
		if err != nil {
			zap.L().Error("queue failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "queue failed")
			return
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

func handleLeads(engine *intel.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		workspaceID := req.URL.Query().Get("workspace_id")
		if workspaceID == "" {
			writeError(w, http.StatusBadRequest, "workspace_id is required")
			return
		}

		entries, err := engine.QualifiedLeads(req.Context(), workspaceID)
		if err != nil {
			zap.L().Error("leads failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "leads failed")
			return
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

func handleProspects(engine *intel.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		workspaceID := req.URL.Query().Get("workspace_id")
		if workspaceID == "" {
			writeError(w, http.StatusBadRequest, "workspace_id is required")
			return
		}
		window := 7 * 24 * time.Hour
		if s := req.URL.Query().Get("window"); s != "" {
			d, err := time.ParseDuration(s)
			if err != nil || d <= 0 {
				writeError(w, http.StatusBadRequest, "window must be a positive duration")
				return
			}
			window = d
		}

		entries, err := engine.ActiveProspects(req.Context(), workspaceID, window)
		if err != nil {
			zap.L().Error("prospects failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "prospects failed")
			return
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

func handleCredits(engine *intel.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		type balance struct {
			Provider string `json:"provider"`
			Kind     string `json:"kind"`
			Credits  int    `json:"credits"`
		}
		var out []balance
		for _, name := range []string{provider.NameCoreSignal, provider.NameLusha, provider.NameProspeo} {
			for _, kind := range []credit.Kind{credit.KindSearch, credit.KindCollect} {
				n, err := engine.Balance(req.Context(), name, kind)
				if err != nil {
					zap.L().Error("balance failed", zap.Error(err))
					writeError(w, http.StatusInternalServerError, "balance failed")
					return
				}
				out = append(out, balance{Provider: name, Kind: string(kind), Credits: n})
			}
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleEngagement(engine *intel.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			ContactID string     `json:"contact_id"`
			At        *time.Time `json:"at,omitempty"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if body.ContactID == "" {
			writeError(w, http.StatusBadRequest, "contact_id is required")
			return
		}
		at := time.Now().UTC()
		if body.At != nil {
			at = body.At.UTC()
		}

		if err := engine.RecordEngagement(req.Context(), body.ContactID, at); err != nil {
			zap.L().Error("engagement failed", zap.String("contact_id", body.ContactID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "engagement failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"contact_id": body.ContactID, "at": at})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
