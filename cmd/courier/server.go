package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"courier/internal/changefeed"
	"courier/internal/constants"
	apperrors "courier/internal/errors"
	"courier/internal/httputil"
	"courier/internal/middleware"
	"courier/internal/models"
	"courier/internal/ratelimit"
	"courier/internal/service"
	"courier/internal/versioning"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

const defaultListLimit = 50

// RuleStore is the reminder rule persistence the HTTP layer needs.
// *database.Database satisfies it.
type RuleStore interface {
	GetReminderRule(ctx context.Context, userID string, defaultEscalationDays int) (*models.ReminderRule, error)
	UpsertReminderRule(ctx context.Context, rule *models.ReminderRule) error
}

type Server struct {
	cfg        *models.Config
	dispatcher *service.Dispatcher
	reminders  *service.ReminderEngine
	rules      RuleStore
	feed       *changefeed.Feed
	logger     *logrus.Logger
	authTokens map[string]string
	httpGuard  *ratelimit.Limiter
	httpServer *http.Server
}

func NewServer(cfg *models.Config, dispatcher *service.Dispatcher, reminders *service.ReminderEngine, rules RuleStore, feed *changefeed.Feed, authTokens map[string]string, logger *logrus.Logger) *Server {
	s := &Server{
		cfg:        cfg,
		dispatcher: dispatcher,
		reminders:  reminders,
		rules:      rules,
		feed:       feed,
		logger:     logger,
		authTokens: authTokens,
		// Per-client HTTP throttling stays process-local; the shared
		// backend only guards provider sends.
		httpGuard: ratelimit.NewLimiter(ratelimit.NewMemoryStore(), logger),
	}

	router := mux.NewRouter()
	router.Use(middleware.Observability(logger))
	router.Use(s.throttleMiddleware)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(versioning.Middleware(logger))
	api.HandleFunc("/messages/send", s.handleSend()).Methods(http.MethodPost)
	api.HandleFunc("/outbox", s.handleListOutbox()).Methods(http.MethodGet)
	api.HandleFunc("/outbox/{id}", s.handleGetOutbox()).Methods(http.MethodGet)
	api.HandleFunc("/reminders/rule", s.handleGetRule()).Methods(http.MethodGet)
	api.HandleFunc("/reminders/rule", s.handlePutRule()).Methods(http.MethodPut)

	router.HandleFunc("/internal/reminders/run", s.handleRunReminders()).Methods(http.MethodPost)
	router.HandleFunc("/webhook/provider/status", s.handleProviderStatus()).Methods(http.MethodPost)
	router.HandleFunc("/ws/changes", s.handleChanges()).Methods(http.MethodGet)
	router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)
	router.HandleFunc("/metrics", s.handleMetrics()).Methods(http.MethodGet)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSec) * time.Second,
	}

	return s
}

func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("HTTP server listening")
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// throttleMiddleware applies the per-client request budget. The websocket
// endpoint is exempt because a connection is long-lived.
func (s *Server) throttleMiddleware(next http.Handler) http.Handler {
	limit := s.cfg.Server.RequestsPerMinute
	if limit <= 0 {
		limit = constants.DefaultRequestsPerMinute
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ws/changes" || r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		key := "http:" + httputil.ClientIP(r)
		if !s.httpGuard.Allow(r.Context(), key, limit, time.Minute) {
			s.writeError(w, r, apperrors.NewRateLimitedError(limit, 60))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleSend() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := s.authenticate(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		var req models.SendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, r, apperrors.NewValidationError("body", "invalid JSON payload"))
			return
		}

		entry, err := s.dispatcher.Dispatch(r.Context(), userID, &req)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		status := http.StatusCreated
		if entry.Status == models.DeliveryStatusQueued {
			status = http.StatusAccepted
		}
		s.writeJSON(w, status, entry)
	}
}

func (s *Server) handleGetOutbox() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := s.authenticate(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		entry, err := s.dispatcher.GetEntry(r.Context(), userID, mux.Vars(r)["id"])
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, entry)
	}
}

func (s *Server) handleListOutbox() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := s.authenticate(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		limit := defaultListLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 1 {
				s.writeError(w, r, apperrors.NewValidationError("limit", "must be a positive integer"))
				return
			}
			limit = parsed
		}

		entries, err := s.dispatcher.ListEntries(r.Context(), userID, limit)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if entries == nil {
			entries = []*models.OutboxEntry{}
		}
		s.writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
	}
}

func (s *Server) handleGetRule() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := s.authenticate(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		rule, err := s.rules.GetReminderRule(r.Context(), userID, s.cfg.Reminders.DefaultEscalationDays)
		if err != nil {
			s.writeError(w, r, apperrors.Wrap(err, apperrors.ErrCodeDatabaseQuery, "failed to load reminder rule"))
			return
		}
		s.writeJSON(w, http.StatusOK, rule)
	}
}

func (s *Server) handlePutRule() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := s.authenticate(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		var rule models.ReminderRule
		if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
			s.writeError(w, r, apperrors.NewValidationError("body", "invalid JSON payload"))
			return
		}

		// The rule is always owned by the authenticated account.
		rule.UserID = userID
		if rule.EscalationDays < 1 {
			s.writeError(w, r, apperrors.NewValidationError("escalationDays", "must be at least 1"))
			return
		}
		for _, channel := range rule.Channels {
			if _, err := models.ParseChannel(string(channel)); err != nil {
				s.writeError(w, r, apperrors.NewValidationError("channels", err.Error()))
				return
			}
		}

		if err := s.rules.UpsertReminderRule(r.Context(), &rule); err != nil {
			s.writeError(w, r, apperrors.Wrap(err, apperrors.ErrCodePersistence, "failed to save reminder rule"))
			return
		}
		s.writeJSON(w, http.StatusOK, &rule)
	}
}

func (s *Server) handleRunReminders() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.authorizeInternal(r); err != nil {
			s.writeError(w, r, err)
			return
		}

		processed, err := s.reminders.RunSweep(r.Context())
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "processed": processed})
	}
}

type providerStatusPayload struct {
	MessageID    string  `json:"message_id"`
	Status       string  `json:"status"`
	ErrorCode    *string `json:"error_code,omitempty"`
	ErrorDetails *string `json:"error_details,omitempty"`
}

func (s *Server) handleProviderStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := verifySignature(r, s.cfg.Server.WebhookSecret, signatureHeader)
		if err != nil {
			s.logger.WithError(err).WithField("remote_ip", httputil.ClientIP(r)).Warn("Rejected provider status callback")
			s.writeError(w, r, apperrors.NewUnauthorizedError("invalid webhook signature"))
			return
		}

		var payload providerStatusPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			s.writeError(w, r, apperrors.NewValidationError("body", "invalid JSON payload"))
			return
		}

		err = s.dispatcher.RecordProviderStatus(r.Context(), payload.MessageID, models.DeliveryStatus(payload.Status), payload.ErrorCode, payload.ErrorDetails)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= 500 {
		s.logger.WithError(err).WithField("url", r.URL.Path).Error("Request failed")
	}
	s.writeJSON(w, status, map[string]string{"error": apperrors.GetUserMessage(err)})
}
