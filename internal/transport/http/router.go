// SPDX-License-Identifier: Apache-2.0

package httptransport

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"userledger/internal/domain"
	"userledger/internal/metrics"
	"userledger/internal/service"
)

type createUserRequest struct {
	EmailAddress string `json:"email_address"`
	Password     string `json:"password"`
}

type updateUserRequest struct {
	EmailAddress  *string `json:"email_address"`
	Password      *string `json:"password"`
	EmailVerified *bool   `json:"email_verified"`
}

type Deps struct {
	Users        UserService
	Health       HealthChecker
	Logger       *slog.Logger
	HistoryLimit int
	Version      string
	Commit       string
	BuildDate    string
}

func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics.Init()
	version := valueOrDefault(deps.Version, "dev")
	commit := valueOrDefault(deps.Commit, "none")
	buildDate := valueOrDefault(deps.BuildDate, "unknown")

	historyLimit := deps.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = 100
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware())
	r.Use(requestLoggingMiddleware(logger))

	// ---------------- HEALTH ----------------

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		logger.Debug("health check hit")
		if deps.Health != nil {
			if err := deps.Health.Check(r.Context()); err != nil {
				logger.Error("health check failed", "error", err)
				http.Error(w, "unhealthy", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// ---------------- METRICS ----------------

	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	// ---------------- VERSION ----------------

	r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"version":    version,
			"commit":     commit,
			"build_date": buildDate,
		})
	})

	// ---------------- CREATE USER ----------------

	r.Post("/users", func(w http.ResponseWriter, r *http.Request) {
		reqBody, err := decodeCreateUserRequest(r)
		if err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		params := service.CreateParams{
			EmailAddress: reqBody.EmailAddress,
		}
		if reqBody.Password != "" {
			params.HashedPassword = hashPassword(reqBody.Password)
		}

		user, err := deps.Users.Create(r.Context(), params)
		if err != nil {
			writeUserError(w, logger, "create user", err)
			return
		}

		logger.Info("user created via API", "user_id", user.ID)
		writeJSON(w, http.StatusCreated, user)
	})

	// ---------------- LIST USERS ----------------

	r.Get("/users", func(w http.ResponseWriter, r *http.Request) {
		users, err := deps.Users.List(r.Context())
		if err != nil {
			logger.Error("list users failed", "error", err)
			http.Error(w, "failed to list users", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"users": users,
		})
	})

	// ---------------- GET USER ----------------

	r.Get("/users/{id}", func(w http.ResponseWriter, r *http.Request) {
		userID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			http.Error(w, "invalid user ID", http.StatusBadRequest)
			return
		}

		user, err := deps.Users.Get(r.Context(), userID)
		if err != nil {
			writeUserError(w, logger, "get user", err)
			return
		}

		writeJSON(w, http.StatusOK, user)
	})

	// ---------------- UPDATE USER ----------------

	r.Patch("/users/{id}", func(w http.ResponseWriter, r *http.Request) {
		userID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			http.Error(w, "invalid user ID", http.StatusBadRequest)
			return
		}

		reqBody, err := decodeUpdateUserRequest(r)
		if err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		params := service.UpdateParams{
			EmailAddress:  reqBody.EmailAddress,
			EmailVerified: reqBody.EmailVerified,
		}
		if reqBody.Password != nil {
			hashed := hashPassword(*reqBody.Password)
			params.HashedPassword = &hashed
		}

		user, err := deps.Users.Update(r.Context(), userID, params)
		if err != nil {
			writeUserError(w, logger, "update user", err)
			return
		}

		writeJSON(w, http.StatusOK, user)
	})

	// ---------------- SCHEDULE REMOVAL ----------------

	r.Delete("/users/{id}", func(w http.ResponseWriter, r *http.Request) {
		userID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			http.Error(w, "invalid user ID", http.StatusBadRequest)
			return
		}

		if _, err := deps.Users.ScheduleRemoval(r.Context(), userID); err != nil {
			writeUserError(w, logger, "schedule removal", err)
			return
		}

		logger.Info("user removal scheduled via API", "user_id", userID)
		w.WriteHeader(http.StatusNoContent)
	})

	// ---------------- CHANGE HISTORY ----------------

	r.Get("/users/{id}/history", func(w http.ResponseWriter, r *http.Request) {
		userID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			http.Error(w, "invalid user ID", http.StatusBadRequest)
			return
		}

		limit := historyLimit
		if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			limit = parsed
		}

		events, err := deps.Users.History(r.Context(), userID, limit)
		if err != nil {
			logger.Error("read history failed", "user_id", userID, "error", err)
			http.Error(w, "failed to read history", http.StatusInternalServerError)
			return
		}
		if events == nil {
			events = []domain.RecordedEvent{}
		}

		writeJSON(w, http.StatusOK, struct {
			UserID string                 `json:"user_id"`
			Events []domain.RecordedEvent `json:"events"`
		}{
			UserID: userID.String(),
			Events: events,
		})
	})

	return r
}

func writeUserError(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidEmail):
		http.Error(w, "invalid email address", http.StatusBadRequest)
	case errors.Is(err, domain.ErrMissingPassword):
		http.Error(w, "missing password", http.StatusBadRequest)
	case errors.Is(err, domain.ErrEmailTaken):
		http.Error(w, "email address already in use", http.StatusConflict)
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, "user not found", http.StatusNotFound)
	default:
		logger.Error(op+" failed", "error", err)
		http.Error(w, "failed to "+op, http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func hashPassword(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:])
}

func decodeCreateUserRequest(r *http.Request) (createUserRequest, error) {
	if r == nil || r.Body == nil || r.Body == http.NoBody {
		return createUserRequest{}, nil
	}

	var req createUserRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return createUserRequest{}, nil
		}
		return createUserRequest{}, err
	}

	// Ensure there is only one JSON object.
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return createUserRequest{}, errors.New("request body must contain exactly one JSON object")
	}

	req.EmailAddress = strings.TrimSpace(req.EmailAddress)
	return req, nil
}

func decodeUpdateUserRequest(r *http.Request) (updateUserRequest, error) {
	if r == nil || r.Body == nil || r.Body == http.NoBody {
		return updateUserRequest{}, nil
	}

	var req updateUserRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return updateUserRequest{}, nil
		}
		return updateUserRequest{}, err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return updateUserRequest{}, errors.New("request body must contain exactly one JSON object")
	}

	return req, nil
}

func valueOrDefault(value, defaultValue string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return defaultValue
	}
	return trimmed
}
