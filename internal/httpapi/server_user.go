package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type profileDTO struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func (s server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromCtx(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	ctx, cancel := handlerTimeout(r, 5*time.Second)
	defer cancel()

	var dto profileDTO
	err := s.db.QueryRow(ctx, `
		select email, first_name, last_name from users where id = $1
	`, userID).Scan(&dto.Email, &dto.FirstName, &dto.LastName)
	if errors.Is(err, pgx.ErrNoRows) {
		// First sight of this subject: an empty profile, not an error.
		dto = profileDTO{Email: userEmailFromCtx(r.Context())}
	} else if err != nil {
		s.logError(ctx, "get profile failed", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	dto.ID = userID.String()
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "user": dto})
}

type updateProfileRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func (s server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromCtx(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req updateProfileRequest
	if !readJSONLimited(w, r, &req, 16*1024) {
		return
	}
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	if len(req.FirstName) > 100 || len(req.LastName) > 100 {
		writeError(w, http.StatusBadRequest, "name too long")
		return
	}

	ctx, cancel := handlerTimeout(r, 5*time.Second)
	defer cancel()

	var dto profileDTO
	err := s.db.QueryRow(ctx, `
		insert into users (id, email, first_name, last_name)
		values ($1, $2, $3, $4)
		on conflict (id) do update
		set first_name = excluded.first_name,
		    last_name = excluded.last_name,
		    updated_at = now()
		returning email, first_name, last_name
	`, userID, userEmailFromCtx(r.Context()), req.FirstName, req.LastName).Scan(&dto.Email, &dto.FirstName, &dto.LastName)
	if err != nil {
		s.logError(ctx, "update profile failed", err)
		writeError(w, http.StatusInternalServerError, "update failed")
		return
	}
	dto.ID = userID.String()
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "user": dto})
}

type onboardingRequest struct {
	HeardAbout  string `json:"heard_about"`
	MainProblem string `json:"main_problem"`
}

type onboardingDTO struct {
	HeardAbout  string `json:"heard_about"`
	MainProblem string `json:"main_problem"`
	CreatedAt   string `json:"created_at"`
}

// handleSubmitOnboarding records the one-time onboarding survey. A second
// submission for the same user is a conflict, detected via the unique
// constraint rather than a read-then-write race.
func (s server) handleSubmitOnboarding(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromCtx(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req onboardingRequest
	if !readJSONLimited(w, r, &req, 16*1024) {
		return
	}
	req.HeardAbout = strings.TrimSpace(req.HeardAbout)
	req.MainProblem = strings.TrimSpace(req.MainProblem)
	if req.HeardAbout == "" || req.MainProblem == "" {
		writeError(w, http.StatusBadRequest, "heard_about and main_problem are required")
		return
	}
	if len(req.HeardAbout) > 1000 || len(req.MainProblem) > 1000 {
		writeError(w, http.StatusBadRequest, "answer too long")
		return
	}

	ctx, cancel := handlerTimeout(r, 5*time.Second)
	defer cancel()

	if err := s.ensureUser(ctx, userID, userEmailFromCtx(r.Context())); err != nil {
		s.logError(ctx, "ensure user failed", err)
		writeError(w, http.StatusInternalServerError, "submit failed")
		return
	}

	var createdAt time.Time
	err := s.db.QueryRow(ctx, `
		insert into user_onboarding (user_id, heard_about, main_problem)
		values ($1, $2, $3)
		returning created_at
	`, userID, req.HeardAbout, req.MainProblem).Scan(&createdAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			writeError(w, http.StatusConflict, "onboarding already submitted")
			return
		}
		s.logError(ctx, "insert onboarding failed", err)
		writeError(w, http.StatusInternalServerError, "submit failed")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"onboarding": onboardingDTO{
			HeardAbout:  req.HeardAbout,
			MainProblem: req.MainProblem,
			CreatedAt:   createdAt.UTC().Format(time.RFC3339),
		},
	})
}
