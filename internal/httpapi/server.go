package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"actionchat/internal/authz"
	"actionchat/internal/specstore"
)

type server struct {
	db  *pgxpool.Pool
	log zerolog.Logger

	sessionSecret []byte

	specs          specstore.Store
	uploadIssuer   specstore.CredentialIssuer
	uploadDuration int
}

const orgCookieName = "org_id"

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeErrorDetails(w http.ResponseWriter, status int, msg, details string) {
	writeJSON(w, status, map[string]string{"error": msg, "details": details})
}

func readJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func readJSONLimited(w http.ResponseWriter, r *http.Request, dst any, maxBytes int64) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := readJSON(r, dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}

// clampTemperature limits an LLM sampling temperature to [0, 2]. Clamping is
// idempotent: values already in range pass through unchanged.
func clampTemperature(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 2 {
		return 2
	}
	return v
}

// FindRole implements authz.MembershipFinder against org_members.
func (s server) FindRole(ctx context.Context, userID, orgID uuid.UUID) (authz.Role, bool, error) {
	var role string
	err := s.db.QueryRow(ctx, `
		select role from org_members
		where user_id = $1 and org_id = $2
	`, userID, orgID).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return authz.Role(role), true, nil
}

// resolveOrg picks the org to scope the request to. A valid org_id cookie
// hint wins when the caller is a member of that org; otherwise the caller's
// earliest membership is used. A caller with no memberships resolves to the
// zero org id with zero capabilities, which every guard then rejects.
func (s server) resolveOrg(ctx context.Context, r *http.Request, userID uuid.UUID) (uuid.UUID, authz.Capabilities, error) {
	if c, err := r.Cookie(orgCookieName); err == nil {
		if hint, err := uuid.Parse(c.Value); err == nil {
			caps, err := authz.Evaluate(ctx, s, userID, hint)
			if err != nil {
				return uuid.Nil, authz.Capabilities{}, err
			}
			if caps.IsMember() {
				return hint, caps, nil
			}
		}
	}

	var orgID uuid.UUID
	var role string
	err := s.db.QueryRow(ctx, `
		select org_id, role from org_members
		where user_id = $1
		order by created_at asc
		limit 1
	`, userID).Scan(&orgID, &role)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, authz.Capabilities{}, nil
	}
	if err != nil {
		return uuid.Nil, authz.Capabilities{}, err
	}
	return orgID, authz.CapabilitiesForRole(authz.Role(role)), nil
}

// orgScope authenticates the request's org context and applies guard. It
// writes the error response and returns ok=false when the request must not
// proceed; handlers touch the data layer only after a true return.
func (s server) orgScope(w http.ResponseWriter, r *http.Request, guard func(authz.Capabilities) error) (userID, orgID uuid.UUID, caps authz.Capabilities, ok bool) {
	userID, authed := userIDFromCtx(r.Context())
	if !authed {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return uuid.Nil, uuid.Nil, authz.Capabilities{}, false
	}
	orgID, caps, err := s.resolveOrg(r.Context(), r, userID)
	if err != nil {
		s.logError(r.Context(), "org resolution failed", err)
		writeError(w, http.StatusInternalServerError, "org resolution failed")
		return uuid.Nil, uuid.Nil, authz.Capabilities{}, false
	}
	if err := guard(caps); err != nil {
		writeError(w, http.StatusForbidden, err.Error())
		return uuid.Nil, uuid.Nil, authz.Capabilities{}, false
	}
	return userID, orgID, caps, true
}

func setOrgCookie(w http.ResponseWriter, orgID uuid.UUID) {
	http.SetCookie(w, &http.Cookie{
		Name:     orgCookieName,
		Value:    orgID.String(),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// audit records an org-scoped action. Best-effort: an audit failure never
// fails the request.
func (s server) audit(ctx context.Context, orgID, actorID uuid.UUID, action string, data map[string]any) {
	if _, err := s.db.Exec(ctx, `
		insert into audit_logs (org_id, actor_id, action, data)
		values ($1, $2, $3, $4)
	`, orgID, actorID, action, data); err != nil {
		s.logWarn(ctx, "audit insert failed", err)
	}
}

func (s server) ensureUser(ctx context.Context, userID uuid.UUID, email string) error {
	_, err := s.db.Exec(ctx, `
		insert into users (id, email) values ($1, $2)
		on conflict (id) do nothing
	`, userID, email)
	return err
}

func handlerTimeout(r *http.Request, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), d)
}
