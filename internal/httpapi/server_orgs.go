package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"actionchat/internal/authz"
)

type createOrgRequest struct {
	Name string `json:"name"`
}

type orgDTO struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	Role                string `json:"role"`
	OnboardingCompleted bool   `json:"onboarding_completed"`
}

func (s server) handleCreateOrg(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromCtx(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req createOrgRequest
	if !readJSONLimited(w, r, &req, 16*1024) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "missing name")
		return
	}
	if len(req.Name) > 128 {
		writeError(w, http.StatusBadRequest, "name too long")
		return
	}

	ctx, cancel := handlerTimeout(r, 10*time.Second)
	defer cancel()

	if err := s.ensureUser(ctx, userID, userEmailFromCtx(r.Context())); err != nil {
		s.logError(ctx, "ensure user failed", err)
		writeError(w, http.StatusInternalServerError, "create org failed")
		return
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		s.logError(ctx, "db begin failed", err)
		writeError(w, http.StatusInternalServerError, "create org failed")
		return
	}
	defer tx.Rollback(ctx)

	var orgID uuid.UUID
	if err := tx.QueryRow(ctx, `
		insert into orgs (name, settings) values ($1, '{}'::jsonb)
		returning id
	`, req.Name).Scan(&orgID); err != nil {
		s.logError(ctx, "insert org failed", err)
		writeError(w, http.StatusInternalServerError, "create org failed")
		return
	}
	if _, err := tx.Exec(ctx, `
		insert into org_members (user_id, org_id, role) values ($1, $2, $3)
	`, userID, orgID, string(authz.RoleOwner)); err != nil {
		s.logError(ctx, "insert owner membership failed", err)
		writeError(w, http.StatusInternalServerError, "create org failed")
		return
	}
	if err := tx.Commit(ctx); err != nil {
		s.logError(ctx, "commit failed", err)
		writeError(w, http.StatusInternalServerError, "create org failed")
		return
	}

	setOrgCookie(w, orgID)
	s.audit(ctx, orgID, userID, "org_created", map[string]any{"name": req.Name})
	writeJSON(w, http.StatusCreated, map[string]any{
		"ok": true,
		"org": orgDTO{
			ID:   orgID.String(),
			Name: req.Name,
			Role: string(authz.RoleOwner),
		},
	})
}

func (s server) handleListOrgs(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromCtx(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	ctx, cancel := handlerTimeout(r, 5*time.Second)
	defer cancel()

	rows, err := s.db.Query(ctx, `
		select o.id, o.name, m.role, o.onboarding_completed
		from org_members m
		join orgs o on o.id = m.org_id
		where m.user_id = $1
		order by m.created_at asc
	`, userID)
	if err != nil {
		s.logError(ctx, "list orgs failed", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	defer rows.Close()

	out := []orgDTO{}
	for rows.Next() {
		var (
			id        uuid.UUID
			name      string
			role      string
			onboarded bool
		)
		if err := rows.Scan(&id, &name, &role, &onboarded); err != nil {
			s.logError(ctx, "scan org failed", err)
			writeError(w, http.StatusInternalServerError, "scan failed")
			return
		}
		out = append(out, orgDTO{ID: id.String(), Name: name, Role: role, OnboardingCompleted: onboarded})
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "orgs": out})
}

type selectOrgRequest struct {
	OrgID string `json:"org_id"`
}

func (s server) handleSelectOrg(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromCtx(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req selectOrgRequest
	if !readJSONLimited(w, r, &req, 4*1024) {
		return
	}
	orgID, err := uuid.Parse(strings.TrimSpace(req.OrgID))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid org id")
		return
	}

	ctx, cancel := handlerTimeout(r, 5*time.Second)
	defer cancel()

	caps, err := authz.Evaluate(ctx, s, userID, orgID)
	if err != nil {
		s.logError(ctx, "membership lookup failed", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if err := authz.RequireMember(caps); err != nil {
		writeError(w, http.StatusForbidden, err.Error())
		return
	}

	setOrgCookie(w, orgID)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "role": string(caps.Role())})
}

type upsertMemberRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// demotesLastOwner reports whether assigning newRole to the target would
// leave the org without any owner.
func demotesLastOwner(newRole authz.Role, targetIsOwner bool, otherOwners int) bool {
	if newRole == authz.RoleOwner {
		return false
	}
	return targetIsOwner && otherOwners == 0
}

func (s server) handleUpsertOrgMember(w http.ResponseWriter, r *http.Request) {
	actorID, orgID, caps, ok := s.orgScope(w, r, authz.RequireAdmin)
	if !ok {
		return
	}

	var req upsertMemberRequest
	if !readJSONLimited(w, r, &req, 4*1024) {
		return
	}
	targetID, err := uuid.Parse(strings.TrimSpace(req.UserID))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	role := authz.Role(strings.TrimSpace(req.Role))
	if !role.Valid() {
		writeError(w, http.StatusBadRequest, "invalid role")
		return
	}
	// Granting ownership is reserved for owners.
	if role == authz.RoleOwner && !caps.IsOwner() {
		writeError(w, http.StatusForbidden, authz.ErrNotAdmin.Error())
		return
	}

	ctx, cancel := handlerTimeout(r, 10*time.Second)
	defer cancel()

	var exists bool
	err = s.db.QueryRow(ctx, `select true from users where id = $1`, targetID).Scan(&exists)
	if errors.Is(err, pgx.ErrNoRows) {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		s.logError(ctx, "user lookup failed", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	if role != authz.RoleOwner {
		// An org must always keep at least one owner.
		var otherOwners int
		if err := s.db.QueryRow(ctx, `
			select count(*) from org_members
			where org_id = $1 and role = 'owner' and user_id <> $2
		`, orgID, targetID).Scan(&otherOwners); err != nil {
			s.logError(ctx, "owner count failed", err)
			writeError(w, http.StatusInternalServerError, "query failed")
			return
		}
		var targetIsOwner bool
		err = s.db.QueryRow(ctx, `
			select true from org_members where org_id = $1 and user_id = $2 and role = 'owner'
		`, orgID, targetID).Scan(&targetIsOwner)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			s.logError(ctx, "owner lookup failed", err)
			writeError(w, http.StatusInternalServerError, "query failed")
			return
		}
		if demotesLastOwner(role, targetIsOwner, otherOwners) {
			writeError(w, http.StatusConflict, "cannot demote the last owner")
			return
		}
	}

	if _, err := s.db.Exec(ctx, `
		insert into org_members (user_id, org_id, role)
		values ($1, $2, $3)
		on conflict (user_id, org_id) do update set role = excluded.role
	`, targetID, orgID, string(role)); err != nil {
		s.logError(ctx, "upsert membership failed", err)
		writeError(w, http.StatusInternalServerError, "update failed")
		return
	}

	s.audit(ctx, orgID, actorID, "member_upserted", map[string]any{
		"user_id": targetID.String(),
		"role":    string(role),
	})
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
