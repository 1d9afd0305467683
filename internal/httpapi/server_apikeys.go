package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"actionchat/internal/authz"
	"actionchat/internal/keys"
)

type createAPIKeyRequest struct {
	Name      string   `json:"name"`
	AgentIDs  []string `json:"agent_ids"`
	ExpiresAt string   `json:"expires_at"`
}

type apiKeyDTO struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	KeyPrefix string   `json:"key_prefix"`
	Active    bool     `json:"active"`
	AgentIDs  []string `json:"agent_ids,omitempty"`
	ExpiresAt string   `json:"expires_at,omitempty"`
	CreatedAt string   `json:"created_at"`
}

func (s server) handleListAPIKeys(w http.ResponseWriter, r *http.Request) {
	_, orgID, _, ok := s.orgScope(w, r, authz.RequireAdmin)
	if !ok {
		return
	}

	ctx, cancel := handlerTimeout(r, 10*time.Second)
	defer cancel()

	rows, err := s.db.Query(ctx, `
		select k.id, k.name, k.key_prefix, k.active, k.expires_at, k.created_at,
		       coalesce(array_agg(ka.agent_id) filter (where ka.agent_id is not null), '{}'::uuid[])
		from api_keys k
		left join api_key_agents ka on ka.api_key_id = k.id
		where k.org_id = $1
		group by k.id
		order by k.created_at desc
	`, orgID)
	if err != nil {
		s.logError(ctx, "list api keys failed", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	defer rows.Close()

	out := []apiKeyDTO{}
	for rows.Next() {
		var (
			id        uuid.UUID
			name      string
			prefix    string
			active    bool
			expiresAt *time.Time
			createdAt time.Time
			agentIDs  []uuid.UUID
		)
		if err := rows.Scan(&id, &name, &prefix, &active, &expiresAt, &createdAt, &agentIDs); err != nil {
			s.logError(ctx, "scan api key failed", err)
			writeError(w, http.StatusInternalServerError, "scan failed")
			return
		}
		dto := apiKeyDTO{
			ID:        id.String(),
			Name:      name,
			KeyPrefix: prefix + "...",
			Active:    active,
			CreatedAt: createdAt.UTC().Format(time.RFC3339),
		}
		if expiresAt != nil {
			dto.ExpiresAt = expiresAt.UTC().Format(time.RFC3339)
		}
		for _, a := range agentIDs {
			dto.AgentIDs = append(dto.AgentIDs, a.String())
		}
		out = append(out, dto)
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "keys": out})
}

func (s server) handleCreateAPIKey(w http.ResponseWriter, r *http.Request) {
	userID, orgID, _, ok := s.orgScope(w, r, authz.RequireAdmin)
	if !ok {
		return
	}

	var req createAPIKeyRequest
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
	var expiresAt *time.Time
	if strings.TrimSpace(req.ExpiresAt) != "" {
		t, err := time.Parse(time.RFC3339, strings.TrimSpace(req.ExpiresAt))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid expires_at")
			return
		}
		if !t.After(time.Now()) {
			writeError(w, http.StatusBadRequest, "expires_at must be in the future")
			return
		}
		expiresAt = &t
	}
	agentIDs := make([]uuid.UUID, 0, len(req.AgentIDs))
	for _, a := range req.AgentIDs {
		id, err := uuid.Parse(strings.TrimSpace(a))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid agent id")
			return
		}
		agentIDs = append(agentIDs, id)
	}

	raw, err := keys.NewAPIKey()
	if err != nil {
		s.logError(r.Context(), "key generation failed", err)
		writeError(w, http.StatusInternalServerError, "key generation failed")
		return
	}
	hash := keys.HashAPIKey(raw)
	prefix := keys.DisplayPrefix(raw)

	ctx, cancel := handlerTimeout(r, 10*time.Second)
	defer cancel()

	tx, err := s.db.Begin(ctx)
	if err != nil {
		s.logError(ctx, "db begin failed", err)
		writeError(w, http.StatusInternalServerError, "create key failed")
		return
	}
	defer tx.Rollback(ctx)

	var keyID uuid.UUID
	var createdAt time.Time
	if err := tx.QueryRow(ctx, `
		insert into api_keys (org_id, name, key_hash, key_prefix, active, expires_at)
		values ($1, $2, $3, $4, true, $5)
		returning id, created_at
	`, orgID, req.Name, hash, prefix, expiresAt).Scan(&keyID, &createdAt); err != nil {
		s.logError(ctx, "insert api key failed", err)
		writeError(w, http.StatusInternalServerError, "create key failed")
		return
	}

	// Agent scoping rows must reference agents of the same org; a key with no
	// rows covers the whole org.
	for _, agentID := range agentIDs {
		tag, err := tx.Exec(ctx, `
			insert into api_key_agents (api_key_id, agent_id)
			select $1, id from agents where id = $2 and org_id = $3
		`, keyID, agentID, orgID)
		if err != nil {
			s.logError(ctx, "insert api key agent scope failed", err)
			writeError(w, http.StatusInternalServerError, "create key failed")
			return
		}
		if tag.RowsAffected() == 0 {
			writeError(w, http.StatusBadRequest, "agent not found in this organization")
			return
		}
	}

	if err := tx.Commit(ctx); err != nil {
		s.logError(ctx, "commit failed", err)
		writeError(w, http.StatusInternalServerError, "create key failed")
		return
	}

	dto := apiKeyDTO{
		ID:        keyID.String(),
		Name:      req.Name,
		KeyPrefix: prefix + "...",
		Active:    true,
		CreatedAt: createdAt.UTC().Format(time.RFC3339),
	}
	if expiresAt != nil {
		dto.ExpiresAt = expiresAt.UTC().Format(time.RFC3339)
	}
	for _, a := range agentIDs {
		dto.AgentIDs = append(dto.AgentIDs, a.String())
	}

	s.audit(ctx, orgID, userID, "api_key_created", map[string]any{"key_id": keyID.String()})
	// raw_key is returned exactly once, here. Only the hash is stored.
	writeJSON(w, http.StatusCreated, map[string]any{"ok": true, "key": dto, "raw_key": raw})
}

func (s server) handleRevokeAPIKey(w http.ResponseWriter, r *http.Request) {
	userID, orgID, _, ok := s.orgScope(w, r, authz.RequireAdmin)
	if !ok {
		return
	}
	keyID, err := uuid.Parse(chi.URLParam(r, "keyID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid key id")
		return
	}

	ctx, cancel := handlerTimeout(r, 5*time.Second)
	defer cancel()

	tag, err := s.db.Exec(ctx, `
		update api_keys set active = false
		where id = $1 and org_id = $2
	`, keyID, orgID)
	if err != nil {
		s.logError(ctx, "revoke api key failed", err)
		writeError(w, http.StatusInternalServerError, "revoke failed")
		return
	}
	if tag.RowsAffected() == 0 {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	s.audit(ctx, orgID, userID, "api_key_revoked", map[string]any{"key_id": keyID.String()})
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
