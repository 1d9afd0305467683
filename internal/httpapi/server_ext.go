package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Programmatic surface authenticated by minted org API keys. A key with
// agent-scope rows sees only those agents; an unscoped key sees the whole
// org. Only active agents are visible either way.

func (s server) handleExtListAgents(w http.ResponseWriter, r *http.Request) {
	keyID, orgID, ok := apiKeyFromCtx(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	ctx, cancel := handlerTimeout(r, 10*time.Second)
	defer cancel()

	rows, err := s.db.Query(ctx, `
		select a.id, a.name, a.description, a.model_provider, a.model_name
		from agents a
		where a.org_id = $1
		  and a.active
		  and (
		    not exists (select 1 from api_key_agents ka where ka.api_key_id = $2)
		    or exists (select 1 from api_key_agents ka where ka.api_key_id = $2 and ka.agent_id = a.id)
		  )
		order by a.name asc
	`, orgID, keyID)
	if err != nil {
		s.logError(ctx, "ext list agents failed", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	defer rows.Close()

	type extAgentDTO struct {
		ID            string `json:"id"`
		Name          string `json:"name"`
		Description   string `json:"description"`
		ModelProvider string `json:"model_provider"`
		ModelName     string `json:"model_name"`
	}
	out := []extAgentDTO{}
	for rows.Next() {
		var (
			id  uuid.UUID
			dto extAgentDTO
		)
		if err := rows.Scan(&id, &dto.Name, &dto.Description, &dto.ModelProvider, &dto.ModelName); err != nil {
			s.logError(ctx, "scan agent failed", err)
			writeError(w, http.StatusInternalServerError, "scan failed")
			return
		}
		dto.ID = id.String()
		out = append(out, dto)
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "agents": out})
}

// handleExtListAgentTools lists the tools an agent can call: every tool of
// every source linked to it.
func (s server) handleExtListAgentTools(w http.ResponseWriter, r *http.Request) {
	keyID, orgID, ok := apiKeyFromCtx(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	agentID, err := uuid.Parse(chi.URLParam(r, "agentID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid agent id")
		return
	}

	ctx, cancel := handlerTimeout(r, 10*time.Second)
	defer cancel()

	var visible bool
	err = s.db.QueryRow(ctx, `
		select true
		from agents a
		where a.id = $1 and a.org_id = $2 and a.active
		  and (
		    not exists (select 1 from api_key_agents ka where ka.api_key_id = $3)
		    or exists (select 1 from api_key_agents ka where ka.api_key_id = $3 and ka.agent_id = a.id)
		  )
	`, agentID, orgID, keyID).Scan(&visible)
	if errors.Is(err, pgx.ErrNoRows) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		s.logError(ctx, "agent visibility check failed", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	rows, err := s.db.Query(ctx, `
		select t.id, t.name, t.method, t.path, t.description, t.parameters, t.fingerprint, l.permission
		from agent_sources l
		join tools t on t.source_id = l.source_id
		where l.agent_id = $1
		order by t.path asc, t.method asc
	`, agentID)
	if err != nil {
		s.logError(ctx, "ext list tools failed", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	defer rows.Close()

	type extToolDTO struct {
		toolDTO
		Permission string `json:"permission"`
	}
	out := []extToolDTO{}
	for rows.Next() {
		var (
			id     uuid.UUID
			dto    extToolDTO
			params []byte
		)
		if err := rows.Scan(&id, &dto.Name, &dto.Method, &dto.Path, &dto.Description, &params, &dto.Fingerprint, &dto.Permission); err != nil {
			s.logError(ctx, "scan tool failed", err)
			writeError(w, http.StatusInternalServerError, "scan failed")
			return
		}
		dto.ID = id.String()
		if len(params) > 0 && string(params) != "null" {
			dto.Parameters = params
		}
		out = append(out, dto)
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "tools": out})
}
