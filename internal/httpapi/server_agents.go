package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"actionchat/internal/authz"
)

var modelProviders = map[string]struct{}{
	"openai":    {},
	"anthropic": {},
	"ollama":    {},
}

const (
	defaultModelProvider = "openai"
	defaultTemperature   = 0.7
)

type sourceLinkInput struct {
	SourceID   string `json:"source_id"`
	Permission string `json:"permission"`
}

type createAgentRequest struct {
	Name          string            `json:"name"`
	Description   string            `json:"description"`
	SystemPrompt  string            `json:"system_prompt"`
	ModelProvider string            `json:"model_provider"`
	ModelName     string            `json:"model_name"`
	Temperature   *float64          `json:"temperature"`
	SourceLinks   []sourceLinkInput `json:"source_links"`
}

type agentDTO struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Description   string  `json:"description"`
	SystemPrompt  string  `json:"system_prompt,omitempty"`
	ModelProvider string  `json:"model_provider"`
	ModelName     string  `json:"model_name"`
	Temperature   float64 `json:"temperature"`
	Active        bool    `json:"active"`
	SourcesCount  int     `json:"sources_count"`
	CreatedAt     string  `json:"created_at"`
}

func validLinkPermission(p string) bool {
	return p == "read" || p == "write"
}

func (s server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	_, orgID, _, ok := s.orgScope(w, r, authz.RequireMember)
	if !ok {
		return
	}

	ctx, cancel := handlerTimeout(r, 10*time.Second)
	defer cancel()

	rows, err := s.db.Query(ctx, `
		select a.id, a.name, a.description, a.model_provider, a.model_name,
		       a.temperature, a.active, a.created_at,
		       count(l.source_id) as sources_count
		from agents a
		left join agent_sources l on l.agent_id = a.id
		where a.org_id = $1
		group by a.id
		order by a.created_at desc
	`, orgID)
	if err != nil {
		s.logError(ctx, "list agents failed", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	defer rows.Close()

	out := []agentDTO{}
	for rows.Next() {
		var (
			id           uuid.UUID
			name         string
			description  string
			provider     string
			modelName    string
			temperature  float64
			active       bool
			createdAt    time.Time
			sourcesCount int
		)
		if err := rows.Scan(&id, &name, &description, &provider, &modelName, &temperature, &active, &createdAt, &sourcesCount); err != nil {
			s.logError(ctx, "scan agent failed", err)
			writeError(w, http.StatusInternalServerError, "scan failed")
			return
		}
		out = append(out, agentDTO{
			ID:            id.String(),
			Name:          name,
			Description:   description,
			ModelProvider: provider,
			ModelName:     modelName,
			Temperature:   temperature,
			Active:        active,
			SourcesCount:  sourcesCount,
			CreatedAt:     createdAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "agents": out})
}

func (s server) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	userID, orgID, _, ok := s.orgScope(w, r, authz.RequireAdmin)
	if !ok {
		return
	}

	var req createAgentRequest
	if !readJSONLimited(w, r, &req, 128*1024) {
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
	if len(req.Description) > 1024 {
		writeError(w, http.StatusBadRequest, "description too long")
		return
	}
	if len(req.SystemPrompt) > 16_000 {
		writeError(w, http.StatusBadRequest, "system prompt too long")
		return
	}
	provider := strings.TrimSpace(req.ModelProvider)
	if provider == "" {
		provider = defaultModelProvider
	}
	if _, okp := modelProviders[provider]; !okp {
		writeError(w, http.StatusBadRequest, "invalid model provider")
		return
	}
	temperature := defaultTemperature
	if req.Temperature != nil {
		temperature = clampTemperature(*req.Temperature)
	}
	for _, l := range req.SourceLinks {
		if !validLinkPermission(l.Permission) {
			writeError(w, http.StatusBadRequest, "invalid source link permission")
			return
		}
		if _, err := uuid.Parse(l.SourceID); err != nil {
			writeError(w, http.StatusBadRequest, "invalid source id")
			return
		}
	}

	ctx, cancel := handlerTimeout(r, 10*time.Second)
	defer cancel()

	var agentID uuid.UUID
	var createdAt time.Time
	if err := s.db.QueryRow(ctx, `
		insert into agents (org_id, name, description, system_prompt, model_provider, model_name, temperature, active)
		values ($1, $2, $3, $4, $5, $6, $7, true)
		returning id, created_at
	`, orgID, req.Name, req.Description, req.SystemPrompt, provider, strings.TrimSpace(req.ModelName), temperature).Scan(&agentID, &createdAt); err != nil {
		s.logError(ctx, "insert agent failed", err)
		writeError(w, http.StatusInternalServerError, "create agent failed")
		return
	}

	// Source links are best-effort: a failing link does not roll back the
	// agent; the response reports the reduced linked count.
	linked := 0
	for _, l := range req.SourceLinks {
		sourceID, _ := uuid.Parse(l.SourceID)
		tag, err := s.db.Exec(ctx, `
			insert into agent_sources (agent_id, source_id, permission)
			select $1, id, $3 from sources where id = $2 and org_id = $4
			on conflict do nothing
		`, agentID, sourceID, l.Permission, orgID)
		if err != nil {
			s.logWarn(ctx, "link source to agent failed", err)
			continue
		}
		if tag.RowsAffected() > 0 {
			linked++
		}
	}

	s.audit(ctx, orgID, userID, "agent_created", map[string]any{"agent_id": agentID.String()})
	writeJSON(w, http.StatusCreated, map[string]any{
		"ok": true,
		"agent": agentDTO{
			ID:            agentID.String(),
			Name:          req.Name,
			Description:   req.Description,
			SystemPrompt:  req.SystemPrompt,
			ModelProvider: provider,
			ModelName:     strings.TrimSpace(req.ModelName),
			Temperature:   temperature,
			Active:        true,
			SourcesCount:  linked,
			CreatedAt:     createdAt.UTC().Format(time.RFC3339),
		},
		"sources_linked": linked,
	})
}

func (s server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	_, orgID, _, ok := s.orgScope(w, r, authz.RequireMember)
	if !ok {
		return
	}
	agentID, err := uuid.Parse(chi.URLParam(r, "agentID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid agent id")
		return
	}

	ctx, cancel := handlerTimeout(r, 5*time.Second)
	defer cancel()

	var dto agentDTO
	var id uuid.UUID
	var createdAt time.Time
	err = s.db.QueryRow(ctx, `
		select id, name, description, system_prompt, model_provider, model_name, temperature, active, created_at
		from agents
		where id = $1 and org_id = $2
	`, agentID, orgID).Scan(&id, &dto.Name, &dto.Description, &dto.SystemPrompt,
		&dto.ModelProvider, &dto.ModelName, &dto.Temperature, &dto.Active, &createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		s.logError(ctx, "get agent failed", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	dto.ID = id.String()
	dto.CreatedAt = createdAt.UTC().Format(time.RFC3339)

	links, err := s.listAgentSourceLinks(ctx, agentID)
	if err != nil {
		s.logError(ctx, "list agent sources failed", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	dto.SourcesCount = len(links)

	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "agent": dto, "sources": links})
}

type agentSourceLinkDTO struct {
	SourceID   string `json:"source_id"`
	SourceName string `json:"source_name"`
	Permission string `json:"permission"`
}

func (s server) listAgentSourceLinks(ctx context.Context, agentID uuid.UUID) ([]agentSourceLinkDTO, error) {
	rows, err := s.db.Query(ctx, `
		select l.source_id, src.name, l.permission
		from agent_sources l
		join sources src on src.id = l.source_id
		where l.agent_id = $1
		order by src.name asc
	`, agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []agentSourceLinkDTO{}
	for rows.Next() {
		var (
			sourceID   uuid.UUID
			name       string
			permission string
		)
		if err := rows.Scan(&sourceID, &name, &permission); err != nil {
			return nil, err
		}
		out = append(out, agentSourceLinkDTO{SourceID: sourceID.String(), SourceName: name, Permission: permission})
	}
	return out, nil
}

type updateAgentRequest struct {
	Name          *string  `json:"name"`
	Description   *string  `json:"description"`
	SystemPrompt  *string  `json:"system_prompt"`
	ModelProvider *string  `json:"model_provider"`
	ModelName     *string  `json:"model_name"`
	Temperature   *float64 `json:"temperature"`
	Active        *bool    `json:"active"`
}

func (s server) handleUpdateAgent(w http.ResponseWriter, r *http.Request) {
	userID, orgID, _, ok := s.orgScope(w, r, authz.RequireAdmin)
	if !ok {
		return
	}
	agentID, err := uuid.Parse(chi.URLParam(r, "agentID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid agent id")
		return
	}
	var req updateAgentRequest
	if !readJSONLimited(w, r, &req, 128*1024) {
		return
	}

	set := make([]string, 0, 7)
	args := make([]any, 0, 9)
	argN := 1
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" || len(name) > 128 {
			writeError(w, http.StatusBadRequest, "invalid name")
			return
		}
		set = append(set, "name = $"+strconv.Itoa(argN))
		args = append(args, name)
		argN++
	}
	if req.Description != nil {
		if len(*req.Description) > 1024 {
			writeError(w, http.StatusBadRequest, "description too long")
			return
		}
		set = append(set, "description = $"+strconv.Itoa(argN))
		args = append(args, *req.Description)
		argN++
	}
	if req.SystemPrompt != nil {
		if len(*req.SystemPrompt) > 16_000 {
			writeError(w, http.StatusBadRequest, "system prompt too long")
			return
		}
		set = append(set, "system_prompt = $"+strconv.Itoa(argN))
		args = append(args, *req.SystemPrompt)
		argN++
	}
	if req.ModelProvider != nil {
		provider := strings.TrimSpace(*req.ModelProvider)
		if _, okp := modelProviders[provider]; !okp {
			writeError(w, http.StatusBadRequest, "invalid model provider")
			return
		}
		set = append(set, "model_provider = $"+strconv.Itoa(argN))
		args = append(args, provider)
		argN++
	}
	if req.ModelName != nil {
		set = append(set, "model_name = $"+strconv.Itoa(argN))
		args = append(args, strings.TrimSpace(*req.ModelName))
		argN++
	}
	if req.Temperature != nil {
		set = append(set, "temperature = $"+strconv.Itoa(argN))
		args = append(args, clampTemperature(*req.Temperature))
		argN++
	}
	if req.Active != nil {
		set = append(set, "active = $"+strconv.Itoa(argN))
		args = append(args, *req.Active)
		argN++
	}
	if len(set) == 0 {
		writeError(w, http.StatusBadRequest, "no fields")
		return
	}
	set = append(set, "updated_at = now()")
	args = append(args, agentID, orgID)

	ctx, cancel := handlerTimeout(r, 5*time.Second)
	defer cancel()

	q := "update agents set " + strings.Join(set, ", ") +
		" where id = $" + strconv.Itoa(argN) + " and org_id = $" + strconv.Itoa(argN+1)
	tag, err := s.db.Exec(ctx, q, args...)
	if err != nil {
		s.logError(ctx, "update agent failed", err)
		writeError(w, http.StatusInternalServerError, "update failed")
		return
	}
	if tag.RowsAffected() == 0 {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	s.audit(ctx, orgID, userID, "agent_updated", map[string]any{"agent_id": agentID.String()})
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s server) handleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	userID, orgID, _, ok := s.orgScope(w, r, authz.RequireAdmin)
	if !ok {
		return
	}
	agentID, err := uuid.Parse(chi.URLParam(r, "agentID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid agent id")
		return
	}

	ctx, cancel := handlerTimeout(r, 10*time.Second)
	defer cancel()

	tag, err := s.db.Exec(ctx, `delete from agents where id = $1 and org_id = $2`, agentID, orgID)
	if err != nil {
		s.logError(ctx, "delete agent failed", err)
		writeError(w, http.StatusInternalServerError, "delete failed")
		return
	}
	if tag.RowsAffected() == 0 {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	s.audit(ctx, orgID, userID, "agent_deleted", map[string]any{"agent_id": agentID.String()})
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
