package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"actionchat/internal/authz"
	"actionchat/internal/specstore"
	"actionchat/internal/toolgen"
)

var sourceAuthTypes = map[string]struct{}{
	"none":   {},
	"bearer": {},
	"basic":  {},
	"header": {},
}

type createSourceRequest struct {
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	BaseURL      string          `json:"base_url"`
	AuthType     string          `json:"auth_type"`
	SpecDocument json.RawMessage `json:"spec_document"`
}

type sourceDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	BaseURL     string `json:"base_url"`
	AuthType    string `json:"auth_type"`
	ToolsCount  int    `json:"tools_count"`
	CreatedAt   string `json:"created_at"`
}

type toolDTO struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Method      string          `json:"method"`
	Path        string          `json:"path"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
	Fingerprint string          `json:"fingerprint"`
}

func validateBaseURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", errors.New("base_url must be an absolute http(s) URL")
	}
	return strings.TrimRight(raw, "/"), nil
}

func (s server) handleListSources(w http.ResponseWriter, r *http.Request) {
	_, orgID, _, ok := s.orgScope(w, r, authz.RequireMember)
	if !ok {
		return
	}

	ctx, cancel := handlerTimeout(r, 10*time.Second)
	defer cancel()

	rows, err := s.db.Query(ctx, `
		select src.id, src.name, src.description, src.base_url, src.auth_type, src.created_at,
		       count(t.id) as tools_count
		from sources src
		left join tools t on t.source_id = src.id
		where src.org_id = $1
		group by src.id
		order by src.created_at desc
	`, orgID)
	if err != nil {
		s.logError(ctx, "list sources failed", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	defer rows.Close()

	out := []sourceDTO{}
	for rows.Next() {
		var (
			id          uuid.UUID
			name        string
			description string
			baseURL     string
			authType    string
			createdAt   time.Time
			toolsCount  int
		)
		if err := rows.Scan(&id, &name, &description, &baseURL, &authType, &createdAt, &toolsCount); err != nil {
			s.logError(ctx, "scan source failed", err)
			writeError(w, http.StatusInternalServerError, "scan failed")
			return
		}
		out = append(out, sourceDTO{
			ID:          id.String(),
			Name:        name,
			Description: description,
			BaseURL:     baseURL,
			AuthType:    authType,
			ToolsCount:  toolsCount,
			CreatedAt:   createdAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "sources": out})
}

func (s server) handleCreateSource(w http.ResponseWriter, r *http.Request) {
	userID, orgID, _, ok := s.orgScope(w, r, authz.RequireAdmin)
	if !ok {
		return
	}

	var req createSourceRequest
	if !readJSONLimited(w, r, &req, 1024*1024) {
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
	baseURL, err := validateBaseURL(req.BaseURL)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	authType := strings.TrimSpace(req.AuthType)
	if authType == "" {
		authType = "none"
	}
	if _, okt := sourceAuthTypes[authType]; !okt {
		writeError(w, http.StatusBadRequest, "invalid auth_type")
		return
	}

	var tools []toolgen.Tool
	if len(req.SpecDocument) > 0 {
		tools, err = toolgen.Derive(req.SpecDocument)
		if err != nil {
			writeErrorDetails(w, http.StatusBadRequest, "invalid spec document", err.Error())
			return
		}
	}

	ctx, cancel := handlerTimeout(r, 15*time.Second)
	defer cancel()

	tx, err := s.db.Begin(ctx)
	if err != nil {
		s.logError(ctx, "db begin failed", err)
		writeError(w, http.StatusInternalServerError, "create source failed")
		return
	}
	defer tx.Rollback(ctx)

	sourceID := uuid.New()
	specObjectKey := ""
	if len(req.SpecDocument) > 0 {
		specObjectKey = specstore.SpecObjectKey(orgID, sourceID)
	}

	var createdAt time.Time
	if err := tx.QueryRow(ctx, `
		insert into sources (id, org_id, name, description, base_url, auth_type, spec_object_key)
		values ($1, $2, $3, $4, $5, $6, $7)
		returning created_at
	`, sourceID, orgID, req.Name, req.Description, baseURL, authType, specObjectKey).Scan(&createdAt); err != nil {
		s.logError(ctx, "insert source failed", err)
		writeError(w, http.StatusInternalServerError, "create source failed")
		return
	}

	if err := insertTools(ctx, tx, sourceID, tools); err != nil {
		s.logError(ctx, "insert tools failed", err)
		writeError(w, http.StatusInternalServerError, "create source failed")
		return
	}

	if err := tx.Commit(ctx); err != nil {
		s.logError(ctx, "commit failed", err)
		writeError(w, http.StatusInternalServerError, "create source failed")
		return
	}

	// Spec document storage is best-effort after commit: tools are already
	// derived, and regeneration can re-upload later.
	if specObjectKey != "" && s.specs != nil {
		if err := s.specs.Put(ctx, specObjectKey, "application/json", req.SpecDocument); err != nil {
			s.logWarn(ctx, "store spec document failed", err)
		}
	}

	s.audit(ctx, orgID, userID, "source_created", map[string]any{"source_id": sourceID.String(), "tools": len(tools)})
	writeJSON(w, http.StatusCreated, map[string]any{
		"ok": true,
		"source": sourceDTO{
			ID:          sourceID.String(),
			Name:        req.Name,
			Description: req.Description,
			BaseURL:     baseURL,
			AuthType:    authType,
			ToolsCount:  len(tools),
			CreatedAt:   createdAt.UTC().Format(time.RFC3339),
		},
	})
}

func insertTools(ctx context.Context, tx pgx.Tx, sourceID uuid.UUID, tools []toolgen.Tool) error {
	for _, t := range tools {
		fp, err := toolgen.Fingerprint(t)
		if err != nil {
			return err
		}
		params := t.Parameters
		if len(params) == 0 {
			params = json.RawMessage("null")
		}
		if _, err := tx.Exec(ctx, `
			insert into tools (source_id, name, method, path, description, parameters, fingerprint)
			values ($1, $2, $3, $4, $5, $6, $7)
		`, sourceID, t.Name, t.Method, t.Path, t.Description, params, fp); err != nil {
			return err
		}
	}
	return nil
}

func (s server) handleGetSource(w http.ResponseWriter, r *http.Request) {
	_, orgID, _, ok := s.orgScope(w, r, authz.RequireMember)
	if !ok {
		return
	}
	sourceID, err := uuid.Parse(chi.URLParam(r, "sourceID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid source id")
		return
	}

	ctx, cancel := handlerTimeout(r, 5*time.Second)
	defer cancel()

	var dto sourceDTO
	var id uuid.UUID
	var createdAt time.Time
	err = s.db.QueryRow(ctx, `
		select src.id, src.name, src.description, src.base_url, src.auth_type, src.created_at,
		       (select count(*) from tools t where t.source_id = src.id)
		from sources src
		where src.id = $1 and src.org_id = $2
	`, sourceID, orgID).Scan(&id, &dto.Name, &dto.Description, &dto.BaseURL, &dto.AuthType, &createdAt, &dto.ToolsCount)
	if errors.Is(err, pgx.ErrNoRows) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		s.logError(ctx, "get source failed", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	dto.ID = id.String()
	dto.CreatedAt = createdAt.UTC().Format(time.RFC3339)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "source": dto})
}

type updateSourceRequest struct {
	Name         *string         `json:"name"`
	Description  *string         `json:"description"`
	BaseURL      *string         `json:"base_url"`
	AuthType     *string         `json:"auth_type"`
	SpecDocument json.RawMessage `json:"spec_document"`
}

func (s server) handleUpdateSource(w http.ResponseWriter, r *http.Request) {
	userID, orgID, _, ok := s.orgScope(w, r, authz.RequireAdmin)
	if !ok {
		return
	}
	sourceID, err := uuid.Parse(chi.URLParam(r, "sourceID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid source id")
		return
	}
	var req updateSourceRequest
	if !readJSONLimited(w, r, &req, 1024*1024) {
		return
	}

	set := make([]string, 0, 5)
	args := make([]any, 0, 7)
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
		set = append(set, "description = $"+strconv.Itoa(argN))
		args = append(args, *req.Description)
		argN++
	}
	if req.BaseURL != nil {
		baseURL, err := validateBaseURL(*req.BaseURL)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		set = append(set, "base_url = $"+strconv.Itoa(argN))
		args = append(args, baseURL)
		argN++
	}
	if req.AuthType != nil {
		authType := strings.TrimSpace(*req.AuthType)
		if _, okt := sourceAuthTypes[authType]; !okt {
			writeError(w, http.StatusBadRequest, "invalid auth_type")
			return
		}
		set = append(set, "auth_type = $"+strconv.Itoa(argN))
		args = append(args, authType)
		argN++
	}

	var tools []toolgen.Tool
	regen := len(req.SpecDocument) > 0
	if regen {
		tools, err = toolgen.Derive(req.SpecDocument)
		if err != nil {
			writeErrorDetails(w, http.StatusBadRequest, "invalid spec document", err.Error())
			return
		}
		set = append(set, "spec_object_key = $"+strconv.Itoa(argN))
		args = append(args, specstore.SpecObjectKey(orgID, sourceID))
		argN++
	}
	if len(set) == 0 {
		writeError(w, http.StatusBadRequest, "no fields")
		return
	}
	set = append(set, "updated_at = now()")
	args = append(args, sourceID, orgID)

	ctx, cancel := handlerTimeout(r, 15*time.Second)
	defer cancel()

	tx, err := s.db.Begin(ctx)
	if err != nil {
		s.logError(ctx, "db begin failed", err)
		writeError(w, http.StatusInternalServerError, "update failed")
		return
	}
	defer tx.Rollback(ctx)

	q := "update sources set " + strings.Join(set, ", ") +
		" where id = $" + strconv.Itoa(argN) + " and org_id = $" + strconv.Itoa(argN+1)
	tag, err := tx.Exec(ctx, q, args...)
	if err != nil {
		s.logError(ctx, "update source failed", err)
		writeError(w, http.StatusInternalServerError, "update failed")
		return
	}
	if tag.RowsAffected() == 0 {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	if regen {
		if _, err := tx.Exec(ctx, `delete from tools where source_id = $1`, sourceID); err != nil {
			s.logError(ctx, "delete old tools failed", err)
			writeError(w, http.StatusInternalServerError, "update failed")
			return
		}
		if err := insertTools(ctx, tx, sourceID, tools); err != nil {
			s.logError(ctx, "insert tools failed", err)
			writeError(w, http.StatusInternalServerError, "update failed")
			return
		}
	}

	if err := tx.Commit(ctx); err != nil {
		s.logError(ctx, "commit failed", err)
		writeError(w, http.StatusInternalServerError, "update failed")
		return
	}

	if regen && s.specs != nil {
		if err := s.specs.Put(ctx, specstore.SpecObjectKey(orgID, sourceID), "application/json", req.SpecDocument); err != nil {
			s.logWarn(ctx, "store spec document failed", err)
		}
	}

	s.audit(ctx, orgID, userID, "source_updated", map[string]any{"source_id": sourceID.String(), "tools_regenerated": regen})
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s server) handleDeleteSource(w http.ResponseWriter, r *http.Request) {
	userID, orgID, _, ok := s.orgScope(w, r, authz.RequireAdmin)
	if !ok {
		return
	}
	sourceID, err := uuid.Parse(chi.URLParam(r, "sourceID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid source id")
		return
	}

	ctx, cancel := handlerTimeout(r, 10*time.Second)
	defer cancel()

	tag, err := s.db.Exec(ctx, `delete from sources where id = $1 and org_id = $2`, sourceID, orgID)
	if err != nil {
		s.logError(ctx, "delete source failed", err)
		writeError(w, http.StatusInternalServerError, "delete failed")
		return
	}
	if tag.RowsAffected() == 0 {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	s.audit(ctx, orgID, userID, "source_deleted", map[string]any{"source_id": sourceID.String()})
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s server) handleListSourceTools(w http.ResponseWriter, r *http.Request) {
	_, orgID, _, ok := s.orgScope(w, r, authz.RequireMember)
	if !ok {
		return
	}
	sourceID, err := uuid.Parse(chi.URLParam(r, "sourceID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid source id")
		return
	}

	ctx, cancel := handlerTimeout(r, 10*time.Second)
	defer cancel()

	var exists bool
	err = s.db.QueryRow(ctx, `select true from sources where id = $1 and org_id = $2`, sourceID, orgID).Scan(&exists)
	if errors.Is(err, pgx.ErrNoRows) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		s.logError(ctx, "source lookup failed", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	tools, err := s.listToolsForSource(ctx, sourceID)
	if err != nil {
		s.logError(ctx, "list tools failed", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "tools": tools})
}

func (s server) listToolsForSource(ctx context.Context, sourceID uuid.UUID) ([]toolDTO, error) {
	rows, err := s.db.Query(ctx, `
		select id, name, method, path, description, parameters, fingerprint
		from tools
		where source_id = $1
		order by path asc, method asc
	`, sourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []toolDTO{}
	for rows.Next() {
		var (
			id     uuid.UUID
			dto    toolDTO
			params []byte
		)
		if err := rows.Scan(&id, &dto.Name, &dto.Method, &dto.Path, &dto.Description, &params, &dto.Fingerprint); err != nil {
			return nil, err
		}
		dto.ID = id.String()
		if len(params) > 0 && string(params) != "null" {
			dto.Parameters = json.RawMessage(params)
		}
		out = append(out, dto)
	}
	return out, nil
}

// handleRegenerateTools re-derives a source's tools from the stored spec
// document.
func (s server) handleRegenerateTools(w http.ResponseWriter, r *http.Request) {
	userID, orgID, _, ok := s.orgScope(w, r, authz.RequireAdmin)
	if !ok {
		return
	}
	sourceID, err := uuid.Parse(chi.URLParam(r, "sourceID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid source id")
		return
	}
	if s.specs == nil {
		writeError(w, http.StatusServiceUnavailable, "spec storage not configured")
		return
	}

	ctx, cancel := handlerTimeout(r, 15*time.Second)
	defer cancel()

	var specObjectKey string
	err = s.db.QueryRow(ctx, `
		select spec_object_key from sources where id = $1 and org_id = $2
	`, sourceID, orgID).Scan(&specObjectKey)
	if errors.Is(err, pgx.ErrNoRows) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		s.logError(ctx, "source lookup failed", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if specObjectKey == "" {
		writeError(w, http.StatusNotFound, "source has no spec document")
		return
	}

	doc, err := s.specs.Get(ctx, specObjectKey)
	if err != nil {
		s.logError(ctx, "fetch spec document failed", err)
		writeError(w, http.StatusInternalServerError, "fetch spec document failed")
		return
	}
	tools, err := toolgen.Derive(doc)
	if err != nil {
		writeErrorDetails(w, http.StatusBadRequest, "invalid spec document", err.Error())
		return
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		s.logError(ctx, "db begin failed", err)
		writeError(w, http.StatusInternalServerError, "regenerate failed")
		return
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `delete from tools where source_id = $1`, sourceID); err != nil {
		s.logError(ctx, "delete old tools failed", err)
		writeError(w, http.StatusInternalServerError, "regenerate failed")
		return
	}
	if err := insertTools(ctx, tx, sourceID, tools); err != nil {
		s.logError(ctx, "insert tools failed", err)
		writeError(w, http.StatusInternalServerError, "regenerate failed")
		return
	}
	if err := tx.Commit(ctx); err != nil {
		s.logError(ctx, "commit failed", err)
		writeError(w, http.StatusInternalServerError, "regenerate failed")
		return
	}

	out, err := s.listToolsForSource(ctx, sourceID)
	if err != nil {
		s.logError(ctx, "list tools failed", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	s.audit(ctx, orgID, userID, "tools_regenerated", map[string]any{"source_id": sourceID.String(), "tools": len(out)})
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "tools": out})
}

// handleUploadCredentials issues short-lived, write-only object storage
// credentials scoped to the caller's org prefix, for direct spec uploads.
func (s server) handleUploadCredentials(w http.ResponseWriter, r *http.Request) {
	userID, orgID, _, ok := s.orgScope(w, r, authz.RequireAdmin)
	if !ok {
		return
	}
	if s.uploadIssuer == nil {
		writeError(w, http.StatusServiceUnavailable, "spec storage not configured")
		return
	}

	ctx, cancel := handlerTimeout(r, 10*time.Second)
	defer cancel()

	creds, err := s.uploadIssuer.IssueUploadCredentials(ctx, orgID, s.uploadDuration)
	if err != nil {
		s.logError(ctx, "issue upload credentials failed", err)
		writeError(w, http.StatusInternalServerError, "issue upload credentials failed")
		return
	}

	s.audit(ctx, orgID, userID, "upload_credentials_issued", map[string]any{})
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "credentials": creds})
}
