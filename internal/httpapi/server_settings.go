package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"actionchat/internal/authz"
	"actionchat/internal/keys"
)

// settingsAllowlist is the closed set of org settings keys. Anything else
// posted to the settings handler is silently dropped, not rejected.
var settingsAllowlist = map[string]struct{}{
	"openai_api_key":    {},
	"anthropic_api_key": {},
	"ollama_base_url":   {},
}

// secretSettings render masked; non-secret settings render as stored.
var secretSettings = map[string]struct{}{
	"openai_api_key":    {},
	"anthropic_api_key": {},
}

func filterSettings(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		if _, ok := settingsAllowlist[k]; !ok {
			continue
		}
		out[k] = strings.TrimSpace(v)
	}
	return out
}

// maskedSettingsView shapes stored settings for read responses: secrets are
// masked, absence is explicit via has_* flags, and the raw values never leave
// the server.
func maskedSettingsView(stored map[string]string) map[string]any {
	out := make(map[string]any, len(settingsAllowlist)*2)
	for k := range settingsAllowlist {
		v := stored[k]
		if _, secret := secretSettings[k]; secret {
			out[k] = keys.MaskSecret(v)
			out["has_"+k] = v != ""
		} else {
			out[k] = v
		}
	}
	return out
}

func (s server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	_, orgID, caps, ok := s.orgScope(w, r, authz.RequireMember)
	if !ok {
		return
	}

	ctx, cancel := handlerTimeout(r, 5*time.Second)
	defer cancel()

	var orgName string
	var stored map[string]string
	err := s.db.QueryRow(ctx, `
		select name, settings from orgs where id = $1
	`, orgID).Scan(&orgName, &stored)
	if errors.Is(err, pgx.ErrNoRows) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		s.logError(ctx, "get settings failed", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"org_name": orgName,
		"settings": maskedSettingsView(stored),
		"can_edit": caps.IsAdmin(),
		"role":     string(caps.Role()),
	})
}

type updateSettingsRequest struct {
	OrgName  *string           `json:"org_name"`
	Settings map[string]string `json:"settings"`
}

type settingsUpdateKind int

const (
	settingsUpdateApply settingsUpdateKind = iota
	settingsUpdateNoOp
	settingsUpdateEmpty
)

// classifySettingsUpdate decides what an update request amounts to after
// allowlist filtering. A request whose every key fell to the filter is a
// no-op, not an error: unknown keys are ignored, never rejected.
func classifySettingsUpdate(req updateSettingsRequest, filtered map[string]string) settingsUpdateKind {
	if req.OrgName != nil || len(filtered) > 0 {
		return settingsUpdateApply
	}
	if len(req.Settings) > 0 {
		return settingsUpdateNoOp
	}
	return settingsUpdateEmpty
}

func (s server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	userID, orgID, _, ok := s.orgScope(w, r, authz.RequireAdmin)
	if !ok {
		return
	}

	var req updateSettingsRequest
	if !readJSONLimited(w, r, &req, 64*1024) {
		return
	}
	if req.OrgName != nil {
		name := strings.TrimSpace(*req.OrgName)
		if name == "" || len(name) > 128 {
			writeError(w, http.StatusBadRequest, "invalid org_name")
			return
		}
		*req.OrgName = name
	}
	incoming := filterSettings(req.Settings)
	switch classifySettingsUpdate(req, incoming) {
	case settingsUpdateEmpty:
		writeError(w, http.StatusBadRequest, "no fields")
		return
	case settingsUpdateNoOp:
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	ctx, cancel := handlerTimeout(r, 10*time.Second)
	defer cancel()

	tx, err := s.db.Begin(ctx)
	if err != nil {
		s.logError(ctx, "db begin failed", err)
		writeError(w, http.StatusInternalServerError, "update failed")
		return
	}
	defer tx.Rollback(ctx)

	// Merge into the current settings under a row lock so concurrent updates
	// don't drop each other's keys.
	var stored map[string]string
	err = tx.QueryRow(ctx, `select settings from orgs where id = $1 for update`, orgID).Scan(&stored)
	if errors.Is(err, pgx.ErrNoRows) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		s.logError(ctx, "settings lock failed", err)
		writeError(w, http.StatusInternalServerError, "update failed")
		return
	}
	if stored == nil {
		stored = map[string]string{}
	}
	for k, v := range incoming {
		if v == "" {
			delete(stored, k)
			continue
		}
		stored[k] = v
	}

	if req.OrgName != nil {
		if _, err := tx.Exec(ctx, `
			update orgs set name = $1, settings = $2, updated_at = now() where id = $3
		`, *req.OrgName, stored, orgID); err != nil {
			s.logError(ctx, "update settings failed", err)
			writeError(w, http.StatusInternalServerError, "update failed")
			return
		}
	} else {
		if _, err := tx.Exec(ctx, `
			update orgs set settings = $1, updated_at = now() where id = $2
		`, stored, orgID); err != nil {
			s.logError(ctx, "update settings failed", err)
			writeError(w, http.StatusInternalServerError, "update failed")
			return
		}
	}

	if err := tx.Commit(ctx); err != nil {
		s.logError(ctx, "commit failed", err)
		writeError(w, http.StatusInternalServerError, "update failed")
		return
	}

	changed := make([]string, 0, len(incoming))
	for k := range incoming {
		changed = append(changed, k)
	}
	s.audit(ctx, orgID, userID, "settings_updated", map[string]any{"keys": changed, "org_renamed": req.OrgName != nil})
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
