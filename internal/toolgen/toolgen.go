// Package toolgen derives callable tool definitions from a source's uploaded
// API specification document (a minimal OpenAPI-style JSON shape).
package toolgen

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/cyberphone/json-canonicalization/go/src/webpki.org/jsoncanonicalizer"
)

// Tool is one callable operation derived from a source specification.
type Tool struct {
	Name        string          `json:"name"`
	Method      string          `json:"method"`
	Path        string          `json:"path"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type specDocument struct {
	Info struct {
		Title string `json:"title"`
	} `json:"info"`
	Paths map[string]map[string]specOperation `json:"paths"`
}

type specOperation struct {
	OperationID string          `json:"operationId"`
	Summary     string          `json:"summary"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

var httpMethods = map[string]struct{}{
	"get": {}, "post": {}, "put": {}, "patch": {}, "delete": {}, "head": {}, "options": {},
}

var ErrNoOperations = errors.New("spec document contains no operations")

// Derive parses a spec document and returns one tool per path+method pair,
// ordered by path then method so regeneration is deterministic.
func Derive(doc []byte) ([]Tool, error) {
	var spec specDocument
	if err := json.Unmarshal(doc, &spec); err != nil {
		return nil, fmt.Errorf("parse spec document: %w", err)
	}
	if len(spec.Paths) == 0 {
		return nil, ErrNoOperations
	}

	paths := make([]string, 0, len(spec.Paths))
	for p := range spec.Paths {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var out []Tool
	for _, p := range paths {
		ops := spec.Paths[p]
		methods := make([]string, 0, len(ops))
		for m := range ops {
			if _, ok := httpMethods[strings.ToLower(m)]; ok {
				methods = append(methods, m)
			}
		}
		sort.Strings(methods)

		for _, m := range methods {
			op := ops[m]
			out = append(out, Tool{
				Name:        toolName(op.OperationID, m, p),
				Method:      strings.ToUpper(m),
				Path:        p,
				Description: firstNonEmpty(op.Summary, op.Description),
				Parameters:  op.Parameters,
			})
		}
	}
	if len(out) == 0 {
		return nil, ErrNoOperations
	}
	return out, nil
}

// Fingerprint hashes the RFC 8785 canonical JSON form of a tool definition.
// Equal definitions always produce the same fingerprint regardless of key
// order or whitespace in the source document.
func Fingerprint(t Tool) (string, error) {
	raw, err := json.Marshal(t)
	if err != nil {
		return "", err
	}
	canonical, err := jsoncanonicalizer.Transform(raw)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

func toolName(operationID, method, path string) string {
	if v := strings.TrimSpace(operationID); v != "" {
		return sanitizeName(v)
	}
	return sanitizeName(strings.ToLower(method) + "_" + path)
}

// sanitizeName reduces an identifier to [a-z0-9_], the shape LLM tool-calling
// APIs accept.
func sanitizeName(v string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(v) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	return strings.Trim(b.String(), "_")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
