package httpapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterSettingsDropsUnknownKeys(t *testing.T) {
	got := filterSettings(map[string]string{
		"openai_api_key": "  sk-proj-abcdef0123456789  ",
		"evil_key":       "x",
		"role":           "owner",
	})
	assert.Equal(t, map[string]string{
		"openai_api_key": "sk-proj-abcdef0123456789",
	}, got)
}

func TestFilterSettingsKeepsEmptyValues(t *testing.T) {
	// An empty value is a deletion request and must survive filtering.
	got := filterSettings(map[string]string{"anthropic_api_key": ""})
	assert.Equal(t, map[string]string{"anthropic_api_key": ""}, got)
}

func TestClassifySettingsUpdate(t *testing.T) {
	name := "Acme"
	cases := []struct {
		name string
		req  updateSettingsRequest
		want settingsUpdateKind
	}{
		{
			name: "allowlisted key applies",
			req:  updateSettingsRequest{Settings: map[string]string{"openai_api_key": "sk-1"}},
			want: settingsUpdateApply,
		},
		{
			name: "org rename alone applies",
			req:  updateSettingsRequest{OrgName: &name},
			want: settingsUpdateApply,
		},
		{
			name: "only unknown keys is a no-op, not an error",
			req:  updateSettingsRequest{Settings: map[string]string{"evil_key": "x"}},
			want: settingsUpdateNoOp,
		},
		{
			name: "nothing at all is an error",
			req:  updateSettingsRequest{},
			want: settingsUpdateEmpty,
		},
		{
			name: "empty settings map is an error",
			req:  updateSettingsRequest{Settings: map[string]string{}},
			want: settingsUpdateEmpty,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := classifySettingsUpdate(tc.req, filterSettings(tc.req.Settings))
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestMaskedSettingsView(t *testing.T) {
	view := maskedSettingsView(map[string]string{
		"openai_api_key":  "sk-proj-abcdef0123456789",
		"ollama_base_url": "http://localhost:11434",
	})

	assert.Equal(t, "sk-proj-...6789", view["openai_api_key"])
	assert.Equal(t, true, view["has_openai_api_key"])

	assert.Equal(t, "", view["anthropic_api_key"])
	assert.Equal(t, false, view["has_anthropic_api_key"])

	// Non-secret keys come back as stored, no masking and no has_ flag.
	assert.Equal(t, "http://localhost:11434", view["ollama_base_url"])
	_, ok := view["has_ollama_base_url"]
	assert.False(t, ok)
}
