package keys

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewAPIKeyFormat(t *testing.T) {
	raw, err := NewAPIKey()
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(raw, "ac_"))
	require.Len(t, raw, len(Prefix)+64)

	other, err := NewAPIKey()
	require.NoError(t, err)
	require.NotEqual(t, raw, other)
}

func TestHashAPIKey(t *testing.T) {
	raw, err := NewAPIKey()
	require.NoError(t, err)

	h := HashAPIKey(raw)
	require.Len(t, h, 64)
	require.Equal(t, h, HashAPIKey(raw))
	require.NotEqual(t, h, HashAPIKey(raw+"x"))
	require.NotContains(t, h, raw)
}

func TestDisplayPrefix(t *testing.T) {
	raw := "ac_0123456789abcdef"
	require.Equal(t, "ac_0123456", DisplayPrefix(raw))
	require.Equal(t, "ac_12", DisplayPrefix("ac_12"))
}

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"whitespace only", "   ", ""},
		{"short", "sk-short", "***"},
		{"fifteen chars", "123456789012345", "***"},
		{"sixteen chars", "1234567890123456", "12345678...3456"},
		{"long key", "sk-ant-REDACTED", "sk-ant-a...mnop"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, MaskSecret(tt.in))
		})
	}
}
