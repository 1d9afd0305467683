package specstore

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestLocalStoreRoundTrip(t *testing.T) {
	store, err := New(Config{Provider: "local", LocalDir: t.TempDir(), BasePrefix: "dev"})
	require.NoError(t, err)

	ctx := context.Background()
	orgID := uuid.New()
	sourceID := uuid.New()
	key := SpecObjectKey(orgID, sourceID)

	ok, err := store.Exists(ctx, key)
	require.NoError(t, err)
	require.False(t, ok)

	body := []byte(`{"paths":{}}`)
	require.NoError(t, store.Put(ctx, key, "application/json", body))

	ok, err = store.Exists(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, body, got)
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	_, err := New(Config{Provider: "s3"})
	require.Error(t, err)

	_, err = NewCredentialIssuer(Config{Provider: ""})
	require.Error(t, err)
}

func TestLocalIssuerScopesToOrgPrefix(t *testing.T) {
	orgID := uuid.New()
	issuer, err := NewCredentialIssuer(Config{Provider: "local", Bucket: "specs", BasePrefix: "dev", STSDurationSeconds: 900})
	require.NoError(t, err)

	creds, err := issuer.IssueUploadCredentials(context.Background(), orgID, 0)
	require.NoError(t, err)
	require.Equal(t, "dev/orgs/"+orgID.String()+"/", creds.KeyPrefix)
	require.NotEmpty(t, creds.SecurityToken)

	exp, err := time.Parse(time.RFC3339, creds.Expiration)
	require.NoError(t, err)
	require.True(t, exp.After(time.Now()))
}

func TestWriteOnlyPolicy(t *testing.T) {
	policy, err := writeOnlyPolicy("specs", "dev/orgs/abc/")
	require.NoError(t, err)

	var decoded struct {
		Statement []struct {
			Action   []string `json:"Action"`
			Resource []string `json:"Resource"`
		} `json:"Statement"`
	}
	require.NoError(t, json.Unmarshal([]byte(policy), &decoded))
	require.Len(t, decoded.Statement, 1)
	require.Equal(t, []string{"oss:PutObject"}, decoded.Statement[0].Action)
	require.Equal(t, []string{"acs:oss:*:*:specs/dev/orgs/abc/*"}, decoded.Statement[0].Resource)

	_, err = writeOnlyPolicy("", "p")
	require.Error(t, err)
	_, err = writeOnlyPolicy("b", "")
	require.Error(t, err)
}
