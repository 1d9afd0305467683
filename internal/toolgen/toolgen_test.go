package toolgen

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleSpec = `{
	"info": {"title": "Petstore"},
	"paths": {
		"/pets": {
			"get": {"operationId": "listPets", "summary": "List all pets"},
			"post": {"summary": "Create a pet", "parameters": [{"name": "body", "in": "body"}]}
		},
		"/pets/{id}": {
			"get": {"operationId": "getPet", "description": "Fetch one pet"},
			"x-internal": {"summary": "not an http method"}
		}
	}
}`

func TestDerive(t *testing.T) {
	tools, err := Derive([]byte(sampleSpec))
	require.NoError(t, err)
	require.Len(t, tools, 3)

	require.Equal(t, "listpets", tools[0].Name)
	require.Equal(t, "GET", tools[0].Method)
	require.Equal(t, "/pets", tools[0].Path)
	require.Equal(t, "List all pets", tools[0].Description)

	require.Equal(t, "post_pets", tools[1].Name)
	require.Equal(t, "POST", tools[1].Method)
	require.NotEmpty(t, tools[1].Parameters)

	require.Equal(t, "getpet", tools[2].Name)
	require.Equal(t, "Fetch one pet", tools[2].Description)
}

func TestDeriveDeterministicOrder(t *testing.T) {
	a, err := Derive([]byte(sampleSpec))
	require.NoError(t, err)
	b, err := Derive([]byte(sampleSpec))
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestDeriveErrors(t *testing.T) {
	_, err := Derive([]byte("not json"))
	require.Error(t, err)

	_, err = Derive([]byte(`{"paths": {}}`))
	require.ErrorIs(t, err, ErrNoOperations)

	_, err = Derive([]byte(`{"paths": {"/a": {"x-ext": {}}}}`))
	require.ErrorIs(t, err, ErrNoOperations)
}

func TestFingerprintStable(t *testing.T) {
	tool := Tool{Name: "listpets", Method: "GET", Path: "/pets", Description: "List all pets"}

	fp1, err := Fingerprint(tool)
	require.NoError(t, err)
	fp2, err := Fingerprint(tool)
	require.NoError(t, err)
	require.Equal(t, fp1, fp2)
	require.Len(t, fp1, 64)

	changed := tool
	changed.Path = "/animals"
	fp3, err := Fingerprint(changed)
	require.NoError(t, err)
	require.NotEqual(t, fp1, fp3)
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"listPets", "listpets"},
		{"get_/pets/{id}", "get_pets_id"},
		{"  Spaced  Name ", "spaced_name"},
		{"___", ""},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, sanitizeName(tt.in), tt.in)
	}
}
