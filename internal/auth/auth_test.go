package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr bool
	}{
		{name: "valid", header: "Bearer abc", want: "abc"},
		{name: "padded", header: "Bearer   abc  ", want: "abc"},
		{name: "missing", wantErr: true},
		{name: "basic", header: "Basic abc", wantErr: true},
		{name: "empty token", header: "Bearer   ", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "http://example.test", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			got, err := ExtractBearerToken(r)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAuthenticate(t *testing.T) {
	tokens := []TokenConfig{
		{Token: "relay-token", Scopes: []string{ScopeDispatch, " "}},
		{Token: "watch-token", Scopes: []string{ScopeEventsRead}},
	}

	p, ok := Authenticate("admin", "admin", tokens)
	require.True(t, ok)
	assert.True(t, HasAnyScope(p, ScopeDispatch))

	p, ok = Authenticate("relay-token", "admin", tokens)
	require.True(t, ok)
	assert.True(t, HasAnyScope(p, ScopeDispatch))
	assert.True(t, HasAnyScope(p, ScopeEventsRead), "dispatch implies event read")
	assert.NotContains(t, p.Scopes, "")

	p, ok = Authenticate("watch-token", "admin", tokens)
	require.True(t, ok)
	assert.False(t, HasAnyScope(p, ScopeDispatch))

	_, ok = Authenticate("nope", "admin", tokens)
	assert.False(t, ok)
	_, ok = Authenticate("", "", nil)
	assert.False(t, ok, "empty tokens never match")
}

func TestPrincipalContext(t *testing.T) {
	_, ok := PrincipalFromContext(context.Background())
	assert.False(t, ok)

	ctx := WithPrincipal(context.Background(), Anonymous)
	p, ok := PrincipalFromContext(ctx)
	require.True(t, ok)
	assert.True(t, HasAnyScope(p, ScopeDispatch))
	assert.True(t, HasAnyScope(Principal{}))
}
