package httputil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJSON(t *testing.T) {
	var dest struct {
		Username string `json:"username"`
	}

	r := httptest.NewRequest("POST", "/auth/login", strings.NewReader(`{"username":"alice"}`))
	require.NoError(t, ParseJSON(r, &dest))
	assert.Equal(t, "alice", dest.Username)

	r = httptest.NewRequest("POST", "/auth/login", strings.NewReader(`{broken`))
	assert.Error(t, ParseJSON(r, &dest))
}

func TestParseJSONOrError(t *testing.T) {
	var dest map[string]string

	rec := httptest.NewRecorder()
	r := httptest.NewRequest("POST", "/", strings.NewReader(`not json`))
	assert.False(t, ParseJSONOrError(rec, r, &dest))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRequireNonEmpty(t *testing.T) {
	rec := httptest.NewRecorder()
	assert.True(t, RequireNonEmpty(rec, "alice", "username"))

	rec = httptest.NewRecorder()
	assert.False(t, RequireNonEmpty(rec, "", "username"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "username is required")
}

func TestParseQueryString(t *testing.T) {
	r := httptest.NewRequest("GET", "/?field=email", nil)
	assert.Equal(t, "email", ParseQueryString(r, "field", "username"))
	assert.Equal(t, "username", ParseQueryString(r, "missing", "username"))
}
