package websocket

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func requestWithOrigin(origin string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/websocket/x", nil)
	if origin != "" {
		r.Header.Set("Origin", origin)
	}
	return r
}

func TestOriginPolicy_AllowList(t *testing.T) {
	p, invalid := NewOriginPolicy([]string{" HTTP://Localhost:5173 ", "", "not a url"})
	assert.Equal(t, []string{"not a url"}, invalid)

	assert.True(t, p.Allow(requestWithOrigin("http://localhost:5173")))
	assert.True(t, p.Allow(requestWithOrigin("http://LOCALHOST:5173")))
	assert.False(t, p.Allow(requestWithOrigin("http://localhost:3000")))
	assert.False(t, p.Allow(requestWithOrigin("https://evil.example.com")))
	assert.False(t, p.Allow(requestWithOrigin("garbage")))
}

func TestOriginPolicy_Wildcard(t *testing.T) {
	p, _ := NewOriginPolicy([]string{"*"})
	assert.True(t, p.Allow(requestWithOrigin("https://anywhere.example.org")))
}

func TestOriginPolicy_MissingOriginAllowed(t *testing.T) {
	p, _ := NewOriginPolicy(nil)
	assert.True(t, p.Allow(requestWithOrigin("")))
	assert.False(t, p.Allow(requestWithOrigin("http://localhost:5173")))
}
