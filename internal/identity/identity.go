// Package identity resolves the display name a participant relays under.
//
// Names are self-asserted: a query parameter or a cookie set by the
// /user_name endpoint. No credential check is involved.
package identity

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	// ErrUnauthorized is returned when no display name accompanies a request.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNameTooLong is returned for names longer than MaxNameLength runes.
	ErrNameTooLong = errors.New("display name too long")
)

const (
	// CookieName is the cookie and query parameter carrying the display name.
	CookieName = "user_name"
	// MaxNameLength is the longest accepted display name, in runes.
	MaxNameLength = 64
)

// Resolver extracts a display name from an upgrade request.
type Resolver interface {
	DisplayName(r *http.Request) (string, error)
}

// CookieResolver reads the name from the user_name query parameter, falling
// back to the user_name cookie.
type CookieResolver struct{}

// DisplayName implements Resolver.
//
// Postcondition: Returns a normalized name, ErrUnauthorized when none is present,
// or ErrNameTooLong.
func (CookieResolver) DisplayName(r *http.Request) (string, error) {
	if raw := r.URL.Query().Get(CookieName); strings.TrimSpace(raw) != "" {
		return Normalize(raw)
	}
	name, err := NameFromCookie(r)
	if err != nil {
		return "", err
	}
	return Normalize(name)
}

// Normalize trims surrounding whitespace, drops control characters, and
// enforces the length limit.
func Normalize(raw string) (string, error) {
	name := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, strings.TrimSpace(raw))
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrUnauthorized
	}
	if n := utf8.RuneCountInString(name); n > MaxNameLength {
		return "", fmt.Errorf("%w: %d runes, max %d", ErrNameTooLong, n, MaxNameLength)
	}
	return name, nil
}

// NameFromCookie returns the decoded user_name cookie value.
//
// Postcondition: Returns ErrUnauthorized if the cookie is missing, empty, or malformed.
func NameFromCookie(r *http.Request) (string, error) {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return "", ErrUnauthorized
	}
	name, err := url.QueryUnescape(c.Value)
	if err != nil || strings.TrimSpace(name) == "" {
		return "", ErrUnauthorized
	}
	return name, nil
}

// SetNameCookie stores name in the user_name cookie. The value is
// query-escaped so any UTF-8 name survives cookie encoding.
func SetNameCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    url.QueryEscape(name),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearNameCookie expires the user_name cookie.
func ClearNameCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
