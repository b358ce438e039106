package httpapi

import (
	"errors"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/cory-johannsen/chatrelay/internal/storage/postgres"
)

type credentials struct {
	Mail     string `json:"user_mail"`
	Password string `json:"user_pass"`
}

type accountResponse struct {
	ID   string `json:"user_id"`
	Mail string `json:"user_mail"`
}

type existsResponse struct {
	Exists bool `json:"exists"`
}

// accountsEnabled answers 503 when no credential store is configured.
func (a *api) accountsEnabled(w http.ResponseWriter) bool {
	if a.Accounts == nil {
		writeError(w, http.StatusServiceUnavailable, "account storage is disabled")
		return false
	}
	return true
}

func (a *api) readCredentials(w http.ResponseWriter, r *http.Request) (credentials, bool) {
	var c credentials
	if err := decodeJSON(w, r, &c); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return c, false
	}
	return c, true
}

func (a *api) createAccount(w http.ResponseWriter, r *http.Request) {
	if !a.accountsEnabled(w) {
		return
	}
	c, ok := a.readCredentials(w, r)
	if !ok {
		return
	}
	acct, err := a.Accounts.Create(r.Context(), c.Mail, c.Password)
	if err != nil {
		a.accountError(w, "create", err)
		return
	}
	writeJSON(w, http.StatusCreated, accountResponse{ID: acct.ID.String(), Mail: acct.Mail})
}

func (a *api) accountExists(w http.ResponseWriter, r *http.Request) {
	if !a.accountsEnabled(w) {
		return
	}
	mail := r.URL.Query().Get("user_mail")
	if mail == "" {
		writeError(w, http.StatusBadRequest, "user_mail is required")
		return
	}
	ok, err := a.Accounts.Exists(r.Context(), mail)
	if err != nil {
		a.accountError(w, "exists", err)
		return
	}
	writeJSON(w, http.StatusOK, existsResponse{Exists: ok})
}

func (a *api) verifyAccount(w http.ResponseWriter, r *http.Request) {
	if !a.accountsEnabled(w) {
		return
	}
	c, ok := a.readCredentials(w, r)
	if !ok {
		return
	}
	acct, err := a.Accounts.Verify(r.Context(), c.Mail, c.Password)
	if err != nil {
		a.accountError(w, "verify", err)
		return
	}
	writeJSON(w, http.StatusOK, accountResponse{ID: acct.ID.String(), Mail: acct.Mail})
}

func (a *api) deleteAccount(w http.ResponseWriter, r *http.Request) {
	if !a.accountsEnabled(w) {
		return
	}
	c, ok := a.readCredentials(w, r)
	if !ok {
		return
	}
	if err := a.Accounts.Delete(r.Context(), c.Mail, c.Password); err != nil {
		a.accountError(w, "delete", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// accountError maps repository errors to HTTP responses. Unknown mail and
// wrong password both answer 401 so callers cannot probe for accounts.
func (a *api) accountError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, postgres.ErrInvalidInput), errors.Is(err, bcrypt.ErrPasswordTooLong):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, postgres.ErrAccountExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, postgres.ErrAccountNotFound), errors.Is(err, postgres.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, postgres.ErrInvalidCredentials.Error())
	default:
		a.Logger.Error("account operation failed", zap.String("op", op), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
