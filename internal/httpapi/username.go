package httpapi

import (
	"net/http"

	"github.com/cory-johannsen/chatrelay/internal/identity"
)

type userNameBody struct {
	Name string `json:"user_name"`
}

func (a *api) setUserName(w http.ResponseWriter, r *http.Request) {
	var body userNameBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	name, err := identity.Normalize(body.Name)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	identity.SetNameCookie(w, name)
	writeJSON(w, http.StatusOK, userNameBody{Name: name})
}

func (a *api) getUserName(w http.ResponseWriter, r *http.Request) {
	name, err := identity.NameFromCookie(r)
	if err != nil {
		writeError(w, http.StatusNotFound, "no user_name set")
		return
	}
	writeJSON(w, http.StatusOK, userNameBody{Name: name})
}

func (a *api) clearUserName(w http.ResponseWriter, _ *http.Request) {
	identity.ClearNameCookie(w)
	w.WriteHeader(http.StatusNoContent)
}
