package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/cory-johannsen/chatrelay/internal/chat"
	"github.com/cory-johannsen/chatrelay/internal/identity"
	"github.com/cory-johannsen/chatrelay/internal/relay"
)

// maxRoomNameLength bounds room display names, in runes.
const maxRoomNameLength = 128

type createRoomRequest struct {
	Name      string `json:"room_name"`
	TimeLimit uint32 `json:"room_time"`
}

func (a *api) createRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, http.StatusBadRequest, "room_name is required")
		return
	}
	if utf8.RuneCountInString(name) > maxRoomNameLength {
		writeError(w, http.StatusBadRequest, "room_name is too long")
		return
	}
	room := a.Registry.Create(name, req.TimeLimit)
	writeJSON(w, http.StatusOK, room.Summary())
}

func (a *api) listRooms(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.Registry.List())
}

func (a *api) getRoom(w http.ResponseWriter, r *http.Request) {
	room, err := a.Registry.Get(chat.RoomID(mux.Vars(r)["room_id"]))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, room.Summary())
}

func (a *api) deleteRoom(w http.ResponseWriter, r *http.Request) {
	id := chat.RoomID(mux.Vars(r)["room_id"])
	if err := a.Registry.Delete(id); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// websocket resolves the room and display name, upgrades, and relays until
// the connection ends. Handshake failures are answered before the upgrade.
func (a *api) websocket(w http.ResponseWriter, r *http.Request) {
	room, err := a.Registry.Get(chat.RoomID(mux.Vars(r)["room_id"]))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	name, err := a.Identity.DisplayName(r)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, identity.ErrUnauthorized) {
			status = http.StatusUnauthorized
		}
		writeError(w, status, err.Error())
		return
	}

	conn, err := a.Upgrader.Upgrade(w, r)
	if err != nil {
		a.Logger.Warn("websocket upgrade failed",
			zap.String("room_id", room.ID().String()),
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}

	rl := relay.New(room, name, conn, a.RelayOptions...)
	if err := rl.Run(r.Context()); err != nil {
		a.Logger.Info("relay ended with error", zap.String("room_id", room.ID().String()), zap.Error(err))
	}
}
