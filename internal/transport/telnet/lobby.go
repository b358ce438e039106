package telnet

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/chatrelay/internal/chat"
	"github.com/cory-johannsen/chatrelay/internal/identity"
	"github.com/cory-johannsen/chatrelay/internal/relay"
)

const (
	cmdQuit   = "/quit"
	cmdCreate = "/create"
)

// LobbyOption configures a LobbyHandler.
type LobbyOption func(*LobbyHandler)

// WithRelayOptions passes options to every relay the lobby starts.
func WithRelayOptions(opts ...relay.Option) LobbyOption {
	return func(h *LobbyHandler) { h.relayOpts = append(h.relayOpts, opts...) }
}

// WithLocation sets the time zone used to render message timestamps.
func WithLocation(loc *time.Location) LobbyOption {
	return func(h *LobbyHandler) { h.loc = loc }
}

// LobbyHandler lets a line client pick a room and a display name, then
// relays the room until the client leaves.
type LobbyHandler struct {
	registry  *chat.Registry
	logger    *zap.Logger
	relayOpts []relay.Option
	loc       *time.Location
}

// NewLobbyHandler creates a lobby over registry.
//
// Precondition: registry and logger must be non-nil.
func NewLobbyHandler(registry *chat.Registry, logger *zap.Logger, opts ...LobbyOption) *LobbyHandler {
	h := &LobbyHandler{registry: registry, logger: logger, loc: time.Local}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleSession implements SessionHandler.
func (h *LobbyHandler) HandleSession(ctx context.Context, conn *Conn) error {
	if err := conn.WriteLine(Colorize(Bold, "chatrelay") + " - type " + cmdQuit + " to leave"); err != nil {
		return err
	}

	room, err := h.chooseRoom(conn)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}

	if err := conn.WritePrompt("name> "); err != nil {
		return err
	}
	line, err := conn.ReadLine()
	if err != nil {
		return ignoreEOF(err)
	}
	if strings.TrimSpace(line) == cmdQuit {
		_ = conn.WriteLine("bye")
		return nil
	}
	name, err := identity.Normalize(line)
	if err != nil {
		msg := identity.ErrUnauthorized.Error()
		if errors.Is(err, identity.ErrNameTooLong) {
			msg = err.Error()
		}
		_ = conn.WriteLine(Colorize(Red, msg))
		return err
	}

	if err := conn.WriteLine(fmt.Sprintf("joined %s as %s", Colorize(Bold, StripANSI(room.Name())), Colorize(SenderColor(name), name))); err != nil {
		return err
	}
	h.logger.Info("telnet client joined room",
		zap.String("room_id", room.ID().String()),
		zap.String("user_name", name),
	)

	t := &lineTransport{conn: conn, loc: h.loc}
	return relay.New(room, name, t, h.relayOpts...).Run(ctx)
}

// chooseRoom prompts until the client names an existing room, creates one,
// or quits. Rooms may be chosen by id or by their number in the listing.
func (h *LobbyHandler) chooseRoom(conn *Conn) (*chat.Room, error) {
	listing := h.writeRooms(conn)
	for {
		if err := conn.WritePrompt("room> "); err != nil {
			return nil, err
		}
		line, err := conn.ReadLine()
		if err != nil {
			return nil, err
		}
		choice := strings.TrimSpace(line)

		switch {
		case choice == "":
			listing = h.writeRooms(conn)
			continue
		case choice == cmdQuit:
			_ = conn.WriteLine("bye")
			return nil, io.EOF
		case strings.HasPrefix(choice, cmdCreate+" "):
			name := StripANSI(strings.TrimSpace(strings.TrimPrefix(choice, cmdCreate)))
			if name == "" {
				_ = conn.WriteLine("usage: " + cmdCreate + " <room name>")
				continue
			}
			return h.registry.Create(name, 0), nil
		}

		id := chat.RoomID(choice)
		if n, err := strconv.Atoi(choice); err == nil && n >= 1 && n <= len(listing) {
			id = listing[n-1].ID
		}
		room, err := h.registry.Get(id)
		if err != nil {
			_ = conn.WriteLine(Colorize(Red, chat.ErrRoomNotFound.Error()))
			continue
		}
		return room, nil
	}
}

func (h *LobbyHandler) writeRooms(conn *Conn) []chat.RoomSummary {
	rooms := h.registry.List()
	if len(rooms) == 0 {
		_ = conn.WriteLine("no rooms yet; create one with " + cmdCreate + " <room name>")
		return rooms
	}
	_ = conn.WriteLine("rooms:")
	for i, r := range rooms {
		_ = conn.WriteLine(fmt.Sprintf("  %d) %s  %s", i+1, StripANSI(r.Name), Colorize(Dim, r.ID.String())))
	}
	return rooms
}

func ignoreEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// FormatMessage renders msg as "[15:04:05] name: text" with the sender's
// name coloured.
func FormatMessage(msg chat.Message, loc *time.Location) string {
	name := StripANSI(msg.Sender)
	return fmt.Sprintf("[%s] %s: %s",
		msg.Timestamp.In(loc).Format("15:04:05"),
		Colorize(SenderColor(name), name),
		StripANSI(msg.Text),
	)
}

// lineTransport adapts a Conn to relay.Transport.
type lineTransport struct {
	conn *Conn
	loc  *time.Location
}

func (t *lineTransport) Receive(_ context.Context) (string, error) {
	for {
		line, err := t.conn.ReadLine()
		if errors.Is(err, ErrLineTooLong) {
			_ = t.conn.WriteLine(Colorize(Red, "message too long, not sent"))
			continue
		}
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(line) == cmdQuit {
			return "", io.EOF
		}
		return line, nil
	}
}

// Send writes msg and counts the delivery as activity, so a participant who
// only reads is not dropped by the idle read timeout.
func (t *lineTransport) Send(_ context.Context, msg chat.Message) error {
	if err := t.conn.WriteLine(FormatMessage(msg, t.loc)); err != nil {
		return err
	}
	t.conn.ExtendReadDeadline()
	return nil
}

func (t *lineTransport) Close() error { return t.conn.Close() }

func (t *lineTransport) RemoteAddr() string { return t.conn.RemoteAddr() }
