package telnet

import (
	"context"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/chatrelay/internal/chat"
	"github.com/cory-johannsen/chatrelay/internal/relay"
	"github.com/cory-johannsen/chatrelay/internal/testutil"
)

func startLobby(t *testing.T, reg *chat.Registry) *Acceptor {
	t.Helper()
	logger := zaptest.NewLogger(t)
	lobby := NewLobbyHandler(reg, logger,
		WithLocation(time.UTC),
		WithRelayOptions(relay.WithLogger(logger)),
	)
	acc := NewAcceptor(testTelnetConfig(), 256, lobby, logger)
	startAcceptor(t, acc)
	t.Cleanup(acc.Stop)
	return acc
}

func join(t *testing.T, addr, room, name string) *testutil.LineClient {
	t.Helper()
	c := testutil.NewLineClient(t, addr)
	c.Expect("room> ")
	c.Send(room)
	c.Expect("name> ")
	c.Send(name)
	c.Expect("joined")
	return c
}

func TestLobby_RelaysBetweenClients(t *testing.T) {
	reg := chat.NewRegistry()
	room := reg.Create("general", 0)
	acc := startLobby(t, reg)

	alice := join(t, acc.Addr(), room.ID().String(), "alice")
	bob := join(t, acc.Addr(), "1", "bob")
	require.Eventually(t, func() bool { return room.Topic().Receivers() == 2 },
		2*time.Second, 10*time.Millisecond)

	alice.Send("hello bob")
	out := StripANSI(bob.Expect("hello bob"))
	assert.Contains(t, out, "alice: hello bob")
	assert.Regexp(t, `\[\d{2}:\d{2}:\d{2}\] alice: hello bob`, out)
	alice.Expect("hello bob")

	alice.Send("/quit")
	alice.ExpectClosed()
	require.Eventually(t, func() bool { return room.Topic().Receivers() == 1 },
		2*time.Second, 10*time.Millisecond)
}

func TestLobby_UnknownRoomReprompts(t *testing.T) {
	reg := chat.NewRegistry()
	room := reg.Create("general", 0)
	acc := startLobby(t, reg)

	c := testutil.NewLineClient(t, acc.Addr())
	c.Expect("room> ")
	c.Send("no-such-room")
	c.Expect("room not found")
	c.Expect("room> ")
	c.Send("7")
	c.Expect("room not found")
	c.Send(room.ID().String())
	c.Expect("name> ")
}

func TestLobby_BlankNameIsUnauthorized(t *testing.T) {
	reg := chat.NewRegistry()
	reg.Create("general", 0)
	acc := startLobby(t, reg)

	c := testutil.NewLineClient(t, acc.Addr())
	c.Expect("room> ")
	c.Send("1")
	c.Expect("name> ")
	c.Send("   ")
	c.Expect("unauthorized")
	c.ExpectClosed()
}

func TestLobby_CreateRoom(t *testing.T) {
	reg := chat.NewRegistry()
	acc := startLobby(t, reg)

	c := testutil.NewLineClient(t, acc.Addr())
	c.Expect("no rooms yet")
	c.Send("/create lounge")
	c.Expect("name> ")
	c.Send("carol")
	c.Expect("joined")

	require.Equal(t, 1, reg.Len())
	assert.Equal(t, "lounge", reg.List()[0].Name)
}

func TestLobby_QuitFromLobby(t *testing.T) {
	acc := startLobby(t, chat.NewRegistry())

	c := testutil.NewLineClient(t, acc.Addr())
	c.Expect("room> ")
	c.Send("/quit")
	c.Expect("bye")
	c.ExpectClosed()
}

func TestLobby_QuitAtNamePrompt(t *testing.T) {
	reg := chat.NewRegistry()
	reg.Create("general", 0)
	acc := startLobby(t, reg)

	c := testutil.NewLineClient(t, acc.Addr())
	c.Expect("room> ")
	c.Send("1")
	c.Expect("name> ")
	c.Send("/quit")
	c.Expect("bye")
	c.ExpectClosed()
}

func TestLobby_RegistryCloseEndsSession(t *testing.T) {
	reg := chat.NewRegistry()
	room := reg.Create("general", 0)
	acc := startLobby(t, reg)

	c := join(t, acc.Addr(), "1", "dave")
	require.Eventually(t, func() bool { return room.Topic().Receivers() == 1 },
		2*time.Second, 10*time.Millisecond)

	reg.Close()
	c.ExpectClosed()
}

func TestFormatMessage(t *testing.T) {
	msg := chat.Message{
		Sender:    "al\033[2Jice",
		Text:      "hi\r\nthere",
		Timestamp: time.Date(2026, 10, 14, 18, 5, 9, 0, time.UTC),
	}
	line := FormatMessage(msg, time.UTC)
	assert.Equal(t, "[18:05:09] alice: hithere", StripANSI(line))
	assert.True(t, strings.Contains(line, SenderColor("alice")))
}

func TestLineTransport_SendKeepsReaderAlive(t *testing.T) {
	server, client := net.Pipe()
	t.Cleanup(func() {
		_ = server.Close()
		_ = client.Close()
	})
	go func() { _, _ = io.Copy(io.Discard, client) }()

	const idle = 150 * time.Millisecond
	lt := &lineTransport{conn: NewConn(server, idle, time.Second, 0), loc: time.UTC}

	type result struct {
		line string
		err  error
	}
	got := make(chan result, 1)
	go func() {
		line, err := lt.Receive(context.Background())
		got <- result{line, err}
	}()

	// Keep delivering for well past the idle timeout.
	at := time.Date(2026, 10, 14, 18, 0, 0, 0, time.UTC)
	for i := 0; i < 6; i++ {
		time.Sleep(idle / 3)
		require.NoError(t, lt.Send(context.Background(), chat.NewMessage("bob", "ping", at)))
	}
	select {
	case r := <-got:
		t.Fatalf("reader ended while messages were arriving: %q %v", r.line, r.err)
	default:
	}

	// Once deliveries stop, the idle timeout applies again.
	select {
	case r := <-got:
		var netErr net.Error
		require.ErrorAs(t, r.err, &netErr)
		assert.True(t, netErr.Timeout())
	case <-time.After(2 * time.Second):
		t.Fatal("reader did not time out after deliveries stopped")
	}
}
