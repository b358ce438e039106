package telnet

import (
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pipeConn returns a Conn reading whatever is written to the returned peer.
func pipeConn(t *testing.T, maxLine int) (*Conn, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() {
		_ = server.Close()
		_ = client.Close()
	})
	return NewConn(server, 2*time.Second, 2*time.Second, maxLine), client
}

func feed(t *testing.T, peer net.Conn, data []byte) {
	t.Helper()
	go func() {
		_, _ = peer.Write(data)
	}()
}

func TestReadLine_Terminators(t *testing.T) {
	conn, peer := pipeConn(t, 0)
	feed(t, peer, []byte("one\r\ntwo\nthree\rfour\r\x00five\r\n"))

	for _, want := range []string{"one", "two", "three", "four", "five"} {
		line, err := conn.ReadLine()
		require.NoError(t, err)
		assert.Equal(t, want, line)
	}
}

func TestReadLine_StripsNegotiation(t *testing.T) {
	conn, peer := pipeConn(t, 0)
	input := []byte{IAC, WILL, OptSuppressGoAhead, 'h', IAC, DO, 1, 'i'}
	input = append(input, IAC, SB, 24, 0, 'x', 't', IAC, SE)
	input = append(input, '!', '\r', '\n')
	feed(t, peer, input)

	line, err := conn.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "hi!", line)
}

func TestReadLine_DropsControlCharacters(t *testing.T) {
	conn, peer := pipeConn(t, 0)
	feed(t, peer, []byte("a\x1b[31mb\tc\x7f\r\n"))

	line, err := conn.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "a[31mb\tc", line)
}

func TestReadLine_TooLong(t *testing.T) {
	conn, peer := pipeConn(t, 4)
	feed(t, peer, []byte("abcdefgh\r\nok\r\n"))

	_, err := conn.ReadLine()
	assert.ErrorIs(t, err, ErrLineTooLong)

	line, err := conn.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "ok", line)
}

func TestReadLine_EOF(t *testing.T) {
	conn, peer := pipeConn(t, 0)
	go func() {
		_, _ = peer.Write([]byte("partial"))
		_ = peer.Close()
	}()

	line, err := conn.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "partial", line)

	_, err = conn.ReadLine()
	assert.True(t, errors.Is(err, io.EOF))
}

func TestWriteLine(t *testing.T) {
	conn, peer := pipeConn(t, 0)
	go func() { _ = conn.WriteLine("hello") }()

	buf := make([]byte, 16)
	_ = peer.SetReadDeadline(time.Now().Add(time.Second))
	n, err := io.ReadFull(peer, buf[:7])
	require.NoError(t, err)
	assert.Equal(t, "hello\r\n", string(buf[:n]))
}

func TestConn_CloseIsIdempotent(t *testing.T) {
	conn, _ := pipeConn(t, 0)
	require.NoError(t, conn.Close())
	assert.NoError(t, conn.Close())
}
