package testutil

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"
)

// DefaultExpectTimeout bounds how long LineClient.Expect waits for output.
const DefaultExpectTimeout = 2 * time.Second

// LineClient is a raw TCP client for driving the line protocol in tests.
type LineClient struct {
	conn   net.Conn
	reader *bufio.Reader
	t      *testing.T
}

// NewLineClient dials addr and registers cleanup with t.
//
// Precondition: addr must be a "host:port" with a listening server.
// Postcondition: Returns a connected client or fails the test.
func NewLineClient(t *testing.T, addr string) *LineClient {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		t.Fatalf("connecting to %s: %v", addr, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return &LineClient{conn: conn, reader: bufio.NewReader(conn), t: t}
}

// Expect reads until substr has been seen and returns everything read,
// including the match. Fails the test after DefaultExpectTimeout.
func (c *LineClient) Expect(substr string) string {
	c.t.Helper()
	return c.ExpectWithin(substr, DefaultExpectTimeout)
}

// ExpectWithin is Expect with an explicit timeout.
func (c *LineClient) ExpectWithin(substr string, timeout time.Duration) string {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(timeout))

	var buf strings.Builder
	for {
		b, err := c.reader.ReadByte()
		if err != nil {
			c.t.Fatalf("waiting for %q: got %q, error: %v", substr, buf.String(), err)
		}
		buf.WriteByte(b)
		if strings.Contains(buf.String(), substr) {
			return buf.String()
		}
	}
}

// ExpectClosed waits for the server to close the connection.
func (c *LineClient) ExpectClosed() {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(DefaultExpectTimeout))
	for {
		if _, err := c.reader.ReadByte(); err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				c.t.Fatal("connection still open")
			}
			return
		}
	}
}

// Send writes text followed by CRLF.
func (c *LineClient) Send(text string) {
	c.t.Helper()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if _, err := fmt.Fprintf(c.conn, "%s\r\n", text); err != nil {
		c.t.Fatalf("sending %q: %v", text, err)
	}
}

// Close closes the connection.
func (c *LineClient) Close() {
	_ = c.conn.Close()
}
