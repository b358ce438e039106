package telnet

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

// Telnet command and option bytes (RFC 854, RFC 858).
const (
	IAC  byte = 255
	DONT byte = 254
	DO   byte = 253
	WONT byte = 252
	WILL byte = 251
	SB   byte = 250
	SE   byte = 240

	OptSuppressGoAhead byte = 3
)

// ErrLineTooLong is returned when a client sends a line longer than the limit.
var ErrLineTooLong = errors.New("line too long")

// Conn is a line-oriented Telnet connection. Reads strip protocol
// negotiation; writes are serialized and bounded by a deadline.
type Conn struct {
	raw    net.Conn
	reader *bufio.Reader

	writeMu sync.Mutex
	once    sync.Once

	readTimeout  time.Duration
	writeTimeout time.Duration
	maxLine      int
}

// NewConn wraps raw. A zero timeout disables that deadline; maxLine <= 0
// disables the line length limit.
//
// Precondition: raw must be an open connection.
func NewConn(raw net.Conn, readTimeout, writeTimeout time.Duration, maxLine int) *Conn {
	return &Conn{
		raw:          raw,
		reader:       bufio.NewReaderSize(raw, 4096),
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
		maxLine:      maxLine,
	}
}

// Negotiate announces that the server suppresses go-ahead.
func (c *Conn) Negotiate() error {
	return c.write([]byte{IAC, WILL, OptSuppressGoAhead})
}

// ReadLine returns the next line without its terminator. CR, LF, and CRLF all
// end a line; IAC sequences and control characters other than tab are dropped.
//
// Postcondition: Returns io.EOF when the peer closed the connection, or
// ErrLineTooLong after discarding the rest of an oversized line.
func (c *Conn) ReadLine() (string, error) {
	c.ExtendReadDeadline()

	var line bytes.Buffer
	tooLong := false
	for {
		b, err := c.reader.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) && line.Len() > 0 && !tooLong {
				return line.String(), nil
			}
			return "", err
		}

		switch {
		case b == IAC:
			if err := c.skipCommand(); err != nil {
				return "", err
			}
			continue
		case b == '\n':
		case b == '\r':
			if next, err := c.reader.Peek(1); err == nil && (next[0] == '\n' || next[0] == 0) {
				_, _ = c.reader.ReadByte()
			}
		case b < 0x20 && b != '\t', b == 0x7f:
			continue
		default:
			if c.maxLine > 0 && line.Len() >= c.maxLine {
				tooLong = true
				continue
			}
			line.WriteByte(b)
			continue
		}

		if tooLong {
			return "", fmt.Errorf("%w: limit %d bytes", ErrLineTooLong, c.maxLine)
		}
		return line.String(), nil
	}
}

// ExtendReadDeadline restarts the idle read timeout. It may be called while
// another goroutine is blocked in ReadLine.
func (c *Conn) ExtendReadDeadline() {
	if c.readTimeout > 0 {
		_ = c.raw.SetReadDeadline(time.Now().Add(c.readTimeout))
	}
}

// skipCommand consumes the remainder of an IAC sequence.
func (c *Conn) skipCommand() error {
	cmd, err := c.reader.ReadByte()
	if err != nil {
		return err
	}
	switch cmd {
	case WILL, WONT, DO, DONT:
		_, err = c.reader.ReadByte()
		return err
	case SB:
		var prev byte
		for {
			b, err := c.reader.ReadByte()
			if err != nil {
				return err
			}
			if prev == IAC && b == SE {
				return nil
			}
			prev = b
		}
	}
	return nil
}

// WriteLine sends text followed by CRLF.
func (c *Conn) WriteLine(text string) error {
	return c.write([]byte(text + "\r\n"))
}

// WritePrompt sends text with no line terminator.
func (c *Conn) WritePrompt(text string) error {
	return c.write([]byte(text))
}

func (c *Conn) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.writeTimeout > 0 {
		_ = c.raw.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	_, err := c.raw.Write(data)
	return err
}

// Close closes the underlying connection. Idempotent.
func (c *Conn) Close() error {
	var err error
	c.once.Do(func() { err = c.raw.Close() })
	return err
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() string {
	return c.raw.RemoteAddr().String()
}
