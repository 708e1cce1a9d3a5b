// Package testutil holds helpers shared by integration tests.
package testutil

import (
	"bytes"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/cory-johannsen/rollbot/internal/frontend/telnet"
)

// TelnetClient is a simple Telnet test client for integration testing.
// Negotiation bytes and ANSI color codes are removed from everything it reads.
type TelnetClient struct {
	conn net.Conn
	t    *testing.T
	buf  bytes.Buffer
}

// NewTelnetClient dials the given address and returns a test client.
//
// Precondition: addr must be a valid "host:port" string with a listening server.
// Postcondition: Returns a connected TelnetClient or fails the test.
func NewTelnetClient(t *testing.T, addr string) *TelnetClient {
	t.Helper()
	start := time.Now()

	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		t.Fatalf("connecting to %s: %v [%s]", addr, err, time.Since(start))
	}

	t.Cleanup(func() {
		conn.Close()
	})

	t.Logf("telnet client connected to %s [%s]", addr, time.Since(start))
	return &TelnetClient{conn: conn, t: t}
}

// ReadUntil reads until the plain-text output contains substr or timeout
// elapses. It returns the text up to and including the match; anything read
// past the match is kept for the next call.
//
// Precondition: substr must be non-empty.
// Postcondition: Returns the accumulated output containing substr, or fails on timeout.
func (c *TelnetClient) ReadUntil(substr string, timeout time.Duration) string {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(timeout))

	tmp := make([]byte, 1024)
	for {
		text := telnet.StripANSI(c.buf.String())
		if idx := strings.Index(text, substr); idx >= 0 {
			end := idx + len(substr)
			c.buf.Reset()
			c.buf.WriteString(text[end:])
			return text[:end]
		}

		n, err := c.conn.Read(tmp)
		if n > 0 {
			c.buf.Write(stripIAC(tmp[:n]))
		}
		if err != nil {
			c.t.Fatalf("reading until %q: got %q, error: %v", substr, telnet.StripANSI(c.buf.String()), err)
		}
	}
}

// ExpectClosed fails the test unless the server closes the connection
// within timeout.
func (c *TelnetClient) ExpectClosed(timeout time.Duration) {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(timeout))
	tmp := make([]byte, 1024)
	for {
		_, err := c.conn.Read(tmp)
		if err == nil {
			continue
		}
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			c.t.Fatalf("connection still open after %s", timeout)
		}
		return
	}
}

// Send writes a line of text to the server, appending \r\n.
//
// Precondition: text should not contain trailing newline characters.
// Postcondition: text + \r\n is written to the connection.
func (c *TelnetClient) Send(text string) {
	c.t.Helper()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	_, err := fmt.Fprintf(c.conn, "%s\r\n", text)
	if err != nil {
		c.t.Fatalf("sending %q: %v", text, err)
	}
}

// Close closes the underlying connection.
func (c *TelnetClient) Close() {
	c.conn.Close()
}

// stripIAC drops three-byte option negotiations. The server only ever
// sends WILL/WONT/DO/DONT, so subnegotiation is not handled.
func stripIAC(p []byte) []byte {
	out := make([]byte, 0, len(p))
	for i := 0; i < len(p); i++ {
		if p[i] == telnet.IAC && i+2 < len(p) {
			i += 2
			continue
		}
		out = append(out, p[i])
	}
	return out
}
