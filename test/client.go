// Package test holds helpers for talking to a server over raw TCP in tests.
package test

import (
	"io"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const exchangeTimeout = 10 * time.Second

// Exchange dials addr, sends raw, closes the write side and returns
// everything the server sent until it closed the connection.
func Exchange(t testing.TB, addr, raw string) string {
	t.Helper()

	out, err := Do(addr, raw)
	require.NoError(t, err)
	return out
}

// Do is Exchange for goroutines that must not call t.FailNow.
func Do(addr, raw string) (string, error) {
	conn, err := net.DialTimeout("tcp", addr, exchangeTimeout)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(exchangeTimeout)); err != nil {
		return "", err
	}
	if _, err := io.WriteString(conn, raw); err != nil {
		return "", err
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		if err := tcp.CloseWrite(); err != nil {
			return "", err
		}
	}

	out, err := io.ReadAll(conn)
	return string(out), err
}

// Get sends a bodiless request for target.
func Get(t testing.TB, addr, method, target string) string {
	t.Helper()
	return Exchange(t, addr, method+" "+target+" HTTP/1.1\r\nHost: "+addr+"\r\n\r\n")
}

// Response is a raw HTTP response split into its parts. Header names are
// lower-cased.
type Response struct {
	StatusLine string
	Status     int
	Headers    map[string]string
	Body       string
}

func ParseResponse(t testing.TB, raw string) Response {
	t.Helper()

	head, body, found := strings.Cut(raw, "\r\n\r\n")
	require.Truef(t, found, "response has no header terminator: %q", raw)

	lines := strings.Split(head, "\r\n")
	res := Response{
		StatusLine: lines[0],
		Headers:    make(map[string]string),
		Body:       body,
	}

	parts := strings.SplitN(lines[0], " ", 3)
	require.GreaterOrEqualf(t, len(parts), 2, "malformed status line %q", lines[0])
	status, err := strconv.Atoi(parts[1])
	require.NoError(t, err)
	res.Status = status

	for _, line := range lines[1:] {
		name, value, ok := strings.Cut(line, ":")
		require.Truef(t, ok, "malformed header line %q", line)
		res.Headers[strings.ToLower(name)] = strings.TrimSpace(value)
	}
	return res
}
