package test

import (
	"strconv"
	"strings"
	"testing"
)

// AssertStatus checks that raw starts with an HTTP/1.1 status line for
// status.
func AssertStatus(t testing.TB, raw string, status int) bool {
	t.Helper()

	prefix := "HTTP/1.1 " + strconv.Itoa(status)
	if !strings.HasPrefix(raw, prefix) {
		t.Errorf(""+
			"Unexpected status line: \n"+
			"Expected prefix: %s\n"+
			"Actual: %q", prefix, firstLine(raw))
		return false
	}

	return true
}

func firstLine(raw string) string {
	line, _, _ := strings.Cut(raw, "\r\n")
	return line
}
