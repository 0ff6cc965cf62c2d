package resilience

import (
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTransient_TransientError(t *testing.T) {
	base := errors.New("server returned 503")
	te := NewTransientError(base, 503)

	assert.True(t, IsTransient(te))
	assert.True(t, IsTransient(fmt.Errorf("download failed: %w", te)))
	assert.Equal(t, base.Error(), te.Error())
	assert.ErrorIs(t, te, base)
}

func TestIsTransient_NetworkErrors(t *testing.T) {
	assert.True(t, IsTransient(syscall.ECONNRESET))
	assert.True(t, IsTransient(syscall.ECONNREFUSED))
	assert.True(t, IsTransient(&net.DNSError{Err: "lookup failed", IsTimeout: true}))
}

func TestIsTransient_StringPatterns(t *testing.T) {
	transient := []string{
		"read tcp: connection reset by peer",
		"write: broken pipe",
		"dial tcp: i/o timeout",
		"unexpected EOF",
		"conn closed",
		"FATAL: sorry, too many clients already",
		"FATAL: the database system is starting up",
	}
	for _, msg := range transient {
		assert.True(t, IsTransient(errors.New(msg)), msg)
	}
}

func TestIsTransient_PermanentErrors(t *testing.T) {
	permanent := []error{
		nil,
		errors.New("relation \"geo.zcta\" does not exist"),
		errors.New("syntax error at or near SELECT"),
	}
	for _, err := range permanent {
		assert.False(t, IsTransient(err))
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(code), "%d", code)
	}
	for _, code := range []int{200, 301, 400, 401, 403, 404} {
		assert.False(t, IsTransientHTTPStatus(code), "%d", code)
	}
}
