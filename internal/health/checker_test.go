package health

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_SelectsCheckerType(t *testing.T) {
	assert.Equal(t, "tcp", New(Config{Type: "tcp"}).Type())
	assert.Equal(t, "dns", New(Config{Type: "dns"}).Type())
	assert.Equal(t, "dns", New(Config{}).Type())
}

func TestTCPChecker_Healthy(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err == nil {
			conn.Close()
		}
	}()

	c := NewTCPChecker(Config{Target: ln.Addr().String(), Timeout: time.Second})
	result := c.Check(context.Background())

	assert.True(t, result.Healthy)
	assert.Empty(t, result.Error)
	assert.False(t, result.Timestamp.IsZero())
}

func TestTCPChecker_Unhealthy(t *testing.T) {
	// A listener that is immediately closed leaves a port nothing answers.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	target := ln.Addr().String()
	ln.Close()

	c := NewTCPChecker(Config{Target: target, Timeout: 500 * time.Millisecond})
	result := c.Check(context.Background())

	assert.False(t, result.Healthy)
	assert.NotEmpty(t, result.Error)
}

func TestDNSChecker_UnreachableResolver(t *testing.T) {
	// Nothing listens on this port; the query must fail, not hang.
	c := NewDNSChecker(Config{Target: "127.0.0.1:1", Timeout: 500 * time.Millisecond})
	result := c.Check(context.Background())

	assert.False(t, result.Healthy)
	assert.NotEmpty(t, result.Error)
}

func TestDNSChecker_Defaults(t *testing.T) {
	c := NewDNSChecker(Config{})
	assert.Equal(t, "1.1.1.1:53", c.target)
	assert.Equal(t, 5*time.Second, c.timeout)
}
