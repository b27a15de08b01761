package nntp

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gonzbd/internal/domain"
)

// fakeServer speaks just enough NNTP to exercise Client: greeting,
// AUTHINFO USER/PASS, and a single BODY response.
func fakeServer(t *testing.T, body string) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)

		fmt.Fprintf(conn, "200 welcome\r\n")

		line, _ := r.ReadString('\n')
		if strings.HasPrefix(line, "AUTHINFO USER") {
			fmt.Fprintf(conn, "381 password required\r\n")
			r.ReadString('\n') // AUTHINFO PASS
			fmt.Fprintf(conn, "281 auth accepted\r\n")
			line, _ = r.ReadString('\n')
		}

		if strings.HasPrefix(line, "BODY") {
			fmt.Fprintf(conn, "222 body follows\r\n")
			for _, l := range strings.Split(body, "\n") {
				fmt.Fprintf(conn, "%s\r\n", l)
			}
			fmt.Fprintf(conn, ".\r\n")
		}
	}()

	t.Cleanup(func() { ln.Close() })
	return ln.Addr().String()
}

func splitHostPort(t *testing.T, addr string) (string, int) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	var port int
	_, err = fmt.Sscanf(portStr, "%d", &port)
	require.NoError(t, err)
	return host, port
}

func TestClientFetchReturnsBody(t *testing.T) {
	addr := fakeServer(t, "hello\nworld")
	host, port := splitHostPort(t, addr)

	c := NewClient(domain.ServerConfig{
		ID: "test", Host: host, Port: port,
		Username: "user", Password: "pass",
		Connections: 1, PipelineDepth: 1, Priority: 1,
	})
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	rc, err := c.Fetch(ctx, "abc123@example")
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "hello\nworld\n", string(data))
}

func TestClientMetadata(t *testing.T) {
	c := NewClient(domain.ServerConfig{ID: "s1", Priority: 2, Connections: 5, PipelineDepth: 3})
	assert.Equal(t, "s1", c.ID())
	assert.Equal(t, 2, c.Priority())
	assert.Equal(t, 5, c.MaxConnections())
	assert.Equal(t, 3, c.PipelineDepth())
}
