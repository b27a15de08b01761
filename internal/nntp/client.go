// Package nntp implements a single-connection NNTP client: dial, TLS
// upgrade, authentication, and pipelined BODY retrieval. Pooling, failover,
// and retry across many of these live one layer up in internal/serverpool.
package nntp

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"strings"
	"sync"
	"time"

	"gonzbd/internal/domain"
)

type Client struct {
	cfg domain.ServerConfig

	mu   sync.Mutex // serializes command issuance; response reads are pipelined
	conn *textproto.Conn
}

// NewClient returns an unconnected Client. The connection is established
// lazily on first Fetch, matching the teacher's ensureConnected pattern.
func NewClient(cfg domain.ServerConfig) *Client {
	return &Client{cfg: cfg}
}

func (c *Client) ID() string             { return c.cfg.ID }
func (c *Client) Priority() int          { return c.cfg.Priority }
func (c *Client) MaxConnections() int    { return c.cfg.Connections }
func (c *Client) PipelineDepth() int     { return c.cfg.PipelineDepth }

// Connect dials, completes the TLS handshake if configured, reads the
// server greeting, and authenticates. Safe to call once before handing the
// Client to a pool; Fetch will call it lazily if skipped.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ensureConnectedLocked()
}

func (c *Client) ensureConnectedLocked() error {
	if c.conn != nil {
		return nil
	}

	addr := fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.Port)

	var rwc io.ReadWriteCloser
	var err error
	if c.cfg.TLS {
		rwc, err = tls.Dial("tcp", addr, &tls.Config{ServerName: c.cfg.Host, MinVersion: tls.VersionTLS12})
	} else {
		rwc, err = net.DialTimeout("tcp", addr, 15*time.Second)
	}
	if err != nil {
		return &domain.FetchError{Kind: domain.FetchErrTransient, Server: c.cfg.ID, Err: err}
	}

	conn := textproto.NewConn(rwc)

	// Usenet servers greet with 200 (posting allowed) or 201 (read only).
	code, msg, err := conn.ReadCodeLine(0)
	if err == nil && code != 200 && code != 201 {
		err = fmt.Errorf("unexpected greeting %d %s", code, msg)
	}
	if err != nil {
		conn.Close()
		return &domain.FetchError{Kind: domain.FetchErrProtocol, Server: c.cfg.ID, Err: err}
	}

	c.conn = conn

	if err := c.authenticateLocked(); err != nil {
		c.conn.Close()
		c.conn = nil
		return err
	}

	return nil
}

func (c *Client) authenticateLocked() error {
	if c.cfg.Username == "" {
		return nil
	}

	if _, err := c.conn.Cmd("AUTHINFO USER %s", c.cfg.Username); err != nil {
		return &domain.FetchError{Kind: domain.FetchErrTransient, Server: c.cfg.ID, Err: err}
	}
	if _, _, err := c.conn.ReadCodeLine(381); err != nil {
		return &domain.FetchError{Kind: domain.FetchErrAuthFailed, Server: c.cfg.ID, Err: err}
	}

	if _, err := c.conn.Cmd("AUTHINFO PASS %s", c.cfg.Password); err != nil {
		return &domain.FetchError{Kind: domain.FetchErrTransient, Server: c.cfg.ID, Err: err}
	}
	if _, _, err := c.conn.ReadCodeLine(281); err != nil {
		return &domain.FetchError{Kind: domain.FetchErrAuthFailed, Server: c.cfg.ID, Err: err}
	}

	return nil
}

// Fetch issues a pipelined BODY command and returns a reader over the
// dot-stuffed article body. The returned ReadCloser's Close completes the
// pipeline response slot (textproto.Conn.EndResponse) only once the caller
// has finished reading — unlike issuing EndResponse via a bare defer
// immediately after StartResponse, which would release the slot before the
// body is actually drained and let a second pipelined response race the
// first on the same underlying reader.
func (c *Client) Fetch(ctx context.Context, messageID string) (io.ReadCloser, error) {
	c.mu.Lock()
	if err := c.ensureConnectedLocked(); err != nil {
		c.mu.Unlock()
		return nil, err
	}

	formatted := messageID
	if !strings.HasPrefix(formatted, "<") {
		formatted = "<" + formatted + ">"
	}

	id, err := c.conn.Cmd("BODY %s", formatted)
	conn := c.conn
	c.mu.Unlock()
	if err != nil {
		return nil, &domain.FetchError{Kind: domain.FetchErrTransient, Server: c.cfg.ID, Err: err}
	}

	conn.StartResponse(id)

	if ctx.Err() != nil {
		conn.EndResponse(id)
		return nil, ctx.Err()
	}

	code, msg, err := conn.ReadCodeLine(222)
	if err != nil {
		conn.EndResponse(id)
		return nil, classifyFetchError(c.cfg.ID, code, msg, err)
	}

	dr := conn.DotReader()
	return &pipelineBody{Reader: dr, end: func() { conn.EndResponse(id) }}, nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	c.conn.Cmd("QUIT")
	err := c.conn.Close()
	c.conn = nil
	return err
}

// classifyFetchError maps an NNTP status code to the FetchErrorKind the
// server pool branches on (spec.md §4.3).
func classifyFetchError(server string, code int, msg string, err error) error {
	switch code {
	case 430:
		return &domain.FetchError{Kind: domain.FetchErrNotFound, Server: server, Err: err}
	case 480, 481, 482, 502:
		return &domain.FetchError{Kind: domain.FetchErrAuthFailed, Server: server, Err: err}
	case 0:
		return &domain.FetchError{Kind: domain.FetchErrTransient, Server: server, Err: err}
	default:
		return &domain.FetchError{Kind: domain.FetchErrProtocol, Server: server, Err: fmt.Errorf("%d %s: %w", code, msg, err)}
	}
}

type pipelineBody struct {
	io.Reader
	end     func()
	closed  bool
	closeMu sync.Mutex
}

func (b *pipelineBody) Close() error {
	b.closeMu.Lock()
	defer b.closeMu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	b.end()
	return nil
}
