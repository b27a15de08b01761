// Package serverpool implements the Server Pool (spec.md §4.3): one
// Connector per configured server, shared by up to
// connections·pipeline_depth concurrent fetches (the Pool opens no further
// connections of its own), priority-ordered failover, and the
// retry/cooldown policy around transient and auth failures.
package serverpool

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"gonzbd/internal/domain"
	"gonzbd/internal/logger"
	"gonzbd/internal/retry"
)

const authCooldown = 5 * time.Minute

// Connector is implemented by internal/nntp.Client; narrowed for testing.
type Connector interface {
	ID() string
	Priority() int
	MaxConnections() int
	PipelineDepth() int
	Fetch(ctx context.Context, messageID string) (io.ReadCloser, error)
	Close() error
}

type managedServer struct {
	conn      Connector
	semaphore chan struct{}

	mu          sync.Mutex
	unhealthy   bool
	cooldownEnd time.Time
}

func (m *managedServer) markUnhealthy() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unhealthy = true
	m.cooldownEnd = time.Now().Add(authCooldown)
}

func (m *managedServer) healthy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.unhealthy {
		return true
	}
	if time.Now().After(m.cooldownEnd) {
		m.unhealthy = false
		return true
	}
	return false
}

// Pool fans requests out across servers by ascending priority and retries
// transient failures per retry.Policy. Servers that share a priority are
// tried in the same fixed order on every call; there is no round-robin
// among them.
type Pool struct {
	log     *logger.Logger
	policy  retry.Policy
	servers []*managedServer
}

// New builds a Pool from already-constructed connectors (one per
// configured server). Connectors are sorted ascending by Priority(), so
// priority 0 is tried first, matching spec.md §4.3 "ascending priority
// order."
func New(log *logger.Logger, policy retry.Policy, conns []Connector) *Pool {
	servers := make([]*managedServer, 0, len(conns))
	for _, c := range conns {
		depth := c.PipelineDepth()
		if depth < 1 {
			depth = 1
		}
		servers = append(servers, &managedServer{
			conn:      c,
			semaphore: make(chan struct{}, c.MaxConnections()*depth),
		})
	}
	sort.Slice(servers, func(i, j int) bool {
		return servers[i].conn.Priority() < servers[j].conn.Priority()
	})
	return &Pool{log: log, policy: policy, servers: servers}
}

// TotalCapacity is Σ server.connections · pipeline_depth, the bound the
// Download Engine sizes its in-flight article set to (spec.md §4.8). The
// per-server semaphore is already sized to connections*pipeline_depth (see
// New), so this is just the sum of those capacities.
func (p *Pool) TotalCapacity() int {
	total := 0
	for _, s := range p.servers {
		total += cap(s.semaphore)
	}
	return total
}

// Fetch implements the full acquisition contract of spec.md §4.3: priority
// failover, per-server semaphore, not-found tracking via missingFrom,
// transient retry via the configured retry.Policy, and auth cooldown.
func (p *Pool) Fetch(ctx context.Context, messageID string, missingFrom map[string]bool) (io.ReadCloser, error) {
	if len(p.servers) == 0 {
		return nil, domain.ErrNoServersConfigured
	}
	if missingFrom == nil {
		missingFrom = make(map[string]bool)
	}

	var lastErr error
	allMissing := true

	for _, s := range p.servers {
		if missingFrom[s.conn.ID()] {
			continue
		}
		allMissing = false

		if !s.healthy() {
			continue
		}

		rc, err := p.fetchFromServer(ctx, s, messageID)
		if err == nil {
			return rc, nil
		}

		var fe *domain.FetchError
		if errors.As(err, &fe) {
			switch fe.Kind {
			case domain.FetchErrNotFound:
				missingFrom[s.conn.ID()] = true
				continue
			case domain.FetchErrAuthFailed:
				s.markUnhealthy()
				if p.log != nil {
					p.log.Warn("server %s auth failed, cooling down", s.conn.ID())
				}
				lastErr = err
				continue
			default:
				lastErr = err
				continue
			}
		}
		lastErr = err
	}

	if allMissing || len(missingFrom) == len(p.servers) {
		return nil, &domain.FetchError{Kind: domain.FetchErrNotFound, Err: domain.ErrArticleNotFound}
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, domain.ErrProviderBusy
}

// fetchFromServer acquires the per-server semaphore slot (non-blocking —
// a busy server is skipped in favor of the next one in priority order, exactly
// as the teacher's Manager.Fetch does) and retries transient failures on
// this server per the configured policy before giving up on it.
func (p *Pool) fetchFromServer(ctx context.Context, s *managedServer, messageID string) (io.ReadCloser, error) {
	select {
	case s.semaphore <- struct{}{}:
	default:
		return nil, domain.ErrProviderBusy
	}

	release := func() { <-s.semaphore }

	attempt := 0
	for {
		rc, err := s.conn.Fetch(ctx, messageID)
		if err == nil {
			return &releasingReader{ReadCloser: rc, release: release}, nil
		}

		var fe *domain.FetchError
		if !errors.As(err, &fe) || fe.Kind != domain.FetchErrTransient {
			release()
			return nil, err
		}

		if p.policy.Done(attempt) {
			release()
			return nil, err
		}

		delay := p.policy.Next(attempt)
		attempt++
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			release()
			return nil, ctx.Err()
		}
	}
}

// releasingReader returns the per-server semaphore slot only once the
// caller has finished reading the article body, not when the fetch call
// itself returns.
type releasingReader struct {
	io.ReadCloser
	release func()
	once    sync.Once
}

func (r *releasingReader) Close() error {
	err := r.ReadCloser.Close()
	r.once.Do(r.release)
	return err
}

// CloseAll shuts down every underlying connector.
func (p *Pool) CloseAll() error {
	var firstErr error
	for _, s := range p.servers {
		if err := s.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
