package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/observability"
	_ "github.com/lib/pq" // PostgreSQL driver
)

// PoolConfig holds database connection configuration
type PoolConfig struct {
	PrimaryURL  string
	ReplicaURLs []string
	MaxConns    int
	MinConns    int
	Timeout     time.Duration
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

// Pool holds the primary connection used for writes and optional read
// replicas. Replicas that fail to open or ping are skipped.
type Pool struct {
	primary  *sql.DB
	replicas []*sql.DB
	current  atomic.Uint32
	mu       sync.RWMutex
}

// Open connects to the primary and any configured replicas
func Open(ctx context.Context, cfg PoolConfig, logger *observability.Logger) (*Pool, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}

	primary, err := openDB(ctx, cfg.PrimaryURL, cfg, cfg.MaxConns)
	if err != nil {
		return nil, fmt.Errorf("failed to open primary: %w", err)
	}
	p := &Pool{primary: primary}

	replicaConns := max(cfg.MaxConns/2, 2)
	for i, url := range cfg.ReplicaURLs {
		replica, err := openDB(ctx, url, cfg, replicaConns)
		if err != nil {
			logger.WithError(err).WithField("replica", i).Warn("Skipping unavailable read replica")
			continue
		}
		p.replicas = append(p.replicas, replica)
	}

	logger.WithField("replicas", len(p.replicas)).Info("Database pool initialized")
	return p, nil
}

// NewPool wraps already opened handles
func NewPool(primary *sql.DB, replicas ...*sql.DB) *Pool {
	return &Pool{primary: primary, replicas: replicas}
}

func openDB(ctx context.Context, url string, cfg PoolConfig, maxConns int) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(cfg.MinConns)
	db.SetConnMaxLifetime(cfg.MaxLifetime)
	db.SetConnMaxIdleTime(cfg.MaxIdleTime)

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping: %w", err)
	}
	return db, nil
}

// Primary returns the connection used for writes and transactions
func (p *Pool) Primary() *sql.DB {
	return p.primary
}

// Replica returns a read replica in round-robin order, or the primary
// when none are available
func (p *Pool) Replica() *sql.DB {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.replicas) == 0 {
		return p.primary
	}
	i := p.current.Add(1)
	return p.replicas[int(i%uint32(len(p.replicas)))]
}

// RemoveUnhealthyReplicas closes and drops replicas that fail to ping
func (p *Pool) RemoveUnhealthyReplicas(ctx context.Context) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	healthy := p.replicas[:0]
	removed := 0
	for _, replica := range p.replicas {
		if err := replica.PingContext(ctx); err != nil {
			replica.Close()
			removed++
			continue
		}
		healthy = append(healthy, replica)
	}
	p.replicas = healthy
	return removed
}

// Handles returns the primary and current replicas keyed by a stable name
// for pool statistics
func (p *Pool) Handles() map[string]*sql.DB {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := map[string]*sql.DB{"primary": p.primary}
	for i, replica := range p.replicas {
		out[fmt.Sprintf("replica-%d", i)] = replica
	}
	return out
}

// Close closes all connections
func (p *Pool) Close() error {
	var errs []error
	if err := p.primary.Close(); err != nil {
		errs = append(errs, fmt.Errorf("primary close error: %w", err))
	}

	p.mu.Lock()
	replicas := p.replicas
	p.replicas = nil
	p.mu.Unlock()

	for i, replica := range replicas {
		if err := replica.Close(); err != nil {
			errs = append(errs, fmt.Errorf("replica-%d close error: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// ParseReplicaURLs parses a comma-separated list of replica URLs
func ParseReplicaURLs(s string) []string {
	if s == "" {
		return nil
	}
	var urls []string
	for _, url := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(url); trimmed != "" {
			urls = append(urls, trimmed)
		}
	}
	return urls
}
