// Package health checks the database pool for readiness probes and the
// doctor command.
package health

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// SQLConfig holds configuration for SQL health checks.
type SQLConfig struct {
	// PingEnabled enables the ping check.
	PingEnabled bool

	// LatencyThreshold is the maximum acceptable ping latency.
	LatencyThreshold time.Duration

	// PoolEnabled enables connection pool monitoring.
	PoolEnabled bool

	// PoolWarnPct is the in-use percentage at which the pool is reported degraded.
	PoolWarnPct int
}

// DefaultSQLConfig returns the default SQL health configuration.
func DefaultSQLConfig() SQLConfig {
	return SQLConfig{
		PingEnabled:      true,
		LatencyThreshold: 500 * time.Millisecond,
		PoolEnabled:      true,
		PoolWarnPct:      80,
	}
}

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
	Stats() sql.DBStats
}

// Result is the outcome of one check. A degraded result is still healthy:
// only a failed ping takes the service out of rotation.
type Result struct {
	Healthy   bool                   `json:"healthy"`
	Degraded  bool                   `json:"degraded"`
	Message   string                 `json:"message"`
	Duration  time.Duration          `json:"duration"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// SQLChecker checks a database pool.
type SQLChecker struct {
	name   string
	config SQLConfig
	db     Pinger
}

// NewSQLChecker returns a checker for db.
func NewSQLChecker(name string, config SQLConfig, db Pinger) *SQLChecker {
	return &SQLChecker{name: name, config: config, db: db}
}

// Name returns the checker name.
func (c *SQLChecker) Name() string {
	return c.name
}

// Check pings the database and inspects pool usage. Slow pings and a busy or
// exhausted pool mark the result degraded. An unhealthy result is not an
// error; the error return is reserved for a missing pool.
func (c *SQLChecker) Check(ctx context.Context) (Result, error) {
	start := time.Now()
	result := Result{
		Healthy:   true,
		Timestamp: start,
		Metadata:  make(map[string]interface{}),
	}

	if c.db == nil {
		result.Healthy = false
		result.Message = "no database connection configured"
		result.Duration = time.Since(start)
		return result, fmt.Errorf("no database connection")
	}

	var messages []string

	if c.config.PingEnabled {
		pingStart := time.Now()
		if err := c.db.PingContext(ctx); err != nil {
			result.Healthy = false
			messages = append(messages, fmt.Sprintf("ping failed: %v", err))
		} else {
			latency := time.Since(pingStart)
			result.Metadata["ping_latency_ms"] = latency.Milliseconds()
			if c.config.LatencyThreshold > 0 && latency > c.config.LatencyThreshold {
				result.Degraded = true
				messages = append(messages, fmt.Sprintf("ping latency %v exceeds threshold %v", latency, c.config.LatencyThreshold))
			}
		}
	}

	if c.config.PoolEnabled {
		stats := c.db.Stats()
		result.Metadata["open_connections"] = stats.OpenConnections
		result.Metadata["in_use_connections"] = stats.InUse
		result.Metadata["max_open_connections"] = stats.MaxOpenConnections

		if stats.MaxOpenConnections > 0 {
			usagePct := (stats.InUse * 100) / stats.MaxOpenConnections
			result.Metadata["pool_usage_pct"] = usagePct

			switch {
			case stats.InUse >= stats.MaxOpenConnections:
				result.Degraded = true
				result.Metadata["pool_status"] = "exhausted"
				messages = append(messages, fmt.Sprintf("connection pool exhausted: %d/%d", stats.InUse, stats.MaxOpenConnections))
			case usagePct >= c.config.PoolWarnPct:
				result.Degraded = true
				result.Metadata["pool_status"] = "degraded"
				messages = append(messages, fmt.Sprintf("connection pool at %d%% usage", usagePct))
			default:
				result.Metadata["pool_status"] = "healthy"
			}
		}
	}

	result.Duration = time.Since(start)
	switch {
	case len(messages) > 0:
		result.Message = strings.Join(messages, "; ")
	default:
		result.Message = "all checks passed"
	}
	return result, nil
}
