package health

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubDB implements Pinger with canned answers.
type stubDB struct {
	pingErr     error
	pingLatency time.Duration
	stats       sql.DBStats
}

func (s *stubDB) PingContext(context.Context) error {
	if s.pingLatency > 0 {
		time.Sleep(s.pingLatency)
	}
	return s.pingErr
}

func (s *stubDB) Stats() sql.DBStats {
	return s.stats
}

func TestDefaultSQLConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultSQLConfig()
	assert.True(t, cfg.PingEnabled)
	assert.True(t, cfg.PoolEnabled)
	assert.Equal(t, 500*time.Millisecond, cfg.LatencyThreshold)
	assert.Equal(t, 80, cfg.PoolWarnPct)
}

func TestSQLCheckerCheck(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		db          *stubDB
		config      SQLConfig
		wantHealthy bool
		wantDegrade bool
		wantStatus  string
		wantMessage string
	}{
		{
			name:        "healthy",
			db:          &stubDB{stats: sql.DBStats{MaxOpenConnections: 10, InUse: 2, OpenConnections: 3}},
			config:      DefaultSQLConfig(),
			wantHealthy: true,
			wantStatus:  "healthy",
			wantMessage: "all checks passed",
		},
		{
			name:        "ping fails",
			db:          &stubDB{pingErr: errors.New("connection refused")},
			config:      DefaultSQLConfig(),
			wantHealthy: false,
			wantMessage: "ping failed: connection refused",
		},
		{
			name:        "slow ping is degraded",
			db:          &stubDB{pingLatency: 20 * time.Millisecond},
			config:      SQLConfig{PingEnabled: true, LatencyThreshold: time.Millisecond},
			wantHealthy: true,
			wantDegrade: true,
			wantMessage: "exceeds threshold",
		},
		{
			name:        "pool degraded stays healthy",
			db:          &stubDB{stats: sql.DBStats{MaxOpenConnections: 10, InUse: 9}},
			config:      DefaultSQLConfig(),
			wantHealthy: true,
			wantDegrade: true,
			wantStatus:  "degraded",
			wantMessage: "90% usage",
		},
		{
			name:        "pool exhausted is degraded",
			db:          &stubDB{stats: sql.DBStats{MaxOpenConnections: 10, InUse: 10}},
			config:      DefaultSQLConfig(),
			wantHealthy: true,
			wantDegrade: true,
			wantStatus:  "exhausted",
			wantMessage: "exhausted: 10/10",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			checker := NewSQLChecker("database", tt.config, tt.db)
			result, err := checker.Check(context.Background())
			require.NoError(t, err)

			assert.Equal(t, tt.wantHealthy, result.Healthy)
			assert.Equal(t, tt.wantDegrade, result.Degraded)
			assert.Contains(t, result.Message, tt.wantMessage)
			if tt.wantStatus != "" {
				assert.Equal(t, tt.wantStatus, result.Metadata["pool_status"])
			}
		})
	}
}

func TestSQLCheckerWithoutDB(t *testing.T) {
	t.Parallel()

	result, err := NewSQLChecker("database", DefaultSQLConfig(), nil).Check(context.Background())
	assert.Error(t, err)
	assert.False(t, result.Healthy)
}

func TestSQLCheckerWithSQLMock(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectPing()

	checker := NewSQLChecker("database", DefaultSQLConfig(), db)
	assert.Equal(t, "database", checker.Name())

	result, err := checker.Check(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Healthy)
	assert.NoError(t, mock.ExpectationsWereMet())
}
