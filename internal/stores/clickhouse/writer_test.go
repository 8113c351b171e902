package clickhouse

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"teamrelay/internal/config"
	"teamrelay/internal/domain"
	"teamrelay/internal/testutil"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn only implements PrepareBatch; other driver.Conn methods panic
type fakeConn struct {
	driver.Conn

	mu       sync.Mutex
	queries  []string
	rows     [][]any
	failures int
}

func (c *fakeConn) PrepareBatch(_ context.Context, query string, _ ...driver.PrepareBatchOption) (driver.Batch, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queries = append(c.queries, query)
	if c.failures > 0 {
		c.failures--
		return nil, errors.New("code: 210, connection refused")
	}
	return &fakeBatch{conn: c}, nil
}

func (c *fakeConn) sent() [][]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]any(nil), c.rows...)
}

func (c *fakeConn) prepared() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.queries...)
}

type fakeBatch struct {
	driver.Batch

	conn    *fakeConn
	pending [][]any
}

func (b *fakeBatch) Append(v ...any) error {
	b.pending = append(b.pending, v)
	return nil
}

func (b *fakeBatch) Abort() error { return nil }

func (b *fakeBatch) Send() error {
	b.conn.mu.Lock()
	b.conn.rows = append(b.conn.rows, b.pending...)
	b.conn.mu.Unlock()
	return nil
}

func testConfig() config.ClickHouseConfig {
	return config.ClickHouseConfig{
		Enabled: true,
		Table:   "team_notifications",
		Writer: config.ClickHouseWriterConfig{
			BatchMaxRows:     2,
			BatchMaxInterval: time.Hour,
			MaxRetries:       1,
			RetryBackoff:     time.Millisecond,
		},
	}
}

func record(recipient, team string, status domain.Status) domain.NotificationRecord {
	return domain.NewNotificationRecord(recipient, team, status, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))
}

func TestWriter_FlushOnBatchSize(t *testing.T) {
	conn := &fakeConn{}
	w := NewWriter(testutil.Logger(), conn, testConfig())
	defer func() { _ = w.Close(context.Background()) }()

	ctx := context.Background()
	require.NoError(t, w.Record(ctx, record("a@example.com", "Team A", domain.StatusSent)))
	require.NoError(t, w.Record(ctx, record("b@example.com", "Team B", domain.StatusFailed)))

	require.Eventually(t, func() bool { return len(conn.sent()) == 2 }, time.Second, 5*time.Millisecond)

	rows := conn.sent()
	assert.Equal(t, "a@example.com", rows[0][2])
	assert.Equal(t, "Team A", rows[0][3])
	assert.Equal(t, "sent", rows[0][4])
	assert.Equal(t, "failed", rows[1][4])
	assert.Contains(t, conn.prepared()[0], "INSERT INTO team_notifications")
}

func TestWriter_CloseFlushesPending(t *testing.T) {
	conn := &fakeConn{}
	w := NewWriter(testutil.Logger(), conn, testConfig())

	require.NoError(t, w.Record(context.Background(), record("a@example.com", "Team A", domain.StatusSuppressed)))

	require.NoError(t, w.Close(context.Background()))
	assert.Len(t, conn.sent(), 1)

	// closing twice is fine
	require.NoError(t, w.Close(context.Background()))
}

func TestWriter_RecordAfterClose(t *testing.T) {
	w := NewWriter(testutil.Logger(), &fakeConn{}, testConfig())
	require.NoError(t, w.Close(context.Background()))

	err := w.Record(context.Background(), record("a@example.com", "Team A", domain.StatusSent))
	assert.ErrorIs(t, err, ErrWriterClosed)
}

func TestWriter_RetriesFailedInsert(t *testing.T) {
	conn := &fakeConn{failures: 1}
	w := NewWriter(testutil.Logger(), conn, testConfig())

	ctx := context.Background()
	require.NoError(t, w.Record(ctx, record("a@example.com", "Team A", domain.StatusSent)))
	require.NoError(t, w.Close(ctx))

	assert.Len(t, conn.sent(), 1)
	assert.Len(t, conn.prepared(), 2)
}

func TestNewWriter_Defaults(t *testing.T) {
	w := NewWriter(testutil.Logger(), &fakeConn{}, config.ClickHouseConfig{Writer: config.ClickHouseWriterConfig{MaxRetries: -1}})
	defer func() { _ = w.Close(context.Background()) }()

	assert.Equal(t, "team_notifications", w.cfg.Table)
	assert.Equal(t, 500, w.cfg.Writer.BatchMaxRows)
	assert.Equal(t, time.Second, w.cfg.Writer.BatchMaxInterval)
	assert.Equal(t, 0, w.cfg.Writer.MaxRetries)
	assert.Equal(t, 200*time.Millisecond, w.cfg.Writer.RetryBackoff)
}

func TestNew_NilConfig(t *testing.T) {
	_, err := New(context.Background(), nil)
	assert.Error(t, err)
}
