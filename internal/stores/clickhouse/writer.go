package clickhouse

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"teamrelay/internal/config"
	"teamrelay/internal/domain"
	"teamrelay/internal/metrics"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"gitlab.com/nevasik7/alerting/logger"
)

var ErrWriterClosed = errors.New("clickhouse writer closed")

const defaultTable = "team_notifications"

// NotificationRow is one line of the notification journal
type NotificationRow struct {
	ID        string
	EventTime time.Time
	Recipient string
	TeamName  string
	Status    string
	Error     string
}

func rowFromRecord(rec domain.NotificationRecord) NotificationRow {
	return NotificationRow{
		ID:        rec.ID.String(),
		EventTime: rec.At,
		Recipient: rec.Recipient,
		TeamName:  rec.TeamName,
		Status:    string(rec.Status),
		Error:     rec.Error,
	}
}

// Writer batches notification rows and inserts them in the background
type Writer struct {
	log logger.Logger

	conn  driver.Conn
	cfg   config.ClickHouseConfig
	query string

	inCh      chan NotificationRow
	closedCh  chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewWriter(log logger.Logger, conn driver.Conn, cfg config.ClickHouseConfig) *Writer {
	if cfg.Table == "" {
		cfg.Table = defaultTable
	}
	if cfg.Writer.BatchMaxRows <= 0 {
		cfg.Writer.BatchMaxRows = 500
	}
	if cfg.Writer.BatchMaxInterval <= 0 {
		cfg.Writer.BatchMaxInterval = time.Second
	}
	if cfg.Writer.MaxRetries < 0 {
		cfg.Writer.MaxRetries = 0
	}
	if cfg.Writer.RetryBackoff <= 0 {
		cfg.Writer.RetryBackoff = 200 * time.Millisecond
	}

	w := &Writer{
		log:      log,
		conn:     conn,
		cfg:      cfg,
		query:    fmt.Sprintf("INSERT INTO %s (id, event_time, recipient, team_name, status, error)", cfg.Table),
		inCh:     make(chan NotificationRow, 1024),
		closedCh: make(chan struct{}),
	}

	w.wg.Add(1)
	go w.loop()

	return w
}

// Record implements the notifier journal; it never blocks on a full buffer
func (w *Writer) Record(_ context.Context, rec domain.NotificationRecord) error {
	return w.Enqueue(rowFromRecord(rec))
}

func (w *Writer) Enqueue(row NotificationRow) error {
	select {
	case <-w.closedCh:
		return ErrWriterClosed
	default:
	}

	select {
	case w.inCh <- row:
		return nil
	case <-w.closedCh:
		return ErrWriterClosed
	default:
		metrics.JournalRows.WithLabelValues("dropped").Inc()
		return errors.New("clickhouse writer buffer full")
	}
}

// Close stops intake, flushes what is buffered and waits for the loop
func (w *Writer) Close(ctx context.Context) error {
	w.closeOnce.Do(func() {
		close(w.closedCh)
	})

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Writer) loop() {
	defer w.wg.Done()

	batch := make([]NotificationRow, 0, w.cfg.Writer.BatchMaxRows)
	ticker := time.NewTicker(w.cfg.Writer.BatchMaxInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}

		if err := w.insertBatch(context.Background(), batch); err != nil {
			metrics.JournalRows.WithLabelValues("failed").Add(float64(len(batch)))
			w.log.Errorf("Failed insert [%d] rows by batch to clickhouse, error=%v", len(batch), err)
		} else {
			metrics.JournalRows.WithLabelValues("written").Add(float64(len(batch)))
		}
		batch = batch[:0]
	}

	for {
		select {
		case row := <-w.inCh:
			batch = append(batch, row)
			if len(batch) >= w.cfg.Writer.BatchMaxRows {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-w.closedCh:
			// drain what was accepted before close
			for {
				select {
				case row := <-w.inCh:
					batch = append(batch, row)
				default:
					flush()
					return
				}
			}
		}
	}
}

func (w *Writer) insertBatch(ctx context.Context, rows []NotificationRow) error {
	if len(rows) == 0 {
		return nil
	}

	// repeat with exponential delay
	backoff := w.cfg.Writer.RetryBackoff

	var lastErr error
	for attempt := 0; attempt <= w.cfg.Writer.MaxRetries; attempt++ {
		if lastErr = w.sendOnce(ctx, rows); lastErr == nil {
			return nil
		}
		if attempt == w.cfg.Writer.MaxRetries {
			break
		}
		time.Sleep(backoff)
		backoff *= 2
	}

	return lastErr
}

func (w *Writer) sendOnce(ctx context.Context, rows []NotificationRow) error {
	batch, err := w.conn.PrepareBatch(ctx, w.query)
	if err != nil {
		return err
	}

	for i := range rows {
		r := &rows[i]
		if err = batch.Append(
			r.ID,
			r.EventTime,
			r.Recipient,
			r.TeamName,
			r.Status,
			r.Error,
		); err != nil {
			_ = batch.Abort()
			return err
		}
	}

	return batch.Send()
}
