package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/alanyoungcy/dexbot/internal/domain"
)

// ObjectWriter is the upload surface the archiver needs. *Writer satisfies
// it.
type ObjectWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// ArchiverConfig controls the archival loop. Records older than
// RetentionDays are moved to the object store and deleted from Postgres.
type ArchiverConfig struct {
	RetentionDays int
	Interval      time.Duration
}

// Archiver periodically moves aged trades and error-log rows out of the
// primary store into JSONL objects. The upload happens before the delete,
// so a failed upload leaves the rows in place for the next run.
type Archiver struct {
	writer ObjectWriter
	trades domain.TradeStore
	errs   domain.ErrorStore
	cfg    ArchiverConfig
	logger *slog.Logger
}

func NewArchiver(writer ObjectWriter, trades domain.TradeStore, errs domain.ErrorStore, cfg ArchiverConfig, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer: writer,
		trades: trades,
		errs:   errs,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// Run executes the archive loop until ctx is cancelled.
func (a *Archiver) Run(ctx context.Context) error {
	a.logger.Info("archiver started",
		slog.Duration("interval", a.cfg.Interval),
		slog.Int("retention_days", a.cfg.RetentionDays),
	)
	defer a.logger.Info("archiver stopped")

	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := a.Archive(ctx, time.Now().UTC()); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				a.logger.Error("archive run failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Archive moves everything older than the retention window.
func (a *Archiver) Archive(ctx context.Context, now time.Time) error {
	cutoff := now.AddDate(0, 0, -a.cfg.RetentionDays)

	if err := a.archiveTrades(ctx, cutoff); err != nil {
		return err
	}
	return a.archiveErrors(ctx, cutoff)
}

func (a *Archiver) archiveTrades(ctx context.Context, cutoff time.Time) error {
	rows, err := a.trades.ListBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("s3blob: list trades for archive: %w", err)
	}
	if len(rows) == 0 {
		return nil
	}

	body, err := toJSONL(rows)
	if err != nil {
		return fmt.Errorf("s3blob: encode trades: %w", err)
	}
	key := archiveKey("trades", cutoff)
	if err := a.writer.Put(ctx, key, body, "application/x-ndjson"); err != nil {
		return err
	}

	deleted, err := a.trades.DeleteBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("s3blob: prune archived trades: %w", err)
	}
	a.logger.Info("trades archived",
		slog.String("key", key),
		slog.Int("uploaded", len(rows)),
		slog.Int64("deleted", deleted),
	)
	return nil
}

func (a *Archiver) archiveErrors(ctx context.Context, cutoff time.Time) error {
	rows, err := a.errs.ListBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("s3blob: list errors for archive: %w", err)
	}
	if len(rows) == 0 {
		return nil
	}

	body, err := toJSONL(rows)
	if err != nil {
		return fmt.Errorf("s3blob: encode errors: %w", err)
	}
	key := archiveKey("errors", cutoff)
	if err := a.writer.Put(ctx, key, body, "application/x-ndjson"); err != nil {
		return err
	}

	deleted, err := a.errs.DeleteBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("s3blob: prune archived errors: %w", err)
	}
	a.logger.Info("errors archived",
		slog.String("key", key),
		slog.Int("uploaded", len(rows)),
		slog.Int64("deleted", deleted),
	)
	return nil
}

// archiveKey names objects by kind and cutoff month, with a timestamp
// suffix so repeated runs in the same month never clobber each other.
func archiveKey(kind string, cutoff time.Time) string {
	return fmt.Sprintf("archive/%s/%s/%s-%d.jsonl",
		kind, cutoff.Format("2006/01"), kind, time.Now().UTC().Unix())
}

func toJSONL[T any](rows []T) (*bytes.Buffer, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, row := range rows {
		if err := enc.Encode(row); err != nil {
			return nil, err
		}
	}
	return &buf, nil
}
