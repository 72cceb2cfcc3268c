package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/twinsync/twinsync/internal/bridge"
)

// RunInfo is the configuration snapshot stored with a run.
type RunInfo struct {
	Authority  string
	SyncColor  bool
	SyncLights bool
	StepLength time.Duration
}

// Run is the write handle for one reconciliation run. It implements
// bridge.Recorder; pass it to the reconciler via bridge.WithRecorder.
type Run struct {
	store *Store
	id    string
}

// BeginRun inserts a new run row and returns its write handle.
// Run ids are time-ordered UUIDs so journal listings sort chronologically.
func (s *Store) BeginRun(ctx context.Context, info RunInfo) (*Run, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("begin run: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, authority, sync_color, sync_lights, step_us)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		id.String(),
		time.Now().UTC().Format(time.RFC3339Nano),
		info.Authority,
		boolInt(info.SyncColor),
		boolInt(info.SyncLights),
		info.StepLength.Microseconds(),
	)
	if err != nil {
		return nil, fmt.Errorf("begin run: %w", err)
	}

	return &Run{store: s, id: id.String()}, nil
}

// ID returns the run's identifier.
func (r *Run) ID() string { return r.id }

// RecordTick implements bridge.Recorder. The tick row and its event rows
// are written in one transaction; a failed write leaves the journal at the
// previous tick boundary.
func (r *Run) RecordTick(ctx context.Context, rec bridge.TickRecord) error {
	digest, err := TickDigest(rec)
	if err != nil {
		return err
	}

	tx, err := r.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record tick %d: %w", rec.Seq, err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO ticks (run_id, seq, elapsed_us, mirrored, digest)
		VALUES (?, ?, ?, ?, ?)
	`, r.id, rec.Seq, rec.Elapsed.Microseconds(), rec.Mirrored, digest)
	if err != nil {
		return fmt.Errorf("record tick %d: %w", rec.Seq, err)
	}

	for _, ev := range rec.Events {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO events (run_id, seq, kind, direction, source, mirror, landmark, detail)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, r.id, rec.Seq, string(ev.Kind), string(ev.Direction),
			string(ev.Source), string(ev.Mirror), string(ev.Landmark), ev.Detail)
		if err != nil {
			return fmt.Errorf("record tick %d event: %w", rec.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("record tick %d: %w", rec.Seq, err)
	}
	return nil
}

// Finish stamps the run's end time. Idempotent; a crashed run simply keeps
// a NULL finished_at.
func (r *Run) Finish(ctx context.Context) error {
	_, err := r.store.db.ExecContext(ctx, `
		UPDATE runs SET finished_at = ? WHERE id = ? AND finished_at IS NULL
	`, time.Now().UTC().Format(time.RFC3339Nano), r.id)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
