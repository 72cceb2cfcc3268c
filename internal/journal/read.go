package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/twinsync/twinsync/internal/bridge"
	"github.com/twinsync/twinsync/internal/sim"
)

// RunRow is one journaled run.
type RunRow struct {
	ID         string
	StartedAt  time.Time
	FinishedAt *time.Time
	Authority  string
	SyncColor  bool
	SyncLights bool
	StepLength time.Duration
	Ticks      int64
}

// TickRow is one journaled tick.
type TickRow struct {
	Seq      int64
	Elapsed  time.Duration
	Mirrored int
	Digest   string
}

// EventRow is one journaled propagation event with its tick sequence.
type EventRow struct {
	Seq int64
	bridge.Event
}

// Runs lists every run, oldest first. Returns an empty slice, not nil,
// when the journal is empty.
func (s *Store) Runs(ctx context.Context) ([]RunRow, error) {
	rows, err := s.query(ctx, `
		SELECT r.id, r.started_at, r.finished_at, r.authority, r.sync_color, r.sync_lights, r.step_us,
		       (SELECT COUNT(*) FROM ticks t WHERE t.run_id = r.id)
		FROM runs r
		ORDER BY r.started_at ASC, r.id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []RunRow{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// LatestRun returns the most recently started run.
func (s *Store) LatestRun(ctx context.Context) (RunRow, error) {
	rows, err := s.query(ctx, `
		SELECT r.id, r.started_at, r.finished_at, r.authority, r.sync_color, r.sync_lights, r.step_us,
		       (SELECT COUNT(*) FROM ticks t WHERE t.run_id = r.id)
		FROM runs r
		ORDER BY r.started_at DESC, r.id COLLATE BINARY DESC
		LIMIT 1
	`)
	if err != nil {
		return RunRow{}, fmt.Errorf("query latest run: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return RunRow{}, fmt.Errorf("query latest run: %w", err)
		}
		return RunRow{}, fmt.Errorf("journal has no runs")
	}
	return scanRun(rows)
}

// Ticks returns a run's ticks within the filter's sequence bounds,
// ordered by sequence.
func (s *Store) Ticks(ctx context.Context, runID string, f Filter) ([]TickRow, error) {
	where, params := f.compileTicks(runID)
	rows, err := s.query(ctx, `
		SELECT seq, elapsed_us, mirrored, digest
		FROM ticks `+where+`
		ORDER BY seq ASC
	`, params...)
	if err != nil {
		return nil, fmt.Errorf("query ticks: %w", err)
	}
	defer rows.Close()

	ticks := []TickRow{}
	for rows.Next() {
		var tick TickRow
		var elapsedUS int64
		if err := rows.Scan(&tick.Seq, &elapsedUS, &tick.Mirrored, &tick.Digest); err != nil {
			return nil, fmt.Errorf("scan tick: %w", err)
		}
		tick.Elapsed = time.Duration(elapsedUS) * time.Microsecond
		ticks = append(ticks, tick)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ticks: %w", err)
	}
	return ticks, nil
}

// Events returns a run's propagation events matching the filter, ordered
// by tick sequence with insertion order as the tiebreaker.
func (s *Store) Events(ctx context.Context, runID string, f Filter) ([]EventRow, error) {
	where, params := f.compile(runID)
	rows, err := s.query(ctx, `
		SELECT seq, kind, direction, source, mirror, landmark, detail
		FROM events `+where+`
		ORDER BY seq ASC, id ASC
	`, params...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []EventRow{}
	for rows.Next() {
		var ev EventRow
		var kind, direction, source, mirror, landmark string
		if err := rows.Scan(&ev.Seq, &kind, &direction, &source, &mirror, &landmark, &ev.Detail); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Kind = bridge.EventKind(kind)
		ev.Direction = bridge.Direction(direction)
		ev.Source = sim.ActorID(source)
		ev.Mirror = sim.ActorID(mirror)
		ev.Landmark = sim.LandmarkID(landmark)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

func scanRun(rows *sql.Rows) (RunRow, error) {
	var run RunRow
	var started string
	var finished sql.NullString
	var syncColor, syncLights int
	var stepUS int64
	err := rows.Scan(&run.ID, &started, &finished, &run.Authority, &syncColor, &syncLights, &stepUS, &run.Ticks)
	if err != nil {
		return RunRow{}, fmt.Errorf("scan run: %w", err)
	}

	run.StartedAt, err = time.Parse(time.RFC3339Nano, started)
	if err != nil {
		return RunRow{}, fmt.Errorf("parse started_at: %w", err)
	}
	if finished.Valid {
		t, err := time.Parse(time.RFC3339Nano, finished.String)
		if err != nil {
			return RunRow{}, fmt.Errorf("parse finished_at: %w", err)
		}
		run.FinishedAt = &t
	}
	run.SyncColor = syncColor != 0
	run.SyncLights = syncLights != 0
	run.StepLength = time.Duration(stepUS) * time.Microsecond
	return run, nil
}
