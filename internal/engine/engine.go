// Package engine implements the batched load pipeline shared by every
// entity migration step: server-side cursor reads from the legacy
// database, per-row transformation, duplicate detection against the
// destination, bulk insert-or-update with per-row fallback, and
// deferred resolution of cross-row references through a staging
// relation. Entity steps configure the engine; they do not extend it.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/relaydesk/rdm/internal/report"
)

const (
	// DefaultFetchSize bounds rows per cursor fetch.
	DefaultFetchSize = 500
	// DefaultWriteSize bounds rows per insert statement.
	DefaultWriteSize = 500
)

// Options tune a run. Zero values fall back to defaults in New.
type Options struct {
	// FetchSize is the number of rows requested per cursor fetch.
	FetchSize int
	// WriteSize is the maximum number of rows per insert statement.
	WriteSize int
	// TenantID restricts every source query to one tenant when > 0.
	TenantID int64
	// DryRun reads, transforms and resolves identities but performs no
	// writes; candidate rows are reported as inserted.
	DryRun bool

	Logger   *slog.Logger
	Progress report.StepReporter
}

// Engine runs entity steps against a pair of open connections. It owns
// no global state: per-step working state is created inside RunStep and
// discarded when the step ends, and the cross-step identifier maps live
// in a RunMaps owned by the run.
type Engine struct {
	source *pgx.Conn
	target *pgx.Conn
	opts   Options

	maps     *RunMaps
	log      *slog.Logger
	progress report.StepReporter
}

// New creates an engine over already-open source and target
// connections. The engine never closes them; the caller opened them and
// the caller releases them.
func New(source, target *pgx.Conn, opts Options) (*Engine, error) {
	if source == nil {
		return nil, fmt.Errorf("source connection is required")
	}
	if target == nil {
		return nil, fmt.Errorf("target connection is required")
	}
	if opts.FetchSize <= 0 {
		opts.FetchSize = DefaultFetchSize
	}
	if opts.WriteSize <= 0 {
		opts.WriteSize = DefaultWriteSize
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	progress := opts.Progress
	if progress == nil {
		progress = report.NopReporter{}
	}
	return &Engine{
		source:   source,
		target:   target,
		opts:     opts,
		maps:     NewRunMaps(),
		log:      log,
		progress: progress,
	}, nil
}

// Maps exposes the run's old-id to new-id maps. Later steps read the
// maps earlier steps populated.
func (e *Engine) Maps() *RunMaps { return e.maps }

// LoadMap seeds the step's identifier map from destination rows written
// by a previous run or a previous step, keyed by the legacy_id column
// every destination table carries. Returns the number of entries added.
func (e *Engine) LoadMap(ctx context.Context, step Step) (int, error) {
	m := e.maps.Kind(step.Name)
	added := 0

	rows, err := e.target.Query(ctx,
		fmt.Sprintf("SELECT id, legacy_id FROM %s WHERE legacy_id IS NOT NULL", step.Table))
	if err != nil {
		return 0, fmt.Errorf("loading %s id map: %w", step.Name, err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var legacyID string
		if err := rows.Scan(&id, &legacyID); err != nil {
			return added, fmt.Errorf("loading %s id map: %w", step.Name, err)
		}
		if m.Set(legacyID, id) {
			added++
		}
	}
	if err := rows.Err(); err != nil {
		return added, fmt.Errorf("loading %s id map: %w", step.Name, err)
	}
	rows.Close()

	// Steps may publish extra map entries under derived old-ids (for
	// example a per-company default channel). AliasSQL reconstructs
	// those entries so resumed runs see the same map a fresh run built.
	if step.AliasSQL != "" {
		rows, err := e.target.Query(ctx, step.AliasSQL)
		if err != nil {
			return added, fmt.Errorf("loading %s alias map: %w", step.Name, err)
		}
		defer rows.Close()
		for rows.Next() {
			var alias string
			var id int64
			if err := rows.Scan(&alias, &id); err != nil {
				return added, fmt.Errorf("loading %s alias map: %w", step.Name, err)
			}
			if m.Set(alias, id) {
				added++
			}
		}
		if err := rows.Err(); err != nil {
			return added, fmt.Errorf("loading %s alias map: %w", step.Name, err)
		}
	}
	return added, nil
}

// RunStep executes one entity step to completion. The returned
// StepResult is non-nil even on failure so the caller can report
// partial counts. A non-nil error means the step aborted: restart
// granularity is the whole step, never a partial batch.
func (e *Engine) RunStep(ctx context.Context, step Step) (*StepResult, error) {
	res := &StepResult{Step: step.Name, State: StatePending}
	start := time.Now()
	fail := func(err error) (*StepResult, error) {
		res.State = StateFailed
		res.Elapsed = time.Since(start)
		return res, fmt.Errorf("step %s: %w", step.Name, err)
	}

	if err := step.Validate(); err != nil {
		return fail(err)
	}
	if err := e.validateStep(ctx, step); err != nil {
		return fail(err)
	}

	res.State = StateCounting
	total, err := e.countSource(ctx, step.Source)
	if err != nil {
		return fail(err)
	}
	res.Total = total

	rs := report.Step{Name: step.Name, Index: step.Index, Total: step.Total}
	e.progress.StartStep(rs, total)
	e.log.Debug("step started", "step", step.Name, "rows", total, "tenant", e.opts.TenantID)

	// Existing destination rows are authoritative: seed the map before
	// the first batch so re-runs resolve them as already migrated.
	if _, err := e.LoadMap(ctx, step); err != nil {
		return fail(err)
	}

	run := &stepRun{}
	if step.Keys.Synthetic != nil {
		run.usedKeys, err = e.loadKeySet(ctx, step)
		if err != nil {
			return fail(err)
		}
	}
	if len(step.Refs) > 0 && !e.opts.DryRun {
		if err := e.ensureStaging(ctx); err != nil {
			return fail(err)
		}
	}

	res.State = StateStreaming
	cur, err := e.openCursor(ctx, step.Source)
	if err != nil {
		return fail(err)
	}
	defer cur.Close(ctx)

	for {
		batch, err := cur.Next(ctx)
		if err != nil {
			// A broken cursor cannot be resumed mid-stream.
			return fail(fmt.Errorf("reading source batch: %w", err))
		}
		if len(batch) == 0 {
			break
		}
		br, rowErrs, err := e.processBatch(ctx, step, run, batch)
		if err != nil {
			return fail(err)
		}
		res.Processed += len(batch)
		res.add(br)
		res.Errors = append(res.Errors, rowErrs...)
		e.progress.Progress(rs, res.Processed, total)
	}
	cur.Close(ctx)

	if len(step.Refs) > 0 && !e.opts.DryRun {
		res.State = StateResolving
		if err := e.resolveRefs(ctx, step); err != nil {
			return fail(err)
		}
		if err := e.dropStaging(ctx); err != nil {
			return fail(err)
		}
	}

	res.State = StateDone
	res.Elapsed = time.Since(start)
	e.progress.CompleteStep(rs, res.Processed, res.Elapsed)
	e.log.Debug("step complete",
		"step", step.Name,
		"processed", res.Processed,
		"inserted", res.Inserted,
		"existing", res.Existing,
		"skipped", res.Skipped,
		"errored", res.Errored,
	)
	return res, nil
}

// stepRun holds working state owned by a single step execution.
type stepRun struct {
	// usedKeys is the synthetic-key collision set: destination values
	// loaded at step start plus every key reserved during this run.
	usedKeys map[string]struct{}
}

func (e *Engine) processBatch(ctx context.Context, step Step, run *stepRun, rows []SourceRow) (BatchResult, []string, error) {
	var br BatchResult
	var rowErrs []string

	payloads := make([]*TargetPayload, 0, len(rows))
	for _, row := range rows {
		p, err := step.Transform(row, e.maps)
		switch {
		case errors.Is(err, ErrSkipRow):
			br.Skipped++
		case err != nil:
			br.Errored++
			rowErrs = append(rowErrs, fmt.Sprintf("%s: transform: %v", step.Name, err))
		default:
			payloads = append(payloads, p)
		}
	}

	candidates, existing, err := e.resolveIdentities(ctx, step, payloads)
	if err != nil {
		return br, rowErrs, err
	}
	br.Existing += existing

	if step.Keys.Synthetic != nil {
		candidates, br.Errored, rowErrs = e.assignSyntheticKeys(step, run, candidates, br.Errored, rowErrs)
	}

	if e.opts.DryRun {
		br.Inserted += len(candidates)
		return br, rowErrs, nil
	}

	wr, wErrs, err := e.writeBatch(ctx, step, candidates)
	if err != nil {
		return br, rowErrs, err
	}
	br.Inserted += wr.Inserted
	br.Errored += wr.Errored
	rowErrs = append(rowErrs, wErrs...)

	// Aliases resolve to the row's id whether it was written now or
	// already existed.
	m := e.maps.Kind(step.Name)
	for _, p := range payloads {
		if !p.resolved {
			continue
		}
		for _, alias := range p.Aliases {
			m.Set(alias, p.newID)
		}
	}

	if len(step.Refs) > 0 {
		if err := e.stageRefs(ctx, step, payloads); err != nil {
			return br, rowErrs, err
		}
	}
	return br, rowErrs, nil
}

// assignSyntheticKeys reserves a collision-free generated key for every
// candidate that still needs one. Reservation happens against the
// in-memory set before any database round-trip, so two candidates in
// the same batch can never claim the same key. A candidate that
// exhausts its attempts is dropped as errored.
func (e *Engine) assignSyntheticKeys(step Step, run *stepRun, candidates []*TargetPayload, errored int, rowErrs []string) ([]*TargetPayload, int, []string) {
	spec := step.Keys.Synthetic
	kept := candidates[:0]
	for _, p := range candidates {
		if v, ok := p.Values[spec.Column]; ok && v != nil && v != "" {
			kept = append(kept, p)
			continue
		}
		id, _ := parseID(p.OldID)
		key, err := ReserveKey(id, run.usedKeys, spec.Generate, spec.MaxAttempts)
		if err != nil {
			errored++
			rowErrs = append(rowErrs, fmt.Sprintf("%s: old_id %s: %v", step.Name, p.OldID, err))
			continue
		}
		p.Values[spec.Column] = key
		kept = append(kept, p)
	}
	return kept, errored, rowErrs
}

// loadKeySet seeds the synthetic-key collision set from values already
// stored in the destination.
func (e *Engine) loadKeySet(ctx context.Context, step Step) (map[string]struct{}, error) {
	col := step.Keys.Synthetic.Column
	used := make(map[string]struct{})
	rows, err := e.target.Query(ctx,
		fmt.Sprintf("SELECT %s FROM %s WHERE %s IS NOT NULL", col, step.Table, col))
	if err != nil {
		return nil, fmt.Errorf("loading %s.%s key set: %w", step.Table, col, err)
	}
	defer rows.Close()
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("loading %s.%s key set: %w", step.Table, col, err)
		}
		used[k] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("loading %s.%s key set: %w", step.Table, col, err)
	}
	return used, nil
}

func (e *Engine) countSource(ctx context.Context, q SourceQuery) (int, error) {
	var n int
	if err := e.source.QueryRow(ctx, buildSourceCount(q, e.opts.TenantID)).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting %s: %w", q.Table, err)
	}
	return n, nil
}
