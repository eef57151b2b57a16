// Package ikou applies ordered, versioned schema changes to a relational
// database and records which of them have run.
package ikou

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"code.cloudfoundry.org/clock"
	"code.cloudfoundry.org/lager/v3"

	"github.com/root-talis/ikou/driver"
	"github.com/root-talis/ikou/lock"
	"github.com/root-talis/ikou/migration"
	"github.com/root-talis/ikou/source"
)

const DefaultLockKey = "ikou"

// ---

type StatusResult struct {
	States       []migration.State
	AppliedCount uint
	PendingCount uint
	MissingCount uint
}

// ---

type Runner struct {
	driver      driver.Driver
	sources     []source.Source
	locker      lock.Locker
	logger      lager.Logger
	clock       clock.Clock
	unitTimeout time.Duration
	lockKey     string
}

type Option func(*Runner)

func WithSources(sources ...source.Source) Option {
	return func(r *Runner) {
		r.sources = append(r.sources, sources...)
	}
}

// WithLocker replaces the driver's own lock, e.g. with a Redis lock
// shared by every deployment of the application.
func WithLocker(locker lock.Locker) Option {
	return func(r *Runner) {
		r.locker = locker
	}
}

func WithLogger(logger lager.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

func WithClock(clk clock.Clock) Option {
	return func(r *Runner) {
		r.clock = clk
	}
}

// WithUnitTimeout bounds every unit's transaction. Zero means no limit.
func WithUnitTimeout(timeout time.Duration) Option {
	return func(r *Runner) {
		r.unitTimeout = timeout
	}
}

func WithLockKey(key string) Option {
	return func(r *Runner) {
		r.lockKey = key
	}
}

// ---

func New(drv driver.Driver, opts ...Option) *Runner {
	r := &Runner{
		driver:  drv,
		locker:  drv,
		logger:  lager.NewLogger("ikou"),
		clock:   clock.NewClock(),
		lockKey: DefaultLockKey,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// ---

// Discover collects units from all sources in ascending ID order. It
// fails on duplicate or empty IDs and on units without an Apply step.
func (r *Runner) Discover(ctx context.Context) ([]migration.Unit, error) {
	units := make([]migration.Unit, 0)
	for _, src := range r.sources {
		found, err := src.Units()
		if err != nil {
			return nil, fmt.Errorf("failed to get the list of available migrations: %w", err)
		}
		units = append(units, found...)
	}

	for _, unit := range units {
		if unit.ID == "" {
			return nil, &migration.DiscoveryError{Reason: fmt.Sprintf("migration %q has an empty id", unit.Name)}
		}
		if unit.Apply == nil {
			return nil, &migration.DiscoveryError{ID: unit.ID, Reason: "migration has no apply procedure"}
		}
	}

	migration.SortUnits(units)

	for i := 1; i < len(units); i++ {
		if units[i-1].ID.Compare(units[i].ID) == 0 {
			return nil, &migration.DiscoveryError{
				ID:     units[i].ID,
				Reason: fmt.Sprintf("%s and %s share the same position", units[i-1], units[i]),
			}
		}
	}

	return units, nil
}

// Status cross-references available units with the bookkeeping table.
// It does not take the migration lock.
func (r *Runner) Status(ctx context.Context) (*StatusResult, error) {
	logger := r.logger.Session("status")

	units, err := r.Discover(ctx)
	if err != nil {
		logger.Error(failedToDiscoverMigrations, err)
		return nil, err
	}

	records, err := r.driver.ListApplied(ctx)
	if err != nil {
		logger.Error(failedToQueryMigrations, err)
		return nil, fmt.Errorf("failed to get the list of applied migrations: %w", err)
	}

	applied := make(map[migration.ID]migration.Record, len(records))
	for _, rec := range records {
		applied[rec.ID] = rec
	}

	result := StatusResult{
		States: make([]migration.State, 0, len(units)+len(records)),
	}

	provided := make(map[migration.ID]bool, len(units))
	for _, unit := range units {
		provided[unit.ID] = true

		state := migration.State{Unit: unit, Status: migration.Pending}
		if rec, ok := applied[unit.ID]; ok {
			state.Status = migration.Applied
			state.AppliedAt = rec.AppliedAt
			result.AppliedCount++
		} else {
			result.PendingCount++
		}

		result.States = append(result.States, state)
	}

	for _, rec := range records {
		if provided[rec.ID] {
			continue
		}

		result.States = append(result.States, migration.State{
			Unit:      migration.Unit{ID: rec.ID, Name: rec.Name},
			Status:    migration.Missing,
			AppliedAt: rec.AppliedAt,
		})
		result.MissingCount++
	}

	sortStates(result.States)

	return &result, nil
}

// Up applies pending units in ascending order up to and including
// target, or all of them when target is empty. Every unit commits on its
// own; on failure the units applied so far stay applied and the count of
// them is returned together with a *migration.ApplyError.
func (r *Runner) Up(ctx context.Context, target migration.ID) (int, error) {
	logger := r.logger.Session("up", lager.Data{"target": target})

	units, err := r.Discover(ctx)
	if err != nil {
		logger.Error(failedToDiscoverMigrations, err)
		return 0, err
	}
	logger.Debug(discoveredMigrations, lager.Data{"count": len(units)})

	if target != "" && !containsID(units, target) {
		return 0, fmt.Errorf("%w: %s", migration.ErrUnknownTarget, target)
	}

	ctx, release, err := r.acquire(ctx, logger)
	if err != nil {
		return 0, err
	}
	defer release()

	records, err := r.readRecords(ctx, logger)
	if err != nil {
		return 0, err
	}

	pending, err := pendingUnits(units, records)
	if err != nil {
		logger.Error(migrationsOutOfOrder, err)
		return 0, err
	}

	count := 0
	for _, unit := range pending {
		if target != "" && target.Less(unit.ID) {
			break
		}

		if err := r.apply(ctx, logger, unit); err != nil {
			return count, err
		}
		count++
	}

	if count == 0 {
		logger.Info(nothingToApply)
	}

	return count, nil
}

// Down reverts the steps most recently applied units, highest ID first.
// Fewer are reverted when fewer are applied.
func (r *Runner) Down(ctx context.Context, steps int) (int, error) {
	logger := r.logger.Session("down", lager.Data{"steps": steps})

	if steps < 1 {
		return 0, fmt.Errorf("%w: %d", migration.ErrInvalidSteps, steps)
	}

	units, err := r.Discover(ctx)
	if err != nil {
		logger.Error(failedToDiscoverMigrations, err)
		return 0, err
	}

	ctx, release, err := r.acquire(ctx, logger)
	if err != nil {
		return 0, err
	}
	defer release()

	records, err := r.readRecords(ctx, logger)
	if err != nil {
		return 0, err
	}

	if len(records) == 0 {
		return 0, migration.ErrNothingToRevert
	}

	if _, err := pendingUnits(units, records); err != nil {
		logger.Error(migrationsOutOfOrder, err)
		return 0, err
	}

	byID := make(map[migration.ID]migration.Unit, len(units))
	for _, unit := range units {
		byID[unit.ID] = unit
	}

	if steps > len(records) {
		steps = len(records)
	}

	toRevert := make([]migration.Unit, 0, steps)
	for i := len(records) - 1; i >= len(records)-steps; i-- {
		rec := records[i]

		unit, ok := byID[rec.ID]
		if !ok {
			return 0, &migration.RevertError{ID: rec.ID, Name: rec.Name, Cause: migration.ErrUnitMissing}
		}
		if !unit.CanRevert() {
			return 0, &migration.RevertError{ID: unit.ID, Name: unit.Name, Cause: migration.ErrIrreversible}
		}

		toRevert = append(toRevert, unit)
	}

	count := 0
	for _, unit := range toRevert {
		if err := r.revert(ctx, logger, unit); err != nil {
			return count, err
		}
		count++
	}

	return count, nil
}

// ---

// acquire takes the run lock. Work done while holding it must use the
// returned context, which ends when the lock is lost.
func (r *Runner) acquire(ctx context.Context, logger lager.Logger) (context.Context, func(), error) {
	held, release, err := r.locker.Acquire(ctx, r.lockKey)
	if err != nil {
		logger.Error(failedToAcquireLock, err, lager.Data{"key": r.lockKey})
		return nil, nil, &migration.LockError{Key: r.lockKey, Cause: err}
	}
	logger.Debug(lockAcquired, lager.Data{"key": r.lockKey})

	return held, func() {
		release()
		logger.Debug(lockReleased, lager.Data{"key": r.lockKey})
	}, nil
}

func (r *Runner) readRecords(ctx context.Context, logger lager.Logger) ([]migration.Record, error) {
	if err := r.driver.EnsureLogTable(ctx); err != nil {
		logger.Error(failedToCreateTable, err)
		return nil, err
	}

	records, err := r.driver.ListApplied(ctx)
	if err != nil {
		logger.Error(failedToQueryMigrations, err)
		return nil, fmt.Errorf("failed to get the list of applied migrations: %w", err)
	}
	logger.Debug(retrievedAppliedMigrations, lager.Data{"count": len(records)})

	return records, nil
}

func (r *Runner) apply(ctx context.Context, logger lager.Logger, unit migration.Unit) error {
	logger = logger.WithData(lager.Data{"id": unit.ID, "name": unit.Name})

	err := r.inTx(ctx, logger, func(ctx context.Context, tx *migration.Tx) error {
		if err := unit.Apply(ctx, tx); err != nil {
			return err
		}

		return r.driver.Record(ctx, tx.Tx, migration.Record{
			ID:        unit.ID,
			Name:      unit.Name,
			AppliedAt: r.clock.Now(),
		})
	})
	if err != nil {
		logger.Error(failedToApplyMigration, err)
		return &migration.ApplyError{ID: unit.ID, Name: unit.Name, Cause: err}
	}

	return nil
}

func (r *Runner) revert(ctx context.Context, logger lager.Logger, unit migration.Unit) error {
	logger = logger.WithData(lager.Data{"id": unit.ID, "name": unit.Name})

	err := r.inTx(ctx, logger, func(ctx context.Context, tx *migration.Tx) error {
		if err := unit.Revert(ctx, tx); err != nil {
			return err
		}

		return r.driver.Forget(ctx, tx.Tx, unit.ID)
	})
	if err != nil {
		logger.Error(failedToRevertMigration, err)
		return &migration.RevertError{ID: unit.ID, Name: unit.Name, Cause: err}
	}

	return nil
}

// inTx runs fn in a transaction of its own, bounded by the unit timeout.
func (r *Runner) inTx(ctx context.Context, logger lager.Logger, fn migration.Func) (err error) {
	logger.Info(starting)

	if r.unitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.unitTimeout)
		defer cancel()
	}

	sqlTx, err := r.driver.BeginTx(ctx)
	if err != nil {
		logger.Error(failedToStartTransaction, err)
		return withCause(ctx, err)
	}

	defer func() {
		if p := recover(); p != nil {
			logger.Error(recoveredPanic, fmt.Errorf("%v", p))
			err = fmt.Errorf("panic: %v", p)
		}
		if err == nil {
			err = ctx.Err()
		}

		err = commit(logger, sqlTx, withCause(ctx, err))
		if err == nil {
			logger.Info(finished)
		}
	}()

	return fn(ctx, migration.NewTx(sqlTx, r.driver.Dialect()))
}

// withCause adds the reason ctx ended to err, e.g. a lost lock, unless err
// already carries it.
func withCause(ctx context.Context, err error) error {
	if err == nil || ctx.Err() == nil {
		return err
	}

	cause := context.Cause(ctx)
	if errors.Is(err, cause) {
		return err
	}

	return fmt.Errorf("%w: %w", cause, err)
}

// ---

// pendingUnits returns units without a record, failing when one of them
// sorts below an applied ID.
func pendingUnits(units []migration.Unit, records []migration.Record) ([]migration.Unit, error) {
	applied := make(map[migration.ID]bool, len(records))
	var highest migration.ID
	for _, rec := range records {
		applied[rec.ID] = true
		if highest == "" || highest.Less(rec.ID) {
			highest = rec.ID
		}
	}

	pending := make([]migration.Unit, 0, len(units))
	for _, unit := range units {
		if applied[unit.ID] {
			continue
		}

		if highest != "" && unit.ID.Less(highest) {
			return nil, fmt.Errorf("%w: %s is pending but %s is applied", migration.ErrOutOfOrder, unit, highest)
		}

		pending = append(pending, unit)
	}

	return pending, nil
}

// containsID matches ids by ordering, so "2" finds unit "002".
func containsID(units []migration.Unit, id migration.ID) bool {
	for _, unit := range units {
		if unit.ID.Compare(id) == 0 {
			return true
		}
	}
	return false
}

func sortStates(states []migration.State) {
	sort.SliceStable(states, func(i, j int) bool {
		return states[i].ID.Less(states[j].ID)
	})
}
