// CloudSync - PMS Cloud Synchronization Engine
// Copyright 2026 Stayware
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stayware/cloudsync

// Package sync orchestrates dependency-ordered entity synchronization from
// the provider API into the local record store. One batch covers one
// property; modules inside a batch run strictly in declared dependency
// order while batches for different properties may run concurrently.
package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	stdsync "sync"
	"time"

	"github.com/google/uuid"

	"github.com/stayware/cloudsync/internal/logging"
	"github.com/stayware/cloudsync/internal/metrics"
	"github.com/stayware/cloudsync/internal/models"
	"github.com/stayware/cloudsync/internal/store"
	"github.com/stayware/cloudsync/internal/synclog"
)

// Built-in module names, in dependency order. Extension modules slot in
// after their declared dependencies.
const (
	ModuleProperties   = "properties"
	ModuleRoomTypes    = "room_types"
	ModuleGuests       = "guests"
	ModuleReservations = "reservations"
	ModulePayments     = "payments"
	ModuleItems        = "items"
)

var builtinOrder = []string{
	ModuleProperties,
	ModuleRoomTypes,
	ModuleGuests,
	ModuleReservations,
	ModulePayments,
	ModuleItems,
}

var (
	// ErrSyncRunning means a batch for the property is already in flight.
	// Callers get the error immediately instead of queueing behind it.
	ErrSyncRunning = errors.New("sync: batch already running for property")

	// ErrSyncDisabled means the property or its account is not enabled
	// for synchronization.
	ErrSyncDisabled = errors.New("sync: disabled for property")

	// ErrNoCredentials means the account has neither a valid access token
	// nor a refresh token to obtain one.
	ErrNoCredentials = errors.New("sync: account has no usable credentials")

	// ErrUnknownModule means a requested module name is not registered.
	ErrUnknownModule = errors.New("sync: unknown module")

	// ErrDependencyOrder means an explicit module subset omits a
	// dependency that has never been synced for the property.
	ErrDependencyOrder = errors.New("sync: module subset violates dependencies")
)

// Scope carries the batch coordinates into a module run.
type Scope struct {
	Account  *models.Account
	Property *models.Property
	BatchID  string
	Trigger  models.OperationType

	// Since is the modified-since watermark for incremental modules,
	// zero on a property's first batch.
	Since time.Time
}

// Stats summarizes what one module run touched.
type Stats struct {
	Fetched int
	Stored  int
	Skipped int
}

func (s Stats) String() string {
	return fmt.Sprintf("fetched=%d stored=%d skipped=%d", s.Fetched, s.Stored, s.Skipped)
}

// Module is one synchronization unit. Modules are registered once at
// startup and invoked per property batch.
type Module interface {
	Name() string
	DependsOn() []string
	Sync(ctx context.Context, scope Scope) (Stats, error)
}

// Result is the outcome of one property batch.
type Result struct {
	BatchID  string                       `json:"batch_id"`
	Status   models.SyncStatus            `json:"status"`
	Units    map[string]models.SyncStatus `json:"units"`
	Message  string                       `json:"message,omitempty"`
	Duration time.Duration                `json:"-"`
}

// Orchestrator runs property sync batches with per-property mutual
// exclusion and per-module failure isolation.
type Orchestrator struct {
	store    store.Store
	recorder *synclog.Recorder

	mu       stdsync.Mutex
	modules  map[string]Module
	order    []string
	inflight map[string]bool

	now func() time.Time
}

func NewOrchestrator(s store.Store, recorder *synclog.Recorder) *Orchestrator {
	return &Orchestrator{
		store:    s,
		recorder: recorder,
		modules:  make(map[string]Module),
		order:    append([]string(nil), builtinOrder...),
		inflight: make(map[string]bool),
		now:      time.Now,
	}
}

// Register adds a module. Names outside the built-in set are slotted
// immediately after their last declared dependency, or at the end when
// they declare none.
func (o *Orchestrator) Register(m Module) {
	o.mu.Lock()
	defer o.mu.Unlock()

	name := m.Name()
	o.modules[name] = m

	for _, existing := range o.order {
		if existing == name {
			return
		}
	}

	slot := len(o.order)
	last := -1
	for i, existing := range o.order {
		for _, dep := range m.DependsOn() {
			if existing == dep {
				last = i
			}
		}
	}
	if last >= 0 && last+1 < slot {
		slot = last + 1
	}
	o.order = append(o.order[:slot], append([]string{name}, o.order[slot:]...)...)
	logging.Debug().Str("module", name).Strs("depends_on", m.DependsOn()).Msg("Sync module registered")
}

// SyncProperty runs one batch for the property. With no explicit module
// names every registered module runs in order; an explicit subset is
// validated against declared dependencies first.
func (o *Orchestrator) SyncProperty(ctx context.Context, propertyID string, trigger models.OperationType, moduleNames ...string) (*Result, error) {
	property, err := store.GetProperty(ctx, o.store, propertyID)
	if err != nil {
		return nil, fmt.Errorf("load property %s: %w", propertyID, err)
	}
	account, err := store.GetAccount(ctx, o.store, property.AccountID)
	if err != nil {
		return nil, fmt.Errorf("load account %s: %w", property.AccountID, err)
	}

	if !account.Active || !property.SyncEnabled {
		return nil, ErrSyncDisabled
	}
	if !account.TokenValid(o.now(), 0) && account.SealedRefreshToken == "" {
		return nil, ErrNoCredentials
	}

	plan, err := o.plan(ctx, property, moduleNames)
	if err != nil {
		return nil, err
	}

	if !o.acquire(propertyID) {
		return nil, fmt.Errorf("%w: %s", ErrSyncRunning, propertyID)
	}
	defer o.release(propertyID)

	return o.runBatch(ctx, account, property, trigger, plan)
}

func (o *Orchestrator) acquire(propertyID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.inflight[propertyID] {
		return false
	}
	o.inflight[propertyID] = true
	return true
}

func (o *Orchestrator) release(propertyID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inflight, propertyID)
}

// plan resolves the ordered module list for a batch. A nil subset takes
// every registered module; an explicit subset must name registered modules
// and include each dependency unless it already succeeded for the property
// in an earlier batch.
func (o *Orchestrator) plan(ctx context.Context, property *models.Property, subset []string) ([]string, error) {
	o.mu.Lock()
	order := append([]string(nil), o.order...)
	registered := make(map[string]bool, len(o.modules))
	for name := range o.modules {
		registered[name] = true
	}
	o.mu.Unlock()

	if len(subset) == 0 {
		var plan []string
		for _, name := range order {
			if registered[name] {
				plan = append(plan, name)
			}
		}
		return plan, nil
	}

	requested := make(map[string]bool, len(subset))
	for _, name := range subset {
		if !registered[name] {
			return nil, fmt.Errorf("%w: %s", ErrUnknownModule, name)
		}
		requested[name] = true
	}

	for _, name := range subset {
		for _, dep := range o.modules[name].DependsOn() {
			if requested[dep] {
				continue
			}
			ok, err := o.previouslySynced(ctx, property.ID, dep)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, fmt.Errorf("%w: %s requires %s", ErrDependencyOrder, name, dep)
			}
		}
	}

	var plan []string
	for _, name := range order {
		if requested[name] {
			plan = append(plan, name)
		}
	}
	return plan, nil
}

// previouslySynced reports whether the module has a successful sync log
// entry for the property from any earlier batch.
func (o *Orchestrator) previouslySynced(ctx context.Context, propertyID, module string) (bool, error) {
	entries, err := o.recorder.List(ctx, synclog.Filter{PropertyID: propertyID})
	if err != nil {
		return false, err
	}
	for _, entry := range entries {
		if entry.Target == module && entry.Status == models.SyncSuccess {
			return true, nil
		}
	}
	return false, nil
}

func (o *Orchestrator) runBatch(ctx context.Context, account *models.Account, property *models.Property, trigger models.OperationType, plan []string) (*Result, error) {
	start := o.now()
	batchID := uuid.New().String()

	scope := Scope{
		Account:  account,
		Property: property,
		BatchID:  batchID,
		Trigger:  trigger,
		Since:    property.LastSyncAt,
	}

	logging.Info().
		Str("batch_id", batchID).
		Str("property_id", property.ID).
		Str("trigger", string(trigger)).
		Strs("modules", plan).
		Msg("Sync batch starting")

	result := &Result{
		BatchID: batchID,
		Units:   make(map[string]models.SyncStatus, len(plan)),
	}
	var failures []string

	for _, name := range plan {
		o.mu.Lock()
		module := o.modules[name]
		o.mu.Unlock()

		status, err := o.runUnit(ctx, module, scope)
		result.Units[name] = status
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %s", name, err.Error()))
		}

		if ctx.Err() != nil {
			break
		}
	}

	result.Status = aggregate(result.Units)
	result.Duration = o.now().Sub(start)
	if len(failures) > 0 {
		result.Message = strings.Join(failures, "; ")
	}

	o.finishBatch(ctx, property, result)
	metrics.RecordSyncRun(string(trigger), string(result.Status), result.Duration)

	logging.Info().
		Str("batch_id", batchID).
		Str("property_id", property.ID).
		Str("status", string(result.Status)).
		Dur("duration", result.Duration).
		Msg("Sync batch finished")
	return result, nil
}

// runUnit executes one module against the scope with its own sync log
// entry. Module failure is isolated: the entry goes through the retry
// state machine and the batch continues.
func (o *Orchestrator) runUnit(ctx context.Context, module Module, scope Scope) (models.SyncStatus, error) {
	entry, _ := o.recorder.Begin(ctx, scope.Trigger, scope.Account.ID, scope.Property.ID, module.Name())
	if entry != nil {
		entry.BatchID = scope.BatchID
	}

	stats, err := module.Sync(ctx, scope)
	if err != nil {
		logging.Warn().
			Err(err).
			Str("module", module.Name()).
			Str("property_id", scope.Property.ID).
			Msg("Sync module failed")
		if entry != nil {
			_ = o.recorder.MarkError(ctx, entry, err)
			metrics.RecordSyncUnit(module.Name(), string(entry.Status))
			return entry.Status, err
		}
		metrics.RecordSyncUnit(module.Name(), string(models.SyncError))
		return models.SyncError, err
	}

	logging.Debug().
		Str("module", module.Name()).
		Str("property_id", scope.Property.ID).
		Str("stats", stats.String()).
		Msg("Sync module completed")
	if entry != nil {
		_ = o.recorder.MarkSuccess(ctx, entry)
	}
	metrics.RecordSyncUnit(module.Name(), string(models.SyncSuccess))
	return models.SyncSuccess, nil
}

// RetryUnit re-executes a single module unit for a reopened sync log
// entry. The caller owns the entry's state transitions.
func (o *Orchestrator) RetryUnit(ctx context.Context, entry *models.SyncLogEntry) error {
	o.mu.Lock()
	module, ok := o.modules[entry.Target]
	o.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownModule, entry.Target)
	}

	property, err := store.GetProperty(ctx, o.store, entry.PropertyID)
	if err != nil {
		return fmt.Errorf("load property %s: %w", entry.PropertyID, err)
	}
	account, err := store.GetAccount(ctx, o.store, entry.AccountID)
	if err != nil {
		return fmt.Errorf("load account %s: %w", entry.AccountID, err)
	}

	if !o.acquire(property.ID) {
		return fmt.Errorf("%w: %s", ErrSyncRunning, property.ID)
	}
	defer o.release(property.ID)

	scope := Scope{
		Account:  account,
		Property: property,
		BatchID:  entry.BatchID,
		Trigger:  entry.Operation,
		Since:    property.LastSyncAt,
	}
	_, err = module.Sync(ctx, scope)
	return err
}

// finishBatch updates the property's sync bookkeeping. Consecutive errors
// reset on a fully successful batch and grow only on a failed one.
func (o *Orchestrator) finishBatch(ctx context.Context, property *models.Property, result *Result) {
	now := o.now().UTC()
	property.LastSyncAt = now
	property.LastSyncStatus = result.Status
	property.LastSyncMessage = result.Message

	switch result.Status {
	case models.SyncSuccess:
		property.ConsecutiveErrors = 0
		metrics.SyncLastSuccess.WithLabelValues(property.ID).Set(float64(now.Unix()))
	case models.SyncError:
		property.ConsecutiveErrors++
	}

	if err := store.PutProperty(ctx, o.store, property); err != nil {
		logging.Error().Err(err).Str("property_id", property.ID).Msg("Failed to persist property sync state")
	}
}

// aggregate folds unit outcomes into the batch status. Retry counts as a
// failure for aggregation since the unit has not succeeded yet.
func aggregate(units map[string]models.SyncStatus) models.SyncStatus {
	if len(units) == 0 {
		return models.SyncSkipped
	}

	var succeeded, failed int
	for _, status := range units {
		switch status {
		case models.SyncSuccess:
			succeeded++
		case models.SyncSkipped:
		default:
			failed++
		}
	}

	switch {
	case failed == 0 && succeeded == 0:
		return models.SyncSkipped
	case failed == 0:
		return models.SyncSuccess
	case succeeded == 0:
		return models.SyncError
	default:
		return models.SyncPartial
	}
}
