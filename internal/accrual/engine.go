package accrual

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"rewardengine/internal/ledger"
	"rewardengine/internal/logging"
	"rewardengine/internal/referral"
	"rewardengine/internal/worker"
)

// TicksPerHour converts an asset's hourly percentage into a per-tick one.
const TicksPerHour = 60

var ticksPerHour = decimal.NewFromInt(TicksPerHour)

// PerTickPercentage is hourlyPct / 60.
func PerTickPercentage(hourlyPct decimal.Decimal) decimal.Decimal {
	return hourlyPct.Div(ticksPerHour)
}

// PerTickReturn is invested * (hourlyPct / 60) / 100.
func PerTickReturn(invested, hourlyPct decimal.Decimal) decimal.Decimal {
	return ledger.Percent(invested, PerTickPercentage(hourlyPct))
}

// Attributor receives every successful accrual.
type Attributor interface {
	Attribute(ctx context.Context, ev referral.Event) error
}

// Report summarizes one tick.
type Report struct {
	At                  time.Time
	Duration            time.Duration
	Listed              int
	Accrued             int
	Matured             int
	Skipped             int
	Failed              int
	AttributionFailures int
	AssetsUpdated       int
	Err                 error // Set when the tick could not start or was cut short
}

// Engine advances every active investment once per tick.
// It is not idempotent: running it twice for one interval accrues twice.
type Engine struct {
	store      ledger.Store
	catalog    ledger.Catalog
	attributor Attributor
	log        logging.Logger
	opts       options
}

func New(store ledger.Store, catalog ledger.Catalog, attributor Attributor, log logging.Logger, opts ...Option) *Engine {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Engine{store: store, catalog: catalog, attributor: attributor, log: log, opts: o}
}

type outcome int

const (
	outcomeAccrued outcome = iota
	outcomeMatured
	outcomeSkipped
	outcomeFailed
)

func (o outcome) String() string {
	switch o {
	case outcomeAccrued:
		return "accrued"
	case outcomeMatured:
		return "matured"
	case outcomeSkipped:
		return "skipped"
	}
	return "failed"
}

// tally is the per-tick state shared by the workers.
type tally struct {
	mu      sync.Mutex
	report  Report
	assets  map[string]ledger.Asset
	funding map[string]int
}

func (t *tally) asset(id string) (ledger.Asset, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	a, ok := t.assets[id]
	return a, ok
}

func (t *tally) putAsset(a ledger.Asset) {
	t.mu.Lock()
	t.assets[a.ID] = a
	t.mu.Unlock()
}

func (t *tally) record(o outcome, assetID string, attributionFailed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch o {
	case outcomeAccrued:
		t.report.Accrued++
	case outcomeMatured:
		t.report.Matured++
	case outcomeSkipped:
		t.report.Skipped++
	default:
		t.report.Failed++
	}
	if attributionFailed {
		t.report.AttributionFailures++
	}
	if assetID != "" && o != outcomeMatured && o != outcomeSkipped {
		t.funding[assetID]++
	}
}

// RunTick sweeps all active investments. Per-investment failures are
// logged and counted; they never stop the sweep.
func (e *Engine) RunTick(ctx context.Context) Report {
	start := time.Now()
	now := e.opts.now()
	t := &tally{
		report:  Report{At: now},
		assets:  make(map[string]ledger.Asset),
		funding: make(map[string]int),
	}
	defer func() {
		t.report.Duration = time.Since(start)
		e.opts.metrics.ObserveTick(t.report.Duration)
		for _, fn := range e.opts.observe {
			fn(t.report)
		}
	}()

	ids, err := e.store.ListActiveInvestmentIDs(ctx)
	if err != nil {
		t.report.Err = fmt.Errorf("list active investments: %w", err)
		e.log.Error("tick %s aborted: %v", now.Format(time.RFC3339), t.report.Err)
		return t.report
	}
	t.report.Listed = len(ids)

	active, err := e.catalog.ActiveAssets(ctx)
	if err != nil {
		e.log.Warn("active assets unavailable, loading one by one: %v", err)
	}
	for _, a := range active {
		t.assets[a.ID] = a
	}

	pool := worker.NewPool(ctx, e.opts.speed, e.opts.queue)
	for _, id := range ids {
		id := id
		pool.Exec(worker.TaskFunc(func(ctx context.Context) {
			e.process(ctx, t, id, now)
		}))
	}
	pool.Close()
	pool.Wait()

	if err := ctx.Err(); err != nil {
		t.report.Err = fmt.Errorf("tick cut short: %w", err)
		e.log.Warn("tick %s stopped early: %v", now.Format(time.RFC3339), err)
		return t.report
	}

	t.report.AssetsUpdated = e.recordAssetReturns(ctx, active, t.funding, now)
	e.log.Info("tick %s: %d listed, %d accrued, %d matured, %d skipped, %d failed, %d attribution failures",
		now.Format(time.RFC3339), t.report.Listed, t.report.Accrued, t.report.Matured,
		t.report.Skipped, t.report.Failed, t.report.AttributionFailures)
	return t.report
}

// assetMissing asks the caller to load an asset outside the transaction.
type assetMissing struct {
	id string
}

func (a *assetMissing) Error() string { return "asset " + a.id + " not loaded" }

func (e *Engine) process(ctx context.Context, t *tally, id string, now time.Time) {
	if ctx.Err() != nil {
		t.record(outcomeSkipped, "", false)
		return
	}

	var (
		inv    ledger.Investment
		asset  ledger.Asset
		amount decimal.Decimal
		result outcome
	)
	step := func(tx ledger.Tx) error {
		var err error
		if inv, err = tx.Investment(id); err != nil {
			return err
		}
		if inv.Status != ledger.InvestmentActive {
			result = outcomeSkipped
			return nil
		}
		if inv.DaysLeft(now) <= 0 {
			if err := inv.Mature(now); err != nil {
				return err
			}
			result = outcomeMatured
			return tx.SaveInvestment(inv)
		}
		a, ok := t.asset(inv.AssetID)
		if !ok {
			return &assetMissing{id: inv.AssetID}
		}
		asset = a
		amount = PerTickReturn(inv.InvestedAmount, a.HourlyReturnPercentage)
		if err := inv.Accrue(amount, PerTickPercentage(a.HourlyReturnPercentage), now); err != nil {
			return err
		}
		result = outcomeAccrued
		return tx.SaveInvestment(inv)
	}

	var err error
	for attempt := 0; attempt < 2; attempt++ {
		err = ledger.Retry(ctx, e.opts.attempts, e.opts.delay, func() error {
			return e.store.Transact(ctx, step)
		})
		var missing *assetMissing
		if !errors.As(err, &missing) {
			break
		}
		a, aerr := e.catalog.Asset(ctx, missing.id)
		if aerr != nil {
			err = fmt.Errorf("load asset: %w", aerr)
			break
		}
		t.putAsset(a)
	}
	if err != nil {
		e.log.Error("investment %s: accrual failed: %v", id, err)
		e.opts.metrics.Investment(outcomeFailed.String())
		t.record(outcomeFailed, inv.AssetID, false)
		return
	}
	e.opts.metrics.Investment(result.String())
	if result != outcomeAccrued {
		t.record(result, inv.AssetID, false)
		return
	}

	attributionFailed := false
	if e.attributor != nil {
		err := e.attributor.Attribute(ctx, referral.Event{
			InvestorID:   inv.UserID,
			InvestmentID: inv.ID,
			AssetName:    asset.Name,
			ReturnAmount: amount,
			At:           now,
		})
		if err != nil {
			attributionFailed = true
			e.log.Error("investment %s: attribution failed, accrual kept: %v", id, err)
		}
	}
	t.record(outcomeAccrued, inv.AssetID, attributionFailed)
}

// recordAssetReturns appends one return entry to every active asset.
func (e *Engine) recordAssetReturns(ctx context.Context, active []ledger.Asset, funding map[string]int, now time.Time) int {
	updated := 0
	for _, a := range active {
		entry := ledger.AssetReturnEntry{
			Percentage:        PerTickPercentage(a.HourlyReturnPercentage),
			ActiveInvestments: funding[a.ID],
			At:                now,
		}
		err := ledger.Retry(ctx, e.opts.attempts, e.opts.delay, func() error {
			return e.catalog.AppendReturn(ctx, a.ID, entry)
		})
		if err != nil {
			e.log.Error("asset %s: return history not updated: %v", a.ID, err)
			continue
		}
		updated++
	}
	return updated
}
