// Package monitor runs the periodic scan cycle: fetch or reuse a
// snapshot, diff it against the persisted one, persist, recompute
// availability and announce transitions.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"sqdc-watcher/internal/catalog"
	"sqdc-watcher/internal/formatter"
	"sqdc-watcher/internal/models"
	"sqdc-watcher/internal/notify"
	"sqdc-watcher/internal/stock"
)

// Phase is the orchestrator's current position in the cycle.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseFetching
	PhaseDiffing
	PhasePersisting
	PhaseAnalyzing
	PhaseNotifying
	PhaseStopped
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseFetching:
		return "fetching"
	case PhaseDiffing:
		return "diffing"
	case PhasePersisting:
		return "persisting"
	case PhaseAnalyzing:
		return "analyzing"
	case PhaseNotifying:
		return "notifying"
	case PhaseStopped:
		return "stopped"
	}
	return "unknown"
}

// Store is the persistence surface the orchestrator drives directly.
type Store interface {
	stock.HistoryReader
	GetAppState() (models.AppState, error)
	GetProducts() ([]models.Product, error)
	SaveProducts(products []models.Product) error
	AppendHistory(events []models.HistoryEvent) error
	ListAllRules() (map[string][]models.NotificationRule, error)
}

// Monitor owns the scan loop. It is strictly sequential: one cycle at
// a time, and a failed cycle never stops the loop.
type Monitor struct {
	store   Store
	updater *catalog.Updater
	gate    *notify.Gate

	interval         time.Duration
	minFetchInterval time.Duration
	noCache          bool
	displayFormat    string

	phase atomic.Int32
}

// New creates a monitor wired to the given store, updater and gate.
func New(store Store, updater *catalog.Updater, gate *notify.Gate, interval, minFetchInterval time.Duration, noCache bool, displayFormat string) *Monitor {
	return &Monitor{
		store:            store,
		updater:          updater,
		gate:             gate,
		interval:         interval,
		minFetchInterval: minFetchInterval,
		noCache:          noCache,
		displayFormat:    displayFormat,
	}
}

// Phase returns the orchestrator's current phase.
func (m *Monitor) Phase() Phase {
	return Phase(m.phase.Load())
}

func (m *Monitor) setPhase(p Phase) {
	m.phase.Store(int32(p))
}

// Run executes scan cycles until ctx is cancelled. Cancellation is
// cooperative: an in-flight fetch aborts, the wait is interrupted and
// the loop terminates.
func (m *Monitor) Run(ctx context.Context) {
	m.logStartup()

	for {
		m.ExecuteScan(ctx)
		if ctx.Err() != nil {
			break
		}

		log.Printf("TASK EXECUTED. Waiting %.2g minutes until next execution.", m.interval.Minutes())
		m.setPhase(PhaseIdle)
		select {
		case <-ctx.Done():
		case <-time.After(m.interval):
			continue
		}
		break
	}

	m.setPhase(PhaseStopped)
	log.Println("Watcher daemon - shutting down...")
}

// ExecuteScan runs a single cycle. Errors are logged and end the
// cycle early; they are never fatal to the caller.
func (m *Monitor) ExecuteScan(ctx context.Context) {
	calc, err := m.refreshProducts(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			log.Println("Scan cycle interrupted by shutdown.")
		} else {
			log.Printf("Scan cycle failed: %v", err)
		}
		return
	}

	m.setPhase(PhaseNotifying)
	allInStock := stock.InStock(calc.Updated())
	log.Println("List of all available products:")
	log.Println(formatter.FormatProducts(allInStock, m.displayFormat))

	becameOutOfStock := calc.BecameOutOfStock()
	if len(becameOutOfStock) > 0 {
		log.Printf("Products just became out of stock: %s", productTitles(becameOutOfStock))
	}

	becameInStock := calc.BecameInStock()
	if len(becameInStock) == 0 {
		log.Printf("No product came back in stock. Total in stock: %d", len(allInStock))
		return
	}

	log.Printf("There are %d products back in stock since last scan (%d in stock total)", len(becameInStock), len(allInStock))
	log.Println(formatter.BuildProductsTable(becameInStock))

	if err := m.gate.ApplyRules(becameInStock); err != nil {
		log.Printf("Applying notification rules failed: %v", err)
	}
	if err := m.gate.Announce(calc, calc.HadPreviousSnapshot(), becameInStock); err != nil {
		log.Printf("Channel announcement failed: %v", err)
	}
}

// refreshProducts builds the cycle's snapshot, diffs it, persists it
// and brings availability statistics up to date. History appends for
// the cycle always land before the recompute reads them.
func (m *Monitor) refreshProducts(ctx context.Context) (*stock.Calculator, error) {
	m.setPhase(PhaseFetching)

	state, err := m.store.GetAppState()
	if err != nil {
		return nil, fmt.Errorf("loading app state: %w", err)
	}
	useCache := false
	if !m.noCache && state.LastScanTimestamp != nil {
		useCache = time.Since(*state.LastScanTimestamp) < m.minFetchInterval
	}

	previous, err := m.store.GetProducts()
	if err != nil {
		return nil, fmt.Errorf("loading previous snapshot: %w", err)
	}

	var cached []models.Product
	if useCache && len(previous) > 0 {
		cached = previous
	}
	updated, err := m.updater.Products(ctx, cached)
	if err != nil {
		return nil, err
	}

	m.setPhase(PhaseDiffing)
	calc := stock.NewCalculator(m.store, previous, updated)
	// Cooldown eligibility is decided against the log as it stands
	// now, before this cycle's own events land in it.
	if err := calc.CaptureLastInStock(); err != nil {
		return nil, fmt.Errorf("reading notification history: %w", err)
	}
	if becameInStock := calc.BecameInStock(); len(becameInStock) > 0 {
		newIDs := make(map[string]bool)
		for _, p := range calc.NewProducts() {
			newIDs[p.ID] = true
		}
		for i := range updated {
			updated[i].IsNew = newIDs[updated[i].ID]
		}
	}

	m.setPhase(PhasePersisting)
	log.Printf("Saving %d updated products", len(updated))
	if err := m.store.SaveProducts(updated); err != nil {
		return nil, fmt.Errorf("saving snapshot: %w", err)
	}
	becameOutOfStock := calc.BecameOutOfStock()
	if len(becameOutOfStock) > 0 {
		// The subset is written a second time on purpose so a partial
		// first write can never lose an out-of-stock transition.
		log.Printf("Saving %d products that just became out of stock: %s", len(becameOutOfStock), productTitles(becameOutOfStock))
		if err := m.store.SaveProducts(becameOutOfStock); err != nil {
			return nil, fmt.Errorf("saving out-of-stock subset: %w", err)
		}
	}

	var events []models.HistoryEvent
	events = appendVariantEvents(events, calc.BecameInStock(), models.EventInStock)
	events = appendVariantEvents(events, becameOutOfStock, models.EventNotInStock)
	if err := m.store.AppendHistory(events); err != nil {
		return nil, fmt.Errorf("appending history events: %w", err)
	}

	m.setPhase(PhaseAnalyzing)
	refreshed, err := m.store.GetProducts()
	if err != nil {
		return nil, fmt.Errorf("reloading snapshot for analysis: %w", err)
	}
	asOf := time.Now()
	for i := range refreshed {
		if err := m.updater.UpdateAvailabilityStats(&refreshed[i], asOf); err != nil {
			return nil, err
		}
	}
	if err := m.store.SaveProducts(refreshed); err != nil {
		return nil, fmt.Errorf("saving availability stats: %w", err)
	}

	return calc, nil
}

func (m *Monitor) logStartup() {
	log.Printf("INITIALIZED - interval = %s", m.interval)

	state, err := m.store.GetAppState()
	if err != nil {
		log.Printf("Could not read app state: %v", err)
	} else if state.LastScanTimestamp == nil {
		log.Println("Products were last updated: never")
	} else {
		log.Printf("Products were last updated %s ago", time.Since(*state.LastScanTimestamp).Round(time.Second))
	}

	rules, err := m.store.ListAllRules()
	if err != nil {
		log.Printf("Could not load notification rules: %v", err)
		return
	}
	if len(rules) > 0 {
		log.Printf("Loaded notification rules for %d users:", len(rules))
		for username, userRules := range rules {
			log.Printf("To @%s:", username)
			for _, rule := range userRules {
				log.Printf("  %s", rule.Keyword)
			}
		}
	}
}

func appendVariantEvents(events []models.HistoryEvent, products []models.Product, kind models.EventKind) []models.HistoryEvent {
	now := time.Now()
	for i := range products {
		for _, v := range products[i].Variants {
			events = append(events, models.HistoryEvent{
				ProductID: products[i].ID,
				VariantID: v.ID,
				Kind:      kind,
				Timestamp: now,
			})
		}
	}
	return events
}

func productTitles(products []models.Product) string {
	titles := ""
	for i := range products {
		if i > 0 {
			titles += ", "
		}
		titles += products[i].Title
	}
	return titles
}
