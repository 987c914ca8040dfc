// Package ledger implements the monotonic cost accounting of the execution
// core. Every externally billed call produces exactly one CostRecord; totals
// are always recomputed by summation over the records, never maintained as a
// separately mutable counter.
package ledger

import (
	"sync"
	"time"

	"github.com/Itangalo/scenario-lab-sub001/pkg/domain"
)

// Ledger collects cost records produced by concurrent tasks within a phase.
// Appends are safe for concurrent use; the orchestrator drains the collected
// records into the immutable state at phase boundaries.
type Ledger struct {
	mu      sync.Mutex
	prices  PriceTable
	pending []domain.CostRecord
	now     func() time.Time
}

// New creates a ledger with the given price table.
func New(prices PriceTable) *Ledger {
	return &Ledger{
		prices: prices,
		now:    time.Now,
	}
}

// Record prices one billed call and appends the resulting cost record.
// An unrecognized model identifier fails closed: nothing is recorded and the
// pricing error is returned.
func (l *Ledger) Record(actor string, turn int, phase domain.PhaseName, model string, inputTokens, outputTokens int) (domain.CostRecord, error) {
	cost, err := l.prices.Cost(model, inputTokens, outputTokens)
	if err != nil {
		return domain.CostRecord{}, err
	}

	rec := domain.CostRecord{
		Timestamp:    l.now().UTC(),
		Actor:        actor,
		Turn:         turn,
		Phase:        phase,
		Model:        model,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		CostUSD:      cost,
	}

	l.mu.Lock()
	l.pending = append(l.pending, rec)
	l.mu.Unlock()
	return rec, nil
}

// RecordCached appends a zero-cost record for a cache hit, flagged in
// metadata, so the ledger stays a complete audit trail of every call.
func (l *Ledger) RecordCached(actor string, turn int, phase domain.PhaseName, model string) domain.CostRecord {
	rec := domain.CostRecord{
		Timestamp: l.now().UTC(),
		Actor:     actor,
		Turn:      turn,
		Phase:     phase,
		Model:     model,
		Meta:      map[string]string{"cached": "true"},
	}

	l.mu.Lock()
	l.pending = append(l.pending, rec)
	l.mu.Unlock()
	return rec
}

// Drain returns the records collected since the last drain, in append order,
// and clears the pending list.
func (l *Ledger) Drain() []domain.CostRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.pending
	l.pending = nil
	return out
}

// Pending returns a copy of the undrained records.
func (l *Ledger) Pending() []domain.CostRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.CostRecord, len(l.pending))
	copy(out, l.pending)
	return out
}

// Prices exposes the price table (e.g. for cost estimation).
func (l *Ledger) Prices() PriceTable {
	return l.prices
}

// Sum totals a record list. This is the only way totals are ever computed.
func Sum(records []domain.CostRecord) float64 {
	var total float64
	for _, rec := range records {
		total += rec.CostUSD
	}
	return total
}
