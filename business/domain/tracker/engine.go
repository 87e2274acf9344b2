package tracker

import (
	"cmp"
	"github.com/Aero25x/ton-wallet-tracker/entities"
	"slices"
)

// Engine decides which transactions of a fetched page are new. It is not safe
// for concurrent use; the detector owns it.
type Engine struct {
	watermark    uint64
	hasWatermark bool
	seen         *SeenWindow
}

func NewEngine(seen *SeenWindow) *Engine {
	return &Engine{seen: seen}
}

// Seed installs the baseline from already existing history without reporting
// anything.
func (e *Engine) Seed(page []entities.Tx) {
	for _, tx := range page {
		if !tx.Valid() {
			continue
		}
		e.seen.Add(tx.Hash, tx.LT)
		e.advance(tx.LT)
	}
	if e.hasWatermark {
		e.seen.Evict(e.watermark)
	}
}

// Reconcile returns the new transactions of the page, oldest first, and
// advances the watermark past them. The page order is not relied upon.
func (e *Engine) Reconcile(page []entities.Tx) []entities.Tx {
	var fresh []entities.Tx
	for _, tx := range page {
		if !e.isNew(tx) {
			continue
		}
		// mark immediately, the same hash can appear twice in one page
		e.seen.Add(tx.Hash, tx.LT)
		fresh = append(fresh, tx)
	}

	if len(fresh) == 0 {
		return nil
	}

	slices.SortFunc(fresh, func(a, b entities.Tx) int {
		return cmp.Or(cmp.Compare(a.LT, b.LT), cmp.Compare(a.Hash, b.Hash))
	})

	e.advance(fresh[len(fresh)-1].LT)
	e.seen.Evict(e.watermark)

	return fresh
}

func (e *Engine) isNew(tx entities.Tx) bool {
	if !tx.Valid() || e.seen.Contains(tx.Hash) {
		return false
	}
	return !e.hasWatermark || tx.LT > e.watermark
}

func (e *Engine) advance(lt uint64) {
	if !e.hasWatermark || lt > e.watermark {
		e.watermark = lt
		e.hasWatermark = true
	}
}

// Watermark returns the highest processed logical time, if there is one.
func (e *Engine) Watermark() (uint64, bool) {
	return e.watermark, e.hasWatermark
}

func (e *Engine) SeenCount() int {
	return e.seen.Len()
}
