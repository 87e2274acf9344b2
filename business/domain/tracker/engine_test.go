package tracker

import (
	"fmt"
	"github.com/Aero25x/ton-wallet-tracker/entities"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

func tx(hash string, lt uint64) entities.Tx {
	return entities.Tx{Hash: hash, LT: lt}
}

func hashes(txs []entities.Tx) []string {
	result := make([]string, 0, len(txs))
	for _, t := range txs {
		result = append(result, t.Hash)
	}
	return result
}

func newTestEngine() *Engine {
	return NewEngine(NewSeenWindow(1_000_000, 1000))
}

func TestEngine_Reconcile_GivenSeededHash_ThenOnlyNewReported(t *testing.T) {
	engine := newTestEngine()
	engine.Seed([]entities.Tx{tx("a", 100)})

	got := engine.Reconcile([]entities.Tx{tx("a", 100), tx("b", 101)})
	if diff := cmp.Diff([]entities.Tx{tx("b", 101)}, got); diff != "" {
		t.Fatalf("Unexpected result: %v", diff)
	}

	watermark, ok := engine.Watermark()
	require.True(t, ok)
	assert.Equal(t, 101, int(watermark))

	got = engine.Reconcile([]entities.Tx{tx("a", 100), tx("b", 101)})
	assert.Empty(t, got)
}

func TestEngine_Reconcile_SortsByLogicalTime(t *testing.T) {
	engine := newTestEngine()
	engine.Seed([]entities.Tx{tx("x", 100)})

	got := engine.Reconcile([]entities.Tx{tx("c", 105), tx("a", 103), tx("b", 104)})
	assert.Equal(t, []string{"a", "b", "c"}, hashes(got))

	watermark, _ := engine.Watermark()
	assert.Equal(t, 105, int(watermark))
}

func TestEngine_Reconcile_GivenEqualLogicalTime_ThenOrderByHash(t *testing.T) {
	engine := newTestEngine()

	got := engine.Reconcile([]entities.Tx{tx("z", 7), tx("m", 7), tx("a", 5)})
	assert.Equal(t, []string{"a", "m", "z"}, hashes(got))
}

func TestEngine_Reconcile_GivenEmptyPage_ThenNoop(t *testing.T) {
	engine := newTestEngine()
	engine.Seed([]entities.Tx{tx("a", 100)})

	assert.Empty(t, engine.Reconcile(nil))
	assert.Empty(t, engine.Reconcile([]entities.Tx{}))

	watermark, ok := engine.Watermark()
	require.True(t, ok)
	assert.Equal(t, 100, int(watermark))
}

func TestEngine_Reconcile_GivenDuplicateHashInPage_ThenReportedOnce(t *testing.T) {
	engine := newTestEngine()
	engine.Seed([]entities.Tx{tx("a", 100)})

	got := engine.Reconcile([]entities.Tx{tx("b", 101), tx("b", 101), tx("c", 102)})
	assert.Equal(t, []string{"b", "c"}, hashes(got))
}

func TestEngine_Reconcile_GivenMalformed_ThenSkipped(t *testing.T) {
	engine := newTestEngine()
	engine.Seed([]entities.Tx{tx("a", 100)})

	got := engine.Reconcile([]entities.Tx{tx("", 500), tx("b", 101)})
	assert.Equal(t, []string{"b"}, hashes(got))

	watermark, _ := engine.Watermark()
	assert.Equal(t, 101, int(watermark))
}

func TestEngine_Reconcile_GivenOnlyOldEntries_ThenWatermarkUnchanged(t *testing.T) {
	engine := newTestEngine()
	engine.Seed([]entities.Tx{tx("a", 100)})

	got := engine.Reconcile([]entities.Tx{tx("c", 120)})
	require.Len(t, got, 1)

	// unseen hashes at or below the watermark are not new
	got = engine.Reconcile([]entities.Tx{tx("d", 119), tx("e", 120), tx("c", 120)})
	assert.Empty(t, got)

	watermark, _ := engine.Watermark()
	assert.Equal(t, 120, int(watermark))
}

func TestEngine_Reconcile_WithoutWatermark_ThenEverythingIsNew(t *testing.T) {
	engine := newTestEngine()
	engine.Seed(nil)

	_, ok := engine.Watermark()
	require.False(t, ok)

	got := engine.Reconcile([]entities.Tx{tx("b", 2), tx("a", 1)})
	assert.Equal(t, []string{"a", "b"}, hashes(got))
}

func TestEngine_Seed_SuppressesBacklog(t *testing.T) {
	var page []entities.Tx
	for i := 10; i > 0; i-- { // newest first
		page = append(page, tx(fmt.Sprintf("hash-%d", i), uint64(1000+i)))
	}

	engine := newTestEngine()
	engine.Seed(page)

	assert.Empty(t, engine.Reconcile(page))
	assert.Equal(t, 10, engine.SeenCount())

	watermark, _ := engine.Watermark()
	assert.Equal(t, 1010, int(watermark))
}

func TestEngine_Seed_UsesHighestLogicalTime(t *testing.T) {
	engine := newTestEngine()
	engine.Seed([]entities.Tx{tx("a", 10), tx("c", 30), tx("b", 20)})

	watermark, _ := engine.Watermark()
	assert.Equal(t, 30, int(watermark))
}

func TestEngine_Reconcile_OverlappingPages_NoDuplicates(t *testing.T) {
	engine := newTestEngine()
	engine.Seed([]entities.Tx{tx("t0", 100)})

	pages := [][]entities.Tx{
		{tx("t2", 102), tx("t1", 101), tx("t0", 100)},
		{tx("t3", 103), tx("t2", 102), tx("t1", 101)},
		{tx("t3", 103), tx("t2", 102)},
		{tx("t5", 105), tx("t4", 104), tx("t3", 103)},
	}

	var delivered []string
	var lastWatermark uint64
	for _, page := range pages {
		got := engine.Reconcile(page)
		for i := 1; i < len(got); i++ {
			require.LessOrEqual(t, got[i-1].LT, got[i].LT)
		}
		delivered = append(delivered, hashes(got)...)

		watermark, _ := engine.Watermark()
		require.GreaterOrEqual(t, watermark, lastWatermark)
		lastWatermark = watermark
	}

	assert.Equal(t, []string{"t1", "t2", "t3", "t4", "t5"}, delivered)
}

func TestEngine_Reconcile_KeepsSeenSetBounded(t *testing.T) {
	engine := NewEngine(NewSeenWindow(10, 0))
	engine.Seed([]entities.Tx{tx("t0", 100)})

	for i := 1; i <= 100; i++ {
		got := engine.Reconcile([]entities.Tx{tx(fmt.Sprintf("t%d", i), uint64(100+i))})
		require.Len(t, got, 1)
	}

	assert.LessOrEqual(t, engine.SeenCount(), 11)
	// evicted hashes are still rejected by the watermark
	assert.Empty(t, engine.Reconcile([]entities.Tx{tx("t1", 101), tx("t50", 150)}))
}
