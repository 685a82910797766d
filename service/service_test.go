package service_test

import (
	"fmt"
	"math/big"
	"testing"

	"finality-project/chain"
	"finality-project/db"
	"finality-project/models"
	"finality-project/repository"
	"finality-project/service"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/require"
)

func header(label string, parent *models.Header) models.Header {
	h := models.Header{Hash: chainhash.HashH([]byte(label)), Work: big.NewInt(1)}
	if parent != nil {
		h.ParentHash = parent.Hash
		h.Height = parent.Height + 1
	}
	return h
}

func extend(t *testing.T, svc *service.Service, parent models.Header,
	prefix string, n int) models.Header {

	t.Helper()
	for i := 0; i < n; i++ {
		h := header(fmt.Sprintf("%s-%d", prefix, parent.Height+1), &parent)
		_, err := svc.Submit(h)
		require.NoError(t, err)
		parent = h
	}
	return parent
}

func TestReplayRebuildsIndex(t *testing.T) {
	ldb, err := db.NewMemLevelDB()
	require.NoError(t, err)
	defer ldb.Close()
	repo := repository.NewHeaderRepository(ldb)

	svc := service.NewService(chain.NewChain(nil), repo)
	genesis := header("genesis", nil)
	_, err = svc.Submit(genesis)
	require.NoError(t, err)
	shared := extend(t, svc, genesis, "shared", 1)
	extend(t, svc, shared, "x", 7)
	extend(t, svc, shared, "y", 20)

	// Knock out Y and remember what the index looks like.
	require.NoError(t, svc.Invalidate(chainhash.HashH([]byte("y-2"))))
	want := svc.Chain().Snapshot()

	// A refused batch journals nothing.
	missing := header("missing", nil)
	n, err := svc.SubmitBatch([]models.Header{header("orphan", &missing)})
	require.ErrorIs(t, err, chain.ErrOrphanBlock)
	require.Zero(t, n)

	cp, err := repo.GetLatestCheckpoint()
	require.NoError(t, err)
	best, _ := svc.Chain().BestTip()
	require.Equal(t, best.Hash, cp.BestHash)

	replayed := service.NewService(chain.NewChain(nil), repo)
	applied, err := replayed.Replay()
	require.NoError(t, err)
	require.Equal(t, 29, applied)

	got := replayed.Chain().Snapshot()
	require.Equal(t, want.Active, got.Active)
	require.Equal(t, want.Tips, got.Tips)
	require.Equal(t, want.Invalid, got.Invalid)
	require.Len(t, got.Blocks, len(want.Blocks))
	for h, b := range want.Blocks {
		require.Equal(t, b.Status, got.Blocks[h].Status)
		require.Zero(t, b.CumulativeWork.Cmp(got.Blocks[h].CumulativeWork))
	}
}

func TestSubmitBatchJournalsAppliedPrefix(t *testing.T) {
	ldb, err := db.NewMemLevelDB()
	require.NoError(t, err)
	defer ldb.Close()
	repo := repository.NewHeaderRepository(ldb)
	svc := service.NewService(chain.NewChain(nil), repo)

	genesis := header("genesis", nil)
	a := header("a", &genesis)
	missing := header("missing", nil)
	orphan := header("orphan", &missing)

	n, err := svc.SubmitBatch([]models.Header{genesis, a, orphan})
	require.ErrorIs(t, err, chain.ErrOrphanBlock)
	require.Equal(t, 2, n)

	journaled, err := repo.GetAllHeaders()
	require.NoError(t, err)
	require.Len(t, journaled, 2)
}

func TestResendDoesNotClearInvalidation(t *testing.T) {
	ldb, err := db.NewMemLevelDB()
	require.NoError(t, err)
	defer ldb.Close()
	repo := repository.NewHeaderRepository(ldb)
	svc := service.NewService(chain.NewChain(nil), repo)

	genesis := header("genesis", nil)
	a := header("a", &genesis)
	_, err = svc.Submit(genesis)
	require.NoError(t, err)
	_, err = svc.Submit(a)
	require.NoError(t, err)
	require.NoError(t, svc.Invalidate(a.Hash))

	// The same header again, single and batched, without the flag.
	b, err := svc.Submit(a)
	require.NoError(t, err)
	require.Equal(t, models.StatusInvalid, b.Status)
	n, err := svc.SubmitBatch([]models.Header{a})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	journaled, err := repo.GetAllHeaders()
	require.NoError(t, err)
	require.Len(t, journaled, 2)
	for _, h := range journaled {
		require.Equal(t, h.Hash == a.Hash, h.Invalid)
	}

	replayed := service.NewService(chain.NewChain(nil), repo)
	_, err = replayed.Replay()
	require.NoError(t, err)
	status, err := replayed.Chain().StatusOf(a.Hash)
	require.NoError(t, err)
	require.Equal(t, models.StatusInvalid, status)

	best, ok := replayed.Chain().BestTip()
	require.True(t, ok)
	require.Equal(t, genesis.Hash, best.Hash)
}
