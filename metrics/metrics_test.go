package metrics_test

import (
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"finality-project/chain"
	"finality-project/metrics"
	"finality-project/models"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestChainReportsToPrometheus(t *testing.T) {
	m := metrics.New()
	c := chain.NewChain(m)

	genesis := models.Header{Hash: chainhash.HashH([]byte("g")), Work: big.NewInt(1)}
	_, err := c.SubmitHeader(genesis)
	require.NoError(t, err)

	// Two competing children; the heavier one arrives second and forces a
	// one-block reorg.
	light := models.Header{
		Hash:       chainhash.HashH([]byte("light")),
		ParentHash: genesis.Hash,
		Height:     1,
		Work:       big.NewInt(1),
	}
	heavy := models.Header{
		Hash:       chainhash.HashH([]byte("heavy")),
		ParentHash: genesis.Hash,
		Height:     1,
		Work:       big.NewInt(5),
	}
	_, err = c.SubmitHeader(light)
	require.NoError(t, err)
	_, err = c.SubmitHeader(heavy)
	require.NoError(t, err)

	_, err = c.SubmitHeader(models.Header{
		Hash:       chainhash.HashH([]byte("orphan")),
		ParentHash: chainhash.HashH([]byte("missing")),
		Height:     1,
		Work:       big.NewInt(1),
	})
	require.ErrorIs(t, err, chain.ErrOrphanBlock)

	expected := `
# HELP finality_best_height Height of the active chain tip.
# TYPE finality_best_height gauge
finality_best_height 1
# HELP finality_headers_accepted_total Headers added to the block index.
# TYPE finality_headers_accepted_total counter
finality_headers_accepted_total 3
# HELP finality_headers_rejected_total Headers refused by the block index.
# TYPE finality_headers_rejected_total counter
finality_headers_rejected_total{reason="orphan"} 1
# HELP finality_reorgs_total Active chain reorganizations.
# TYPE finality_reorgs_total counter
finality_reorgs_total 1
# HELP finality_tip_count Number of valid chain tips.
# TYPE finality_tip_count gauge
finality_tip_count 2
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(),
		strings.NewReader(expected),
		"finality_best_height", "finality_headers_accepted_total",
		"finality_headers_rejected_total", "finality_reorgs_total",
		"finality_tip_count"))

	res := httptest.NewRecorder()
	m.Handler().ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, res.Code)
	require.Contains(t, res.Body.String(), "finality_reorg_depth_bucket")
}
