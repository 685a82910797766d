package routers

import (
	"net/http"

	"finality-project/handlers"

	"github.com/gorilla/mux"
)

// RegisterRoutes sets up all the HTTP routes for the chain index
func RegisterRoutes(r *mux.Router, h *handlers.Handler) {

	// Adds a validated header to the block index
	r.HandleFunc("/headers", h.SubmitHeader).Methods("POST")

	// Adds an ordered batch of headers, parents first
	r.HandleFunc("/headers/batch", h.SubmitHeaders).Methods("POST")

	// Active chain from genesis to the best tip
	r.HandleFunc("/chain/active", h.GetActiveChain).Methods("GET")

	r.HandleFunc("/chain/best", h.GetBestBlock).Methods("GET")

	r.HandleFunc("/chain/height/{height:[0-9]+}", h.GetBlockAtHeight).Methods("GET")

	// Every leaf of the block tree with its branch length and status
	r.HandleFunc("/chain/tips", h.GetTips).Methods("GET")

	r.HandleFunc("/blocks/{hash}", h.GetBlock).Methods("GET")

	// Safety margin of an active block against the heaviest rival branch
	r.HandleFunc("/blocks/{hash}/finality", h.GetFinality).Methods("GET")

	// Marks a block and all of its descendants invalid
	r.HandleFunc("/blocks/{hash}/invalidate", h.InvalidateBlock).Methods("POST")
}

// RegisterMetrics exposes the metrics handler under /metrics
func RegisterMetrics(r *mux.Router, metrics http.Handler) {
	r.Handle("/metrics", metrics).Methods("GET")
}
