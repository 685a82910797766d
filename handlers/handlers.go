package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"

	"finality-project/chain"
	"finality-project/logger"
	"finality-project/models"
	"finality-project/service"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Handler contains the HTTP handlers for the chain API endpoints
type Handler struct {
	Service *service.Service
}

// NewHandler creates and returns a new Handler instance
func NewHandler(s *service.Service) *Handler {
	return &Handler{Service: s}
}

// headerRequest is the JSON body of a submitted header. Hashes are hex in the
// usual reversed byte order, work is a decimal or 0x-prefixed integer.
type headerRequest struct {
	Hash       string `json:"hash"`
	ParentHash string `json:"parent_hash"`
	Height     int64  `json:"height"`
	Work       string `json:"work"`
	Invalid    bool   `json:"invalid"`
}

type blockResponse struct {
	Hash           string `json:"hash"`
	ParentHash     string `json:"parent_hash"`
	Height         int64  `json:"height"`
	Work           string `json:"work"`
	CumulativeWork string `json:"cumulative_work"`
	Status         string `json:"status"`
}

type tipResponse struct {
	blockResponse
	BranchLen int64 `json:"branchlen"`
}

type finalityResponse struct {
	Hash          string `json:"hash"`
	FinalityIndex int64  `json:"finality_index"`
	Infinite      bool   `json:"infinite"`
}

func (r *headerRequest) toHeader() (models.Header, error) {
	hash, err := chainhash.NewHashFromStr(r.Hash)
	if err != nil {
		return models.Header{}, fmt.Errorf("invalid hash: %w", err)
	}
	var parent chainhash.Hash
	if r.ParentHash != "" {
		p, err := chainhash.NewHashFromStr(r.ParentHash)
		if err != nil {
			return models.Header{}, fmt.Errorf("invalid parent_hash: %w", err)
		}
		parent = *p
	}
	work, ok := new(big.Int).SetString(r.Work, 0)
	if !ok {
		return models.Header{}, fmt.Errorf("invalid work %q", r.Work)
	}
	return models.Header{
		Hash:       *hash,
		ParentHash: parent,
		Height:     r.Height,
		Work:       work,
		Invalid:    r.Invalid,
	}, nil
}

func newBlockResponse(b models.Block) blockResponse {
	return blockResponse{
		Hash:           b.Hash.String(),
		ParentHash:     b.ParentHash.String(),
		Height:         b.Height,
		Work:           b.Work.String(),
		CumulativeWork: b.CumulativeWork.String(),
		Status:         b.Status.String(),
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// errorStatus maps chain errors onto HTTP status codes
func errorStatus(err error) int {
	switch {
	case errors.Is(err, chain.ErrUnknownBlock):
		return http.StatusNotFound
	case errors.Is(err, chain.ErrNotOnActiveChain),
		errors.Is(err, chain.ErrConflictingRedefinition):
		return http.StatusConflict
	case errors.Is(err, chain.ErrOrphanBlock),
		errors.Is(err, chain.ErrHeightMismatch),
		errors.Is(err, chain.ErrNonPositiveWork),
		errors.Is(err, chain.ErrZeroHash):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func hashVar(r *http.Request) (chainhash.Hash, error) {
	h, err := chainhash.NewHashFromStr(mux.Vars(r)["hash"])
	if err != nil {
		return chainhash.Hash{}, err
	}
	return *h, nil
}

// SubmitHeader handles POST requests adding one header to the index
func (h *Handler) SubmitHeader(w http.ResponseWriter, r *http.Request) {
	var req headerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Logger.Error("Failed to decode header", zap.Error(err))
		writeError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	header, err := req.toHeader()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	block, err := h.Service.Submit(header)
	if err != nil {
		logger.Logger.Info("Header rejected", zap.String("hash", req.Hash),
			zap.Error(err))
		writeError(w, errorStatus(err), err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "Header accepted",
		"block":   newBlockResponse(block),
	})
}

// SubmitHeaders handles POST requests carrying an ordered batch of headers
func (h *Handler) SubmitHeaders(w http.ResponseWriter, r *http.Request) {
	var reqs []headerRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		logger.Logger.Error("Failed to decode header batch", zap.Error(err))
		writeError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	headers := make([]models.Header, len(reqs))
	for i := range reqs {
		header, err := reqs[i].toHeader()
		if err != nil {
			writeError(w, http.StatusBadRequest,
				fmt.Sprintf("header %d: %v", i, err))
			return
		}
		headers[i] = header
	}

	n, err := h.Service.SubmitBatch(headers)
	if err != nil {
		writeJSON(w, errorStatus(err), map[string]interface{}{
			"error":    err.Error(),
			"accepted": n,
		})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message":  "Headers accepted",
		"accepted": n,
	})
}

// InvalidateBlock handles POST requests marking a block and its descendants invalid
func (h *Handler) InvalidateBlock(w http.ResponseWriter, r *http.Request) {
	hash, err := hashVar(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.Service.Invalidate(hash); err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Block invalidated",
	})
}

// GetActiveChain handles GET requests for the active chain, genesis first
func (h *Handler) GetActiveChain(w http.ResponseWriter, r *http.Request) {
	blocks := h.Service.Chain().ActiveChain()
	out := make([]blockResponse, len(blocks))
	for i, b := range blocks {
		out[i] = newBlockResponse(b)
	}
	writeJSON(w, http.StatusOK, out)
}

// GetBestBlock handles GET requests for the active chain tip
func (h *Handler) GetBestBlock(w http.ResponseWriter, r *http.Request) {
	best, ok := h.Service.Chain().BestTip()
	if !ok {
		writeError(w, http.StatusNotFound, "no active chain")
		return
	}
	writeJSON(w, http.StatusOK, newBlockResponse(best))
}

// GetBlockAtHeight handles GET requests for the active block at a height
func (h *Handler) GetBlockAtHeight(w http.ResponseWriter, r *http.Request) {
	height, err := strconv.ParseInt(mux.Vars(r)["height"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid height")
		return
	}
	b, ok := h.Service.Chain().BlockAtHeight(height)
	if !ok {
		writeError(w, http.StatusNotFound, "height out of range")
		return
	}
	writeJSON(w, http.StatusOK, newBlockResponse(b))
}

// GetTips handles GET requests listing every chain tip
func (h *Handler) GetTips(w http.ResponseWriter, r *http.Request) {
	tips := h.Service.Chain().Tips()
	out := make([]tipResponse, len(tips))
	for i, t := range tips {
		out[i] = tipResponse{
			blockResponse: newBlockResponse(t.Block),
			BranchLen:     t.BranchLen,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// GetBlock handles GET requests for a single indexed block
func (h *Handler) GetBlock(w http.ResponseWriter, r *http.Request) {
	hash, err := hashVar(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	b, ok := h.Service.Chain().Block(hash)
	if !ok {
		writeError(w, http.StatusNotFound, chain.ErrUnknownBlock.Error())
		return
	}
	writeJSON(w, http.StatusOK, newBlockResponse(b))
}

// GetFinality handles GET requests for the finality index of an active block
func (h *Handler) GetFinality(w http.ResponseWriter, r *http.Request) {
	hash, err := hashVar(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	idx, err := h.Service.Chain().FinalityIndex(hash)
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, finalityResponse{
		Hash:          hash.String(),
		FinalityIndex: idx,
		Infinite:      idx == chain.FinalityInfinite,
	})
}
