package repository

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math/big"

	"finality-project/db"
	"finality-project/models"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

var (
	headerPrefix  = []byte("hdr:")
	checkpointKey = []byte("checkpoint:latest")
)

// It abstracts the header journal from the chain logic
type HeaderRepositoryInterface interface {
	PutHeader(h models.Header) error
	PutHeaders(hs []models.Header) error
	GetAllHeaders() ([]models.Header, error)
	PutCheckpoint(cp *models.Checkpoint) error
	GetLatestCheckpoint() (*models.Checkpoint, error)
}

// storedHeader is the JSON value kept for every journaled header
type storedHeader struct {
	Hash       string `json:"hash"`
	ParentHash string `json:"parent_hash"`
	Height     int64  `json:"height"`
	Work       string `json:"work"`
	Invalid    bool   `json:"invalid"`
}

type storedCheckpoint struct {
	BestHash  string `json:"best_hash"`
	Height    int64  `json:"height"`
	Timestamp int64  `json:"timestamp"`
}

// HeaderRepository implements HeaderRepositoryInterface on top of LevelDB
type HeaderRepository struct {
	db *db.LevelDB
}

// NewHeaderRepository creates and returns a new HeaderRepository instance
func NewHeaderRepository(db *db.LevelDB) *HeaderRepository {
	return &HeaderRepository{db: db}
}

// headerKey orders headers by height, so a prefix scan yields parents before
// children.
func headerKey(height int64, hash chainhash.Hash) []byte {
	key := make([]byte, 0, len(headerPrefix)+8+chainhash.HashSize)
	key = append(key, headerPrefix...)
	key = binary.BigEndian.AppendUint64(key, uint64(height))
	return append(key, hash[:]...)
}

// PutHeader journals a header. Re-journaling the same header overwrites it,
// which keeps the latest invalid flag.
func (r *HeaderRepository) PutHeader(h models.Header) error {
	data, err := encodeHeader(h)
	if err != nil {
		return err
	}
	return r.db.Put(headerKey(h.Height, h.Hash), data, false)
}

// PutHeaders journals a batch of headers in one atomic write
func (r *HeaderRepository) PutHeaders(hs []models.Header) error {
	keys := make([][]byte, len(hs))
	values := make([][]byte, len(hs))
	for i, h := range hs {
		data, err := encodeHeader(h)
		if err != nil {
			return err
		}
		keys[i] = headerKey(h.Height, h.Hash)
		values[i] = data
	}
	return r.db.WriteBatch(keys, values)
}

func encodeHeader(h models.Header) ([]byte, error) {
	return json.Marshal(storedHeader{
		Hash:       h.Hash.String(),
		ParentHash: h.ParentHash.String(),
		Height:     h.Height,
		Work:       h.Work.String(),
		Invalid:    h.Invalid,
	})
}

// GetAllHeaders returns every journaled header in ascending height order
func (r *HeaderRepository) GetAllHeaders() ([]models.Header, error) {
	iter := r.db.NewPrefixIterator(headerPrefix)
	defer iter.Release()

	var headers []models.Header
	for iter.Next() {
		var sh storedHeader
		if err := json.Unmarshal(iter.Value(), &sh); err != nil {
			return nil, err
		}
		h, err := sh.toHeader()
		if err != nil {
			return nil, fmt.Errorf("corrupt header at key %x: %w", iter.Key(), err)
		}
		headers = append(headers, h)
	}
	return headers, iter.Error()
}

func (sh *storedHeader) toHeader() (models.Header, error) {
	hash, err := chainhash.NewHashFromStr(sh.Hash)
	if err != nil {
		return models.Header{}, err
	}
	parent, err := chainhash.NewHashFromStr(sh.ParentHash)
	if err != nil {
		return models.Header{}, err
	}
	work, ok := new(big.Int).SetString(sh.Work, 10)
	if !ok {
		return models.Header{}, fmt.Errorf("bad work %q", sh.Work)
	}
	return models.Header{
		Hash:       *hash,
		ParentHash: *parent,
		Height:     sh.Height,
		Work:       work,
		Invalid:    sh.Invalid,
	}, nil
}

// PutCheckpoint replaces the stored checkpoint
func (r *HeaderRepository) PutCheckpoint(cp *models.Checkpoint) error {
	data, err := json.Marshal(storedCheckpoint{
		BestHash:  cp.BestHash.String(),
		Height:    cp.Height,
		Timestamp: cp.Timestamp,
	})
	if err != nil {
		return err
	}
	return r.db.Put(checkpointKey, data, true)
}

// GetLatestCheckpoint returns the stored checkpoint, or nil if none was written
func (r *HeaderRepository) GetLatestCheckpoint() (*models.Checkpoint, error) {
	data, err := r.db.Get(checkpointKey)
	if db.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var sc storedCheckpoint
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, err
	}
	hash, err := chainhash.NewHashFromStr(sc.BestHash)
	if err != nil {
		return nil, err
	}
	return &models.Checkpoint{
		BestHash:  *hash,
		Height:    sc.Height,
		Timestamp: sc.Timestamp,
	}, nil
}
