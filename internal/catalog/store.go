// Package catalog keeps asset metadata next to the rights ledger that
// settles each asset, and runs the workflow that creates both.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Klingon-tech/oyster/internal/id"
	"github.com/Klingon-tech/oyster/internal/storage"
	"github.com/Klingon-tech/oyster/pkg/types"
)

// Prefix is the storage namespace of the catalog.
var Prefix = []byte("cat/")

// Key layout inside Prefix.
var (
	prefixAsset    = []byte("a/") // a/<asset id> -> Asset JSON
	prefixProducer = []byte("p/") // p/<producer><asset id> -> nil
	prefixLedger   = []byte("l/") // l/<ledger> -> asset id
)

// ErrNotFound is returned when no asset matches a query.
var ErrNotFound = errors.New("asset not found")

// Asset describes one catalog entry.
type Asset struct {
	ID        id.ID             `json:"id"`
	Ledger    types.Address     `json:"ledger"`
	Title     string            `json:"title"`
	Artist    string            `json:"artist"`
	Producer  types.Address     `json:"producer"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Duration  uint32            `json:"duration"` // seconds
	CreatedAt time.Time         `json:"created_at"`
}

// Store persists assets with lookups by producer and by ledger.
type Store struct {
	db *storage.PrefixDB
}

// NewStore creates a store over db.
func NewStore(db storage.DB) *Store {
	return &Store{db: storage.NewPrefixDB(db, Prefix)}
}

func assetKey(assetID id.ID) []byte {
	return append(append([]byte(nil), prefixAsset...), assetID.String()...)
}

func producerKey(producer types.Address, assetID id.ID) []byte {
	k := append(append([]byte(nil), prefixProducer...), producer[:]...)
	return append(k, assetID.String()...)
}

func ledgerKey(ledger types.Address) []byte {
	return append(append([]byte(nil), prefixLedger...), ledger[:]...)
}

// Put stores a and its indexes in one batch.
func (s *Store) Put(a *Asset) error {
	if a.ID.IsNil() {
		return errors.New("catalog: asset without id")
	}
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("catalog: marshal %s: %w", a.ID, err)
	}
	b := s.db.NewBatch()
	if err := b.Put(assetKey(a.ID), data); err != nil {
		return err
	}
	if err := b.Put(producerKey(a.Producer, a.ID), []byte{}); err != nil {
		return err
	}
	if err := b.Put(ledgerKey(a.Ledger), []byte(a.ID.String())); err != nil {
		return err
	}
	if err := b.Commit(); err != nil {
		return fmt.Errorf("catalog: store %s: %w", a.ID, err)
	}
	return nil
}

// Get returns the asset with the given id.
func (s *Store) Get(assetID id.ID) (*Asset, error) {
	data, err := s.db.Get(assetKey(assetID))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, assetID)
	}
	if err != nil {
		return nil, err
	}
	var a Asset
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("catalog: decode %s: %w", assetID, err)
	}
	return &a, nil
}

// ByLedger returns the asset settled by ledger.
func (s *Store) ByLedger(ledger types.Address) (*Asset, error) {
	raw, err := s.db.Get(ledgerKey(ledger))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: ledger %s", ErrNotFound, ledger)
	}
	if err != nil {
		return nil, err
	}
	assetID, err := id.ParseWithPrefix(string(raw), id.PrefixAsset)
	if err != nil {
		return nil, fmt.Errorf("catalog: ledger index %s: %w", ledger, err)
	}
	return s.Get(assetID)
}

// List returns every asset, oldest first.
func (s *Store) List() ([]*Asset, error) {
	var out []*Asset
	err := s.db.ForEach(prefixAsset, func(_, value []byte) error {
		var a Asset
		if err := json.Unmarshal(value, &a); err != nil {
			return err
		}
		out = append(out, &a)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: list: %w", err)
	}
	return out, nil
}

// ByProducer returns the assets created by producer, oldest first.
func (s *Store) ByProducer(producer types.Address) ([]*Asset, error) {
	prefix := append(append([]byte(nil), prefixProducer...), producer[:]...)
	var ids []id.ID
	err := s.db.ForEach(prefix, func(key, _ []byte) error {
		assetID, err := id.ParseWithPrefix(string(key[len(prefix):]), id.PrefixAsset)
		if err != nil {
			return err
		}
		ids = append(ids, assetID)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: producer index: %w", err)
	}
	out := make([]*Asset, 0, len(ids))
	for _, assetID := range ids {
		a, err := s.Get(assetID)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}
