// Package peers is the persistent peer directory: radio identities and their
// link keys, stored as one blob of concatenated 6-byte MACs.
package peers

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"dev.c0redev.nowgate/internal/ident"
)

const (
	// Namespace and BlobKey locate the peer list in the blob store.
	Namespace = "peer_storage"
	BlobKey   = "peer_macs"
	// DefaultCapacity max stored peers.
	DefaultCapacity = 5
)

var (
	ErrCapacityExceeded = errors.New("peer directory full")
	ErrInvalidIdentity  = errors.New("identity cannot be stored as a peer")
	ErrCorruptBlob      = errors.New("stored peer list length not a multiple of 6")
	ErrStorage          = errors.New("peer storage failure")
)

// BlobStore: non-volatile key/value blobs. GetBlob returns nil, nil when absent;
// SetBlob and EraseBlob are atomic (write + commit).
type BlobStore interface {
	GetBlob(ns, key string) ([]byte, error)
	SetBlob(ns, key string, value []byte) error
	EraseBlob(ns, key string) error
}

// KeyFunc yields the link key for an identity (used on Load).
type KeyFunc func(ident.MAC) ([]byte, error)

// Record: one stored peer.
type Record struct {
	ID  ident.MAC
	Key []byte
}

// Directory holds peers in insertion order. Safe for concurrent use.
type Directory struct {
	mu       sync.Mutex
	store    BlobStore
	capacity int
	keyFn    KeyFunc
	records  []Record
	log      *zap.Logger
}

// New returns an empty directory; call Load to read stored peers.
func New(store BlobStore, capacity int, keyFn KeyFunc, log *zap.Logger) *Directory {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Directory{store: store, capacity: capacity, keyFn: keyFn, log: log}
}

// Load replaces the in-memory list with the stored one. No stored data -> empty,
// nil. Read failure or a corrupt blob -> empty directory and an error.
func (d *Directory) Load() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.records = nil

	blob, err := d.store.GetBlob(Namespace, BlobKey)
	if err != nil {
		return fmt.Errorf("%w: load: %v", ErrStorage, err)
	}
	if len(blob)%ident.Len != 0 {
		return ErrCorruptBlob
	}
	for off := 0; off < len(blob); off += ident.Len {
		id, _ := ident.FromBytes(blob[off : off+ident.Len])
		if id.IsBroadcast() || id.IsZero() || d.indexLocked(id) >= 0 {
			d.log.Warn("skipping stored peer", zap.Stringer("mac", id))
			continue
		}
		if len(d.records) >= d.capacity {
			d.log.Warn("stored peers exceed capacity", zap.Int("capacity", d.capacity))
			break
		}
		var key []byte
		if d.keyFn != nil {
			if key, err = d.keyFn(id); err != nil {
				d.records = nil
				return fmt.Errorf("peers: key for %s: %w", id, err)
			}
		}
		d.records = append(d.records, Record{ID: id, Key: key})
	}
	d.log.Info("peer directory loaded", zap.Int("count", len(d.records)))
	return nil
}

// Add stores id with key. Already present -> nil without writing. Full ->
// ErrCapacityExceeded. Persist failure -> ErrStorage and the list is unchanged.
func (d *Directory) Add(id ident.MAC, key []byte) error {
	if id.IsBroadcast() || id.IsZero() {
		return ErrInvalidIdentity
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.indexLocked(id) >= 0 {
		return nil
	}
	if len(d.records) >= d.capacity {
		return ErrCapacityExceeded
	}
	next := make([]Record, len(d.records), len(d.records)+1)
	copy(next, d.records)
	next = append(next, Record{ID: id, Key: append([]byte(nil), key...)})
	if err := d.store.SetBlob(Namespace, BlobKey, encode(next)); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	d.records = next
	d.log.Info("stored peer", zap.Stringer("mac", id), zap.Int("count", len(next)))
	return nil
}

// Contains reports whether id is stored.
func (d *Directory) Contains(id ident.MAC) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.indexLocked(id) >= 0
}

// Len number of stored peers.
func (d *Directory) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.records)
}

// Capacity max stored peers.
func (d *Directory) Capacity() int { return d.capacity }

// All returns a copy of the stored peers in insertion order.
func (d *Directory) All() []Record {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Record, len(d.records))
	for i, r := range d.records {
		out[i] = Record{ID: r.ID, Key: append([]byte(nil), r.Key...)}
	}
	return out
}

// EraseAll removes the stored list; idempotent.
func (d *Directory) EraseAll() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.store.EraseBlob(Namespace, BlobKey); err != nil {
		return fmt.Errorf("%w: erase: %v", ErrStorage, err)
	}
	d.records = nil
	d.log.Info("erased all peers")
	return nil
}

func (d *Directory) indexLocked(id ident.MAC) int {
	for i, r := range d.records {
		if r.ID == id {
			return i
		}
	}
	return -1
}

func encode(records []Record) []byte {
	b := make([]byte, 0, len(records)*ident.Len)
	for _, r := range records {
		b = append(b, r.ID[:]...)
	}
	return b
}
