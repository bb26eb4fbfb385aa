package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// Key prefixes for BadgerDB archive organization.
// Using single-byte prefixes for efficiency.
const (
	prefixBlob = byte(0x01) // blob:snapshotID -> sealed snapshot bytes
	prefixMeta = byte(0x02) // meta:snapshotID -> JSON(Meta)
	keyLatest  = byte(0x03) // latest -> snapshotID
)

var (
	// ErrNoSnapshots is returned by Latest when the archive is empty.
	ErrNoSnapshots = errors.New("snapshot: archive is empty")

	// ErrSnapshotNotFound is returned by Get for an unknown snapshot ID.
	ErrSnapshotNotFound = errors.New("snapshot: not found")

	// ErrArchiveClosed is returned for operations on a closed archive.
	ErrArchiveClosed = errors.New("snapshot: archive closed")
)

// Meta describes one archived snapshot.
type Meta struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Size      int       `json:"size"`
	Encrypted bool      `json:"encrypted"`
}

// Archive is a BadgerDB-backed store of encoded snapshot blobs.
//
// Each saved blob is assigned a UUID and a metadata record. The archive
// keeps every snapshot it is given; callers decide retention. When the
// archive was opened with an enabled Encryptor, blobs are sealed before
// they touch disk and opened transparently on read.
//
// Key Structure:
//   - Blobs:  0x01 + snapshotID -> sealed bytes
//   - Meta:   0x02 + snapshotID -> JSON(Meta)
//   - Latest: 0x03              -> snapshotID
//
// Thread Safety:
//
//	Safe for concurrent use from multiple goroutines.
type Archive struct {
	db     *badger.DB
	enc    *Encryptor
	mu     sync.Mutex
	closed bool
}

// ArchiveOptions configures an Archive.
type ArchiveOptions struct {
	// Dir is the directory for BadgerDB data files.
	// Ignored when InMemory is true.
	Dir string

	// InMemory runs BadgerDB in memory-only mode.
	// Useful for testing. Data is not persisted.
	InMemory bool

	// SyncWrites forces fsync after each write.
	SyncWrites bool

	// Encryptor seals blobs at rest. A nil or disabled encryptor
	// stores blobs as-is.
	Encryptor *Encryptor
}

// OpenArchive opens (or creates) a snapshot archive.
func OpenArchive(opts ArchiveOptions) (*Archive, error) {
	badgerOpts := badger.DefaultOptions(opts.Dir)

	if opts.InMemory {
		badgerOpts = badgerOpts.WithInMemory(true)
	}
	if opts.SyncWrites {
		badgerOpts = badgerOpts.WithSyncWrites(true)
	}
	// Archives hold a handful of blobs, not a graph workload.
	// Keep Badger's buffers small.
	badgerOpts = badgerOpts.
		WithLogger(nil).
		WithMemTableSize(8 << 20).
		WithValueLogFileSize(64 << 20).
		WithNumMemtables(2)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("snapshot: open archive: %w", err)
	}

	return &Archive{db: db, enc: opts.Encryptor}, nil
}

// Put stores an encoded snapshot blob and returns its metadata.
// The blob is the output of Encode; Put does not inspect it.
func (a *Archive) Put(blob []byte) (*Meta, error) {
	if err := a.check(); err != nil {
		return nil, err
	}

	sealed := blob
	encrypted := false
	if a.enc.IsEnabled() {
		var err error
		sealed, err = a.enc.Seal(blob)
		if err != nil {
			return nil, fmt.Errorf("snapshot: seal blob: %w", err)
		}
		encrypted = true
	}

	meta := &Meta{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Size:      len(blob),
		Encrypted: encrypted,
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("snapshot: marshal meta: %w", err)
	}

	err = a.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(blobKey(meta.ID), sealed); err != nil {
			return err
		}
		if err := txn.Set(metaKey(meta.ID), metaJSON); err != nil {
			return err
		}
		return txn.Set([]byte{keyLatest}, []byte(meta.ID))
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot: store blob: %w", err)
	}
	return meta, nil
}

// Get returns the decoded-ready blob for the given snapshot ID.
func (a *Archive) Get(id string) ([]byte, error) {
	if err := a.check(); err != nil {
		return nil, err
	}

	var sealed []byte
	var meta Meta
	err := a.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(metaKey(id))
		if err != nil {
			return err
		}
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &meta)
		}); err != nil {
			return err
		}

		item, err = txn.Get(blobKey(id))
		if err != nil {
			return err
		}
		sealed, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot: read blob: %w", err)
	}

	if meta.Encrypted {
		blob, err := a.enc.Open(sealed)
		if err != nil {
			return nil, fmt.Errorf("snapshot: open sealed blob: %w", err)
		}
		return blob, nil
	}
	return sealed, nil
}

// Latest returns the most recently stored blob and its metadata.
func (a *Archive) Latest() ([]byte, *Meta, error) {
	if err := a.check(); err != nil {
		return nil, nil, err
	}

	var id string
	err := a.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte{keyLatest})
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			id = string(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil, ErrNoSnapshots
	}
	if err != nil {
		return nil, nil, fmt.Errorf("snapshot: read latest pointer: %w", err)
	}

	metas, err := a.List()
	if err != nil {
		return nil, nil, err
	}
	var meta *Meta
	for _, m := range metas {
		if m.ID == id {
			meta = m
			break
		}
	}
	if meta == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, id)
	}

	blob, err := a.Get(id)
	if err != nil {
		return nil, nil, err
	}
	return blob, meta, nil
}

// List returns metadata for all archived snapshots, newest first.
func (a *Archive) List() ([]*Meta, error) {
	if err := a.check(); err != nil {
		return nil, err
	}

	var metas []*Meta
	err := a.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte{prefixMeta}
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var m Meta
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &m)
			}); err != nil {
				return err
			}
			metas = append(metas, &m)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot: list archive: %w", err)
	}

	sort.Slice(metas, func(i, j int) bool {
		if !metas[i].CreatedAt.Equal(metas[j].CreatedAt) {
			return metas[i].CreatedAt.After(metas[j].CreatedAt)
		}
		return metas[i].ID < metas[j].ID
	})
	return metas, nil
}

// Close releases the underlying BadgerDB. Further calls return
// ErrArchiveClosed.
func (a *Archive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	return a.db.Close()
}

func (a *Archive) check() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrArchiveClosed
	}
	return nil
}

func blobKey(id string) []byte {
	return append([]byte{prefixBlob}, id...)
}

func metaKey(id string) []byte {
	return append([]byte{prefixMeta}, id...)
}
