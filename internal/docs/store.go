// Package docs keeps a small store of backend documentation chunks that are
// fed to the editor alongside unmet requirements.
package docs

import (
	"crypto/sha1"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"
)

// DirName is the store directory under the project root.
const DirName = "embeddings"

// Key layout: chunk/<8-byte seq> holds text in insertion order,
// id/<sha1> marks a chunk as present, meta/next is the next sequence.
var (
	chunkPrefix = []byte("chunk/")
	idPrefix    = []byte("id/")
	nextKey     = []byte("meta/next")
)

// Chunk is one stored section of documentation.
type Chunk struct {
	ID   string // sha1 of Text
	Text string
}

// Store is a BadgerDB of doc chunks.
type Store struct {
	db *badger.DB
}

// Dir returns the store directory for a project root.
func Dir(root string) string {
	return filepath.Join(root, DirName)
}

// Exists reports whether a store has been created under root.
func Exists(root string) bool {
	info, err := os.Stat(Dir(root))
	return err == nil && info.IsDir()
}

// Open opens or creates the store under root.
func Open(root string) (*Store, error) {
	opts := badger.DefaultOptions(Dir(root)).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening docs store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the store.
func (s *Store) Close() error {
	return s.db.Close()
}

// ChunkID returns the content id used for de-duplication.
func ChunkID(text string) string {
	sum := sha1.Sum([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Add stores text unless a chunk with the same id exists.
func (s *Store) Add(text string) (bool, error) {
	id := ChunkID(text)
	added := false
	err := s.db.Update(func(txn *badger.Txn) error {
		idKey := append(append([]byte{}, idPrefix...), id...)
		if _, err := txn.Get(idKey); err == nil {
			return nil
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		seq, err := nextSeq(txn)
		if err != nil {
			return err
		}
		if err := txn.Set(chunkKey(seq), []byte(text)); err != nil {
			return err
		}
		if err := txn.Set(idKey, chunkKey(seq)); err != nil {
			return err
		}
		added = true
		return txn.Set(nextKey, encodeSeq(seq+1))
	})
	if err != nil {
		return false, fmt.Errorf("adding doc chunk: %w", err)
	}
	return added, nil
}

// Peek returns up to n chunks in insertion order.
func (s *Store) Peek(n int) ([]Chunk, error) {
	var out []Chunk
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = chunkPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid() && len(out) < n; it.Next() {
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			text := string(val)
			out = append(out, Chunk{ID: ChunkID(text), Text: text})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading doc chunks: %w", err)
	}
	return out, nil
}

// Len returns the number of stored chunks.
func (s *Store) Len() (int, error) {
	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		seq, err := nextSeq(txn)
		n = int(seq)
		return err
	})
	return n, err
}

// PeekDir returns up to n chunk texts from the store under root. A missing
// store yields nothing.
func PeekDir(root string, n int) ([]string, error) {
	if !Exists(root) {
		return nil, nil
	}
	s, err := Open(root)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	chunks, err := s.Peek(n)
	if err != nil {
		return nil, err
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	return texts, nil
}

func nextSeq(txn *badger.Txn) (uint64, error) {
	item, err := txn.Get(nextKey)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var seq uint64
	err = item.Value(func(val []byte) error {
		if len(val) != 8 {
			return fmt.Errorf("corrupt sequence value (%d bytes)", len(val))
		}
		seq = binary.BigEndian.Uint64(val)
		return nil
	})
	return seq, err
}

func chunkKey(seq uint64) []byte {
	return append(append([]byte{}, chunkPrefix...), encodeSeq(seq)...)
}

func encodeSeq(seq uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, seq)
	return b
}
