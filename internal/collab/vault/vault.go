// Package vault provides a reference, in-process implementation of the
// collab.Vault interface: an embedded, namespaced key-value store backed by
// LevelDB, adapted from the LevelDB-backed memory engine in the retrieved
// teacher codebase's internal/roles/memory package.
//
// The teacher's store layers a decay/quantization/dreamer-consolidation model
// on top of LevelDB for its own domain-specific recall ranking; none of that
// belongs to the Vault's narrow put/get/query contract (§6), so it is not
// carried over here — only the "single embedded LevelDB handle, namespaced
// key prefixes, single-writer open semantics" shape is kept.
package vault

import (
	"context"
	"fmt"
	"strings"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/kernel/cellruntime/internal/kerneltypes"
)

// Store is a LevelDB-backed Vault. Namespaces are encoded as a key prefix
// ("<namespace>|<key>"), mirroring the teacher's "|"-separated prefix scheme
// chosen because colons in caller-supplied keys would otherwise collide with
// a ":"-separated scheme.
type Store struct {
	db *leveldb.DB
}

// Open opens (or creates) a LevelDB database at dbPath. LevelDB is
// single-writer: a second Open against the same path fails.
func Open(dbPath string) (*Store, error) {
	db, err := leveldb.OpenFile(dbPath, nil)
	if err != nil {
		return nil, fmt.Errorf("vault: open %s: %w", dbPath, err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying LevelDB handle.
func (s *Store) Close() error { return s.db.Close() }

// namespacedKey joins namespace and key into the stored "<namespace>|<key>"
// form.
func namespacedKey(namespace, key string) []byte {
	return []byte(namespace + "|" + key)
}

// Put implements collab.Vault. ttlSeconds is accepted for interface
// compliance but not enforced by this reference implementation — a
// production Vault would run an expiry sweep; the kernel core never assumes
// TTL enforcement happens synchronously with Put.
func (s *Store) Put(ctx context.Context, key string, blob []byte, ttlSeconds int) error {
	ns, bareKey := splitNamespace(key)
	if err := s.db.Put(namespacedKey(ns, bareKey), blob, nil); err != nil {
		return fmt.Errorf("vault: put %s: %w", key, err)
	}
	return nil
}

// Get implements collab.Vault.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ns, bareKey := splitNamespace(key)
	v, err := s.db.Get(namespacedKey(ns, bareKey), nil)
	if err == leveldb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("vault: get %s: %w", key, err)
	}
	return v, true, nil
}

// Query implements collab.Vault: scans every key under namespace, applying
// filter to the bare key (namespace prefix stripped) before including its value.
func (s *Store) Query(ctx context.Context, namespace string, filter func(key string) bool) ([][]byte, error) {
	prefix := []byte(namespace + "|")
	iter := s.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()

	var out [][]byte
	for iter.Next() {
		bareKey := strings.TrimPrefix(string(iter.Key()), namespace+"|")
		if filter != nil && !filter(bareKey) {
			continue
		}
		v := make([]byte, len(iter.Value()))
		copy(v, iter.Value())
		out = append(out, v)
	}
	return out, iter.Error()
}

// KeyFor builds a namespace-qualified key for a cell's own domain, the
// "per-cell-domain" namespacing convention §6 requires.
func KeyFor(identity kerneltypes.Identity, suffix string) string {
	return identity.Domain + "|" + suffix
}

func splitNamespace(key string) (namespace, bareKey string) {
	if i := strings.IndexByte(key, '|'); i >= 0 {
		return key[:i], key[i+1:]
	}
	return "default", key
}
