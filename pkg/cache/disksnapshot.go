package cache

import (
	"encoding/json"
	"fmt"

	dbm "github.com/cometbft/cometbft-db"

	"github.com/lightprotocol/forester/pkg/treetypes"
)

// DiskSnapshot persists the last known root of each tree, keyed by tree
// id, to a small key-value store so a restarted forester has
// something to show operators before its first on-chain sync completes.
// It is strictly diagnostic: SPEC_FULL.md's freshness rule is always the
// on-chain root, never this file, so a stale or corrupt snapshot can
// never cause the coordinator to trust an incorrect staging tree — at
// worst it is ignored and the cache rebuilds from chain as usual.
type DiskSnapshot struct {
	db dbm.DB
}

// snapshotRecord is what gets written per tree.
type snapshotRecord struct {
	LastRoot treetypes.Digest `json:"last_root"`
}

// OpenDiskSnapshot opens (creating if absent) a GoLevelDB-backed snapshot
// store under dir. Pass an empty dir to use an in-memory store instead
// (useful for tests or a forester running with warm-start disabled).
func OpenDiskSnapshot(name, dir string) (*DiskSnapshot, error) {
	var db dbm.DB
	var err error
	if dir == "" {
		db = dbm.NewMemDB()
	} else {
		db, err = dbm.NewGoLevelDB(name, dir)
		if err != nil {
			return nil, fmt.Errorf("cache: open disk snapshot: %w", err)
		}
	}
	return &DiskSnapshot{db: db}, nil
}

// Record writes the last known root for tree. Errors are non-fatal to
// the caller's correctness — this is advisory state — but are returned
// so the coordinator can log them.
func (d *DiskSnapshot) Record(tree treetypes.TreeID, lastRoot treetypes.Digest) error {
	data, err := json.Marshal(snapshotRecord{LastRoot: lastRoot})
	if err != nil {
		return fmt.Errorf("cache: marshal snapshot record: %w", err)
	}
	if err := d.db.SetSync(tree[:], data); err != nil {
		return fmt.Errorf("cache: write snapshot record: %w", err)
	}
	return nil
}

// Load returns the last recorded root for tree and whether one existed.
// The value is for display only; no StagingTree is built from it.
func (d *DiskSnapshot) Load(tree treetypes.TreeID) (treetypes.Digest, bool, error) {
	data, err := d.db.Get(tree[:])
	if err != nil {
		return treetypes.Digest{}, false, fmt.Errorf("cache: read snapshot record: %w", err)
	}
	if data == nil {
		return treetypes.Digest{}, false, nil
	}
	var rec snapshotRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return treetypes.Digest{}, false, fmt.Errorf("cache: unmarshal snapshot record: %w", err)
	}
	return rec.LastRoot, true, nil
}

// Close releases the underlying database handle.
func (d *DiskSnapshot) Close() error {
	return d.db.Close()
}
