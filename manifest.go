package dumpkit

import "sort"

// PartitionInfo describes one persisted partition. It is what a catalog
// knows about a timestep without opening the partition.
type PartitionInfo struct {
	Kind     Kind   `json:"kind"`
	Timestep int64  `json:"timestep"`
	File     string `json:"file"`

	// Epoch is the schema epoch of the partition, or -1 when the entry was
	// recovered from a file name alone.
	Epoch int `json:"epoch"`

	Rows int64  `json:"rows"`
	Hash uint64 `json:"hash"`
}

// Manifest persists catalog entries for one output directory so that a
// catalog can be reopened without touching partition payloads. A manifest is
// a cache: catalogs reconcile it against the directory on open, and a
// Manifest returning *CatalogCorruption is rebuilt from disk.
type Manifest interface {
	// Load returns every entry for kind k, ordered by timestep.
	Load(k Kind) ([]PartitionInfo, error)

	// Put adds or replaces entries.
	Put(k Kind, infos ...PartitionInfo) error

	// Delete removes the entries for the given timesteps.
	Delete(k Kind, steps ...int64) error

	// Reset removes every entry for kind k.
	Reset(k Kind) error

	Close() error
}

// MemManifest is a Manifest held in memory. It is used when no persistent
// manifest is wanted, and in tests.
type MemManifest struct {
	kinds map[Kind]map[int64]PartitionInfo
}

// NewMemManifest returns an empty MemManifest.
func NewMemManifest() *MemManifest {
	return &MemManifest{kinds: make(map[Kind]map[int64]PartitionInfo)}
}

// Load implements Manifest.
func (m *MemManifest) Load(k Kind) ([]PartitionInfo, error) {
	entries := m.kinds[k]
	infos := make([]PartitionInfo, 0, len(entries))
	for _, info := range entries {
		infos = append(infos, info)
	}
	SortInfos(infos)
	return infos, nil
}

// Put implements Manifest.
func (m *MemManifest) Put(k Kind, infos ...PartitionInfo) error {
	entries, ok := m.kinds[k]
	if !ok {
		entries = make(map[int64]PartitionInfo)
		m.kinds[k] = entries
	}
	for _, info := range infos {
		entries[info.Timestep] = info
	}
	return nil
}

// Delete implements Manifest.
func (m *MemManifest) Delete(k Kind, steps ...int64) error {
	for _, step := range steps {
		delete(m.kinds[k], step)
	}
	return nil
}

// Reset implements Manifest.
func (m *MemManifest) Reset(k Kind) error {
	delete(m.kinds, k)
	return nil
}

// Close implements Manifest.
func (m *MemManifest) Close() error { return nil }

// SortInfos orders infos by timestep.
func SortInfos(infos []PartitionInfo) {
	sort.Slice(infos, func(i, j int) bool { return infos[i].Timestep < infos[j].Timestep })
}
