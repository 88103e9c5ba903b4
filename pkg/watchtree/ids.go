package watchtree

// DirID and FileID are monotonically increasing identifiers for directory
// and file nodes. DESIGN NOTES §9 suggests a generational slot-arena to
// avoid use-after-free when recycling freed slots in a language without a
// garbage collector; Go's GC removes that hazard outright, so node storage
// here is a plain map keyed by a never-reused ID (see DESIGN.md). Deleting
// a map entry on age-out is sufficient: any ID still referenced by a
// recency-list or suffix-index link that hasn't itself been cleaned up
// simply won't resolve via Tree.File/Tree.Dir, which callers already treat
// as "gone."
type DirID uint64

// FileID is the analogous identifier for file nodes.
type FileID uint64

// NoFile and NoDir are zero-value sentinels meaning "no node"/"end of list."
const (
	NoFile FileID = 0
	NoDir  DirID  = 0
)
