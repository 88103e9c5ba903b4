package watchtree

import "time"

// FileInformation is the significant subset of stat(2) results the root
// engine compares on every observation (spec §3, §4.1 step 2). blocks and
// blksize are deliberately absent: per the Open Question in spec §9 they
// are platform-inconsistent and the query evaluator never exposes them
// (DESIGN.md: dropped entirely, not even for logging).
type FileInformation struct {
	Mode  uint32
	Size  int64
	Uid   uint32
	Gid   uint32
	Ino   uint64
	Dev   uint64
	Nlink uint32
	Atime time.Time
	Mtime time.Time
	Ctime time.Time

	// ReparseFlags is only meaningful on a case-insensitive root (spec §3's
	// "on a case-insensitive-OS build this also carries a reparse-flags
	// bag"). It is always present here rather than gated by a build tag —
	// see DESIGN.md for why a single cross-platform struct was chosen over
	// per-platform variants.
	ReparseFlags uint32
}

// SignificantlyDiffers reports whether b differs from a in any field the
// mutation protocol treats as meaningful (spec §4.1 step 2): mode, size
// (files only — directories are compared by enumeration, not size), nlink,
// dev, ino, uid, gid, mtime, ctime. atime is deliberately excluded.
func (a FileInformation) SignificantlyDiffers(b FileInformation, isDir bool) bool {
	if a.Mode != b.Mode || a.Nlink != b.Nlink || a.Dev != b.Dev || a.Ino != b.Ino ||
		a.Uid != b.Uid || a.Gid != b.Gid || !a.Mtime.Equal(b.Mtime) || !a.Ctime.Equal(b.Ctime) {
		return true
	}
	if !isDir && a.Size != b.Size {
		return true
	}
	return false
}
