package root

import (
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/atomicobject/fswatchd/pkg/watchtree"
)

// statInfo stats path (without following a trailing symlink) and converts
// the result into watchtree.FileInformation, reading the uid/gid/ino/dev/
// nlink fields from golang.org/x/sys/unix.Stat_t rather than the narrower
// syscall package, since x/sys exposes the same layout consistently across
// linux/darwin/bsd instead of per-GOOS struct tags. This targets unix-like
// systems, consistent with fsnotify's own platform support and with the
// crawler's symlink-denial walk in §4.1.1.
func statInfo(path string) (watchtree.FileInformation, os.FileInfo, error) {
	fi, err := os.Lstat(path)
	if err != nil {
		return watchtree.FileInformation{}, nil, err
	}
	info := watchtree.FileInformation{
		Mode:  uint32(fi.Mode()),
		Size:  fi.Size(),
		Mtime: fi.ModTime(),
	}
	var sys unix.Stat_t
	if err := unix.Lstat(path, &sys); err == nil {
		info.Uid = sys.Uid
		info.Gid = sys.Gid
		info.Ino = sys.Ino
		info.Dev = uint64(sys.Dev)
		info.Nlink = uint32(sys.Nlink)
		info.Atime = time.Unix(sys.Atim.Sec, sys.Atim.Nsec)
		info.Ctime = time.Unix(sys.Ctim.Sec, sys.Ctim.Nsec)
	} else {
		info.Ctime = fi.ModTime()
		info.Atime = fi.ModTime()
	}
	return info, fi, nil
}

// probeOpenNoFollow opens path with O_NOFOLLOW so a symlink at this
// component fails with ELOOP instead of being silently traversed.
func probeOpenNoFollow(path string) error {
	f, err := os.OpenFile(path, os.O_RDONLY|unix.O_NOFOLLOW, 0)
	if err != nil {
		return err
	}
	return f.Close()
}
