package hotrun

import (
	"fmt"
	"os"
	"time"
)

// Fingerprint identifies one version of a file on disk. Size and modification
// time catch in-place overwrites, the inode catches replacement by rename or
// recreation even when size and mtime happen to match.
type Fingerprint struct {
	Size    int64
	ModTime time.Time
	Inode   uint64
}

// TakeFingerprint stats path and returns its fingerprint
func TakeFingerprint(path string) (Fingerprint, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return Fingerprint{}, err
	}
	if fi.IsDir() {
		return Fingerprint{}, &OpError{Op: OpStat, Path: path, Err: fmt.Errorf("is a directory")}
	}
	return Fingerprint{
		Size:    fi.Size(),
		ModTime: fi.ModTime(),
		Inode:   fileInode(fi),
	}, nil
}

// IsZero reports whether the fingerprint was never taken
func (f Fingerprint) IsZero() bool {
	return f == Fingerprint{}
}

// Equal reports whether two fingerprints describe the same file version
func (f Fingerprint) Equal(o Fingerprint) bool {
	return f.Size == o.Size && f.Inode == o.Inode && f.ModTime.Equal(o.ModTime)
}

// String returns a compact representation for logging
func (f Fingerprint) String() string {
	return fmt.Sprintf("size=%d mtime=%s ino=%d", f.Size, f.ModTime.Format(time.RFC3339Nano), f.Inode)
}
