//go:build !windows

package walker

import (
	"fmt"
	"os"
	"syscall"
)

// fileKey returns a stable (device, inode) identity string for info, used
// to detect moves across scans even when the path changes.
func fileKey(info os.FileInfo) (string, bool) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return "", false
	}

	return fmt.Sprintf("%d:%d", stat.Dev, stat.Ino), true
}

// creationTime approximates a creation timestamp. Most unix filesystems
// don't expose birth time through syscall.Stat_t, so ModTime is used as
// the best available proxy, matching the platform's own stat(1) fallback.
func creationTime(info os.FileInfo) int64 {
	return info.ModTime().UnixNano()
}
