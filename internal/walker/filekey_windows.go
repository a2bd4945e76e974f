//go:build windows

package walker

import (
	"fmt"
	"os"
	"syscall"

	"golang.org/x/sys/windows"
)

// fileKey returns a stable per-file identity string derived from the NTFS
// file index, used to detect moves across scans even when the path
// changes.
func fileKey(info os.FileInfo) (string, bool) {
	path := info.Name()

	h, err := windows.Open(path, windows.O_RDONLY, 0)
	if err != nil {
		return "", false
	}
	defer windows.CloseHandle(h)

	var data windows.ByHandleFileInformation
	if err := windows.GetFileInformationByHandle(h, &data); err != nil {
		return "", false
	}

	return fmt.Sprintf("%d:%d:%d", data.VolumeSerialNumber, data.FileIndexHigh, data.FileIndexLow), true
}

// creationTime returns the NTFS creation timestamp, which Windows
// exposes directly unlike most unix filesystems.
func creationTime(info os.FileInfo) int64 {
	if sys, ok := info.Sys().(*syscall.Win32FileAttributeData); ok {
		return sys.CreationTime.Nanoseconds()
	}

	return info.ModTime().UnixNano()
}
