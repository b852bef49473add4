//go:build linux

package storage

import (
	"fmt"
	"syscall"
)

// statfs magic numbers for the shares we refuse.
const (
	magicNFS  = 0x6969
	magicCIFS = 0xFF534D42
	magicSMB  = 0x517B
	magicSMB2 = 0xFE534D42
)

func detectFilesystemType(path string) (string, error) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(path, &st); err != nil {
		return "", err
	}
	switch uint64(st.Type) {
	case magicNFS:
		return "nfs", nil
	case magicCIFS:
		return "cifs", nil
	case magicSMB:
		return "smbfs", nil
	case magicSMB2:
		return "smb2", nil
	}
	return fmt.Sprintf("0x%x", uint64(st.Type)), nil
}
