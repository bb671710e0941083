//go:build !linux
// +build !linux

package fuse

import (
	"fmt"

	"github.com/ostafen/digfat32/internal/fat32"
	"github.com/ostafen/digfat32/internal/logger"
)

// Mount is unavailable on non-Linux platforms: bazil.org/fuse's kernel
// transport is Linux/Darwin/FreeBSD specific, and this driver only
// builds the Linux side (matching the teacher's own mount_linux.go /
// mount.go split).
func Mount(mountpoint string, fat *fat32.Filesystem, log *logger.Logger) error {
	return fmt.Errorf("FUSE mount is only supported on Linux")
}
