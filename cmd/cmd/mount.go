// Copyright (c) 2025 Stefano Scafiti
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.
package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ostafen/digfat32/internal/fat32"
	"github.com/ostafen/digfat32/internal/fuse"
	"github.com/ostafen/digfat32/internal/logger"
)

// DefineMountCommand builds the single CLI verb this driver exposes:
// mounting a FAT32-formatted block device (or image file standing in for
// one) at a mountpoint. Option parsing beyond this verb, and any i18n
// wrapper around its messages, are out of scope per spec.md §1.
func DefineMountCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mount <device_path>",
		Short: "Mount a FAT32 block device or image at a mountpoint",
		Long: `The 'mount' command opens a FAT32-formatted block device (or a regular
file standing in for one, for images) and serves its contents at a
mountpoint via FUSE. Supported operations are getattr, readdir, open,
read, unlink, rmdir and truncate; create, mkdir, write and rename are
not implemented (see README / spec for the rationale).`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE:         RunMount,
	}

	cmd.Flags().StringP("mountpoint", "m", "", "Absolute path to the directory where the filesystem will be mounted. If not specified, a default is derived from the device path.")
	cmd.Flags().Int("open-file-table-size", 64, "Initial capacity hint for the open-file reference-count table")
	cmd.Flags().Int("handle-table-size", 64, "Initial capacity hint for the handle-to-object table")
	cmd.Flags().String("log-level", "INFO", "Minimum log level: DEBUG, INFO, WARN or ERROR")
	return cmd
}

func RunMount(cmd *cobra.Command, args []string) error {
	devicePath := args[0]

	mountpoint, _ := cmd.Flags().GetString("mountpoint")
	if mountpoint == "" {
		mountpoint = defaultMountpoint(devicePath)
	}

	openFileTableSize, _ := cmd.Flags().GetInt("open-file-table-size")
	if openFileTableSize <= 0 {
		return fmt.Errorf("--open-file-table-size must be a positive integer")
	}
	handleTableSize, _ := cmd.Flags().GetInt("handle-table-size")
	if handleTableSize <= 0 {
		return fmt.Errorf("--handle-table-size must be a positive integer")
	}
	logLevel, _ := cmd.Flags().GetString("log-level")
	log := logger.New(os.Stderr, logger.ParseLevel(logLevel))

	fs, err := fat32.Open(devicePath, fat32.OpenParams{
		OpenFileTableSize: openFileTableSize,
		HandleTableSize:   handleTableSize,
		Logger:            log,
	})
	if err != nil {
		return fmt.Errorf("opening %s: %w", devicePath, err)
	}
	defer fs.Close()

	log.Infof("mounting %s at %s", devicePath, mountpoint)
	return fuse.Mount(mountpoint, fs, log)
}

// defaultMountpoint derives a mountpoint name from the device path's base
// name by stripping its extension, falling back to a "_mnt" suffix when
// there is none to strip.
func defaultMountpoint(devicePath string) string {
	baseName := filepath.Base(devicePath)
	ext := filepath.Ext(baseName)
	baseName = strings.TrimSuffix(baseName, ext)
	if ext == "" {
		return baseName + "_mnt"
	}
	return baseName
}
