package cmd

import (
	"github.com/spf13/cobra"
)

const AppName = "digfat32"

func Execute() error {
	rootCmd := &cobra.Command{
		Use:   AppName,
		Short: AppName + " - a user-space FAT32 filesystem driver",
	}

	rootCmd.AddCommand(DefineMountCommand())

	return rootCmd.Execute()
}
