package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tink3rlabs/targeting/storage"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending storage migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStorage()
		if err != nil {
			return err
		}
		return storage.NewDatabaseMigration(s).Migrate()
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func openStorage() (storage.StorageAdapter, error) {
	s, err := storage.StorageAdapterFactory{}.GetInstance(storage.StorageAdapterType(cfg.Storage.Type), cfg.Storage.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	return s, nil
}
