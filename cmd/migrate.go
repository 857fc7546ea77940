package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/camden-git/entomobackend/database"
)

func migrateCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(v)
			if err != nil {
				return err
			}
			db, err := database.InitGormDB(cfg.DatabasePath, log)
			if err != nil {
				return err
			}
			defer database.Close(db)

			if err := database.AutoMigrateModels(db); err != nil {
				return err
			}
			log.Info("schema migrated", "path", cfg.DatabasePath)
			return nil
		},
	}
}
