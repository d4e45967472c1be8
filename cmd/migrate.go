package cmd

import (
	"fmt"

	"Tunehub/db"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "同步数据库表结构",
	Long:  `连接 MySQL 并对所有模型执行 AutoMigrate。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c := loadConfig()
		fmt.Printf("MySQL: %s:%s/%s\n", c.DBHost, c.DBPort, c.DBName)

		gdb, err := db.ConnectGormDB(c)
		if err != nil {
			return err
		}
		defer db.CloseGormDB()

		if err := db.AutoMigrate(gdb); err != nil {
			return err
		}
		fmt.Println("数据库迁移完成")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
