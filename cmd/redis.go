package cmd

import (
	"context"
	"fmt"
	"time"

	"Tunehub/cache"
	"Tunehub/db"

	"github.com/spf13/cobra"
)

var redisPresence bool

var redisCmd = &cobra.Command{
	Use:   "redis",
	Short: "Redis连接测试",
	Long:  `测试Redis连接是否成功，可选地打印在线状态镜像中的用户与活动。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c := loadConfig()
		fmt.Printf("Redis配置: %s:%s, DB: %d\n", c.RedisHost, c.RedisPort, c.RedisDB)

		client, err := db.ConnectRedis(c)
		if err != nil {
			return fmt.Errorf("无法连接到Redis: %w", err)
		}
		defer db.CloseRedis()

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()

		if err := db.CheckRedis(ctx, client); err != nil {
			return fmt.Errorf("Redis读写测试失败: %w", err)
		}
		fmt.Println("Redis连接与读写测试成功")

		if !redisPresence {
			return nil
		}
		entries, err := cache.NewPresenceMirror(client).Dump(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("\n在线用户 %d:\n", len(entries))
		for _, e := range entries {
			fmt.Printf("  %-32s %s\n", e.ExternalID, e.Activity)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(redisCmd)
	redisCmd.Flags().BoolVarP(&redisPresence, "presence", "p", false, "打印在线状态镜像")
}
