package cmd

import (
	"Tunehub/logger"
	"Tunehub/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动 Tunehub 服务器",
	Long:  `启动 HTTP API 与实时 socket 中继，直到收到 SIGINT/SIGTERM 后优雅退出`,
	RunE: func(cmd *cobra.Command, args []string) error {
		defer logger.Sync()
		return server.Start(loadConfig())
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
