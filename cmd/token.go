package cmd

import (
	"fmt"
	"time"

	"Tunehub/core/auth"

	"github.com/spf13/cobra"
)

var (
	tokenEmail  string
	tokenName   string
	tokenExpiry time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token <externalId>",
	Short: "签发本地调试用的会话令牌",
	Long:  `用 JWT_SECRET 为指定外部用户 id 签发 HS256 令牌，用于本地调试 API 与 socket 中继。`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := loadConfig()
		tok, err := auth.NewResolver(c.JWTSecret, c.JWTIssuer, tokenExpiry).Issue(args[0], tokenEmail, tokenName)
		if err != nil {
			return err
		}
		fmt.Println(tok)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().StringVarP(&tokenEmail, "email", "e", "", "令牌中的邮箱")
	tokenCmd.Flags().StringVarP(&tokenName, "name", "n", "", "令牌中的显示名")
	tokenCmd.Flags().DurationVar(&tokenExpiry, "expiry", 24*time.Hour, "有效期")
}
