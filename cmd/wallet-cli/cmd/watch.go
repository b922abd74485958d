package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "连接钱包并持续输出会话状态变化 (Ctrl+C 退出)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()
		login, _ := cmd.Flags().GetBool("login")

		env, err := openWallet(ctx, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer env.Close()

		updates := env.session.Watch(ctx)

		go func() {
			if err := env.session.Connect(ctx); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "连接失败: %v\n", err)
				return
			}
			if login {
				if err := env.session.Authenticate(ctx); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "登录失败: %v\n", err)
				}
			}
		}()

		for snap := range updates {
			fmt.Fprintf(out, "[%s] state=%s address=%s chain=%s authenticated=%v",
				time.Now().Format("15:04:05"), snap.State, dash(snap.Address), dash(snap.ChainID), snap.Authenticated())
			if snap.LastError != "" {
				fmt.Fprintf(out, " error=%s", snap.LastError)
			}
			fmt.Fprintln(out)
		}
		return nil
	},
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().Bool("login", false, "连接后立即签名登录")
}
