package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "连接钱包并对后端 nonce 签名登录",
	Long: `依次执行: 连接钱包 -> (可选) 切换到目标网络 -> 获取 nonce -> personal_sign -> 后端校验。
token 只在本次进程内有效，不会写入磁盘。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()
		chain, _ := cmd.Flags().GetString("chain")
		if !cmd.Flags().Changed("chain") {
			chain = cfg.Session.TargetChain
		}
		if chain == "none" {
			chain = ""
		}
		showToken, _ := cmd.Flags().GetBool("show-token")
		logout, _ := cmd.Flags().GetBool("logout")

		env, err := openWallet(ctx, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer env.Close()

		// 1. 连接
		if err := env.session.Connect(ctx); err != nil {
			return err
		}

		// 2. 目标网络
		if chain != "" {
			if err := env.session.EnsureNetwork(ctx, chain); err != nil {
				return err
			}
		}

		// 3. 签名登录
		if err := env.session.Authenticate(ctx); err != nil {
			printSnapshot(out, env.session.Snapshot())
			return err
		}
		snap := env.session.Snapshot()
		printSnapshot(out, snap)
		if showToken {
			fmt.Fprintf(out, "token:  %s\n", snap.AuthToken)
		}

		// 4. 校验 token
		me, err := env.backend.Me(ctx, snap.AuthToken)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "后端确认: %s (有效期至 %s)\n", me.Address, me.ExpiresAt.Local().Format("2006-01-02 15:04:05"))

		if logout {
			if err := env.backend.Logout(ctx, snap.AuthToken); err != nil {
				return err
			}
			env.session.Disconnect()
			fmt.Fprintln(out, "已登出，token 已吊销")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loginCmd)
	loginCmd.Flags().String("chain", "", "登录前切换到的网络 (默认使用 session.target_chain，传 none 跳过)")
	loginCmd.Flags().Bool("show-token", false, "打印 token")
	loginCmd.Flags().Bool("logout", false, "登录校验后立即登出")
}
