package cmd

import (
	"github.com/spf13/cobra"
)

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "连接钱包并显示当前账户与网络",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := openWallet(ctx, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.session.Connect(ctx); err != nil {
			printSnapshot(cmd.OutOrStdout(), env.session.Snapshot())
			return err
		}
		printSnapshot(cmd.OutOrStdout(), env.session.Snapshot())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(connectCmd)
}
