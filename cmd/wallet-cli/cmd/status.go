package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"wallet-session/pkg/eip1193"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "显示账户、网络与余额",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		env, err := openWallet(ctx, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.session.Connect(ctx); err != nil {
			return err
		}
		snap := env.session.Snapshot()
		printSnapshot(out, snap)

		// 余额走 Provider 的读请求 (本地钱包会转发到上游节点)
		raw, err := eip1193.Call[string](ctx, env.provider, eip1193.MethodGetBalance, snap.Address, "latest")
		if err != nil {
			fmt.Fprintf(out, "余额:   不可用 (%v)\n", err)
			return nil
		}
		wei, err := eip1193.ParseQuantity(raw)
		if err != nil {
			return err
		}

		symbol, decimals := "ETH", 18
		for _, n := range networks() {
			if eip1193.SameChain(n.ChainID, snap.ChainID) {
				symbol, decimals = n.NativeCurrency.Symbol, n.NativeCurrency.Decimals
				break
			}
		}
		fmt.Fprintf(out, "余额:   %s %s\n", eip1193.FormatUnits(wei, decimals), symbol)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
