package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"wallet-session/pkg/eip1193"
)

var networkCmd = &cobra.Command{
	Use:   "network",
	Short: "网络管理",
}

var networkListCmd = &cobra.Command{
	Use:   "list",
	Short: "列出已配置的网络",
	RunE: func(cmd *cobra.Command, args []string) error {
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "CHAIN ID\tDECIMAL\tNAME\tSYMBOL\tRPC")
		for _, n := range networks() {
			dec := "?"
			if id, err := eip1193.ParseChainID(n.ChainID); err == nil {
				dec = id.String()
			}
			rpcURL := ""
			if len(n.RPCURLs) > 0 {
				rpcURL = n.RPCURLs[0]
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", n.ChainID, dec, n.ChainName, n.NativeCurrency.Symbol, rpcURL)
		}
		return tw.Flush()
	},
}

var networkSwitchCmd = &cobra.Command{
	Use:   "switch <chain-id>",
	Short: "连接钱包并切换到指定网络，钱包不认识时自动添加",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := openWallet(ctx, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.session.Connect(ctx); err != nil {
			return err
		}
		if err := env.session.EnsureNetwork(ctx, args[0]); err != nil {
			printSnapshot(cmd.OutOrStdout(), env.session.Snapshot())
			return err
		}
		printSnapshot(cmd.OutOrStdout(), env.session.Snapshot())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(networkCmd)
	networkCmd.AddCommand(networkListCmd, networkSwitchCmd)
}
