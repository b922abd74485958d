package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"wallet-session/pkg/config"
	"wallet-session/pkg/logger"
)

var (
	cfgFile   string
	verbose   bool
	assumeYes bool

	// cfg 在 PersistentPreRunE 中加载，命令行参数优先于配置文件
	cfg *config.Config
)

// rootCmd 代表基础命令，没有子命令时直接调用
var rootCmd = &cobra.Command{
	Use:   "wallet-cli",
	Short: "钱包连接与签名登录命令行工具",
	Long: `连接钱包 (JSON-RPC 钱包、本地 keystore 或助记词)，对后端下发的 nonce 签名登录，
切换网络并观察会话状态变化。`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		cfg = loaded
		applyFlagOverrides(cmd)

		if verbose {
			logger.Init(cfg.App.Env, cfg.App.LogLevel)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Sync()
	},
}

// Execute 将所有子命令添加到根命令并设置标志
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "配置文件路径 (默认查找 ./config.yaml)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "输出日志")
	flags.BoolVarP(&assumeYes, "yes", "y", false, "自动确认本地钱包的所有请求")
	flags.String("provider", "", "钱包类型: rpc, keystore, mnemonic")
	flags.String("rpc-url", "", "provider=rpc 时的钱包 JSON-RPC 地址")
	flags.String("keystore", "", "keystore 目录")
	flags.String("vault", "", "加密助记词文件")
	flags.String("backend", "", "认证后端地址")
	flags.Int("accounts", 0, "助记词派生的账户数")
}

func applyFlagOverrides(cmd *cobra.Command) {
	flags := cmd.Flags()
	if v, _ := flags.GetString("provider"); flags.Changed("provider") {
		cfg.Wallet.Provider = v
	}
	if v, _ := flags.GetString("rpc-url"); flags.Changed("rpc-url") {
		cfg.Wallet.RpcUrl = v
	}
	if v, _ := flags.GetString("keystore"); flags.Changed("keystore") {
		cfg.Wallet.KeystoreDir = v
	}
	if v, _ := flags.GetString("vault"); flags.Changed("vault") {
		cfg.Wallet.VaultFile = v
	}
	if v, _ := flags.GetString("backend"); flags.Changed("backend") {
		cfg.Session.BackendURL = v
	}
	if v, _ := flags.GetInt("accounts"); flags.Changed("accounts") {
		cfg.Wallet.Accounts = v
	}
}
