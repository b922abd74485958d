package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/spf13/cobra"

	"wallet-session/pkg/hdwallet"
	"wallet-session/pkg/vault"
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "本地账户管理 (助记词与 keystore)",
}

var accountNewCmd = &cobra.Command{
	Use:   "new",
	Short: "生成新的 BIP-39 助记词并显示派生的以太坊地址",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		words, _ := cmd.Flags().GetInt("words")
		count, _ := cmd.Flags().GetInt("count")

		// 12 词 = 128 bit, 24 词 = 256 bit
		bits := words / 3 * 32
		mnemonic, err := hdwallet.GenerateMnemonic(bits)
		if err != nil {
			return err
		}

		fmt.Fprintln(out, "---------------------------------------------------")
		fmt.Fprintf(out, "助记词 (Mnemonic):\n%s\n", mnemonic)
		fmt.Fprintln(out, "---------------------------------------------------")
		return printDerived(cmd, mnemonic, count)
	},
}

var accountListCmd = &cobra.Command{
	Use:   "list",
	Short: "列出当前钱包配置下的账户",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		switch cfg.Wallet.Provider {
		case "keystore":
			ks := keystore.NewKeyStore(cfg.Wallet.KeystoreDir, keystore.StandardScryptN, keystore.StandardScryptP)
			for i, a := range ks.Accounts() {
				fmt.Fprintf(out, "[%d] %s  %s\n", i, a.Address.Hex(), a.URL.Path)
			}
			return nil
		case "mnemonic":
			mnemonic, err := loadMnemonic()
			if err != nil {
				return err
			}
			return printDerived(cmd, mnemonic, cfg.Wallet.Accounts)
		default:
			return fmt.Errorf("provider=%s 的账户由外部钱包管理", cfg.Wallet.Provider)
		}
	},
}

var accountImportCmd = &cobra.Command{
	Use:   "import",
	Short: "把助记词派生的账户加密导入 keystore 目录",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		index, _ := cmd.Flags().GetUint32("index")
		mnemonic, err := loadMnemonic()
		if err != nil {
			return err
		}

		w, err := hdwallet.FromMnemonic(mnemonic, "")
		if err != nil {
			return err
		}
		key, addr, err := w.Account(index)
		if err != nil {
			return err
		}

		// 1. 输入密码
		password, err := newPassword("设置 keystore 密码: ")
		if err != nil {
			return err
		}

		// 2. 加密保存
		ks := keystore.NewKeyStore(cfg.Wallet.KeystoreDir, keystore.StandardScryptN, keystore.StandardScryptP)
		if ks.HasAddress(addr) {
			return fmt.Errorf("账户 %s 已存在", addr.Hex())
		}
		acc, err := ks.ImportECDSA(key, password)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "已导入 %s\n文件位置: %s\n", acc.Address.Hex(), acc.URL.Path)
		return nil
	},
}

var accountInitCmd = &cobra.Command{
	Use:   "init",
	Short: "生成 (或从 WALLET_MNEMONIC 读取) 助记词并加密保存到 wallet.vault_file",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		words, _ := cmd.Flags().GetInt("words")
		light, _ := cmd.Flags().GetBool("light")

		// 1. 准备助记词
		mnemonic := cfg.Wallet.Mnemonic
		if mnemonic == "" {
			var err error
			if mnemonic, err = hdwallet.GenerateMnemonic(words / 3 * 32); err != nil {
				return err
			}
			fmt.Fprintln(out, "---------------------------------------------------")
			fmt.Fprintf(out, "助记词 (Mnemonic):\n%s\n", mnemonic)
			fmt.Fprintln(out, "请离线备份，之后不会再次显示")
			fmt.Fprintln(out, "---------------------------------------------------")
		} else if !hdwallet.ValidateMnemonic(mnemonic) {
			return errors.New("WALLET_MNEMONIC 不是合法的 BIP-39 助记词")
		}

		// 2. 设置口令
		password, err := newPassword("设置钱包口令: ")
		if err != nil {
			return err
		}

		// 3. 加密写入
		n := vault.StandardScryptN
		if light {
			n = vault.LightScryptN
		}
		f, err := vault.Seal(mnemonic, password, n)
		if err != nil {
			return err
		}
		if err := f.Save(cfg.Wallet.VaultFile); err != nil {
			if errors.Is(err, os.ErrExist) {
				return fmt.Errorf("%s 已存在，拒绝覆盖", cfg.Wallet.VaultFile)
			}
			return err
		}
		fmt.Fprintf(out, "已保存到 %s\n", cfg.Wallet.VaultFile)
		return printDerived(cmd, mnemonic, 1)
	},
}

// newPassword 读取并确认新口令，配置了 WALLET_PASSWORD 时直接使用
func newPassword(prompt string) (string, error) {
	password := cfg.Wallet.Password
	if password == "" {
		var err error
		if password, err = readPassword(prompt); err != nil {
			return "", err
		}
		confirm, err := readPassword("确认口令: ")
		if err != nil {
			return "", err
		}
		if password != confirm {
			return "", errors.New("两次输入的口令不一致")
		}
	}
	if len(password) < 6 {
		return "", errors.New("口令长度至少需要 6 位")
	}
	return password, nil
}

func printDerived(cmd *cobra.Command, mnemonic string, count int) error {
	w, err := hdwallet.FromMnemonic(mnemonic, "")
	if err != nil {
		return err
	}
	if count <= 0 {
		count = 1
	}
	for i := 0; i < count; i++ {
		_, addr, err := w.Account(uint32(i))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s/%d  %s\n", hdwallet.EthereumPathPrefix, i, addr.Hex())
	}
	return nil
}

func init() {
	rootCmd.AddCommand(accountCmd)
	accountCmd.AddCommand(accountNewCmd, accountInitCmd, accountListCmd, accountImportCmd)
	accountInitCmd.Flags().Int("words", 12, "助记词词数 (12 或 24)")
	accountInitCmd.Flags().Bool("light", false, "使用较低的 scrypt 强度")
	accountNewCmd.Flags().Int("words", 12, "助记词词数 (12 或 24)")
	accountNewCmd.Flags().Int("count", 3, "显示的地址数量")
	accountImportCmd.Flags().Uint32("index", 0, "派生路径的账户序号")
}
