package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/rpc"
	"golang.org/x/term"

	"wallet-session/internal/authclient"
	"wallet-session/internal/provider/localwallet"
	"wallet-session/internal/provider/rpcwallet"
	"wallet-session/internal/session"
	"wallet-session/pkg/config"
	"wallet-session/pkg/eip1193"
	"wallet-session/pkg/logger"
	"wallet-session/pkg/vault"
)

// walletEnv 一次命令执行所需的钱包、会话与后端
type walletEnv struct {
	provider eip1193.Provider
	local    *localwallet.Wallet // provider=rpc 时为 nil
	session  *session.Session
	backend  *authclient.Client
	closers  []func()
}

func (e *walletEnv) Close() {
	e.session.Close()
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

func openWallet(ctx context.Context, out io.Writer) (*walletEnv, error) {
	env := &walletEnv{}

	switch cfg.Wallet.Provider {
	case "rpc":
		w, err := rpcwallet.Dial(ctx, cfg.Wallet.RpcUrl)
		if err != nil {
			return nil, fmt.Errorf("连接钱包 %s 失败: %w", cfg.Wallet.RpcUrl, err)
		}
		env.provider = w
		env.closers = append(env.closers, w.Close)
	case "keystore", "mnemonic":
		signer, err := newSigner()
		if err != nil {
			return nil, err
		}
		opts := []localwallet.Option{
			localwallet.WithApprover(terminalApprover(assumeYes, bufio.NewReader(os.Stdin), out)),
			localwallet.WithChains(networks()...),
			localwallet.WithChainID(cfg.Wallet.ChainID),
			localwallet.WithLogger(logger.Named("localwallet")),
		}
		if cfg.Wallet.UpstreamRPC != "" {
			upstream, err := rpc.DialContext(ctx, cfg.Wallet.UpstreamRPC)
			if err != nil {
				return nil, fmt.Errorf("连接节点 %s 失败: %w", cfg.Wallet.UpstreamRPC, err)
			}
			opts = append(opts, localwallet.WithUpstream(upstream))
			env.closers = append(env.closers, upstream.Close)
		}
		env.local = localwallet.New(signer, opts...)
		env.provider = env.local
	default:
		return nil, fmt.Errorf("未知的钱包类型: %q", cfg.Wallet.Provider)
	}

	env.backend = authclient.New(cfg.Session.BackendURL)
	env.session = session.New(env.provider, env.backend,
		session.WithLogger(logger.Named("session")),
		session.WithBackendTimeout(cfg.Session.BackendTimeout),
		session.WithPolling(cfg.Session.PollInterval, cfg.Session.PollTimeout),
		session.WithNetworks(networks()...),
	)
	return env, nil
}

func newSigner() (localwallet.Signer, error) {
	if cfg.Wallet.Provider == "keystore" {
		ks := keystore.NewKeyStore(cfg.Wallet.KeystoreDir, keystore.StandardScryptN, keystore.StandardScryptP)
		if len(ks.Accounts()) == 0 {
			return nil, fmt.Errorf("keystore 目录 %s 中没有账户，请先执行 account import", cfg.Wallet.KeystoreDir)
		}
		password := cfg.Wallet.Password
		if password == "" {
			var err error
			if password, err = readPassword("输入 keystore 密码: "); err != nil {
				return nil, err
			}
		}
		return localwallet.NewKeystoreSigner(ks, password), nil
	}

	mnemonic, err := loadMnemonic()
	if err != nil {
		return nil, err
	}
	return localwallet.NewMnemonicSigner(mnemonic, "", cfg.Wallet.Accounts)
}

// loadMnemonic 优先使用 wallet.mnemonic，否则解密 wallet.vault_file
func loadMnemonic() (string, error) {
	if cfg.Wallet.Mnemonic != "" {
		return cfg.Wallet.Mnemonic, nil
	}
	f, err := vault.Load(cfg.Wallet.VaultFile)
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("未找到助记词: 请设置 WALLET_MNEMONIC 或执行 account init 生成 %s", cfg.Wallet.VaultFile)
	}
	if err != nil {
		return "", err
	}
	password := cfg.Wallet.Password
	if password == "" {
		if password, err = readPassword("输入钱包口令: "); err != nil {
			return "", err
		}
	}
	return f.Open(password)
}

// networks 配置中的网络描述，用于 4902 时自动添加
func networks() []eip1193.AddChainParameter {
	return toAddChainParameters(cfg.Networks)
}

func toAddChainParameters(in []config.NetworkConfig) []eip1193.AddChainParameter {
	out := make([]eip1193.AddChainParameter, 0, len(in))
	for _, n := range in {
		out = append(out, eip1193.AddChainParameter{
			ChainID:   n.ChainID,
			ChainName: n.Name,
			NativeCurrency: eip1193.NativeCurrency{
				Name:     n.Currency.Name,
				Symbol:   n.Currency.Symbol,
				Decimals: n.Currency.Decimals,
			},
			RPCURLs:           n.RPCURLs,
			BlockExplorerURLs: n.ExplorerURLs,
		})
	}
	return out
}

// terminalApprover 在终端上确认本地钱包的请求
func terminalApprover(yes bool, in *bufio.Reader, out io.Writer) localwallet.Approver {
	return func(ctx context.Context, p localwallet.Prompt) bool {
		desc := describePrompt(p)
		if yes {
			fmt.Fprintf(out, "已自动确认: %s\n", desc)
			return true
		}
		fmt.Fprintf(out, "%s [y/N]: ", desc)
		line, err := in.ReadString('\n')
		if err != nil && line == "" {
			return false
		}
		answer := strings.ToLower(strings.TrimSpace(line))
		return answer == "y" || answer == "yes"
	}
}

func describePrompt(p localwallet.Prompt) string {
	switch p.Kind {
	case localwallet.PromptConnect:
		return "允许该应用查看你的账户?"
	case localwallet.PromptSign:
		return fmt.Sprintf("使用 %s 签名消息:\n  %q\n确认签名?", p.Account.Hex(), string(p.Message))
	case localwallet.PromptSwitchChain:
		return fmt.Sprintf("切换到网络 %s?", p.ChainID)
	case localwallet.PromptAddChain:
		name := p.ChainID
		if p.Chain != nil {
			name = fmt.Sprintf("%s (%s)", p.Chain.ChainName, p.Chain.ChainID)
		}
		return fmt.Sprintf("添加网络 %s?", name)
	default:
		return string(p.Kind)
	}
}

func readPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("读取密码失败: %w", err)
	}
	return string(b), nil
}

func printSnapshot(w io.Writer, s session.Snapshot) {
	fmt.Fprintf(w, "状态:   %s\n", s.State)
	if s.Address != "" {
		fmt.Fprintf(w, "地址:   %s\n", s.Address)
	}
	if s.ChainID != "" {
		fmt.Fprintf(w, "网络:   %s\n", s.ChainID)
	}
	if s.Authenticated() {
		fmt.Fprintln(w, "已登录: 是")
	}
	if s.LastError != "" {
		fmt.Fprintf(w, "错误:   %s\n", s.LastError)
	}
}
