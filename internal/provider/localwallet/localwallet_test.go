package localwallet

import (
	"context"
	"encoding/json"
	"math/big"
	"strings"
	"sync"
	"testing"

	"wallet-session/pkg/eip1193"
	"wallet-session/pkg/ethsig"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	hardhatMnemonic = "test test test test test test test test test test test junk"
	account0        = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	account1        = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
)

var hardhat = eip1193.AddChainParameter{
	ChainID:        "0x7a69",
	ChainName:      "Hardhat Local",
	NativeCurrency: eip1193.NativeCurrency{Name: "Ethereum", Symbol: "ETH", Decimals: 18},
	RPCURLs:        []string{"http://127.0.0.1:8545"},
}

type recorder struct {
	mu     sync.Mutex
	events []eip1193.Event
}

func (r *recorder) handle(ev eip1193.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) all() []eip1193.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]eip1193.Event(nil), r.events...)
}

func mnemonicSigner(t *testing.T, n int) *KeySigner {
	t.Helper()
	s, err := NewMnemonicSigner(hardhatMnemonic, "", n)
	require.NoError(t, err)
	return s
}

func TestConnectAndSign(t *testing.T) {
	w := New(mnemonicSigner(t, 2), WithChains(hardhat))
	ctx := context.Background()

	// 未授权时 eth_accounts 为空
	accounts, err := eip1193.Call[[]string](ctx, w, eip1193.MethodAccounts)
	require.NoError(t, err)
	assert.Empty(t, accounts)

	accounts, err = eip1193.Call[[]string](ctx, w, eip1193.MethodRequestAccounts)
	require.NoError(t, err)
	assert.Equal(t, []string{strings.ToLower(account0)}, accounts)

	chainID, err := eip1193.Call[string](ctx, w, eip1193.MethodChainID)
	require.NoError(t, err)
	assert.Equal(t, "0x7a69", chainID)

	message := ethsig.ChallengeMessage("abc123")
	sig, err := eip1193.Call[string](ctx, w, eip1193.MethodPersonalSign, message, accounts[0])
	require.NoError(t, err)
	assert.NoError(t, ethsig.VerifyText(account0, []byte(message), sig))

	// 十六进制编码的消息与 UTF-8 文本签名一致
	hexSig, err := eip1193.Call[string](ctx, w, eip1193.MethodPersonalSign, hexutil.Encode([]byte(message)), accounts[0])
	require.NoError(t, err)
	assert.Equal(t, sig, hexSig)

	// 未授权的账户不能签名
	_, err = w.Request(ctx, eip1193.MethodPersonalSign, message, account1)
	code, _ := eip1193.CodeOf(err)
	assert.Equal(t, eip1193.CodeUnauthorized, code)
}

func TestApproverRejects(t *testing.T) {
	var prompts []PromptKind
	approve := func(_ context.Context, p Prompt) bool {
		prompts = append(prompts, p.Kind)
		return p.Kind != PromptSign
	}
	w := New(mnemonicSigner(t, 1), WithApprover(approve))
	ctx := context.Background()

	accounts, err := eip1193.Call[[]string](ctx, w, eip1193.MethodRequestAccounts)
	require.NoError(t, err)

	// 已授权后不再弹窗
	_, err = eip1193.Call[[]string](ctx, w, eip1193.MethodRequestAccounts)
	require.NoError(t, err)

	_, err = w.Request(ctx, eip1193.MethodPersonalSign, "hello", accounts[0])
	assert.True(t, eip1193.IsUserRejected(err))
	assert.Equal(t, []PromptKind{PromptConnect, PromptSign}, prompts)

	deny := New(mnemonicSigner(t, 1), WithApprover(func(context.Context, Prompt) bool { return false }))
	_, err = deny.Request(ctx, eip1193.MethodRequestAccounts)
	assert.True(t, eip1193.IsUserRejected(err))
}

func TestSwitchAndAddChain(t *testing.T) {
	w := New(mnemonicSigner(t, 1), WithChainID("0x1"))
	rec := &recorder{}
	unsubscribe := w.Subscribe(rec.handle)
	defer unsubscribe()
	ctx := context.Background()

	_, err := w.Request(ctx, eip1193.MethodSwitchChain, eip1193.SwitchChainParameter{ChainID: "0x7A69"})
	assert.True(t, eip1193.IsUnrecognizedChain(err))

	// map 形式的参数同样可以解析
	var raw map[string]any
	b, _ := json.Marshal(hardhat)
	require.NoError(t, json.Unmarshal(b, &raw))
	_, err = w.Request(ctx, eip1193.MethodAddChain, raw)
	require.NoError(t, err)

	_, err = w.Request(ctx, eip1193.MethodSwitchChain, eip1193.SwitchChainParameter{ChainID: "0x7A69"})
	require.NoError(t, err)
	assert.Equal(t, "0x7a69", w.ChainID())
	assert.Equal(t, []eip1193.Event{{Kind: eip1193.EventChainChanged, ChainID: "0x7a69"}}, rec.all())

	_, err = w.Request(ctx, eip1193.MethodAddChain, eip1193.AddChainParameter{ChainID: "0x5"})
	code, _ := eip1193.CodeOf(err)
	assert.Equal(t, eip1193.CodeInvalidParams, code)

	_, err = w.Request(ctx, eip1193.MethodSwitchChain)
	code, _ = eip1193.CodeOf(err)
	assert.Equal(t, eip1193.CodeInvalidParams, code)
}

func TestAccountEvents(t *testing.T) {
	w := New(mnemonicSigner(t, 2))
	rec := &recorder{}
	unsubscribe := w.Subscribe(rec.handle)
	ctx := context.Background()

	// 未授权时切换账户不推送
	require.NoError(t, w.SelectAccount(1))
	require.NoError(t, w.SelectAccount(0))
	assert.Empty(t, rec.all())

	_, err := w.Request(ctx, eip1193.MethodRequestAccounts)
	require.NoError(t, err)
	require.NoError(t, w.SelectAccount(1))
	w.Revoke()
	w.Revoke()

	want := []eip1193.Event{
		{Kind: eip1193.EventAccountsChanged, Accounts: []string{strings.ToLower(account0)}},
		{Kind: eip1193.EventAccountsChanged, Accounts: []string{strings.ToLower(account1)}},
		{Kind: eip1193.EventAccountsChanged, Accounts: []string{}},
	}
	assert.Equal(t, want, rec.all())

	unsubscribe()
	unsubscribe()
	_, err = w.Request(ctx, eip1193.MethodRequestAccounts)
	require.NoError(t, err)
	assert.Len(t, rec.all(), 3, "取消订阅后不再收到事件")

	assert.Error(t, w.SelectAccount(5))
}

type upstreamEth struct{}

func (upstreamEth) GetBalance(address common.Address, block string) *hexutil.Big {
	return (*hexutil.Big)(big.NewInt(1_500_000_000_000_000_000))
}

func TestUpstreamPassthrough(t *testing.T) {
	server := rpc.NewServer()
	require.NoError(t, server.RegisterName("eth", upstreamEth{}))
	client := rpc.DialInProc(server)
	defer server.Stop()
	defer client.Close()

	w := New(mnemonicSigner(t, 1), WithUpstream(client))
	raw, err := eip1193.Call[string](context.Background(), w, eip1193.MethodGetBalance, account0, "latest")
	require.NoError(t, err)
	wei, err := eip1193.ParseQuantity(raw)
	require.NoError(t, err)
	assert.Equal(t, "1.5", eip1193.FormatUnits(wei, 18))

	_, err = w.Request(context.Background(), "eth_sendTransaction")
	code, _ := eip1193.CodeOf(err)
	assert.Equal(t, -32601, code)

	offline := New(mnemonicSigner(t, 1))
	_, err = offline.Request(context.Background(), eip1193.MethodGetBalance, account0, "latest")
	code, _ = eip1193.CodeOf(err)
	assert.Equal(t, eip1193.CodeUnsupportedMethod, code)
}

func TestKeystoreSigner(t *testing.T) {
	ks := keystore.NewKeyStore(t.TempDir(), keystore.LightScryptN, keystore.LightScryptP)
	acc, err := ks.NewAccount("secret")
	require.NoError(t, err)

	signer := NewKeystoreSigner(ks, "secret")
	assert.Equal(t, []common.Address{acc.Address}, signer.Accounts())

	text := []byte(ethsig.ChallengeMessage("n"))
	sig, err := signer.SignText(acc.Address, text)
	require.NoError(t, err)
	assert.Contains(t, []byte{27, 28}, sig[64])
	assert.NoError(t, ethsig.VerifyText(acc.Address.Hex(), text, hexutil.Encode(sig)))

	_, err = NewKeystoreSigner(ks, "wrong").SignText(acc.Address, text)
	assert.Error(t, err)

	_, err = signer.SignText(common.HexToAddress(account1), text)
	assert.ErrorIs(t, err, ErrUnknownAccount)
}
