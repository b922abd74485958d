// Package localwallet 是进程内的注入式钱包，行为对齐浏览器扩展钱包：
// 连接与签名需要用户确认，切换账户/网络时推送事件，未知的读方法转发给上游节点。
package localwallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"wallet-session/pkg/eip1193"
	"wallet-session/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
)

// PromptKind 需要用户确认的操作
type PromptKind string

const (
	PromptConnect     PromptKind = "connect"
	PromptSign        PromptKind = "sign"
	PromptSwitchChain PromptKind = "switch_chain"
	PromptAddChain    PromptKind = "add_chain"
)

// Prompt 交给 Approver 的确认请求
type Prompt struct {
	Kind    PromptKind
	Account common.Address
	Message []byte
	ChainID string
	Chain   *eip1193.AddChainParameter
}

// Approver 返回 false 表示用户拒绝 (4001)。为 nil 时全部自动确认。
type Approver func(ctx context.Context, p Prompt) bool

// Wallet 进程内钱包
type Wallet struct {
	signer   Signer
	approve  Approver
	upstream *rpc.Client
	log      *zap.Logger

	mu         sync.Mutex
	authorized bool
	selected   int
	chainID    string
	chains     map[string]eip1193.AddChainParameter

	subMu   sync.Mutex
	subs    map[int]func(eip1193.Event)
	nextSub int
}

// Option 配置 Wallet
type Option func(*Wallet)

func WithApprover(a Approver) Option {
	return func(w *Wallet) { w.approve = a }
}

// WithUpstream 未实现的方法 (eth_getBalance 等) 转发给该节点
func WithUpstream(c *rpc.Client) Option {
	return func(w *Wallet) { w.upstream = c }
}

// WithChains 预置已知网络，第一个作为初始网络 (可被 WithChainID 覆盖)
func WithChains(chains ...eip1193.AddChainParameter) Option {
	return func(w *Wallet) {
		for _, c := range chains {
			id, err := eip1193.NormalizeChainID(c.ChainID)
			if err != nil {
				continue
			}
			w.chains[id] = c
			if w.chainID == "" {
				w.chainID = id
			}
		}
	}
}

// WithChainID 初始网络
func WithChainID(id string) Option {
	return func(w *Wallet) {
		if n, err := eip1193.NormalizeChainID(id); err == nil {
			w.chainID = n
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(w *Wallet) {
		if l != nil {
			w.log = l
		}
	}
}

// New 创建钱包，默认位于以太坊主网 (0x1)
func New(signer Signer, opts ...Option) *Wallet {
	w := &Wallet{
		signer: signer,
		chains: make(map[string]eip1193.AddChainParameter),
		subs:   make(map[int]func(eip1193.Event)),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.chainID == "" {
		w.chainID = "0x1"
	}
	if _, ok := w.chains[w.chainID]; !ok {
		w.chains[w.chainID] = eip1193.AddChainParameter{ChainID: w.chainID}
	}
	if w.log == nil {
		w.log = logger.Named("localwallet")
	}
	return w
}

var (
	_ eip1193.Provider    = (*Wallet)(nil)
	_ eip1193.EventSource = (*Wallet)(nil)
)

// Request 处理 EIP-1193 请求
func (w *Wallet) Request(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	var (
		result any
		err    error
	)
	switch method {
	case eip1193.MethodRequestAccounts:
		result, err = w.requestAccounts(ctx)
	case eip1193.MethodAccounts:
		result = w.accounts()
	case eip1193.MethodChainID:
		result = w.ChainID()
	case eip1193.MethodPersonalSign:
		result, err = w.personalSign(ctx, params)
	case eip1193.MethodSwitchChain:
		err = w.switchChain(ctx, params)
	case eip1193.MethodAddChain:
		err = w.addChain(ctx, params)
	default:
		return w.forward(ctx, method, params)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(result)
}

func (w *Wallet) requestAccounts(ctx context.Context) ([]string, error) {
	w.mu.Lock()
	authorized := w.authorized
	w.mu.Unlock()
	if authorized {
		return w.accounts(), nil
	}

	accs := w.signer.Accounts()
	if len(accs) == 0 {
		return nil, eip1193.NewError(eip1193.CodeUnauthorized, "wallet has no accounts")
	}
	if !w.confirm(ctx, Prompt{Kind: PromptConnect, Account: w.selectedAccount(accs)}) {
		return nil, eip1193.NewError(eip1193.CodeUserRejected, "User rejected the request.")
	}

	w.mu.Lock()
	w.authorized = true
	w.mu.Unlock()

	current := w.accounts()
	w.emit(eip1193.Event{Kind: eip1193.EventAccountsChanged, Accounts: current})
	return current, nil
}

// accounts 已授权时返回当前选中账户，未授权返回空列表
func (w *Wallet) accounts() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.authorized {
		return []string{}
	}
	accs := w.signer.Accounts()
	if len(accs) == 0 {
		return []string{}
	}
	return []string{strings.ToLower(w.selectedAccountLocked(accs).Hex())}
}

func (w *Wallet) selectedAccount(accs []common.Address) common.Address {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.selectedAccountLocked(accs)
}

func (w *Wallet) selectedAccountLocked(accs []common.Address) common.Address {
	if w.selected >= len(accs) {
		return accs[0]
	}
	return accs[w.selected]
}

// personalSign params: [message, address]，message 为 0x 十六进制或 UTF-8 文本
func (w *Wallet) personalSign(ctx context.Context, params []any) (string, error) {
	var message, address string
	if err := decodeParam(params, 0, &message); err != nil {
		return "", err
	}
	if err := decodeParam(params, 1, &address); err != nil {
		return "", err
	}
	if !common.IsHexAddress(address) {
		return "", eip1193.NewError(eip1193.CodeInvalidParams, "invalid address %q", address)
	}
	account := common.HexToAddress(address)

	authorized := w.accounts()
	if len(authorized) == 0 || !strings.EqualFold(authorized[0], account.Hex()) {
		return "", eip1193.NewError(eip1193.CodeUnauthorized, "account %s is not authorized", account.Hex())
	}

	text := []byte(message)
	if raw, err := hexutil.Decode(message); err == nil {
		text = raw
	}

	if !w.confirm(ctx, Prompt{Kind: PromptSign, Account: account, Message: text}) {
		return "", eip1193.NewError(eip1193.CodeUserRejected, "User denied message signature.")
	}

	sig, err := w.signer.SignText(account, text)
	if err != nil {
		return "", eip1193.NewError(eip1193.CodeInternal, "sign failed: %v", err)
	}
	return hexutil.Encode(sig), nil
}

func (w *Wallet) switchChain(ctx context.Context, params []any) error {
	var p eip1193.SwitchChainParameter
	if err := decodeParam(params, 0, &p); err != nil {
		return err
	}
	id, err := eip1193.NormalizeChainID(p.ChainID)
	if err != nil {
		return eip1193.NewError(eip1193.CodeInvalidParams, "%v", err)
	}

	w.mu.Lock()
	_, known := w.chains[id]
	current := w.chainID
	w.mu.Unlock()

	if id == current {
		return nil
	}
	if !known {
		return eip1193.NewError(eip1193.CodeUnrecognizedChain,
			"Unrecognized chain ID %q. Try adding the chain using wallet_addEthereumChain first.", p.ChainID)
	}
	if !w.confirm(ctx, Prompt{Kind: PromptSwitchChain, ChainID: id}) {
		return eip1193.NewError(eip1193.CodeUserRejected, "User rejected the request.")
	}

	w.mu.Lock()
	w.chainID = id
	w.mu.Unlock()

	w.log.Info("chain switched", zap.String("chain_id", id))
	w.emit(eip1193.Event{Kind: eip1193.EventChainChanged, ChainID: id})
	return nil
}

func (w *Wallet) addChain(ctx context.Context, params []any) error {
	var p eip1193.AddChainParameter
	if err := decodeParam(params, 0, &p); err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return eip1193.NewError(eip1193.CodeInvalidParams, "%v", err)
	}
	id, _ := eip1193.NormalizeChainID(p.ChainID)

	if !w.confirm(ctx, Prompt{Kind: PromptAddChain, ChainID: id, Chain: &p}) {
		return eip1193.NewError(eip1193.CodeUserRejected, "User rejected the request.")
	}

	w.mu.Lock()
	w.chains[id] = p
	w.mu.Unlock()
	w.log.Info("chain added", zap.String("chain_id", id), zap.String("name", p.ChainName))
	return nil
}

func (w *Wallet) forward(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	if w.upstream == nil {
		return nil, eip1193.NewError(eip1193.CodeUnsupportedMethod, "method %s is not supported", method)
	}
	var result json.RawMessage
	if err := w.upstream.CallContext(ctx, &result, method, params...); err != nil {
		var rpcErr rpc.Error
		if errors.As(err, &rpcErr) {
			return nil, eip1193.NewError(rpcErr.ErrorCode(), "%s", rpcErr.Error())
		}
		return nil, eip1193.NewError(eip1193.CodeDisconnected, "upstream %s: %v", method, err)
	}
	return result, nil
}

func (w *Wallet) confirm(ctx context.Context, p Prompt) bool {
	if w.approve == nil {
		return true
	}
	return w.approve(ctx, p)
}

// ChainID 当前网络
func (w *Wallet) ChainID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.chainID
}

// SelectAccount 切换当前账户 (对应在扩展里切换账户)，已授权时推送 accountsChanged
func (w *Wallet) SelectAccount(index int) error {
	accs := w.signer.Accounts()
	if index < 0 || index >= len(accs) {
		return fmt.Errorf("localwallet: account index %d out of range [0, %d)", index, len(accs))
	}

	w.mu.Lock()
	changed := w.selected != index
	w.selected = index
	authorized := w.authorized
	w.mu.Unlock()

	if changed && authorized {
		w.emit(eip1193.Event{Kind: eip1193.EventAccountsChanged, Accounts: w.accounts()})
	}
	return nil
}

// Revoke 撤销站点授权，推送空的 accountsChanged
func (w *Wallet) Revoke() {
	w.mu.Lock()
	was := w.authorized
	w.authorized = false
	w.mu.Unlock()

	if was {
		w.emit(eip1193.Event{Kind: eip1193.EventAccountsChanged, Accounts: []string{}})
	}
}

// Subscribe 实现 eip1193.EventSource
func (w *Wallet) Subscribe(handler func(eip1193.Event)) func() {
	w.subMu.Lock()
	id := w.nextSub
	w.nextSub++
	w.subs[id] = handler
	w.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			w.subMu.Lock()
			delete(w.subs, id)
			w.subMu.Unlock()
		})
	}
}

// emit 在锁外回调
func (w *Wallet) emit(ev eip1193.Event) {
	w.subMu.Lock()
	handlers := make([]func(eip1193.Event), 0, len(w.subs))
	for _, h := range w.subs {
		handlers = append(handlers, h)
	}
	w.subMu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
}

// decodeParam 通过 JSON 把 params[i] 解码到 out，兼容结构体与 map 两种入参
func decodeParam(params []any, i int, out any) error {
	if i >= len(params) {
		return eip1193.NewError(eip1193.CodeInvalidParams, "missing param %d", i)
	}
	raw, err := json.Marshal(params[i])
	if err != nil {
		return eip1193.NewError(eip1193.CodeInvalidParams, "param %d: %v", i, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return eip1193.NewError(eip1193.CodeInvalidParams, "param %d: %v", i, err)
	}
	return nil
}
