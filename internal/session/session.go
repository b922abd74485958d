// Package session 实现钱包连接与签名登录的状态机 (WalletSession)。
//
// 一个 Session 对应一次 UI 会话：Connect 请求账户授权，Authenticate 完成
// nonce -> personal_sign -> verify 的登录往返，Disconnect 清空全部状态。
// 所有状态变更在同一把锁内完成，观察者只会看到一致的 Snapshot。
package session

import (
	"context"
	"strings"
	"sync"

	"wallet-session/pkg/eip1193"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Session 钱包会话
type Session struct {
	provider eip1193.Provider
	backend  AuthBackend
	opts     options
	log      *zap.Logger

	mu   sync.Mutex
	snap Snapshot
	// epoch 在断开、切换账户、账户清空时递增，用于丢弃过期的在途结果
	epoch          uint64
	connecting     bool
	authenticating bool
	switching      bool
	closed         bool

	watchers    map[chan Snapshot]struct{}
	hasEvents   bool
	unsubscribe func()
	pollCancel  func()
	// pollGen 标识当前轮询协程，旧协程退出时不会清掉新协程的 pollCancel
	pollGen uint64

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New 创建会话。provider 为 nil 时 Connect 返回 ProviderUnavailable。
// 若 provider 实现了 eip1193.EventSource，在此订阅一次，Close 时取消。
func New(provider eip1193.Provider, backend AuthBackend, opts ...Option) *Session {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	s := &Session{
		provider: provider,
		backend:  backend,
		opts:     o,
		log:      o.logger(),
		watchers: make(map[chan Snapshot]struct{}),
		done:     make(chan struct{}),
	}

	if es, ok := provider.(eip1193.EventSource); ok {
		s.hasEvents = true
		s.unsubscribe = es.Subscribe(s.handleEvent)
	}
	return s
}

// Snapshot 返回当前状态
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// Connect 请求账户授权 (eth_requestAccounts)
func (s *Session) Connect(ctx context.Context) error {
	const op = "connect"
	if s.provider == nil {
		return newError(op, ProviderUnavailable, errNoProvider)
	}

	// 1. 检查并进入 Connecting
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return newError(op, ProviderUnavailable, ErrClosed)
	}
	if s.connecting {
		s.mu.Unlock()
		return newError(op, ConcurrentOperation, nil)
	}
	switch s.snap.State {
	case StateConnected, StateAuthenticating, StateAuthenticated:
		s.mu.Unlock()
		return nil
	}
	s.connecting = true
	epoch := s.epoch
	s.setLocked(Snapshot{State: StateConnecting})
	s.mu.Unlock()

	// 2. 钱包弹窗，不设超时
	accounts, err := eip1193.Call[[]string](ctx, s.provider, eip1193.MethodRequestAccounts)
	var chainID string
	if err == nil && len(accounts) > 0 {
		chainID = s.fetchChainID(ctx)
	}

	// 3. 应用结果
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connecting = false

	if s.epoch != epoch {
		s.log.Debug("connect result discarded")
		return newError(op, AccountMismatch, ErrDiscarded)
	}

	if err != nil {
		kind := ProviderUnavailable
		if eip1193.IsUserRejected(err) {
			kind = UserRejected
		}
		s.failLocked(kind)
		s.log.Warn("connect failed", zap.String("kind", string(kind)), zap.Error(err))
		return newError(op, kind, err)
	}
	if len(accounts) == 0 {
		// 没有账户视为用户未授权，保持 Disconnected
		s.setLocked(Snapshot{State: StateDisconnected, LastError: UserRejected})
		return newError(op, UserRejected, errNoAccounts)
	}

	address, ok := normalizeAddress(accounts[0])
	if !ok {
		s.failLocked(ProviderUnavailable)
		return newError(op, ProviderUnavailable, errInvalidAccount(accounts[0]))
	}

	s.setLocked(Snapshot{Address: address, ChainID: chainID, State: StateConnected})
	// 重新连接时轮询重新计时
	s.stopPollingLocked()
	s.startPollingLocked()
	s.log.Info("wallet connected", zap.String("address", address), zap.String("chain_id", chainID))
	return nil
}

// Authenticate 执行 nonce -> personal_sign -> verify 登录往返。
// 要求 Connected，或者带地址的 Error (重试)。已登录时直接返回 nil。
func (s *Session) Authenticate(ctx context.Context) error {
	const op = "authenticate"

	s.mu.Lock()
	if s.authenticating {
		s.mu.Unlock()
		return newError(op, ConcurrentOperation, nil)
	}
	switch {
	case s.snap.State == StateAuthenticated:
		s.mu.Unlock()
		return nil
	case s.snap.State == StateConnected:
	case s.snap.State == StateError && s.snap.Address != "" && !s.connecting:
	default:
		state := s.snap.State
		s.mu.Unlock()
		return newError(op, NotConnected, errWrongState(state))
	}
	s.authenticating = true
	epoch, address := s.epoch, s.snap.Address
	s.setLocked(Snapshot{Address: address, ChainID: s.snap.ChainID, State: StateAuthenticating})
	s.mu.Unlock()

	token, kind, err := s.login(ctx, address)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.authenticating = false

	// 期间断开或切换了账户，结果作废
	if s.epoch != epoch || s.snap.Address != address {
		s.log.Info("authentication result discarded", zap.String("address", address))
		return newError(op, AccountMismatch, ErrDiscarded)
	}
	// 期间其它操作已记录失败 (例如切换网络失败)，不覆盖该错误
	if s.snap.State != StateAuthenticating {
		s.log.Info("authentication result discarded",
			zap.String("address", address), zap.String("last_error", string(s.snap.LastError)))
		kind := s.snap.LastError
		if kind == "" {
			kind = AccountMismatch
		}
		return newError(op, kind, ErrDiscarded)
	}

	if err != nil {
		s.failLocked(kind)
		s.log.Warn("authentication failed",
			zap.String("address", address), zap.String("kind", string(kind)), zap.Error(err))
		return newError(op, kind, err)
	}

	s.setLocked(Snapshot{Address: address, ChainID: s.snap.ChainID, AuthToken: token, State: StateAuthenticated})
	s.log.Info("wallet authenticated", zap.String("address", address))
	return nil
}

// login 不持有锁，失败时不保留 nonce 和签名
func (s *Session) login(ctx context.Context, address string) (string, ErrorKind, error) {
	if s.backend == nil {
		return "", NonceFetchFailed, errNoBackend
	}

	// 1. 获取一次性 nonce
	var nonce string
	err := s.withBackend(ctx, func(ctx context.Context) (err error) {
		nonce, err = s.backend.Nonce(ctx)
		return err
	})
	if err != nil {
		return "", backendKind(err, NonceFetchFailed), err
	}
	if nonce == "" {
		return "", NonceFetchFailed, errEmptyNonce
	}

	// 2. 钱包签名
	message := s.opts.challenge(nonce)
	signature, err := eip1193.Call[string](ctx, s.provider, eip1193.MethodPersonalSign, message, address)
	if err != nil {
		return "", SignatureRejected, err
	}
	if signature == "" {
		return "", SignatureRejected, errEmptySignature
	}

	// 3. 后端校验
	var grant *Grant
	err = s.withBackend(ctx, func(ctx context.Context) (err error) {
		grant, err = s.backend.Verify(ctx, Credentials{Address: address, Signature: signature, Nonce: nonce})
		return err
	})
	if err != nil {
		return "", backendKind(err, VerificationFailed), err
	}
	if grant == nil || grant.Token == "" {
		return "", VerificationFailed, errEmptyToken
	}
	if grant.Address != "" && !strings.EqualFold(grant.Address, address) {
		return "", AccountMismatch, errGrantAddress(grant.Address, address)
	}
	return grant.Token, "", nil
}

func (s *Session) withBackend(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.opts.backendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.backendTimeout)
		defer cancel()
	}
	return fn(ctx)
}

// Disconnect 清空会话，任何状态下都成功。
// 在途的弹窗不会被取消，但其结果会被丢弃。
func (s *Session) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
	s.log.Info("wallet disconnected")
}

// RefreshAccounts 通过 eth_accounts 静默检查授权账户 (不弹窗)。
// 账户为空时重置会话；主账户变化时视为切换账户，清除登录并回到 Connected。
// 从 Disconnected 调用时可以恢复已授权的连接。
func (s *Session) RefreshAccounts(ctx context.Context) error {
	const op = "refresh accounts"
	if s.provider == nil {
		return newError(op, ProviderUnavailable, errNoProvider)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return newError(op, ProviderUnavailable, ErrClosed)
	}
	epoch := s.epoch
	restoring := s.snap.State == StateDisconnected
	s.mu.Unlock()

	accounts, err := eip1193.Call[[]string](ctx, s.provider, eip1193.MethodAccounts)
	var chainID string
	if err == nil && len(accounts) > 0 && restoring {
		chainID = s.fetchChainID(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		return newError(op, AccountMismatch, ErrDiscarded)
	}
	if s.connecting {
		// Connect 会写入结果
		return nil
	}

	if err != nil {
		s.log.Warn("refresh accounts failed", zap.Error(err))
		if s.snap.State == StateDisconnected {
			// 没有连接可失去：只记录错误，不离开 Disconnected
			s.setLocked(Snapshot{State: StateDisconnected, LastError: ProviderUnavailable})
		} else {
			s.failLocked(ProviderUnavailable)
		}
		return newError(op, ProviderUnavailable, err)
	}
	if chainID != "" && s.snap.ChainID == "" {
		s.snap.ChainID = chainID
	}
	return s.applyAccountsLocked(op, accounts, true)
}

// applyAccountsLocked 处理账户列表变化，explicit 为 false 时 (事件、轮询) 不会从 Disconnected 恢复连接
func (s *Session) applyAccountsLocked(op string, accounts []string, explicit bool) error {
	if s.connecting {
		return nil
	}

	if len(accounts) == 0 {
		if s.snap.State != StateDisconnected {
			s.log.Info("wallet reports no accounts, resetting session")
			s.resetLocked()
		}
		return nil
	}

	address, ok := normalizeAddress(accounts[0])
	if !ok {
		return newError(op, ProviderUnavailable, errInvalidAccount(accounts[0]))
	}

	if s.snap.State == StateDisconnected {
		if !explicit {
			return nil
		}
		s.setLocked(Snapshot{Address: address, ChainID: s.snap.ChainID, State: StateConnected})
		s.startPollingLocked()
		s.log.Info("wallet connection restored", zap.String("address", address))
		return nil
	}

	if address == s.snap.Address {
		return nil
	}

	// 账户切换：旧登录作废，在途的 Authenticate 结果被丢弃
	s.epoch++
	s.log.Info("wallet account switched", zap.String("from", s.snap.Address), zap.String("to", address))
	s.setLocked(Snapshot{Address: address, ChainID: s.snap.ChainID, State: StateConnected})
	return nil
}

// EnsureNetwork 确保钱包位于 targetChainID。
// 钱包不认识该链 (4902) 时，用 WithNetworks 注册的描述 wallet_addEthereumChain 后重试切换。
func (s *Session) EnsureNetwork(ctx context.Context, targetChainID string) error {
	const op = "ensure network"
	if s.provider == nil {
		return newError(op, ProviderUnavailable, errNoProvider)
	}
	target, err := eip1193.NormalizeChainID(targetChainID)
	if err != nil {
		return newError(op, NetworkSwitchFailed, err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return newError(op, ProviderUnavailable, ErrClosed)
	}
	if s.switching {
		s.mu.Unlock()
		return newError(op, ConcurrentOperation, nil)
	}
	if s.snap.Address == "" || s.snap.State == StateConnecting {
		state := s.snap.State
		s.mu.Unlock()
		return newError(op, NotConnected, errWrongState(state))
	}
	s.switching = true
	epoch := s.epoch
	s.mu.Unlock()

	err = s.switchNetwork(ctx, target)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.switching = false
	if s.epoch != epoch {
		return newError(op, AccountMismatch, ErrDiscarded)
	}

	if err != nil {
		s.failLocked(NetworkSwitchFailed)
		s.log.Warn("network switch failed", zap.String("chain_id", target), zap.Error(err))
		return newError(op, NetworkSwitchFailed, err)
	}

	next := s.snap
	next.ChainID = target
	if next.State == StateError && next.LastError == NetworkSwitchFailed {
		next.State = StateConnected
		next.LastError = ""
	}
	s.setLocked(next)
	return nil
}

func (s *Session) switchNetwork(ctx context.Context, target string) error {
	// 1. 已在目标链上则不打扰用户
	current, err := eip1193.Call[string](ctx, s.provider, eip1193.MethodChainID)
	if err == nil && eip1193.SameChain(current, target) {
		return nil
	}

	// 2. 请求切换
	param := eip1193.SwitchChainParameter{ChainID: target}
	_, err = s.provider.Request(ctx, eip1193.MethodSwitchChain, param)
	if err == nil || !eip1193.IsUnrecognizedChain(err) {
		return err
	}

	// 3. 钱包不认识这条链：先添加再切换
	network, ok := s.opts.networks[target]
	if !ok {
		return errUnknownNetwork(target, err)
	}
	s.log.Info("adding network to wallet", zap.String("chain_id", target), zap.String("name", network.ChainName))
	if _, err := s.provider.Request(ctx, eip1193.MethodAddChain, network); err != nil {
		return err
	}
	_, err = s.provider.Request(ctx, eip1193.MethodSwitchChain, param)
	return err
}

func (s *Session) fetchChainID(ctx context.Context) string {
	raw, err := eip1193.Call[string](ctx, s.provider, eip1193.MethodChainID)
	if err != nil {
		s.log.Warn("eth_chainId failed", zap.Error(err))
		return ""
	}
	id, err := eip1193.NormalizeChainID(raw)
	if err != nil {
		s.log.Warn("invalid chain id from wallet", zap.String("chain_id", raw))
		return ""
	}
	return id
}

// setLocked 替换快照并通知观察者
func (s *Session) setLocked(next Snapshot) {
	if next == s.snap {
		return
	}
	s.snap = next
	s.publishLocked()
}

// failLocked 进入 Error，登录凭证随之失效，已知地址保留以便重试
func (s *Session) failLocked(kind ErrorKind) {
	s.setLocked(Snapshot{Address: s.snap.Address, ChainID: s.snap.ChainID, State: StateError, LastError: kind})
}

func (s *Session) resetLocked() {
	s.epoch++
	s.stopPollingLocked()
	s.setLocked(Snapshot{State: StateDisconnected})
}

func normalizeAddress(a string) (string, bool) {
	a = strings.TrimSpace(a)
	if !common.IsHexAddress(a) || !strings.HasPrefix(strings.ToLower(a), "0x") {
		return "", false
	}
	return strings.ToLower(a), true
}
