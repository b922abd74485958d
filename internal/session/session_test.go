package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"wallet-session/pkg/eip1193"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestSession(t *testing.T, p eip1193.Provider, b AuthBackend, opts ...Option) *Session {
	t.Helper()
	s := New(p, b, opts...)
	t.Cleanup(s.Close)
	return s
}

func waitState(t *testing.T, s *Session, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return s.Snapshot().State == want },
		time.Second, 5*time.Millisecond, "状态未变为 %s", want)
}

func authenticated(t *testing.T, p *fakeProvider) (*Session, *fakeBackend) {
	t.Helper()
	b := &fakeBackend{nonce: "abc123", token: "token-xyz"}
	s := newTestSession(t, p, b)
	require.NoError(t, s.Connect(context.Background()))
	require.NoError(t, s.Authenticate(context.Background()))
	return s, b
}

func TestConnect(t *testing.T) {
	p := connectedProvider()
	s := newTestSession(t, p, nil)

	err := s.Connect(context.Background())
	require.NoError(t, err)

	snap := s.Snapshot()
	assert.Equal(t, StateConnected, snap.State)
	assert.Equal(t, strings.ToLower(account0), snap.Address)
	assert.Equal(t, "0x7a69", snap.ChainID)
	assert.Empty(t, snap.AuthToken)
	assert.Empty(t, snap.LastError)

	// 已连接时再次 Connect 不会重复弹窗
	require.NoError(t, s.Connect(context.Background()))
	assert.Equal(t, 1, p.count(eip1193.MethodRequestAccounts))
}

func TestConnectWithoutProvider(t *testing.T) {
	s := newTestSession(t, nil, nil)

	err := s.Connect(context.Background())
	assert.True(t, errors.Is(err, ProviderUnavailable))
	assert.Equal(t, Snapshot{State: StateDisconnected}, s.Snapshot())
}

func TestConnectEmptyAccounts(t *testing.T) {
	p := newFakeProvider().returns(eip1193.MethodRequestAccounts, []string{})
	s := newTestSession(t, p, nil)

	err := s.Connect(context.Background())
	assert.Equal(t, UserRejected, KindOf(err))

	snap := s.Snapshot()
	assert.Equal(t, StateDisconnected, snap.State)
	assert.Empty(t, snap.Address)
	assert.Equal(t, UserRejected, snap.LastError)
}

func TestConnectFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"user rejected", eip1193.NewError(eip1193.CodeUserRejected, "User rejected the request."), UserRejected},
		{"provider disconnected", eip1193.NewError(eip1193.CodeDisconnected, "disconnected"), ProviderUnavailable},
		{"transport", errors.New("dial tcp 127.0.0.1:8545: connection refused"), ProviderUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newFakeProvider().fails(eip1193.MethodRequestAccounts, tt.err)
			s := newTestSession(t, p, nil)

			err := s.Connect(context.Background())
			require.Error(t, err)
			assert.Equal(t, tt.want, KindOf(err))
			assert.ErrorIs(t, err, tt.err)

			snap := s.Snapshot()
			assert.Equal(t, StateError, snap.State)
			assert.Equal(t, tt.want, snap.LastError)

			// 重试成功后清除 lastError
			p.returns(eip1193.MethodRequestAccounts, []string{account0})
			require.NoError(t, s.Connect(context.Background()))
			snap = s.Snapshot()
			assert.Equal(t, StateConnected, snap.State)
			assert.Empty(t, snap.LastError)
		})
	}
}

func TestConnectConcurrent(t *testing.T) {
	release := make(chan struct{})
	p := connectedProvider().on(eip1193.MethodRequestAccounts, func(ctx context.Context, _ []any) (any, error) {
		<-release
		return []string{account0}, nil
	})
	s := newTestSession(t, p, nil)

	done := make(chan error, 1)
	go func() { done <- s.Connect(context.Background()) }()
	waitState(t, s, StateConnecting)

	for i := 0; i < 3; i++ {
		err := s.Connect(context.Background())
		assert.Equal(t, ConcurrentOperation, KindOf(err))
	}
	assert.Equal(t, StateConnecting, s.Snapshot().State, "ConcurrentOperation 不应改变状态")

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, p.count(eip1193.MethodRequestAccounts))
	assert.Equal(t, StateConnected, s.Snapshot().State)
}

func TestDisconnectDiscardsPendingConnect(t *testing.T) {
	release := make(chan struct{})
	p := connectedProvider().on(eip1193.MethodRequestAccounts, func(ctx context.Context, _ []any) (any, error) {
		<-release
		return []string{account0}, nil
	})
	s := newTestSession(t, p, nil)

	done := make(chan error, 1)
	go func() { done <- s.Connect(context.Background()) }()
	waitState(t, s, StateConnecting)

	s.Disconnect()
	assert.Equal(t, Snapshot{State: StateDisconnected}, s.Snapshot())

	close(release)
	err := <-done
	assert.ErrorIs(t, err, ErrDiscarded)
	assert.Equal(t, Snapshot{State: StateDisconnected}, s.Snapshot(), "迟到的授权结果不应生效")
}

func TestAuthenticateRoundTrip(t *testing.T) {
	p := connectedProvider()
	s, b := authenticated(t, p)

	snap := s.Snapshot()
	assert.Equal(t, StateAuthenticated, snap.State)
	assert.Equal(t, "token-xyz", snap.AuthToken)
	assert.True(t, snap.Authenticated())

	// 签名文本嵌入 nonce，签名地址为会话地址
	params := p.lastParams(eip1193.MethodPersonalSign)
	require.Len(t, params, 2)
	assert.Equal(t, DefaultChallenge("abc123"), params[0])
	assert.Equal(t, strings.ToLower(account0), params[1])

	creds := b.credentials()
	require.Len(t, creds, 1)
	assert.Equal(t, Credentials{Address: strings.ToLower(account0), Signature: "0xdeadbeef", Nonce: "abc123"}, creds[0])

	// 已登录时再次调用不会重新签名
	require.NoError(t, s.Authenticate(context.Background()))
	assert.Equal(t, 1, p.count(eip1193.MethodPersonalSign))
}

func TestAuthenticateFailures(t *testing.T) {
	signRejected := eip1193.NewError(eip1193.CodeUserRejected, "User denied message signature.")

	tests := []struct {
		name    string
		backend *fakeBackend
		sign    error
		want    ErrorKind
	}{
		{"nonce fetch", &fakeBackend{nonceErr: errors.New("status 500")}, nil, NonceFetchFailed},
		{"empty nonce", &fakeBackend{token: "t"}, nil, NonceFetchFailed},
		{"signature rejected", &fakeBackend{nonce: "n", token: "t"}, signRejected, SignatureRejected},
		{"verify rejected", &fakeBackend{nonce: "n", verifyErr: errors.New("status 401")}, nil, VerificationFailed},
		{"empty token", &fakeBackend{nonce: "n"}, nil, VerificationFailed},
		{"token for another address", &fakeBackend{nonce: "n", token: "t", address: account1}, nil, AccountMismatch},
		{"verify timeout", &fakeBackend{nonce: "n", verifyErr: context.DeadlineExceeded}, nil, NetworkTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := connectedProvider()
			if tt.sign != nil {
				p.fails(eip1193.MethodPersonalSign, tt.sign)
			}
			s := newTestSession(t, p, tt.backend)
			require.NoError(t, s.Connect(context.Background()))

			err := s.Authenticate(context.Background())
			require.Error(t, err)
			assert.Equal(t, tt.want, KindOf(err))

			snap := s.Snapshot()
			assert.Equal(t, StateError, snap.State)
			assert.Equal(t, tt.want, snap.LastError)
			assert.Empty(t, snap.AuthToken, "失败时不能保留 token")
			assert.Equal(t, strings.ToLower(account0), snap.Address, "失败后保留地址以便重试")
		})
	}
}

func TestAuthenticateRetryFromError(t *testing.T) {
	p := connectedProvider()
	b := &fakeBackend{nonceErr: errors.New("status 500")}
	s := newTestSession(t, p, b)
	require.NoError(t, s.Connect(context.Background()))

	err := s.Authenticate(context.Background())
	assert.Equal(t, NonceFetchFailed, KindOf(err))

	b.mu.Lock()
	b.nonceErr, b.nonce, b.token = nil, "abc123", "token-xyz"
	b.mu.Unlock()

	require.NoError(t, s.Authenticate(context.Background()))
	snap := s.Snapshot()
	assert.Equal(t, StateAuthenticated, snap.State)
	assert.Empty(t, snap.LastError)
}

func TestAuthenticateBackendTimeout(t *testing.T) {
	b := &fakeBackend{
		nonce: "n",
		nonceHook: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}
	s := newTestSession(t, connectedProvider(), b, WithBackendTimeout(20*time.Millisecond))
	require.NoError(t, s.Connect(context.Background()))

	err := s.Authenticate(context.Background())
	assert.Equal(t, NetworkTimeout, KindOf(err))
	assert.Equal(t, NetworkTimeout, s.Snapshot().LastError)
}

func TestAuthenticatePreconditions(t *testing.T) {
	s := newTestSession(t, connectedProvider(), &fakeBackend{nonce: "n", token: "t"})

	err := s.Authenticate(context.Background())
	assert.Equal(t, NotConnected, KindOf(err))
	assert.Equal(t, Snapshot{State: StateDisconnected}, s.Snapshot())

	s2 := newTestSession(t, connectedProvider(), nil)
	require.NoError(t, s2.Connect(context.Background()))
	err = s2.Authenticate(context.Background())
	assert.Equal(t, NonceFetchFailed, KindOf(err))
}

func TestAuthenticateConcurrent(t *testing.T) {
	release := make(chan struct{})
	p := connectedProvider().on(eip1193.MethodPersonalSign, func(ctx context.Context, _ []any) (any, error) {
		<-release
		return "0xdeadbeef", nil
	})
	s := newTestSession(t, p, &fakeBackend{nonce: "n", token: "t"})
	require.NoError(t, s.Connect(context.Background()))

	done := make(chan error, 1)
	go func() { done <- s.Authenticate(context.Background()) }()
	waitState(t, s, StateAuthenticating)

	err := s.Authenticate(context.Background())
	assert.Equal(t, ConcurrentOperation, KindOf(err))

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, p.count(eip1193.MethodPersonalSign))
}

func TestAccountSwitchDiscardsAuthentication(t *testing.T) {
	release := make(chan struct{})
	p := connectedProvider().on(eip1193.MethodPersonalSign, func(ctx context.Context, _ []any) (any, error) {
		<-release
		return "0xdeadbeef", nil
	})
	b := &fakeBackend{nonce: "n", token: "token-xyz"}
	s := newTestSession(t, p, b)
	require.NoError(t, s.Connect(context.Background()))

	done := make(chan error, 1)
	go func() { done <- s.Authenticate(context.Background()) }()
	waitState(t, s, StateAuthenticating)

	// 签名弹窗未关闭时用户在钱包里切换了账户
	p.returns(eip1193.MethodAccounts, []string{account1})
	require.NoError(t, s.RefreshAccounts(context.Background()))

	close(release)
	err := <-done
	assert.Equal(t, AccountMismatch, KindOf(err))
	assert.ErrorIs(t, err, ErrDiscarded)

	snap := s.Snapshot()
	assert.Equal(t, StateConnected, snap.State)
	assert.Equal(t, strings.ToLower(account1), snap.Address)
	assert.Empty(t, snap.AuthToken)
}

func TestNetworkFailureDuringAuthentication(t *testing.T) {
	release := make(chan struct{})
	b := &fakeBackend{
		nonce: "abc123",
		token: "token-xyz",
		nonceHook: func(ctx context.Context) error {
			<-release
			return nil
		},
	}
	p := connectedProvider().fails(eip1193.MethodSwitchChain,
		eip1193.NewError(eip1193.CodeUserRejected, "User rejected the request."))
	s := newTestSession(t, p, b)
	require.NoError(t, s.Connect(context.Background()))

	done := make(chan error, 1)
	go func() { done <- s.Authenticate(context.Background()) }()
	waitState(t, s, StateAuthenticating)

	err := s.EnsureNetwork(context.Background(), "0x1")
	require.Equal(t, NetworkSwitchFailed, KindOf(err))

	close(release)
	err = <-done
	assert.Equal(t, NetworkSwitchFailed, KindOf(err))
	assert.ErrorIs(t, err, ErrDiscarded)

	// 记录的错误保留，令牌不写入
	snap := s.Snapshot()
	assert.Equal(t, StateError, snap.State)
	assert.Equal(t, NetworkSwitchFailed, snap.LastError)
	assert.Empty(t, snap.AuthToken)

	// 重试登录清除错误
	require.NoError(t, s.Authenticate(context.Background()))
	snap = s.Snapshot()
	assert.Equal(t, StateAuthenticated, snap.State)
	assert.Empty(t, snap.LastError)
	assert.Equal(t, "token-xyz", snap.AuthToken)
}

func TestDisconnectFromAnyState(t *testing.T) {
	setups := map[string]func(t *testing.T) *Session{
		"disconnected": func(t *testing.T) *Session {
			return newTestSession(t, connectedProvider(), nil)
		},
		"connected": func(t *testing.T) *Session {
			s := newTestSession(t, connectedProvider(), nil)
			require.NoError(t, s.Connect(context.Background()))
			return s
		},
		"authenticated": func(t *testing.T) *Session {
			s, _ := authenticated(t, connectedProvider())
			return s
		},
		"error": func(t *testing.T) *Session {
			p := newFakeProvider().fails(eip1193.MethodRequestAccounts, errors.New("boom"))
			s := newTestSession(t, p, nil)
			_ = s.Connect(context.Background())
			return s
		},
	}

	for name, setup := range setups {
		t.Run(name, func(t *testing.T) {
			s := setup(t)
			s.Disconnect()
			assert.Equal(t, Snapshot{State: StateDisconnected}, s.Snapshot())

			// 幂等
			s.Disconnect()
			assert.Equal(t, Snapshot{State: StateDisconnected}, s.Snapshot())
		})
	}
}

func TestRefreshAccounts(t *testing.T) {
	t.Run("account switch clears token", func(t *testing.T) {
		p := connectedProvider()
		s, _ := authenticated(t, p)

		p.returns(eip1193.MethodAccounts, []string{account1, account0})
		require.NoError(t, s.RefreshAccounts(context.Background()))

		snap := s.Snapshot()
		assert.Equal(t, StateConnected, snap.State)
		assert.Equal(t, strings.ToLower(account1), snap.Address)
		assert.Empty(t, snap.AuthToken)
		assert.Equal(t, "0x7a69", snap.ChainID)
	})

	t.Run("same account keeps token", func(t *testing.T) {
		p := connectedProvider()
		s, _ := authenticated(t, p)

		p.returns(eip1193.MethodAccounts, []string{"0x" + strings.ToUpper(account0[2:])})
		require.NoError(t, s.RefreshAccounts(context.Background()))
		assert.Equal(t, StateAuthenticated, s.Snapshot().State)
	})

	t.Run("no accounts resets session", func(t *testing.T) {
		p := connectedProvider()
		s, _ := authenticated(t, p)

		p.returns(eip1193.MethodAccounts, []string{})
		require.NoError(t, s.RefreshAccounts(context.Background()))
		assert.Equal(t, Snapshot{State: StateDisconnected}, s.Snapshot())
	})

	t.Run("restores authorized connection", func(t *testing.T) {
		p := connectedProvider()
		s := newTestSession(t, p, nil)

		require.NoError(t, s.RefreshAccounts(context.Background()))
		snap := s.Snapshot()
		assert.Equal(t, StateConnected, snap.State)
		assert.Equal(t, "0x7a69", snap.ChainID)
		assert.Zero(t, p.count(eip1193.MethodRequestAccounts), "静默检查不能弹窗")
	})

	t.Run("provider failure", func(t *testing.T) {
		p := connectedProvider()
		s, _ := authenticated(t, p)

		p.fails(eip1193.MethodAccounts, errors.New("rpc down"))
		err := s.RefreshAccounts(context.Background())
		assert.Equal(t, ProviderUnavailable, KindOf(err))

		snap := s.Snapshot()
		assert.Equal(t, StateError, snap.State)
		assert.Empty(t, snap.AuthToken)
	})

	t.Run("provider failure while disconnected", func(t *testing.T) {
		p := connectedProvider().fails(eip1193.MethodAccounts, errors.New("rpc down"))
		s := newTestSession(t, p, nil)

		err := s.RefreshAccounts(context.Background())
		assert.Equal(t, ProviderUnavailable, KindOf(err))
		assert.Equal(t, Snapshot{State: StateDisconnected, LastError: ProviderUnavailable}, s.Snapshot())

		// 恢复后正常建立连接并清除错误
		p.returns(eip1193.MethodAccounts, []string{account0})
		require.NoError(t, s.RefreshAccounts(context.Background()))
		snap := s.Snapshot()
		assert.Equal(t, StateConnected, snap.State)
		assert.Empty(t, snap.LastError)
	})
}

func TestEnsureNetwork(t *testing.T) {
	polygon := eip1193.AddChainParameter{
		ChainID:        "0x89",
		ChainName:      "Polygon Mainnet",
		NativeCurrency: eip1193.NativeCurrency{Name: "MATIC", Symbol: "MATIC", Decimals: 18},
		RPCURLs:        []string{"https://polygon-rpc.com"},
	}

	t.Run("switch succeeds", func(t *testing.T) {
		p := connectedProvider().returns(eip1193.MethodChainID, "0x89").returns(eip1193.MethodSwitchChain, nil)
		s := newTestSession(t, p, nil)
		require.NoError(t, s.Connect(context.Background()))
		require.Equal(t, "0x89", s.Snapshot().ChainID)

		require.NoError(t, s.EnsureNetwork(context.Background(), "0x1"))
		snap := s.Snapshot()
		assert.Equal(t, "0x1", snap.ChainID)
		assert.Empty(t, snap.LastError)
		assert.Equal(t, StateConnected, snap.State)

		params := p.lastParams(eip1193.MethodSwitchChain)
		require.Len(t, params, 1)
		assert.Equal(t, eip1193.SwitchChainParameter{ChainID: "0x1"}, params[0])
	})

	t.Run("already on target", func(t *testing.T) {
		p := connectedProvider()
		s := newTestSession(t, p, nil)
		require.NoError(t, s.Connect(context.Background()))

		require.NoError(t, s.EnsureNetwork(context.Background(), "31337"))
		assert.Zero(t, p.count(eip1193.MethodSwitchChain))
	})

	t.Run("unknown chain is added then switched", func(t *testing.T) {
		switches := 0
		p := connectedProvider().
			returns(eip1193.MethodAddChain, nil).
			on(eip1193.MethodSwitchChain, func(context.Context, []any) (any, error) {
				switches++
				if switches == 1 {
					return nil, eip1193.NewError(eip1193.CodeUnrecognizedChain, "Unrecognized chain ID")
				}
				return nil, nil
			})
		s := newTestSession(t, p, nil, WithNetworks(polygon))
		require.NoError(t, s.Connect(context.Background()))

		require.NoError(t, s.EnsureNetwork(context.Background(), "0x89"))
		assert.Equal(t, "0x89", s.Snapshot().ChainID)
		assert.Equal(t, 1, p.count(eip1193.MethodAddChain))
		assert.Equal(t, 2, p.count(eip1193.MethodSwitchChain))
		assert.Equal(t, []any{polygon}, p.lastParams(eip1193.MethodAddChain))
	})

	t.Run("unknown chain without descriptor", func(t *testing.T) {
		p := connectedProvider().fails(eip1193.MethodSwitchChain,
			eip1193.NewError(eip1193.CodeUnrecognizedChain, "Unrecognized chain ID"))
		s := newTestSession(t, p, nil)
		require.NoError(t, s.Connect(context.Background()))

		err := s.EnsureNetwork(context.Background(), "0x89")
		assert.Equal(t, NetworkSwitchFailed, KindOf(err))
		assert.True(t, eip1193.IsUnrecognizedChain(err))
		assert.Zero(t, p.count(eip1193.MethodAddChain))

		snap := s.Snapshot()
		assert.Equal(t, StateError, snap.State)
		assert.Equal(t, NetworkSwitchFailed, snap.LastError)
		assert.Equal(t, "0x7a69", snap.ChainID)

		// 重试成功后回到 Connected
		p.returns(eip1193.MethodSwitchChain, nil)
		require.NoError(t, s.EnsureNetwork(context.Background(), "0x89"))
		snap = s.Snapshot()
		assert.Equal(t, StateConnected, snap.State)
		assert.Empty(t, snap.LastError)
	})

	t.Run("user rejects switch", func(t *testing.T) {
		p := connectedProvider().fails(eip1193.MethodSwitchChain,
			eip1193.NewError(eip1193.CodeUserRejected, "User rejected the request."))
		s := newTestSession(t, p, nil)
		require.NoError(t, s.Connect(context.Background()))

		err := s.EnsureNetwork(context.Background(), "0x1")
		assert.Equal(t, NetworkSwitchFailed, KindOf(err))
		assert.True(t, eip1193.IsUserRejected(err))
	})

	t.Run("not connected", func(t *testing.T) {
		s := newTestSession(t, connectedProvider(), nil)
		err := s.EnsureNetwork(context.Background(), "0x1")
		assert.Equal(t, NotConnected, KindOf(err))
	})

	t.Run("invalid chain id", func(t *testing.T) {
		s := newTestSession(t, connectedProvider(), nil)
		require.NoError(t, s.Connect(context.Background()))
		err := s.EnsureNetwork(context.Background(), "polygon")
		assert.Equal(t, NetworkSwitchFailed, KindOf(err))
		assert.Equal(t, StateConnected, s.Snapshot().State)
	})
}

func TestErrorKinds(t *testing.T) {
	err := newError("connect", UserRejected, eip1193.NewError(eip1193.CodeUserRejected, "rejected"))
	assert.True(t, errors.Is(err, UserRejected))
	assert.False(t, errors.Is(err, ProviderUnavailable))
	assert.True(t, eip1193.IsUserRejected(err))
	assert.Contains(t, err.Error(), "connect")

	bare := newError("authenticate", ConcurrentOperation, nil)
	assert.True(t, errors.Is(bare, ConcurrentOperation))
	assert.Equal(t, ConcurrentOperation, KindOf(bare))
	assert.Equal(t, ErrorKind(""), KindOf(errors.New("plain")))

	assert.Equal(t, "authenticated", StateAuthenticated.String())
	assert.Equal(t, "state(42)", State(42).String())
}
