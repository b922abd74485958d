package session

import (
	"time"

	"wallet-session/pkg/eip1193"
	"wallet-session/pkg/logger"

	"go.uber.org/zap"
)

const (
	DefaultBackendTimeout = 10 * time.Second
	DefaultPollInterval   = 3 * time.Second
	DefaultPollLimit      = 2 * time.Minute
)

type options struct {
	log            *zap.Logger
	backendTimeout time.Duration
	pollInterval   time.Duration
	pollLimit      time.Duration
	networks       map[string]eip1193.AddChainParameter
	challenge      func(nonce string) string
}

func defaultOptions() options {
	return options{
		backendTimeout: DefaultBackendTimeout,
		pollInterval:   DefaultPollInterval,
		pollLimit:      DefaultPollLimit,
		networks:       make(map[string]eip1193.AddChainParameter),
		challenge:      DefaultChallenge,
	}
}

// Option 配置 Session
type Option func(*options)

// WithLogger 默认使用全局 logger 的 "session" 子 logger
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithBackendTimeout 限制单次 AuthBackend 调用的时长，0 表示不限制。
// 钱包弹窗 (签名、授权) 不受此限制。
func WithBackendTimeout(d time.Duration) Option {
	return func(o *options) { o.backendTimeout = d }
}

// WithPolling 设置 Provider 不支持事件推送时的 eth_accounts 轮询。
// interval <= 0 关闭轮询；limit 为每次连接后的最长轮询时间，<= 0 表示一直轮询到断开。
func WithPolling(interval, limit time.Duration) Option {
	return func(o *options) {
		o.pollInterval = interval
		o.pollLimit = limit
	}
}

// WithNetworks 注册 wallet_addEthereumChain 使用的网络描述，按链 ID 索引
func WithNetworks(networks ...eip1193.AddChainParameter) Option {
	return func(o *options) {
		for _, n := range networks {
			id, err := eip1193.NormalizeChainID(n.ChainID)
			if err != nil {
				continue
			}
			o.networks[id] = n
		}
	}
}

// WithChallenge 替换签名文本模板，必须与后端一致
func WithChallenge(fn func(nonce string) string) Option {
	return func(o *options) {
		if fn != nil {
			o.challenge = fn
		}
	}
}

func (o *options) logger() *zap.Logger {
	if o.log == nil {
		o.log = logger.Named("session")
	}
	return o.log
}
