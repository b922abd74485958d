package session

import (
	"context"
	"time"

	"wallet-session/pkg/eip1193"

	"go.uber.org/zap"
)

// Watch 返回只保留最新值的快照通道：先收到当前快照，之后每次状态变化一次。
// 消费慢时中间状态会被合并。ctx 结束或 Close 后通道关闭。
func (s *Session) Watch(ctx context.Context) <-chan Snapshot {
	ch := make(chan Snapshot, 1)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		close(ch)
		return ch
	}
	ch <- s.snap
	s.watchers[ch] = struct{}{}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		select {
		case <-ctx.Done():
		case <-s.done:
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.watchers[ch]; ok {
			delete(s.watchers, ch)
			close(ch)
		}
	}()
	return ch
}

// publishLocked 通道容量为 1，先取出旧值再写入，持锁写入不会阻塞
func (s *Session) publishLocked() {
	for ch := range s.watchers {
		select {
		case <-ch:
		default:
		}
		ch <- s.snap
	}
}

// handleEvent 处理 Provider 推送的 accountsChanged / chainChanged
func (s *Session) handleEvent(ev eip1193.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	switch ev.Kind {
	case eip1193.EventAccountsChanged:
		if err := s.applyAccountsLocked("accounts changed", ev.Accounts, false); err != nil {
			s.log.Warn("ignoring accountsChanged event", zap.Error(err))
		}
	case eip1193.EventChainChanged:
		if s.snap.State == StateDisconnected {
			return
		}
		id, err := eip1193.NormalizeChainID(ev.ChainID)
		if err != nil {
			s.log.Warn("ignoring chainChanged event", zap.String("chain_id", ev.ChainID), zap.Error(err))
			return
		}
		next := s.snap
		next.ChainID = id
		s.setLocked(next)
	}
}

// startPollingLocked 在 Provider 不推送事件时启动 eth_accounts 轮询
func (s *Session) startPollingLocked() {
	if s.hasEvents || s.closed || s.pollCancel != nil || s.opts.pollInterval <= 0 {
		return
	}

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if s.opts.pollLimit > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), s.opts.pollLimit)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	s.pollCancel = cancel
	s.pollGen++

	s.wg.Add(1)
	go s.poll(ctx, s.pollGen)
}

func (s *Session) stopPollingLocked() {
	if s.pollCancel != nil {
		s.pollCancel()
		s.pollCancel = nil
	}
}

func (s *Session) poll(ctx context.Context, gen uint64) {
	defer s.wg.Done()
	defer func() {
		// 超时退出后允许下次连接重新启动轮询
		s.mu.Lock()
		if s.pollGen == gen && s.pollCancel != nil {
			s.pollCancel()
			s.pollCancel = nil
		}
		s.mu.Unlock()
	}()
	ticker := time.NewTicker(s.opts.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Debug("account polling stopped", zap.Error(ctx.Err()))
			return
		case <-ticker.C:
			s.pollOnce(ctx)
		}
	}
}

func (s *Session) pollOnce(ctx context.Context) {
	s.mu.Lock()
	epoch := s.epoch
	s.mu.Unlock()

	accounts, err := eip1193.Call[[]string](ctx, s.provider, eip1193.MethodAccounts)
	if ctx.Err() != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch || s.closed {
		return
	}
	if err != nil {
		// 轮询失败不改变状态，下个周期重试
		s.log.Warn("poll eth_accounts failed", zap.Error(err))
		return
	}
	if err := s.applyAccountsLocked("poll accounts", accounts, false); err != nil {
		s.log.Warn("ignoring polled accounts", zap.Error(err))
	}
}

// Close 取消事件订阅、停止轮询并关闭所有 Watch 通道，会话回到 Disconnected
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		if s.unsubscribe != nil {
			s.unsubscribe()
		}

		s.mu.Lock()
		s.resetLocked()
		s.closed = true
		close(s.done)
		s.mu.Unlock()

		s.wg.Wait()
	})
}
