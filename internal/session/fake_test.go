package session

import (
	"context"
	"encoding/json"
	"sync"

	"wallet-session/pkg/eip1193"
)

const (
	account0 = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	account1 = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
)

type handlerFunc func(ctx context.Context, params []any) (any, error)

// fakeProvider 按方法名返回预设结果
type fakeProvider struct {
	mu       sync.Mutex
	handlers map[string]handlerFunc
	calls    map[string]int
	params   map[string][]any
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		handlers: make(map[string]handlerFunc),
		calls:    make(map[string]int),
		params:   make(map[string][]any),
	}
}

func (f *fakeProvider) on(method string, h handlerFunc) *fakeProvider {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[method] = h
	return f
}

func (f *fakeProvider) returns(method string, v any) *fakeProvider {
	return f.on(method, func(context.Context, []any) (any, error) { return v, nil })
}

func (f *fakeProvider) fails(method string, err error) *fakeProvider {
	return f.on(method, func(context.Context, []any) (any, error) { return nil, err })
}

func (f *fakeProvider) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeProvider) lastParams(method string) []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.params[method]
}

func (f *fakeProvider) Request(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	f.mu.Lock()
	f.calls[method]++
	f.params[method] = params
	h := f.handlers[method]
	f.mu.Unlock()

	if h == nil {
		return nil, eip1193.NewError(eip1193.CodeUnsupportedMethod, "method %s not supported", method)
	}
	v, err := h(ctx, params)
	if err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

// eventProvider 额外实现 eip1193.EventSource
type eventProvider struct {
	*fakeProvider

	subMu       sync.Mutex
	subscribers map[int]func(eip1193.Event)
	nextID      int
	subscribed  int
	released    int
}

func newEventProvider() *eventProvider {
	return &eventProvider{
		fakeProvider: newFakeProvider(),
		subscribers:  make(map[int]func(eip1193.Event)),
	}
}

func (p *eventProvider) Subscribe(h func(eip1193.Event)) func() {
	p.subMu.Lock()
	defer p.subMu.Unlock()
	id := p.nextID
	p.nextID++
	p.subscribers[id] = h
	p.subscribed++

	var once sync.Once
	return func() {
		once.Do(func() {
			p.subMu.Lock()
			defer p.subMu.Unlock()
			delete(p.subscribers, id)
			p.released++
		})
	}
}

func (p *eventProvider) emit(ev eip1193.Event) {
	p.subMu.Lock()
	hs := make([]func(eip1193.Event), 0, len(p.subscribers))
	for _, h := range p.subscribers {
		hs = append(hs, h)
	}
	p.subMu.Unlock()

	for _, h := range hs {
		h(ev)
	}
}

func (p *eventProvider) counts() (subscribed, released, active int) {
	p.subMu.Lock()
	defer p.subMu.Unlock()
	return p.subscribed, p.released, len(p.subscribers)
}

// fakeBackend 可编排的 AuthBackend
type fakeBackend struct {
	mu        sync.Mutex
	nonce     string
	nonceErr  error
	nonceHook func(ctx context.Context) error
	token     string
	address   string
	verifyErr error
	got       []Credentials
}

func (b *fakeBackend) Nonce(ctx context.Context) (string, error) {
	b.mu.Lock()
	hook, nonce, err := b.nonceHook, b.nonce, b.nonceErr
	b.mu.Unlock()

	if hook != nil {
		if err := hook(ctx); err != nil {
			return "", err
		}
	}
	return nonce, err
}

func (b *fakeBackend) Verify(_ context.Context, cred Credentials) (*Grant, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.got = append(b.got, cred)
	if b.verifyErr != nil {
		return nil, b.verifyErr
	}
	return &Grant{Token: b.token, Address: b.address}, nil
}

func (b *fakeBackend) credentials() []Credentials {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Credentials(nil), b.got...)
}

// connectedProvider 已授权 account0，位于 Hardhat 本地链，签名总是成功
func connectedProvider() *fakeProvider {
	return newFakeProvider().
		returns(eip1193.MethodRequestAccounts, []string{account0}).
		returns(eip1193.MethodAccounts, []string{account0}).
		returns(eip1193.MethodChainID, "0x7a69").
		returns(eip1193.MethodPersonalSign, "0xdeadbeef")
}
