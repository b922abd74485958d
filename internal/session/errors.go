package session

import (
	"errors"
	"fmt"
)

var (
	// ErrDiscarded 在途结果因断开或切换账户而作废
	ErrDiscarded = errors.New("session: stale result discarded")
	// ErrClosed 会话已 Close
	ErrClosed = errors.New("session: closed")

	errNoProvider = errors.New("no wallet provider")
	errNoAccounts = errors.New("wallet returned no accounts")
	errNoBackend  = errors.New("no auth backend configured")

	errEmptyNonce     = errors.New("backend returned an empty nonce")
	errEmptySignature = errors.New("wallet returned an empty signature")
	errEmptyToken     = errors.New("backend returned no token")
)

func errWrongState(state State) error {
	return fmt.Errorf("session is %s", state)
}

func errInvalidAccount(account string) error {
	return fmt.Errorf("wallet returned invalid account %q", account)
}

func errGrantAddress(got, want string) error {
	return fmt.Errorf("token issued for %s, session address is %s", got, want)
}

func errUnknownNetwork(chainID string, cause error) error {
	return fmt.Errorf("no network descriptor for chain %s: %w", chainID, cause)
}
