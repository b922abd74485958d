package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallet-session/internal/event"
	"wallet-session/internal/service/mq"
	"wallet-session/pkg/cache"
	"wallet-session/pkg/monitor"
)

func authMessage(t *testing.T, jti string) *mq.Message {
	t.Helper()
	payload, err := json.Marshal(event.WalletAuthenticatedEvent{
		Envelope: event.Envelope{
			Type:       event.TypeWalletAuthenticated,
			Address:    "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266",
			JTI:        jti,
			OccurredAt: time.Now(),
		},
		ExpiresAt: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	return &mq.Message{ID: "1-0", Topic: event.TopicAuth, Payload: payload}
}

func consumed() float64 {
	return testutil.ToFloat64(monitor.Business.EventsConsumedTotal.WithLabelValues(event.TypeWalletAuthenticated))
}

func TestAuditHandlesEventOnce(t *testing.T) {
	svc := NewAuditService(cache.NewMemoryCache(time.Minute, time.Minute))
	before := consumed()

	require.NoError(t, svc.HandleMessage(authMessage(t, "jti-1")))
	require.NoError(t, svc.HandleMessage(authMessage(t, "jti-1")))
	assert.Equal(t, before+1, consumed())

	require.NoError(t, svc.HandleMessage(authMessage(t, "jti-2")))
	assert.Equal(t, before+2, consumed())
}

func TestAuditDropsInvalidMessages(t *testing.T) {
	svc := NewAuditService(cache.NewMemoryCache(time.Minute, time.Minute))
	before := consumed()

	assert.NoError(t, svc.HandleMessage(&mq.Message{Payload: []byte("{")}))
	assert.NoError(t, svc.HandleMessage(&mq.Message{Payload: []byte(`{"type":"wallet.authenticated","address":"nope","jti":"x"}`)}))
	assert.NoError(t, svc.HandleMessage(&mq.Message{Payload: []byte(`{"type":"other","address":"0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266","jti":"x"}`)}))
	assert.Equal(t, before, consumed())
}

type brokenCache struct{ cache.Cache }

func (brokenCache) Get(context.Context, string, interface{}) error {
	return errors.New("redis down")
}

func TestAuditRetriesOnStoreError(t *testing.T) {
	svc := NewAuditService(brokenCache{})
	assert.Error(t, svc.HandleMessage(authMessage(t, "jti-3")))
}
