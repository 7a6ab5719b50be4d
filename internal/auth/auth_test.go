package auth

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cubesync/cube-server/internal/config"
	"github.com/cubesync/cube-server/internal/metrics"
	"github.com/cubesync/cube-server/internal/store"
)

func TestMain(m *testing.M) {
	metrics.InitMetrics()
	os.Exit(m.Run())
}

type nullHub struct {
	events []any
}

func (h *nullHub) Broadcast(event any) { h.events = append(h.events, event) }

func newTestBroker(t *testing.T, cfg *config.AuthConfig) (*Broker, *nullHub) {
	t.Helper()

	st, err := store.New(filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	if cfg == nil {
		cfg = &config.AuthConfig{CodeLength: 6, AdvisoryExpiry: 60, ExchangeTimeout: "2s"}
	}
	h := &nullHub{}
	b := NewBroker(cfg, st, h)
	b.localIP = func() string { return "192.168.1.10" }
	return b, h
}

func TestGenerateCode(t *testing.T) {
	b, _ := newTestBroker(t, nil)

	resp, err := b.GenerateCode(context.Background())
	require.NoError(t, err)
	assert.Len(t, resp.Code, 6)
	assert.Equal(t, "192.168.1.10", resp.IP)
	assert.Equal(t, 60, resp.ExpiresIn)
}

func TestExchange(t *testing.T) {
	b, h := newTestBroker(t, nil)
	ctx := context.Background()

	resp, err := b.GenerateCode(ctx)
	require.NoError(t, err)

	token, err := b.Exchange(ctx, resp.Code, "alice")
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	rec, err := b.store.GetToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "alice", rec.Username)
	assert.Equal(t, "192.168.1.10", rec.IP)

	require.Len(t, h.events, 1)
	event, ok := h.events[0].(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "token_issued", event["event"])
	assert.Equal(t, token, event["token"])
}

func TestExchangeUnknownCode(t *testing.T) {
	b, h := newTestBroker(t, nil)

	_, err := b.Exchange(context.Background(), "nosuch", "alice")
	assert.ErrorIs(t, err, ErrInvalidCode)
	assert.Empty(t, h.events)
}

func TestExchangeIsRepeatable(t *testing.T) {
	b, _ := newTestBroker(t, nil)
	ctx := context.Background()

	resp, err := b.GenerateCode(ctx)
	require.NoError(t, err)

	first, err := b.Exchange(ctx, resp.Code, "alice")
	require.NoError(t, err)
	second, err := b.Exchange(ctx, resp.Code, "bob")
	require.NoError(t, err)

	// The code is not consumed, and every exchange mints a fresh token.
	assert.NotEqual(t, first, second)

	rec, err := b.store.GetToken(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, "bob", rec.Username)
}

func TestExchangeMintsJWTWhenConfigured(t *testing.T) {
	b, _ := newTestBroker(t, &config.AuthConfig{
		CodeLength:      6,
		AdvisoryExpiry:  60,
		ExchangeTimeout: "2s",
		EnableJWT:       true,
		JWTSecret:       "test-secret",
	})
	ctx := context.Background()

	resp, err := b.GenerateCode(ctx)
	require.NoError(t, err)
	token, err := b.Exchange(ctx, resp.Code, "alice")
	require.NoError(t, err)

	parsed, err := jwt.Parse(token, func(*jwt.Token) (any, error) {
		return []byte("test-secret"), nil
	})
	require.NoError(t, err)
	claims, ok := parsed.Claims.(jwt.MapClaims)
	require.True(t, ok)
	assert.Equal(t, "alice", claims["sub"])
	assert.Equal(t, "192.168.1.10", claims["ip"])
}

func TestRandomCodeAlphabet(t *testing.T) {
	code, err := randomCode(32)
	require.NoError(t, err)
	assert.Len(t, code, 32)
	for _, c := range code {
		assert.Contains(t, codeAlphabet, string(c))
	}
}
