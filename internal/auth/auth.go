// Package auth implements the code/token pairing handshake: short numeric
// codes bound to the server's address, later exchanged for session tokens.
package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/cubesync/cube-server/internal/config"
	"github.com/cubesync/cube-server/internal/metrics"
	"github.com/cubesync/cube-server/internal/network"
	"github.com/cubesync/cube-server/internal/store"
)

var log = logrus.New()

// SetLogger replaces the package-level logger.
func SetLogger(l *logrus.Logger) { log = l }

// ErrInvalidCode is returned when an exchange presents an unknown code or
// the lookup does not answer in time. The two cases are deliberately not
// distinguished to the caller.
var ErrInvalidCode = errors.New("auth: invalid code")

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// Broadcaster delivers best-effort notifications to connected clients.
type Broadcaster interface {
	Broadcast(event any)
}

// CodeResponse is the result of code generation. ExpiresIn is advisory
// only: nothing enforces it and the code keeps working afterwards.
type CodeResponse struct {
	Code      string `json:"code"`
	IP        string `json:"ip"`
	ExpiresIn int    `json:"expires_in"`
}

// Broker generates pairing codes and exchanges them for session tokens.
type Broker struct {
	store           *store.Store
	hub             Broadcaster
	codeLength      int
	advisoryExpiry  int
	exchangeTimeout time.Duration
	jwtSecret       []byte

	localIP func() string
}

// NewBroker wires the broker from config. With enablejwt and a secret set,
// minted tokens are HS256 JWTs instead of plain UUIDs; either way they are
// opaque strings to the client.
func NewBroker(cfg *config.AuthConfig, s *store.Store, h Broadcaster) *Broker {
	timeout, err := time.ParseDuration(cfg.ExchangeTimeout)
	if err != nil || timeout <= 0 {
		timeout = 2 * time.Second
	}

	b := &Broker{
		store:           s,
		hub:             h,
		codeLength:      cfg.CodeLength,
		advisoryExpiry:  cfg.AdvisoryExpiry,
		exchangeTimeout: timeout,
		localIP:         network.LocalIP,
	}
	if cfg.EnableJWT && cfg.JWTSecret != "" {
		b.jwtSecret = []byte(cfg.JWTSecret)
		log.Info("Session tokens will be minted as HS256 JWTs")
	}
	return b
}

// GenerateCode mints a fresh pairing code bound to this server's LAN
// address and persists it. A colliding code string replaces the prior row.
func (b *Broker) GenerateCode(ctx context.Context) (*CodeResponse, error) {
	code, err := randomCode(b.codeLength)
	if err != nil {
		return nil, fmt.Errorf("failed to generate code: %w", err)
	}

	ip := b.localIP()
	if err := b.store.UpsertAuthCode(ctx, code, ip); err != nil {
		return nil, err
	}

	metrics.CodesGeneratedTotal.Inc()
	log.Infof("Pairing code generated for %s", ip)

	return &CodeResponse{Code: code, IP: ip, ExpiresIn: b.advisoryExpiry}, nil
}

// Exchange validates a code and mints a session token under the supplied
// username. The code is read, not consumed, so a later exchange of the
// same code succeeds again with a fresh token. The store lookup is bounded
// by the exchange timeout; exceeding it reads as an invalid code.
func (b *Broker) Exchange(ctx context.Context, code, username string) (string, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, b.exchangeTimeout)
	defer cancel()

	ip, err := b.store.LookupAuthCodeIP(lookupCtx, code)
	if err != nil {
		metrics.AuthFailuresTotal.Inc()
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, context.DeadlineExceeded) {
			return "", ErrInvalidCode
		}
		return "", err
	}

	token, err := b.mintToken(username, ip)
	if err != nil {
		return "", err
	}

	if err := b.store.InsertToken(ctx, token, username, ip); err != nil {
		return "", err
	}

	metrics.TokensIssuedTotal.Inc()
	log.Infof("Session token issued for %q", username)

	// Store lock is released; notification is best-effort.
	b.hub.Broadcast(map[string]string{
		"event":    "token_issued",
		"token":    token,
		"username": username,
	})

	return token, nil
}

func (b *Broker) mintToken(username, ip string) (string, error) {
	if b.jwtSecret == nil {
		return uuid.NewString(), nil
	}

	claims := jwt.MapClaims{
		"sub": username,
		"ip":  ip,
		"iat": time.Now().Unix(),
		"jti": uuid.NewString(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(b.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, nil
}

func randomCode(length int) (string, error) {
	if length <= 0 {
		length = 6
	}
	buf := make([]byte, length)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = codeAlphabet[n.Int64()]
	}
	return string(buf), nil
}
