package cognito

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

const (
	testIssuer   = "https://cognito-idp.us-east-1.amazonaws.com/us-east-1_test123"
	testClientID = "test-client-id"
)

type testKey struct {
	kid  string
	priv *rsa.PrivateKey
}

// Test helper to generate an RSA key pair
func newTestKey(t *testing.T, kid string) testKey {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return testKey{kid: kid, priv: priv}
}

func (k testKey) jwk() JWK {
	pub := k.priv.PublicKey
	return JWK{
		Kid: k.kid,
		Kty: "RSA",
		Alg: "RS256",
		Use: "sig",
		N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}
}

// jwksServer serves a mutable key set and counts fetches
type jwksServer struct {
	*httptest.Server

	mu     sync.Mutex
	keys   []JWK
	status int
	delay  time.Duration
	gate   chan struct{}

	hits atomic.Int32
}

func newJWKSServer(t *testing.T, keys ...testKey) *jwksServer {
	t.Helper()
	s := &jwksServer{status: http.StatusOK}
	s.setKeys(keys...)
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)

		s.mu.Lock()
		status, delay, gate := s.status, s.delay, s.gate
		doc := JWKS{Keys: append([]JWK(nil), s.keys...)}
		s.mu.Unlock()

		if gate != nil {
			<-gate
		}
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(doc)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *jwksServer) setKeys(keys ...testKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = s.keys[:0]
	for _, k := range keys {
		s.keys = append(s.keys, k.jwk())
	}
}

func (s *jwksServer) setStatus(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

// fakeClock is a settable time source
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// memoryStore is an in-process KeySetStore
type memoryStore struct {
	mu    sync.Mutex
	sets  map[string]*StoredKeySet
	saves int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{sets: make(map[string]*StoredKeySet)}
}

func (m *memoryStore) Load(_ context.Context, url string) (*StoredKeySet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sets[url], nil
}

func (m *memoryStore) Save(_ context.Context, url string, set *StoredKeySet, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets[url] = set
	m.saves++
	return nil
}

// Test helper to create a signed access token
func signToken(t *testing.T, key testKey, mutate func(*Claims)) string {
	t.Helper()
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testIssuer,
			Subject:   uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now.Add(-time.Minute)),
		},
		TokenUse: "access",
		ClientID: testClientID,
		Username: "ann@example.com",
		Groups:   []string{"users"},
		Scope:    "aws.cognito.signin.user.admin",
		AuthTime: now.Unix(),
	}
	if mutate != nil {
		mutate(claims)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = key.kid
	signed, err := token.SignedString(key.priv)
	require.NoError(t, err)
	return signed
}

func mustJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}
