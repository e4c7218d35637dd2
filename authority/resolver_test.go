package authority

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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// mockAuthority serves a discovery document and a JWKS and counts requests
type mockAuthority struct {
	server         *httptest.Server
	discoveryCalls atomic.Int32
	jwksCalls      atomic.Int32
	issuer         string
	keys           []JWK
	block          chan struct{}
}

func toJWK(kid string, pub *rsa.PublicKey) JWK {
	return JWK{
		Kid: kid,
		Kty: "RSA",
		Alg: "RS256",
		Use: "sig",
		N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}
}

func newMockAuthority(t *testing.T, tenantID string, configure func(*mockAuthority), keys ...JWK) *mockAuthority {
	t.Helper()
	m := &mockAuthority{
		keys:   keys,
		issuer: "https://login.microsoftonline.com/" + tenantID + "/v2.0",
	}
	if configure != nil {
		configure(m)
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/"+tenantID+"/v2.0/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		m.discoveryCalls.Add(1)
		if m.block != nil {
			select {
			case <-m.block:
			case <-r.Context().Done():
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(discoveryDocument{
			Issuer:  m.issuer,
			JWKSURI: "http://" + r.Host + "/discovery/v2.0/keys",
		})
	})
	mux.HandleFunc("/discovery/v2.0/keys", func(w http.ResponseWriter, r *http.Request) {
		m.jwksCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(JWKS{Keys: m.keys})
	})
	m.server = httptest.NewServer(mux)
	t.Cleanup(m.server.Close)
	return m
}

func blocking(ch chan struct{}) func(*mockAuthority) {
	return func(m *mockAuthority) { m.block = ch }
}

func generateKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func TestResolver_MissingConfiguration(t *testing.T) {
	m := newMockAuthority(t, "tenant-1", nil)

	tests := []struct {
		name     string
		tenantID string
		clientID string
	}{
		{"missing tenant", "", "client-1"},
		{"missing client", "tenant-1", ""},
		{"whitespace tenant", "   ", "client-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver(Config{Instance: m.server.URL, TenantID: tt.tenantID, ClientID: tt.clientID}, zap.NewNop())

			md, err := r.Resolve(context.Background())
			assert.ErrorIs(t, err, ErrMissingConfiguration)
			assert.Nil(t, md)
			assert.Equal(t, int32(0), m.discoveryCalls.Load())
		})
	}
}

func TestResolver_MetadataURL(t *testing.T) {
	r := NewResolver(Config{Instance: "https://login.microsoftonline.com/", TenantID: "contoso-tenant", ClientID: "c"}, zap.NewNop())
	assert.Equal(t, "https://login.microsoftonline.com/contoso-tenant/v2.0/.well-known/openid-configuration", r.MetadataURL())
	assert.Equal(t, "c", r.ClientID())
}

func TestResolver_ResolveAndCache(t *testing.T) {
	key1 := generateKey(t)
	key2 := generateKey(t)
	m := newMockAuthority(t, "tenant-1", nil, toJWK("k1", &key1.PublicKey), toJWK("k2", &key2.PublicKey))
	r := NewResolver(Config{Instance: m.server.URL, TenantID: "tenant-1", ClientID: "client-1", CacheTTL: time.Hour}, zap.NewNop())

	md, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, m.issuer, md.Issuer)
	require.Len(t, md.Keys, 2)
	assert.Equal(t, 0, md.Keys[0].N.Cmp(key1.PublicKey.N))
	assert.Equal(t, key1.PublicKey.E, md.Keys[0].E)

	md2, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.True(t, md == md2, "second resolve should be served from cache")
	assert.Equal(t, int32(1), m.discoveryCalls.Load())
	assert.Equal(t, int32(1), m.jwksCalls.Load())
	assert.Equal(t, 1, r.CachedEntries())

	r.Invalidate()
	_, err = r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), m.discoveryCalls.Load())
}

func TestResolver_TTLExpiry(t *testing.T) {
	key := generateKey(t)
	m := newMockAuthority(t, "tenant-1", nil, toJWK("k1", &key.PublicKey))
	r := NewResolver(Config{Instance: m.server.URL, TenantID: "tenant-1", ClientID: "client-1", CacheTTL: 50 * time.Millisecond}, zap.NewNop())

	_, err := r.Resolve(context.Background())
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)

	_, err = r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), m.discoveryCalls.Load())
}

func TestResolver_ConcurrentFirstRequestsShareOneFetch(t *testing.T) {
	key := generateKey(t)
	release := make(chan struct{})
	m := newMockAuthority(t, "tenant-1", blocking(release), toJWK("k1", &key.PublicKey))
	r := NewResolver(Config{Instance: m.server.URL, TenantID: "tenant-1", ClientID: "client-1"}, zap.NewNop())

	const workers = 20
	var wg sync.WaitGroup
	results := make([]*Metadata, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = r.Resolve(context.Background())
		}(i)
	}

	require.Eventually(t, func() bool { return m.discoveryCalls.Load() == 1 }, time.Second, 5*time.Millisecond)
	close(release)
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.True(t, results[i] == results[0])
	}
	assert.Equal(t, int32(1), m.discoveryCalls.Load())
	assert.Equal(t, int32(1), m.jwksCalls.Load())
}

func TestResolver_ContextCancellation(t *testing.T) {
	key := generateKey(t)
	release := make(chan struct{})
	m := newMockAuthority(t, "tenant-1", blocking(release), toJWK("k1", &key.PublicKey))
	defer close(release)
	r := NewResolver(Config{Instance: m.server.URL, TenantID: "tenant-1", ClientID: "client-1"}, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	md, err := r.Resolve(ctx)
	assert.Error(t, err)
	assert.Nil(t, md)
	assert.Equal(t, 0, r.CachedEntries())
}

func TestResolver_CancelledFirstRequestDoesNotFailWaiters(t *testing.T) {
	key := generateKey(t)
	release := make(chan struct{})
	m := newMockAuthority(t, "tenant-1", blocking(release), toJWK("k1", &key.PublicKey))
	r := NewResolver(Config{Instance: m.server.URL, TenantID: "tenant-1", ClientID: "client-1"}, zap.NewNop())

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := r.Resolve(firstCtx)
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return m.discoveryCalls.Load() == 1 }, time.Second, 5*time.Millisecond)

	type result struct {
		md  *Metadata
		err error
	}
	second := make(chan result, 1)
	go func() {
		md, err := r.Resolve(context.Background())
		second <- result{md, err}
	}()

	cancelFirst()
	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled request did not return")
	}

	close(release)
	select {
	case res := <-second:
		require.NoError(t, res.err)
		require.NotNil(t, res.md)
		assert.Len(t, res.md.Keys, 1)
	case <-time.After(2 * time.Second):
		t.Fatal("waiting request did not return")
	}

	assert.Equal(t, int32(1), m.discoveryCalls.Load())
	assert.Equal(t, 1, r.CachedEntries())
}

func TestResolver_TemplatedIssuer(t *testing.T) {
	key := generateKey(t)
	m := newMockAuthority(t, "tenant-1", func(m *mockAuthority) {
		m.issuer = "https://login.microsoftonline.com/{tenantid}/v2.0"
	}, toJWK("k1", &key.PublicKey))
	r := NewResolver(Config{Instance: m.server.URL, TenantID: "tenant-1", ClientID: "client-1"}, zap.NewNop())

	md, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://login.microsoftonline.com/tenant-1/v2.0", md.Issuer)
}

func TestResolver_FetchFailures(t *testing.T) {
	t.Run("no signing keys", func(t *testing.T) {
		m := newMockAuthority(t, "tenant-1", nil, JWK{Kid: "enc", Kty: "RSA", Use: "enc", N: "AQAB", E: "AQAB"})
		r := NewResolver(Config{Instance: m.server.URL, TenantID: "tenant-1", ClientID: "client-1"}, zap.NewNop())

		_, err := r.Resolve(context.Background())
		assert.ErrorIs(t, err, ErrNoSigningKeys)
		assert.Equal(t, 0, r.CachedEntries())
	})

	t.Run("unknown tenant returns 404", func(t *testing.T) {
		m := newMockAuthority(t, "tenant-1", nil)
		r := NewResolver(Config{Instance: m.server.URL, TenantID: "other-tenant", ClientID: "client-1"}, zap.NewNop())

		_, err := r.Resolve(context.Background())
		assert.ErrorIs(t, err, ErrMetadataFetchFailed)
	})

	t.Run("only malformed keys", func(t *testing.T) {
		m := newMockAuthority(t, "tenant-1", nil, JWK{Kid: "bad", Kty: "RSA", N: "!!!", E: "AQAB"})
		r := NewResolver(Config{Instance: m.server.URL, TenantID: "tenant-1", ClientID: "client-1"}, zap.NewNop())

		_, err := r.Resolve(context.Background())
		assert.ErrorIs(t, err, ErrNoSigningKeys)
		assert.Equal(t, 0, r.CachedEntries())
	})
}

func TestResolver_SkipsMalformedKeys(t *testing.T) {
	key := generateKey(t)
	m := newMockAuthority(t, "tenant-1", nil,
		JWK{Kid: "bad-modulus", Kty: "RSA", N: "!!!", E: "AQAB"},
		JWK{Kid: "bad-exponent", Kty: "RSA", N: "AQAB", E: ""},
		toJWK("k1", &key.PublicKey))

	core, logs := observer.New(zap.WarnLevel)
	r := NewResolver(Config{Instance: m.server.URL, TenantID: "tenant-1", ClientID: "client-1"}, zap.New(core))

	md, err := r.Resolve(context.Background())
	require.NoError(t, err)
	require.Len(t, md.Keys, 1)
	assert.Equal(t, key.PublicKey.N, md.Keys[0].N)

	skipped := logs.FilterMessage("skipping malformed signing key").All()
	require.Len(t, skipped, 2)
	assert.Equal(t, "bad-modulus", skipped[0].ContextMap()["kid"])
	assert.Equal(t, "bad-exponent", skipped[1].ContextMap()["kid"])
}
