package authority

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrMissingConfiguration is returned when tenant or client id is not configured
	ErrMissingConfiguration = errors.New("identity authority not configured")

	// ErrMetadataFetchFailed is returned when the discovery document or JWKS cannot be fetched
	ErrMetadataFetchFailed = errors.New("failed to fetch authority metadata")

	// ErrNoSigningKeys is returned when the JWKS holds no usable RSA signing key
	ErrNoSigningKeys = errors.New("authority published no usable signing keys")
)

// maxDocumentBytes bounds discovery and JWKS responses
const maxDocumentBytes = 1 << 20

// Config holds configuration for Resolver
type Config struct {
	Instance    string
	TenantID    string
	ClientID    string
	CacheTTL    time.Duration // 0 caches for the process lifetime
	HTTPTimeout time.Duration
	HTTPClient  *http.Client // overrides HTTPTimeout when set
}

// Resolver resolves and caches the issuer and signing keys of the
// identity authority. Concurrent misses for one metadata URL share a
// single fetch.
type Resolver struct {
	instance   string
	tenantID   string
	clientID     string
	httpClient   *http.Client
	fetchTimeout time.Duration
	logger       *zap.Logger

	cache *ttlcache.Cache[string, *Metadata]
	group singleflight.Group
}

// NewResolver creates a new authority metadata resolver
func NewResolver(cfg Config, logger *zap.Logger) *Resolver {
	if cfg.Instance == "" {
		cfg.Instance = "https://login.microsoftonline.com"
	}
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.HTTPTimeout}
	}

	return &Resolver{
		instance:     strings.TrimSuffix(cfg.Instance, "/"),
		tenantID:     strings.TrimSpace(cfg.TenantID),
		clientID:     strings.TrimSpace(cfg.ClientID),
		httpClient:   client,
		fetchTimeout: cfg.HTTPTimeout,
		logger:       logger,
		cache: ttlcache.New[string, *Metadata](
			ttlcache.WithTTL[string, *Metadata](cfg.CacheTTL),
			ttlcache.WithDisableTouchOnHit[string, *Metadata](),
		),
	}
}

// MetadataURL returns the well-known discovery URL derived from the tenant id
func (r *Resolver) MetadataURL() string {
	return fmt.Sprintf("%s/%s/v2.0/.well-known/openid-configuration", r.instance, r.tenantID)
}

// ClientID returns the audience expected on external credentials
func (r *Resolver) ClientID() string {
	return r.clientID
}

// Resolve returns the authority metadata, fetching it on a cache miss.
// Configuration is checked before any network call.
func (r *Resolver) Resolve(ctx context.Context) (*Metadata, error) {
	if r.tenantID == "" || r.clientID == "" {
		return nil, ErrMissingConfiguration
	}

	key := r.MetadataURL()
	if item := r.cache.Get(key); item != nil {
		return item.Value(), nil
	}

	// The shared fetch outlives the cancellation of the request that started
	// it. Every caller, the first included, still leaves on its own ctx.
	ch := r.group.DoChan(key, func() (interface{}, error) {
		if item := r.cache.Get(key); item != nil {
			return item.Value(), nil
		}
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.fetchTimeout)
		defer cancel()

		md, err := r.fetch(fetchCtx, key)
		if err != nil {
			return nil, err
		}
		r.cache.Set(key, md, ttlcache.DefaultTTL)
		r.logger.Info("authority metadata resolved",
			zap.String("metadata_url", key),
			zap.String("issuer", md.Issuer),
			zap.Int("keys", len(md.Keys)))
		return md, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Metadata), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Invalidate drops all cached metadata
func (r *Resolver) Invalidate() {
	r.cache.DeleteAll()
}

// CachedEntries returns the number of cached metadata documents
func (r *Resolver) CachedEntries() int {
	return r.cache.Len()
}

func (r *Resolver) fetch(ctx context.Context, metadataURL string) (*Metadata, error) {
	var doc discoveryDocument
	if err := r.getJSON(ctx, metadataURL, &doc); err != nil {
		return nil, err
	}
	if doc.Issuer == "" || doc.JWKSURI == "" {
		return nil, fmt.Errorf("%w: discovery document missing issuer or jwks_uri", ErrMetadataFetchFailed)
	}

	var jwks JWKS
	if err := r.getJSON(ctx, doc.JWKSURI, &jwks); err != nil {
		return nil, err
	}
	keys := jwks.rsaKeys(r.logger)
	if len(keys) == 0 {
		return nil, ErrNoSigningKeys
	}

	return &Metadata{
		// multi-tenant documents publish a templated issuer
		Issuer:    strings.ReplaceAll(doc.Issuer, "{tenantid}", r.tenantID),
		JWKSURI:   doc.JWKSURI,
		Keys:      keys,
		FetchedAt: time.Now(),
	}, nil
}

func (r *Resolver) getJSON(ctx context.Context, url string, dst interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMetadataFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s returned status %d", ErrMetadataFetchFailed, url, resp.StatusCode)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxDocumentBytes)).Decode(dst); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrMetadataFetchFailed, url, err)
	}
	return nil
}
