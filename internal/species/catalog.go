// Package species is the read-only client for the external species reference
// catalog. Entries are immutable reference data, so they are cached
// aggressively: an in-process TTL cache first, then an optional shared Redis
// layer, then the catalog's HTTP API.
package species

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	gocache "github.com/patrickmn/go-cache"

	platredis "fieldbook/internal/platform/redis"
	"fieldbook/pkg/domain"
	dErrors "fieldbook/pkg/domain-errors"
)

// Entry is one localized catalog record.
type Entry struct {
	ID             domain.SpeciesID    `json:"id"`
	DisplayName    string              `json:"display_name"`
	ScientificName string              `json:"scientific_name"`
	Description    string              `json:"description"`
	Category       domain.Category     `json:"category"`
	ImageURL       string              `json:"image_url"`
	Language       domain.LanguageCode `json:"language"`
}

// Catalog fetches and caches species entries.
type Catalog struct {
	baseURL string
	client  *http.Client
	local   *gocache.Cache
	redis   *platredis.Client
	ttl     time.Duration
	logger  *slog.Logger
}

// New creates a catalog client. redis may be nil, which disables the shared
// cache layer.
func New(baseURL string, client *http.Client, ttl time.Duration, redis *platredis.Client, logger *slog.Logger) *Catalog {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Catalog{
		baseURL: baseURL,
		client:  client,
		local:   gocache.New(ttl, 2*ttl),
		redis:   redis,
		ttl:     ttl,
		logger:  logger,
	}
}

// FindByID returns the catalog entry for a species in the requested language.
//
// Errors: CodeNotFound when the catalog has no such species, CodeInvalidInput
// for an unsupported language, CodeInternal when the catalog cannot be
// reached or answers abnormally.
func (c *Catalog) FindByID(ctx context.Context, id domain.SpeciesID, lang domain.LanguageCode) (*Entry, error) {
	if !lang.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "unsupported language %q", lang)
	}
	key := cacheKey(id, lang)

	if cached, ok := c.local.Get(key); ok {
		entry := cached.(Entry)
		return &entry, nil
	}
	if entry, ok := c.fromRedis(ctx, key); ok {
		c.local.SetDefault(key, *entry)
		return entry, nil
	}

	entry, err := c.fetch(ctx, id, lang)
	if err != nil {
		return nil, err
	}
	c.local.SetDefault(key, *entry)
	c.toRedis(ctx, key, entry)
	return entry, nil
}

func (c *Catalog) fetch(ctx context.Context, id domain.SpeciesID, lang domain.LanguageCode) (*Entry, error) {
	endpoint := fmt.Sprintf("%s/species/%s?lang=%s",
		c.baseURL, url.PathEscape(id.String()), url.QueryEscape(lang.String()))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "build catalog request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "reach species catalog")
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, dErrors.Newf(dErrors.CodeNotFound, "species %s not in catalog", id)
	default:
		return nil, dErrors.Newf(dErrors.CodeInternal, "species catalog returned status %d", resp.StatusCode)
	}

	var entry Entry
	if err := json.NewDecoder(resp.Body).Decode(&entry); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "decode catalog entry")
	}
	return &entry, nil
}

// fromRedis and toRedis are best effort; a broken shared cache degrades to
// direct catalog reads instead of failing lookups.
func (c *Catalog) fromRedis(ctx context.Context, key string) (*Entry, bool) {
	if c.redis == nil {
		return nil, false
	}
	raw, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		c.logger.WarnContext(ctx, "dropping corrupt cached catalog entry", "key", key, "error", err)
		return nil, false
	}
	return &entry, true
}

func (c *Catalog) toRedis(ctx context.Context, key string, entry *Entry) {
	if c.redis == nil {
		return
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "could not write catalog entry to shared cache", "key", key, "error", err)
	}
}

func cacheKey(id domain.SpeciesID, lang domain.LanguageCode) string {
	return "species:" + lang.String() + ":" + id.String()
}
