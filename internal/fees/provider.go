package fees

import (
	"context"
	"fmt"
	"time"

	"caisse/internal/domain"
	"caisse/pkg/errors"
	"caisse/pkg/logger"
)

// ConfigRepository loads agency override schedules from the store.
type ConfigRepository interface {
	GetAgencyFeeConfig(ctx context.Context, agencyID string) (*domain.FeeConfiguration, error)
}

// ConfigCache is the short-TTL cache in front of the store. Fee definitions
// change infrequently, so stale reads within the TTL are acceptable.
type ConfigCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
}

type cachedConfig struct {
	Found  bool                     `json:"found"`
	Config *domain.FeeConfiguration `json:"config,omitempty"`
}

// Provider resolves the fee configuration for an agency, caching both hits
// and misses. A nil configuration means "use system defaults".
type Provider struct {
	repo   ConfigRepository
	cache  ConfigCache
	ttl    time.Duration
	logger logger.Logger
}

func NewProvider(repo ConfigRepository, cache ConfigCache, ttl time.Duration, log logger.Logger) *Provider {
	return &Provider{repo: repo, cache: cache, ttl: ttl, logger: log}
}

func (p *Provider) GetAgencyFeeConfig(ctx context.Context, agencyID string) (*domain.FeeConfiguration, error) {
	key := cacheKey(agencyID)

	if p.cache != nil {
		var cached cachedConfig
		if err := p.cache.Get(ctx, key, &cached); err == nil {
			if !cached.Found {
				return nil, nil
			}
			return cached.Config, nil
		}
	}

	cfg, err := p.repo.GetAgencyFeeConfig(ctx, agencyID)
	if err != nil && err != errors.ErrFeeConfigNotFound {
		return nil, err
	}

	if p.cache != nil {
		entry := cachedConfig{Found: cfg != nil, Config: cfg}
		if cacheErr := p.cache.Set(ctx, key, entry, p.ttl); cacheErr != nil {
			p.logger.Warn("Failed to cache fee configuration", map[string]interface{}{
				"agency_id": agencyID,
				"error":     cacheErr.Error(),
			})
		}
	}

	return cfg, nil
}

func cacheKey(agencyID string) string {
	return fmt.Sprintf("fees:agency:%s", agencyID)
}
