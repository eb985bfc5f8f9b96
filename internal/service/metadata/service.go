package metadata

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"PolyPulse/internal/service/cache"
	xhttp "PolyPulse/pkg/http"
	applogger "PolyPulse/pkg/logger"
)

// gammaMarket is the subset of the Gamma markets payload we keep.
type gammaMarket struct {
	Question     string `json:"question"`
	ClobTokenIDs string `json:"clobTokenIds"`
}

// Config for the metadata service.
type Config struct {
	GammaURL string        // markets endpoint, e.g. https://gamma-api.polymarket.com/markets
	CacheTTL time.Duration // how long a resolved question stays cached
	Timeout  time.Duration // per-request timeout for Gamma calls
}

func (c *Config) applyDefaults() {
	if c.CacheTTL <= 0 {
		c.CacheTTL = time.Hour
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
}

// Service resolves asset IDs to market questions. Question is cache-only and
// never blocks: a miss schedules a background Gamma fetch and returns not-found
// until the fetch lands. Alerts for brand-new markets go out untitled at first.
type Service struct {
	cfg    Config
	cache  cache.BytesCache
	client *xhttp.Client
	log    *applogger.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
}

// New creates the service. store may be a TTLCache or a RedisCache.
func New(cfg Config, store cache.BytesCache, log *applogger.Logger) *Service {
	cfg.applyDefaults()
	return &Service{
		cfg:      cfg,
		cache:    store,
		client:   xhttp.NewClient(xhttp.WithTimeout(cfg.Timeout)),
		log:      log,
		inflight: make(map[string]struct{}),
	}
}

// Question returns the cached market question for an asset. The bool reports
// whether a title was available. A miss triggers one async fetch per asset.
func (s *Service) Question(ctx context.Context, assetID string) (string, bool) {
	if s.cache != nil {
		if b, ok, err := s.cache.GetBytes(questionKey(assetID)); err == nil && ok {
			return string(b), true
		}
	}
	if s.cfg.GammaURL != "" {
		s.fetchAsync(assetID)
	}
	return "", false
}

// SetQuestion seeds the cache with a caller-supplied title.
func (s *Service) SetQuestion(assetID, question string) {
	if s.cache == nil || question == "" {
		return
	}
	_ = s.cache.SetBytes(questionKey(assetID), []byte(question), s.cfg.CacheTTL)
}

// fetchAsync starts at most one concurrent Gamma lookup per asset.
func (s *Service) fetchAsync(assetID string) {
	s.mu.Lock()
	if _, busy := s.inflight[assetID]; busy {
		s.mu.Unlock()
		return
	}
	s.inflight[assetID] = struct{}{}
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.inflight, assetID)
			s.mu.Unlock()
		}()

		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
		defer cancel()

		var markets []gammaMarket
		err := s.client.SendAndParse(ctx, &xhttp.RequestOptions{
			Method:      xhttp.MethodGet,
			URL:         s.cfg.GammaURL,
			QueryParams: map[string][]string{"clob_token_ids": {assetID}},
		}, &markets)
		if err != nil {
			if s.log != nil {
				s.log.Warn("gamma fetch failed",
					applogger.String("asset", assetID),
					applogger.Error(err),
				)
			}
			return
		}
		for _, m := range markets {
			if m.Question == "" {
				continue
			}
			// clobTokenIds arrives as a JSON-encoded string array.
			var ids []string
			if err := json.Unmarshal([]byte(m.ClobTokenIDs), &ids); err != nil {
				continue
			}
			for _, id := range ids {
				if id == assetID {
					s.SetQuestion(assetID, m.Question)
					return
				}
			}
		}
	}()
}

func questionKey(assetID string) string { return "market:question:" + assetID }
