// Package lastfm proxies a user's recent scrobbles from the last.fm API,
// caching each user's response for a short window.
package lastfm

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/JakeFAU/personal-site-api/internal/cache"
	"github.com/JakeFAU/personal-site-api/internal/clock"
	"github.com/JakeFAU/personal-site-api/internal/logging"
	"github.com/JakeFAU/personal-site-api/internal/upstream"
)

// ErrInvalidUser is returned for an empty username.
var ErrInvalidUser = errors.New("lastfm username is required")

// Config configures the proxy.
type Config struct {
	APIKey      string
	DefaultUser string
	BaseURL     string
	CacheTTL    time.Duration
}

// Service serves recent tracks per user.
type Service struct {
	cfg    Config
	client *upstream.Client
	cache  *cache.TTL[string, json.RawMessage]
	logger *zap.Logger
}

// NewService wires the proxy over an upstream client.
func NewService(cfg Config, client *upstream.Client, clk clock.Clock, logger *zap.Logger) *Service {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Service{
		cfg:    cfg,
		client: client,
		cache:  cache.NewTTL[string, json.RawMessage]("lastfm", cfg.CacheTTL, clk),
		logger: logging.OrNop(logger),
	}
}

// DefaultUser is the account shown when no username is given.
func (s *Service) DefaultUser() string {
	return s.cfg.DefaultUser
}

// RecentTracks returns the upstream JSON for user, from cache while it is fresh.
func (s *Service) RecentTracks(ctx context.Context, user string) (json.RawMessage, error) {
	if user == "" {
		return nil, ErrInvalidUser
	}
	return s.cache.GetOrLoad(ctx, user, func(ctx context.Context) (json.RawMessage, error) {
		body, err := s.client.Get(ctx, s.recentTracksURL(user))
		if err != nil {
			return nil, err
		}
		if !json.Valid(body) {
			return nil, fmt.Errorf("%w: lastfm returned invalid JSON", upstream.ErrUnavailable)
		}
		s.logger.Debug("refreshed recent tracks", zap.String("user", user), zap.Int("bytes", len(body)))
		return json.RawMessage(body), nil
	})
}

func (s *Service) recentTracksURL(user string) string {
	return fmt.Sprintf("%s/2.0/?method=user.getrecenttracks&user=%s&api_key=%s&format=json",
		s.cfg.BaseURL, url.QueryEscape(user), url.QueryEscape(s.cfg.APIKey))
}
