package fetcher

import (
	"context"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/fides/internal/common"
	"github.com/ternarybob/fides/internal/interfaces"
)

// Service routes fetches between the network adapter and the demo
// table: demo mode on and a fixture hit means the table answers,
// everything else goes to the network.
type Service struct {
	demoMode bool
	demo     *DemoFetcher
	network  *HTTPFetcher
	logger   arbor.ILogger
}

// NewService builds the routing fetcher from configuration.
func NewService(cfg common.FetcherConfig, logger arbor.ILogger) (*Service, error) {
	demo, err := NewDemoFetcher(logger)
	if err != nil {
		return nil, err
	}

	return &Service{
		demoMode: cfg.DemoMode,
		demo:     demo,
		network:  NewHTTPFetcher(cfg, logger),
		logger:   logger,
	}, nil
}

// Fetch implements interfaces.Fetcher.
func (s *Service) Fetch(ctx context.Context, targetURL string) (*interfaces.FetchResult, error) {
	if s.demoMode && s.demo.Has(targetURL) {
		return s.demo.Fetch(ctx, targetURL)
	}
	return s.network.Fetch(ctx, targetURL)
}
