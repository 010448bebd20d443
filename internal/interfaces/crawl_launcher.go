package interfaces

import (
	"context"

	"github.com/ternarybob/fides/internal/models"
)

// CrawlLauncher opens a crawl run and enqueues its target jobs. The
// scheduler uses it on every tick; the API uses it for manual runs.
type CrawlLauncher interface {
	// LaunchCrawl enqueues every target of one company, or of all
	// companies when companyID is empty. The returned run carries the
	// target count; a launch with zero targets completes immediately.
	LaunchCrawl(ctx context.Context, companyID string) (*models.CrawlRun, error)
}
