package interfaces

import (
	"context"

	"github.com/ternarybob/fides/internal/models"
)

// AlertDispatcher routes a Critical change event towards the company
// owner's inbox. Dispatch applies the per-company rate limit: a
// suppressed alert returns nil, so callers never fail a crawl over the
// cap. The actual SMTP delivery happens on the send_alert_email queue.
type AlertDispatcher interface {
	Dispatch(ctx context.Context, event *models.ChangeEvent, company *models.Company) error
}
