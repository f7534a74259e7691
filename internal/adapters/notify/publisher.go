// Package notify delivers certificate eligibility events to downstream
// consumers.
package notify

import (
	"context"

	"github.com/okian/awardtally/internal/domain/model"
	"github.com/okian/awardtally/pkg/logger"
)

// Publisher sends one certificate event to the outside world.
type Publisher interface {
	Publish(ctx context.Context, e model.CertificateEvent) error
	Close()
}

// LogPublisher writes events to the structured log. It is the fallback when
// no broker is configured.
type LogPublisher struct {
	logger logger.Logger
}

// NewLogPublisher creates a publisher writing to l, or the global logger.
func NewLogPublisher(l logger.Logger) *LogPublisher {
	if l == nil {
		l = logger.Get().Named("certificates")
	}
	return &LogPublisher{logger: l}
}

func (p *LogPublisher) Publish(ctx context.Context, e model.CertificateEvent) error { //nolint:gocritic // hugeParam
	p.logger.Info(ctx, "certificate eligibility",
		logger.String("event_id", e.EventID),
		logger.String("nominee_id", e.NomineeID),
		logger.String("subcategory_id", e.SubcategoryID),
		logger.String("tier", string(e.Tier)),
		logger.String("reason", e.Reason),
		logger.Any("occurred_at", e.OccurredAt),
	)
	return nil
}

func (p *LogPublisher) Close() {}
