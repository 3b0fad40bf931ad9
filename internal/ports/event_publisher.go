package ports

import (
	"context"
	"tow-dispatch-service/internal/domain"
)

// Port: outbound notifications about committed dispatches.
type EventPublisher interface {
	PublishDispatch(ctx context.Context, ev domain.DispatchEvent) error
}
