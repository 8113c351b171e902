package pubsub

import "context"

// Fan-out of relay outcomes to other services
type Broadcaster interface {
	Publish(ctx context.Context, subject string, v any) error
	Health(ctx context.Context) error
}
