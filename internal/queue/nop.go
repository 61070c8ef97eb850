package queue

import "context"

var _ DocumentQueue = (*NopQueue)(nil)

// NopQueue drops every event. Used by tests and queue-less deployments.
type NopQueue struct{}

func NewNop() *NopQueue {
	return &NopQueue{}
}

func (q *NopQueue) PublishChange(ctx context.Context, event *Event) error {
	return nil
}

func (q *NopQueue) Subscribe(ctx context.Context) (<-chan *Event, error) {
	events := make(chan *Event)
	go func() {
		<-ctx.Done()
		close(events)
	}()
	return events, nil
}

func (q *NopQueue) Close() error {
	return nil
}
