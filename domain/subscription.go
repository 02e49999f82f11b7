package domain

// Subscription is a handle on one stream topic. The channel is closed
// when the topic is unsubscribed or the underlying connection ends.
type Subscription[T any] struct {
	Stream      chan T
	Unsubscribe func()
	Topic       string
}
