package domain

// MessageBus carries inbound events from channels to the bot loop.
type MessageBus interface {
	Publish(evt InboundEvent)
	Subscribe() <-chan InboundEvent
	Close()
}
