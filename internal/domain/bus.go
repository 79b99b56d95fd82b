package domain

// MessageBus decouples chat front ends from the agent loop. Inbound
// messages queue for the loop; outbound messages, including incremental
// turn events, are routed back by channel name.
type MessageBus interface {
	Publish(msg InboundMessage)
	Subscribe() <-chan InboundMessage
	SendOutbound(msg OutboundMessage)
	OnOutbound(channel string, handler func(OutboundMessage))
	Close()
}
