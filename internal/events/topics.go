package events

const (
	TopicSupport   = "nearby.support"
	TopicDiscovery = "nearby.discovery"
	TopicTopology  = "nearby.topology"
	TopicSocket    = "relay.socket"
	TopicMessage   = "chat.message"
	TopicPresence  = "peer.presence"
)
