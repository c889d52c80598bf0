package realtime

// Named realtime streams.
const (
	StreamNotifications = "notifications"
	StreamCapsules      = "capsules"
)

// Events emitted on the streams above.
const (
	EventNotificationCreated = "notification.created"
	EventNotificationsDue    = "notification.due"
	EventCapsuleOpened       = "capsule.opened"
)

// DefaultStreams are subscribed when a client connects without naming any.
var DefaultStreams = []string{StreamNotifications, StreamCapsules}
