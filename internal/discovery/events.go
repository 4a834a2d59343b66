package discovery

import "github.com/travisghansen/chromecast-api/pkg/models"

// Event topics published by the discovery service.
const (
	// TopicDevice fires whenever a device comes online or changes.
	TopicDevice = "discovery.device"
	// TopicDeviceOnline fires exactly once per device appearance.
	TopicDeviceOnline = "discovery.device.online"
	// TopicDeviceUpdated fires when an already-known device's fields change.
	TopicDeviceUpdated = "discovery.device.updated"
	// TopicDeviceOffline fires when a stale device is evicted.
	TopicDeviceOffline = "discovery.device.offline"
)

// eventSource identifies this package in published events.
const eventSource = "discovery"

// DeviceEvent is the payload of every device lifecycle topic.
type DeviceEvent struct {
	Device *models.Device
}
