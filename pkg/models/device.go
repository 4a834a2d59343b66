package models

import (
	"fmt"
	"sync"
	"time"
)

// Device represents a cast receiver tracked by the discovery registry.
// The registry keeps the canonical record private and hands consumers
// snapshots, so fields read from a subscription or a listing never race
// with an in-flight merge.
type Device struct {
	// ID is the canonical device identifier: 32 lowercase hex characters
	// derived from the device UUID, stable for the discovery session.
	ID string `json:"id"`

	// DiscoveryName is the mDNS service instance name, e.g.
	// "Chromecast-<uuid>._googlecast._tcp.local". When a device is only
	// ever seen via SSDP it carries a synthesized equivalent.
	DiscoveryName string `json:"discovery_name,omitempty"`

	// FriendlyName is the human-assigned device name ("Living Room TV").
	FriendlyName string `json:"friendly_name"`

	// Host is the device address or hostname, from whichever protocol
	// reported it last.
	Host string `json:"host"`

	Manufacturer string `json:"manufacturer,omitempty"`
	ModelName    string `json:"model_name,omitempty"`

	// LastSeen is refreshed every time either protocol touches the
	// device, including touches that change nothing else.
	LastSeen time.Time `json:"last_seen"`

	mu     sync.Mutex
	closer func() error

	// origin points at the registry-owned record this device was
	// snapshotted from, so release hooks attached through a snapshot
	// still land on the record the registry evicts.
	origin *Device
}

// Snapshot returns a detached copy of the device. The copy's fields are
// frozen at the time of the call and are safe to read while the
// original keeps changing; SetCloser and Close forward to the original.
func (d *Device) Snapshot() *Device {
	origin := d.origin
	if origin == nil {
		origin = d
	}
	return &Device{
		ID:            d.ID,
		DiscoveryName: d.DiscoveryName,
		FriendlyName:  d.FriendlyName,
		Host:          d.Host,
		Manufacturer:  d.Manufacturer,
		ModelName:     d.ModelName,
		LastSeen:      d.LastSeen,
		origin:        origin,
	}
}

// String returns a short human-readable description of the device.
func (d *Device) String() string {
	return fmt.Sprintf("%s (%s) at %s", d.FriendlyName, d.ID, d.Host)
}

// SetCloser attaches a release hook, typically the Close method of a
// downstream cast connection. The hook is invoked when the device is
// evicted from the registry.
func (d *Device) SetCloser(fn func() error) {
	if d.origin != nil {
		d.origin.SetCloser(fn)
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closer = fn
}

// Close invokes the attached release hook, if any. Safe to call when no
// hook is attached.
func (d *Device) Close() error {
	if d.origin != nil {
		return d.origin.Close()
	}
	d.mu.Lock()
	fn := d.closer
	d.closer = nil
	d.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn()
}
