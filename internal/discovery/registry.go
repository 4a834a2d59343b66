package discovery

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/travisghansen/chromecast-api/internal/event"
	"github.com/travisghansen/chromecast-api/pkg/models"
)

// reconcileResult is the outcome of merging a staged fragment into the
// registry. Event emission is driven entirely off this value, keeping
// the merge itself free of side effects.
type reconcileResult int

const (
	resultNoChange reconcileResult = iota
	resultCreated
	resultUpdated
	resultEvicted
)

// pendingEvent is one queued lifecycle emission. device is a snapshot
// and is what subscribers see; release is the registry-owned record of
// an evicted device, whose hook runs before the offline event goes out.
type pendingEvent struct {
	result  reconcileResult
	device  *models.Device
	release *models.Device
}

// Registry owns all discovery state: the staging table of partial
// fragments and the public set of fully-known devices. One mutex guards
// both for the duration of each reconciliation step; mDNS callbacks,
// SSDP fetch completions and the periodic timers all funnel through it.
//
// Lifecycle events are queued under that same mutex, in merge order,
// and drained by one goroutine at a time under emitMu. Subscribers
// therefore observe merges in the order they were applied even when
// reconciles race on separate goroutines, and they run under neither
// the registry lock nor any lock a reconcile can block on.
type Registry struct {
	logger  *zap.Logger
	bus     event.EventBus
	metrics *metrics
	now     func() time.Time

	// closed suppresses staging and event delivery after teardown so a
	// late async callback cannot touch a discarded registry.
	closed atomic.Bool

	mu      sync.Mutex
	staged  map[string]*fragment
	devices map[string]*models.Device
	pending []pendingEvent

	emitMu sync.Mutex
}

func newRegistry(bus event.EventBus, m *metrics, logger *zap.Logger, now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{
		logger:  logger,
		bus:     bus,
		metrics: m,
		now:     now,
		staged:  make(map[string]*fragment),
		devices: make(map[string]*models.Device),
	}
}

// stage looks up (or, when create is set, creates) the fragment for id,
// applies the collector's mutation and, if the fragment has become
// announceable, reconciles it into the public registry and emits
// whatever lifecycle events the merge produced.
//
// Returns false when no fragment exists and create is false, which is
// how orphan SRV/TXT records get discarded.
func (r *Registry) stage(id string, create bool, apply func(*fragment)) bool {
	if r.closed.Load() {
		return false
	}

	r.mu.Lock()
	f, ok := r.staged[id]
	if !ok {
		if !create {
			r.mu.Unlock()
			return false
		}
		f = &fragment{id: id}
		r.staged[id] = f
	}
	apply(f)

	if f.announceable() {
		if result, device := r.reconcileLocked(f); result != resultNoChange {
			r.pending = append(r.pending, pendingEvent{
				result: result,
				device: device.Snapshot(),
			})
		}
	}
	r.mu.Unlock()

	r.drain()
	return true
}

// reconcileLocked merges an announceable fragment into the public
// registry and reports what changed. The caller holds r.mu. lastSeen is
// refreshed on every call, including no-op merges.
func (r *Registry) reconcileLocked(f *fragment) (reconcileResult, *models.Device) {
	d, ok := r.devices[f.id]
	if !ok {
		d = &models.Device{
			ID:            f.id,
			DiscoveryName: f.discoveryName,
			FriendlyName:  f.friendlyName,
			Host:          f.host,
			Manufacturer:  f.manufacturer,
			ModelName:     f.modelName,
			LastSeen:      r.now(),
		}
		r.devices[f.id] = d
		return resultCreated, d
	}

	changed := d.DiscoveryName != f.discoveryName ||
		d.FriendlyName != f.friendlyName ||
		d.Host != f.host ||
		d.Manufacturer != f.manufacturer ||
		d.ModelName != f.modelName

	d.DiscoveryName = f.discoveryName
	d.FriendlyName = f.friendlyName
	d.Host = f.host
	d.Manufacturer = f.manufacturer
	d.ModelName = f.modelName
	d.LastSeen = r.now()

	if !changed {
		return resultNoChange, d
	}
	return resultUpdated, d
}

// drain delivers queued lifecycle events in FIFO order. Entries are
// appended while r.mu is held, so queue order is merge order; emitMu
// admits one drainer at a time, so publish order matches. A caller that
// finds the queue already drained by a concurrent reconcile simply
// returns.
func (r *Registry) drain() {
	r.emitMu.Lock()
	defer r.emitMu.Unlock()
	for {
		r.mu.Lock()
		if len(r.pending) == 0 {
			r.mu.Unlock()
			return
		}
		ev := r.pending[0]
		r.pending = r.pending[1:]
		r.mu.Unlock()
		r.deliver(ev)
	}
}

// deliver publishes one queued event: the generic topic first, then the
// specific lifecycle topic. The caller holds emitMu.
func (r *Registry) deliver(ev pendingEvent) {
	if r.closed.Load() {
		return
	}

	ctx := context.Background()
	d := ev.device

	switch ev.result {
	case resultCreated:
		r.publish(ctx, TopicDevice, d)
		r.metrics.event("online")
		r.metrics.addOnline(1)
		r.publish(ctx, TopicDeviceOnline, d)
		r.logger.Info("device online",
			zap.String("id", d.ID),
			zap.String("friendly_name", d.FriendlyName),
			zap.String("host", d.Host),
		)
	case resultUpdated:
		r.publish(ctx, TopicDevice, d)
		r.metrics.event("updated")
		r.publish(ctx, TopicDeviceUpdated, d)
		r.logger.Debug("device updated", zap.String("id", d.ID))
	case resultEvicted:
		if err := ev.release.Close(); err != nil {
			r.logger.Debug("device release failed",
				zap.String("id", d.ID),
				zap.Error(err),
			)
		}
		r.metrics.event("offline")
		r.metrics.addOnline(-1)
		r.publish(ctx, TopicDeviceOffline, d)
		r.logger.Info("device offline",
			zap.String("id", d.ID),
			zap.String("friendly_name", d.FriendlyName),
			zap.Time("last_seen", d.LastSeen),
		)
	}
}

func (r *Registry) publish(ctx context.Context, topic string, d *models.Device) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(ctx, event.Event{
		Topic:     topic,
		Source:    eventSource,
		Timestamp: r.now(),
		Payload:   DeviceEvent{Device: d},
	})
}

// evictStale removes every device whose last-seen timestamp is older
// than threshold, invoking its release hook (failures swallowed) and
// emitting an offline event per eviction. Returns snapshots of the
// evicted devices.
func (r *Registry) evictStale(threshold time.Duration) []*models.Device {
	if r.closed.Load() {
		return nil
	}

	r.mu.Lock()
	cutoff := r.now().Add(-threshold)
	var evicted []*models.Device
	for id, d := range r.devices {
		if d.LastSeen.Before(cutoff) {
			delete(r.devices, id)
			delete(r.staged, id)
			snap := d.Snapshot()
			evicted = append(evicted, snap)
			r.pending = append(r.pending, pendingEvent{
				result:  resultEvicted,
				device:  snap,
				release: d,
			})
		}
	}
	r.mu.Unlock()

	r.drain()
	return evicted
}

// Devices returns a point-in-time snapshot of the registry, sorted by
// identifier. The returned records are copies and stay stable while the
// registry keeps merging.
func (r *Registry) Devices() []*models.Device {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*models.Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, d.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Device returns a snapshot of the device with the given identifier, or
// nil.
func (r *Registry) Device(id string) *models.Device {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[id]
	if !ok {
		return nil
	}
	return d.Snapshot()
}

// close stops all further staging and event delivery. The maps are left
// in place; callers drop the Registry afterwards.
func (r *Registry) close() {
	r.closed.Store(true)
}
