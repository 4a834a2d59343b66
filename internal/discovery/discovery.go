// Package discovery reconciles cast device announcements from mDNS and
// SSDP into a single registry and emits lifecycle events as devices
// appear, change and disappear.
//
// The two protocols deliver partial, duplicated and out-of-order
// fragments. Each fragment lands in a per-identifier staging record;
// once a record knows both a host and a friendly name it is promoted
// into the public registry, and every later fragment flows through the
// same merge so consumers only ever see consistent devices.
package discovery

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/miekg/dns"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/travisghansen/chromecast-api/internal/event"
	"github.com/travisghansen/chromecast-api/pkg/models"
)

// Service wires the collectors, registry and timers together and owns
// their lifecycle.
type Service struct {
	opts     Options
	logger   *zap.Logger
	bus      event.EventBus
	registry *Registry

	mdnsTransport MDNSTransport
	ssdpTransport SSDPTransport
	mdns          *mdnsCollector
	ssdp          *ssdpCollector

	cancel  context.CancelFunc
	loops   sync.WaitGroup
	fetches sync.WaitGroup

	mu      sync.Mutex
	started bool
	stopped bool
	unsubs  []func()
}

// New creates a discovery service. Either transport may be nil when the
// corresponding protocol is disabled in opts.
func New(opts Options, bus event.EventBus, mdnsTransport MDNSTransport, ssdpTransport SSDPTransport, logger *zap.Logger) *Service {
	registerer := opts.Registerer
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	m := newMetrics(registerer)
	registry := newRegistry(bus, m, logger, opts.Clock)

	return &Service{
		opts:          opts,
		logger:        logger,
		bus:           bus,
		registry:      registry,
		mdnsTransport: mdnsTransport,
		ssdpTransport: ssdpTransport,
		mdns:          newMDNSCollector(registry, m, logger, opts.MDNSHostStrategy),
		ssdp:          newSSDPCollector(registry, m, logger, opts.fetchTimeout()),
	}
}

// Start begins listening on the enabled transports, issues the initial
// queries, and launches the refresh and eviction timers. It does not
// block.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("discovery already started")
	}
	s.started = true
	s.mu.Unlock()

	ctx, s.cancel = context.WithCancel(ctx)

	if s.opts.MDNSEnabled && s.mdnsTransport != nil {
		if err := s.mdnsTransport.Listen(s.handleMDNSRecord); err != nil {
			return fmt.Errorf("start mdns listener: %w", err)
		}
	}
	if s.opts.SSDPEnabled && s.ssdpTransport != nil {
		if err := s.ssdpTransport.Listen(s.handleSSDPResponse); err != nil {
			return fmt.Errorf("start ssdp listener: %w", err)
		}
	}

	s.Refresh()

	if s.opts.UpdateInterval > 0 {
		s.loops.Add(1)
		go s.refreshLoop(ctx, s.opts.updateInterval())
	}
	if s.opts.gcEnabled() {
		s.loops.Add(1)
		go s.gcLoop(ctx, s.opts.gcInterval(), s.opts.gcThreshold())
	}

	s.logger.Info("discovery started",
		zap.Bool("mdns", s.opts.MDNSEnabled),
		zap.Bool("ssdp", s.opts.SSDPEnabled),
		zap.Int("update_interval_s", s.opts.UpdateInterval),
		zap.Int("gc_interval_s", s.opts.GCInterval),
	)
	return nil
}

// Refresh re-issues the mDNS query and SSDP search. State only changes
// when responses flow back through the collectors.
func (s *Service) Refresh() {
	if s.opts.MDNSEnabled && s.mdnsTransport != nil {
		if err := s.mdnsTransport.Query(); err != nil {
			s.logger.Debug("mdns query failed", zap.Error(err))
		}
	}
	if s.opts.SSDPEnabled && s.ssdpTransport != nil {
		if err := s.ssdpTransport.Search(); err != nil {
			s.logger.Debug("ssdp search failed", zap.Error(err))
		}
	}
}

// Stop tears the service down: timers stop, transports close, in-flight
// description fetches drain, and every subscription handed out through
// the On* helpers is detached. No events are delivered afterwards.
func (s *Service) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	unsubs := s.unsubs
	s.unsubs = nil
	s.mu.Unlock()

	s.registry.close()
	if s.cancel != nil {
		s.cancel()
	}
	s.loops.Wait()

	if s.mdnsTransport != nil {
		if err := s.mdnsTransport.Close(); err != nil {
			s.logger.Debug("mdns transport close failed", zap.Error(err))
		}
	}
	if s.ssdpTransport != nil {
		if err := s.ssdpTransport.Close(); err != nil {
			s.logger.Debug("ssdp transport close failed", zap.Error(err))
		}
	}
	s.fetches.Wait()

	for _, unsub := range unsubs {
		unsub()
	}
	s.logger.Info("discovery stopped")
}

// Devices returns a snapshot of all known devices.
func (s *Service) Devices() []*models.Device {
	return s.registry.Devices()
}

// Device returns the device with the given canonical identifier, or nil.
func (s *Service) Device(id string) *models.Device {
	return s.registry.Device(id)
}

// OnDevice subscribes to the generic new-or-changed topic.
func (s *Service) OnDevice(fn func(*models.Device)) func() {
	return s.subscribe(TopicDevice, fn)
}

// OnDeviceOnline subscribes to device appearances.
func (s *Service) OnDeviceOnline(fn func(*models.Device)) func() {
	return s.subscribe(TopicDeviceOnline, fn)
}

// OnDeviceUpdated subscribes to field changes on known devices.
func (s *Service) OnDeviceUpdated(fn func(*models.Device)) func() {
	return s.subscribe(TopicDeviceUpdated, fn)
}

// OnDeviceOffline subscribes to evictions.
func (s *Service) OnDeviceOffline(fn func(*models.Device)) func() {
	return s.subscribe(TopicDeviceOffline, fn)
}

// subscribe wraps a bus subscription with payload extraction and tracks
// the unsubscribe function so Stop can detach it.
func (s *Service) subscribe(topic string, fn func(*models.Device)) func() {
	unsub := s.bus.Subscribe(topic, func(_ context.Context, e event.Event) {
		if de, ok := e.Payload.(DeviceEvent); ok {
			fn(de.Device)
		}
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		unsub()
		return func() {}
	}
	s.unsubs = append(s.unsubs, unsub)
	return unsub
}

// handleMDNSRecord is the mDNS transport callback; records are folded
// synchronously, the registry mutex serializes against everything else.
func (s *Service) handleMDNSRecord(rr dns.RR, src net.Addr) {
	s.mdns.HandleRecord(rr, src)
}

// handleSSDPResponse runs the description fetch on its own goroutine so
// a slow device cannot stall ingestion of other responses or records.
func (s *Service) handleSSDPResponse(resp SSDPResponse) {
	if s.registry.closed.Load() {
		return
	}
	s.fetches.Add(1)
	go func() {
		defer s.fetches.Done()
		s.ssdp.handle(resp)
	}()
}

func (s *Service) refreshLoop(ctx context.Context, interval time.Duration) {
	defer s.loops.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Refresh()
		}
	}
}

func (s *Service) gcLoop(ctx context.Context, interval, threshold time.Duration) {
	defer s.loops.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if evicted := s.registry.evictStale(threshold); len(evicted) > 0 {
				s.logger.Debug("gc pass", zap.Int("evicted", len(evicted)))
			}
		}
	}
}
