package discovery

import (
	"encoding/xml"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/huin/goupnp"
	"go.uber.org/zap"
)

// DIAL discovery constants for cast receivers.
const (
	DIALSearchTarget = "urn:dial-multiscreen-org:service:dial:1"
	DIALDeviceType   = "urn:dial-multiscreen-org:device:dial:1"
)

// SSDPResponse is a raw M-SEARCH response as delivered by the SSDP
// transport: the parsed HTTP envelope plus the UDP source it came from.
type SSDPResponse struct {
	StatusCode int
	Header     http.Header
	Responder  net.Addr
}

// SSDPTransport is the boundary to the multicast search socket.
type SSDPTransport interface {
	// Listen registers the response handler and starts delivery.
	Listen(handler func(resp SSDPResponse)) error
	// Search re-issues the M-SEARCH for the DIAL service.
	Search() error
	Close() error
}

// ssdpCollector validates search responses, fetches and parses the
// device description document behind LOCATION, and folds the result
// into the staging table. Every failure is a silent discard; the next
// periodic search is the retry path.
type ssdpCollector struct {
	registry *Registry
	logger   *zap.Logger
	metrics  *metrics
	client   *http.Client
}

func newSSDPCollector(registry *Registry, m *metrics, logger *zap.Logger, fetchTimeout time.Duration) *ssdpCollector {
	return &ssdpCollector{
		registry: registry,
		logger:   logger,
		metrics:  m,
		client:   &http.Client{Timeout: fetchTimeout},
	}
}

// handle processes one search response end to end, including the
// description fetch. It blocks for up to the fetch timeout; the service
// runs each call on its own goroutine so fetches overlap freely.
func (c *ssdpCollector) handle(resp SSDPResponse) {
	if resp.StatusCode != http.StatusOK {
		c.metrics.discard("ssdp", "bad_status")
		return
	}
	location := resp.Header.Get("Location")
	if location == "" {
		c.metrics.discard("ssdp", "no_location")
		return
	}

	root, err := c.fetchDescription(location)
	if err != nil {
		c.metrics.discard("ssdp", "fetch_failed")
		c.logger.Debug("description fetch failed",
			zap.String("location", location),
			zap.Error(err),
		)
		return
	}

	dev := root.Device
	if dev.DeviceType != DIALDeviceType {
		c.metrics.discard("ssdp", "wrong_device_type")
		return
	}
	if dev.FriendlyName == "" || dev.UDN == "" {
		c.metrics.discard("ssdp", "incomplete_description")
		return
	}

	udn := strings.ReplaceAll(strings.TrimPrefix(dev.UDN, "uuid:"), "-", "")
	id := NormalizeID(udn)
	host := addrHost(resp.Responder)

	// An SSDP response always carries enough to announce, so this
	// reconciles immediately.
	c.registry.stage(id, true, func(f *fragment) {
		f.udn = udn
		f.friendlyName = dev.FriendlyName
		f.manufacturer = dev.Manufacturer
		if dev.ModelName != "" {
			f.modelName = dev.ModelName
		}
		if host != "" {
			f.host = host
		}
		// mDNS owns the discovery name; synthesize one only when mDNS
		// has not spoken yet.
		if f.discoveryName == "" {
			f.discoveryName = fmt.Sprintf("Chromecast-%s.%s.local", udn, CastService)
		}
	})
	c.logger.Debug("ssdp response merged",
		zap.String("id", id),
		zap.String("friendly_name", dev.FriendlyName),
	)
}

// fetchDescription retrieves and parses the device description document
// at location within the collector's timeout.
func (c *ssdpCollector) fetchDescription(location string) (*goupnp.RootDevice, error) {
	resp, err := c.client.Get(location)
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", location, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get %q: status %d", location, resp.StatusCode)
	}

	var root goupnp.RootDevice
	if err := xml.NewDecoder(resp.Body).Decode(&root); err != nil {
		return nil, fmt.Errorf("parse description %q: %w", location, err)
	}
	return &root, nil
}
