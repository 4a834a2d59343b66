package discovery

import (
	"net"
	"strings"

	"github.com/miekg/dns"
	"go.uber.org/zap"
)

// CastService is the mDNS service class advertised by cast receivers.
const CastService = "_googlecast._tcp"

// Host strategies for SRV records: take the address the response came
// from, or trust the SRV target hostname.
const (
	HostStrategyRinfo = "rinfo"
	HostStrategySRV   = "srv"
)

// MDNSTransport is the boundary to the multicast listener. It decodes
// wire packets into typed answer records; the collector never sees a
// socket.
type MDNSTransport interface {
	// Listen registers the record handler and starts delivery. The
	// handler receives every answer and additional record of each
	// response along with the responder's address.
	Listen(handler func(rr dns.RR, src net.Addr)) error
	// Query re-issues the PTR question for the cast service class.
	Query() error
	Close() error
}

// mdnsCollector folds decoded PTR/SRV/TXT records into the staging
// table. Each record kind is handled independently; SRV and TXT records
// with no prior PTR (no staged fragment) are discarded.
type mdnsCollector struct {
	registry     *Registry
	logger       *zap.Logger
	metrics      *metrics
	hostStrategy string
}

func newMDNSCollector(registry *Registry, m *metrics, logger *zap.Logger, hostStrategy string) *mdnsCollector {
	if hostStrategy != HostStrategySRV {
		hostStrategy = HostStrategyRinfo
	}
	return &mdnsCollector{
		registry:     registry,
		logger:       logger,
		metrics:      m,
		hostStrategy: hostStrategy,
	}
}

// HandleRecord is the transport callback.
func (c *mdnsCollector) HandleRecord(rr dns.RR, src net.Addr) {
	switch rec := rr.(type) {
	case *dns.PTR:
		c.handlePTR(rec)
	case *dns.SRV:
		c.handleSRV(rec, src)
	case *dns.TXT:
		c.handleTXT(rec)
	}
}

// handlePTR admits a device into staging. Only pointers for the cast
// service class count; everything else on the wire is noise.
func (c *mdnsCollector) handlePTR(rec *dns.PTR) {
	if !strings.Contains(rec.Hdr.Name, CastService) {
		c.metrics.discard("mdns", "wrong_service")
		return
	}

	name := trimDot(rec.Ptr)
	id := NormalizeID(name)
	c.registry.stage(id, true, func(f *fragment) {
		f.discoveryName = name
	})
	c.logger.Debug("mdns ptr", zap.String("id", id), zap.String("name", name))
}

// handleSRV resolves the device host, either from the record target or
// from the responder address depending on the configured strategy.
func (c *mdnsCollector) handleSRV(rec *dns.SRV, src net.Addr) {
	name := trimDot(rec.Hdr.Name)
	id := NormalizeID(name)

	host := addrHost(src)
	if c.hostStrategy == HostStrategySRV {
		host = trimDot(rec.Target)
	}

	ok := c.registry.stage(id, false, func(f *fragment) {
		f.discoveryName = name
		if host != "" {
			f.host = host
		}
	})
	if !ok {
		c.metrics.discard("mdns", "orphan_srv")
		c.logger.Debug("mdns srv without ptr", zap.String("name", name))
	}
}

// handleTXT merges key/value metadata. Chunks are flattened into one
// map; when chunks repeat a key the later chunk wins.
func (c *mdnsCollector) handleTXT(rec *dns.TXT) {
	id := NormalizeID(trimDot(rec.Hdr.Name))
	kv := parseTXT(rec.Txt)

	ok := c.registry.stage(id, false, func(f *fragment) {
		name := kv["fn"]
		if name == "" {
			name = kv["n"]
		}
		if name != "" {
			f.friendlyName = name
		}
		// SSDP's description document is authoritative for the model
		// name; TXT only fills the gap.
		if model := kv["d"]; model != "" && f.modelName == "" {
			f.modelName = model
		}
	})
	if !ok {
		c.metrics.discard("mdns", "orphan_txt")
	}
}

// parseTXT flattens TXT record chunks into a key/value map. Chunks are
// "key=value" strings; a chunk without '=' maps the whole chunk to "".
func parseTXT(chunks []string) map[string]string {
	kv := make(map[string]string, len(chunks))
	for _, chunk := range chunks {
		parts := strings.SplitN(chunk, "=", 2)
		if len(parts) == 2 {
			kv[parts[0]] = parts[1]
		} else {
			kv[parts[0]] = ""
		}
	}
	return kv
}

// addrHost extracts the bare host from a responder address.
func addrHost(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	if udp, ok := addr.(*net.UDPAddr); ok {
		return udp.IP.String()
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}

func trimDot(s string) string {
	return strings.TrimSuffix(s, ".")
}
