package discovery

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/travisghansen/chromecast-api/internal/config"
)

// Options is the discovery configuration surface. Interval and
// threshold values are plain numbers matching the config file units
// noted per field.
type Options struct {
	// MDNSEnabled turns the mDNS path on. Default true.
	MDNSEnabled bool `mapstructure:"mdns_enabled"`

	// MDNSHostStrategy picks the host source for SRV records:
	// HostStrategyRinfo (responder address, default) or HostStrategySRV
	// (record target).
	MDNSHostStrategy string `mapstructure:"mdns_host_strategy"`

	// SSDPEnabled turns the SSDP path on. Default true.
	SSDPEnabled bool `mapstructure:"ssdp_enabled"`

	// SSDPDeviceEndpointHTTPTimeout bounds the description document
	// fetch, in milliseconds. Default 5000.
	SSDPDeviceEndpointHTTPTimeout int `mapstructure:"ssdp_device_endpoint_http_timeout"`

	// GCInterval is the eviction scan period in seconds; 0 disables
	// garbage collection.
	GCInterval int `mapstructure:"gc_interval"`

	// GCThreshold is the staleness cutoff in seconds. Both GCInterval
	// and GCThreshold must be positive for eviction to run.
	GCThreshold int `mapstructure:"gc_threshold"`

	// UpdateInterval is the periodic re-query period in seconds; 0
	// disables the refresh scheduler.
	UpdateInterval int `mapstructure:"update_interval"`

	// Registerer receives the discovery metrics. Defaults to the
	// global prometheus registerer.
	Registerer prometheus.Registerer `mapstructure:"-"`

	// Clock overrides the time source, for tests.
	Clock func() time.Time `mapstructure:"-"`
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{
		MDNSEnabled:                   true,
		MDNSHostStrategy:              HostStrategyRinfo,
		SSDPEnabled:                   true,
		SSDPDeviceEndpointHTTPTimeout: 5000,
	}
}

// OptionsFromConfig overlays the "discovery" subtree of cfg onto the
// defaults.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	opts := DefaultOptions()
	if err := cfg.Sub("discovery").Unmarshal(&opts); err != nil {
		return opts, fmt.Errorf("decode discovery options: %w", err)
	}
	if opts.MDNSHostStrategy != HostStrategyRinfo && opts.MDNSHostStrategy != HostStrategySRV {
		return opts, fmt.Errorf("invalid mdns_host_strategy %q", opts.MDNSHostStrategy)
	}
	return opts, nil
}

func (o Options) fetchTimeout() time.Duration {
	if o.SSDPDeviceEndpointHTTPTimeout <= 0 {
		return 5 * time.Second
	}
	return time.Duration(o.SSDPDeviceEndpointHTTPTimeout) * time.Millisecond
}

func (o Options) gcEnabled() bool {
	return o.GCInterval > 0 && o.GCThreshold > 0
}

func (o Options) gcInterval() time.Duration {
	return time.Duration(o.GCInterval) * time.Second
}

func (o Options) gcThreshold() time.Duration {
	return time.Duration(o.GCThreshold) * time.Second
}

func (o Options) updateInterval() time.Duration {
	return time.Duration(o.UpdateInterval) * time.Second
}
