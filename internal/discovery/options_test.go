package discovery

import (
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/travisghansen/chromecast-api/internal/config"
)

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()

	if !opts.MDNSEnabled || !opts.SSDPEnabled {
		t.Error("both protocols should default to enabled")
	}
	if opts.MDNSHostStrategy != HostStrategyRinfo {
		t.Errorf("MDNSHostStrategy = %q, want %q", opts.MDNSHostStrategy, HostStrategyRinfo)
	}
	if got := opts.fetchTimeout(); got != 5*time.Second {
		t.Errorf("fetchTimeout() = %v, want 5s", got)
	}
	if opts.gcEnabled() {
		t.Error("gc should default to disabled")
	}
	if opts.UpdateInterval != 0 {
		t.Errorf("UpdateInterval = %d, want 0 (disabled)", opts.UpdateInterval)
	}
}

func TestOptionsFromConfig(t *testing.T) {
	v := viper.New()
	v.Set("discovery.mdns_enabled", false)
	v.Set("discovery.mdns_host_strategy", "srv")
	v.Set("discovery.ssdp_device_endpoint_http_timeout", 1500)
	v.Set("discovery.gc_interval", 10)
	v.Set("discovery.gc_threshold", 30)
	v.Set("discovery.update_interval", 15)

	opts, err := OptionsFromConfig(config.New(v))
	if err != nil {
		t.Fatalf("OptionsFromConfig() error = %v", err)
	}

	if opts.MDNSEnabled {
		t.Error("MDNSEnabled = true, want false from config")
	}
	if !opts.SSDPEnabled {
		t.Error("SSDPEnabled = false, want default true to survive")
	}
	if opts.MDNSHostStrategy != HostStrategySRV {
		t.Errorf("MDNSHostStrategy = %q, want %q", opts.MDNSHostStrategy, HostStrategySRV)
	}
	if got := opts.fetchTimeout(); got != 1500*time.Millisecond {
		t.Errorf("fetchTimeout() = %v, want 1.5s", got)
	}
	if !opts.gcEnabled() {
		t.Error("gcEnabled() = false with positive interval and threshold")
	}
	if got := opts.gcInterval(); got != 10*time.Second {
		t.Errorf("gcInterval() = %v, want 10s", got)
	}
	if got := opts.updateInterval(); got != 15*time.Second {
		t.Errorf("updateInterval() = %v, want 15s", got)
	}
}

func TestOptionsFromConfigEmpty(t *testing.T) {
	opts, err := OptionsFromConfig(config.New(viper.New()))
	if err != nil {
		t.Fatalf("OptionsFromConfig() error = %v", err)
	}
	if !opts.MDNSEnabled || !opts.SSDPEnabled {
		t.Error("defaults must apply with no discovery section")
	}
}

func TestOptionsFromConfigBadStrategy(t *testing.T) {
	v := viper.New()
	v.Set("discovery.mdns_host_strategy", "dns64")

	if _, err := OptionsFromConfig(config.New(v)); err == nil {
		t.Fatal("OptionsFromConfig() expected error for unknown host strategy")
	}
}

func TestGCNeedsBothKnobs(t *testing.T) {
	opts := DefaultOptions()
	opts.GCInterval = 10
	if opts.gcEnabled() {
		t.Error("gcEnabled() = true without threshold")
	}
	opts.GCInterval = 0
	opts.GCThreshold = 10
	if opts.gcEnabled() {
		t.Error("gcEnabled() = true without interval")
	}
}
