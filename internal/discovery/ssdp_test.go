package discovery

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func descriptionXML(deviceType, friendlyName, udn string) string {
	return fmt.Sprintf(`<?xml version="1.0"?>
<root xmlns="urn:schemas-upnp-org:device-1-0">
  <specVersion><major>1</major><minor>0</minor></specVersion>
  <device>
    <deviceType>%s</deviceType>
    <friendlyName>%s</friendlyName>
    <manufacturer>Google Inc.</manufacturer>
    <modelName>Eureka Dongle</modelName>
    <UDN>%s</UDN>
  </device>
</root>`, deviceType, friendlyName, udn)
}

func descriptionServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/xml")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func ssdpResponse(status int, location, responder string) SSDPResponse {
	header := http.Header{}
	if location != "" {
		header.Set("Location", location)
	}
	return SSDPResponse{
		StatusCode: status,
		Header:     header,
		Responder:  udpAddr(responder),
	}
}

func TestSSDPCreatesDevice(t *testing.T) {
	env := newTestEnv(t)
	srv := descriptionServer(t, descriptionXML(
		DIALDeviceType, "Kitchen", "uuid:1111-2222-3333-4444-555566667777"))

	env.svc.ssdp.handle(ssdpResponse(200, srv.URL, "10.0.0.7"))

	devices := env.svc.Devices()
	require.Len(t, devices, 1)
	d := devices[0]
	assert.Equal(t, "1111222233334444555566667777", d.ID)
	assert.Equal(t, "Kitchen", d.FriendlyName)
	assert.Equal(t, "10.0.0.7", d.Host)
	assert.Equal(t, "Google Inc.", d.Manufacturer)
	assert.Equal(t, "Eureka Dongle", d.ModelName)
	assert.Equal(t, "Chromecast-1111222233334444555566667777._googlecast._tcp.local",
		d.DiscoveryName, "discovery name synthesized from stripped UDN")
	assert.Equal(t, []string{TopicDevice, TopicDeviceOnline}, env.bus.Topics())
}

func TestSSDPDiscardsBadResponses(t *testing.T) {
	env := newTestEnv(t)
	srv := descriptionServer(t, descriptionXML(
		DIALDeviceType, "Kitchen", "uuid:1111-2222-3333-4444-555566667777"))

	tests := []struct {
		name string
		resp SSDPResponse
	}{
		{"non-200 status", ssdpResponse(404, srv.URL, "10.0.0.7")},
		{"missing location", ssdpResponse(200, "", "10.0.0.7")},
		{"unreachable location", ssdpResponse(200, "http://127.0.0.1:1/desc.xml", "10.0.0.7")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env.svc.ssdp.handle(tt.resp)
			assert.Empty(t, env.svc.Devices())
			assert.Empty(t, env.bus.Events())
		})
	}
}

func TestSSDPDiscardsWrongDeviceType(t *testing.T) {
	env := newTestEnv(t)
	srv := descriptionServer(t, descriptionXML(
		"urn:schemas-upnp-org:device:MediaRenderer:1", "Kitchen",
		"uuid:1111-2222-3333-4444-555566667777"))

	env.svc.ssdp.handle(ssdpResponse(200, srv.URL, "10.0.0.7"))

	assert.Empty(t, env.svc.Devices())
	assert.Empty(t, env.bus.Events())
}

func TestSSDPDiscardsIncompleteDescription(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body string
	}{
		{"missing friendly name", descriptionXML(DIALDeviceType, "", "uuid:1111-2222-3333-4444-555566667777")},
		{"missing udn", descriptionXML(DIALDeviceType, "Kitchen", "")},
		{"malformed xml", "<root><device>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := descriptionServer(t, tt.body)
			env.svc.ssdp.handle(ssdpResponse(200, srv.URL, "10.0.0.7"))
			assert.Empty(t, env.svc.Devices())
			assert.Empty(t, env.bus.Events())
		})
	}
}

// A device seen first via mDNS keeps its mDNS discovery name when SSDP
// later reports the same identifier.
func TestMDNSDiscoveryNameWinsOverSSDP(t *testing.T) {
	env := newTestEnv(t)
	src := udpAddr("10.0.0.5")

	mdnsInstance := "Chromecast-abcd1234abcd1234abcd123456789012._googlecast._tcp.local."
	env.svc.mdns.HandleRecord(ptrRecord("_googlecast._tcp.local.", mdnsInstance), src)
	env.svc.mdns.HandleRecord(srvRecord(mdnsInstance, "host.local.", 8009), src)
	env.svc.mdns.HandleRecord(txtRecord(mdnsInstance, "fn=Office TV"), src)

	srv := descriptionServer(t, descriptionXML(
		DIALDeviceType, "Office TV", "uuid:abcd1234-abcd-1234-abcd-123456789012"))
	env.svc.ssdp.handle(ssdpResponse(200, srv.URL, "10.0.0.5"))

	d := env.svc.Device(testID)
	require.NotNil(t, d)
	assert.Equal(t, "Chromecast-abcd1234abcd1234abcd123456789012._googlecast._tcp.local",
		d.DiscoveryName, "mDNS discovery name must survive SSDP merge")
}

// Model name from the SSDP description is authoritative: a later TXT
// record must not overwrite it.
func TestSSDPModelNameWinsOverTXT(t *testing.T) {
	env := newTestEnv(t)
	srv := descriptionServer(t, descriptionXML(
		DIALDeviceType, "Kitchen", "uuid:abcd1234-abcd-1234-abcd-123456789012"))

	env.svc.ssdp.handle(ssdpResponse(200, srv.URL, "10.0.0.7"))
	require.Equal(t, "Eureka Dongle", env.svc.Device(testID).ModelName)

	src := udpAddr("10.0.0.7")
	env.svc.mdns.HandleRecord(ptrRecord("_googlecast._tcp.local.", testInstance), src)
	env.svc.mdns.HandleRecord(txtRecord(testInstance, "fn=Kitchen", "d=TXT Model"), src)

	assert.Equal(t, "Eureka Dongle", env.svc.Device(testID).ModelName,
		"TXT model must not overwrite SSDP model")
}

// TXT can seed the model name before SSDP speaks; SSDP then replaces it.
func TestSSDPOverwritesTXTSeededModel(t *testing.T) {
	env := newTestEnv(t)
	src := udpAddr("10.0.0.5")

	env.svc.mdns.HandleRecord(ptrRecord("_googlecast._tcp.local.", testInstance), src)
	env.svc.mdns.HandleRecord(srvRecord(testInstance, "host.local.", 8009), src)
	env.svc.mdns.HandleRecord(txtRecord(testInstance, "fn=Kitchen", "d=TXT Model"), src)
	require.Equal(t, "TXT Model", env.svc.Device(testID).ModelName)

	srv := descriptionServer(t, descriptionXML(
		DIALDeviceType, "Kitchen", "uuid:abcd1234-abcd-1234-abcd-123456789012"))
	env.svc.ssdp.handle(ssdpResponse(200, srv.URL, "10.0.0.5"))

	assert.Equal(t, "Eureka Dongle", env.svc.Device(testID).ModelName)
}
