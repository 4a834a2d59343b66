package transport

import (
	"net"
	"testing"
)

func TestParseSearchResponse(t *testing.T) {
	raw := []byte("HTTP/1.1 200 OK\r\n" +
		"CACHE-CONTROL: max-age=1800\r\n" +
		"LOCATION: http://10.0.0.7:8008/ssdp/device-desc.xml\r\n" +
		"ST: urn:dial-multiscreen-org:service:dial:1\r\n" +
		"USN: uuid:abcd1234-abcd-1234-abcd-123456789012::urn:dial-multiscreen-org:service:dial:1\r\n" +
		"\r\n")
	src := &net.UDPAddr{IP: net.ParseIP("10.0.0.7"), Port: 1900}

	resp, err := parseSearchResponse(raw, src)
	if err != nil {
		t.Fatalf("parseSearchResponse() error = %v", err)
	}

	if resp.StatusCode != 200 {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
	if got := resp.Header.Get("Location"); got != "http://10.0.0.7:8008/ssdp/device-desc.xml" {
		t.Errorf("Location = %q", got)
	}
	if resp.Responder != src {
		t.Errorf("Responder = %v, want source address", resp.Responder)
	}
}

func TestParseSearchResponseGarbage(t *testing.T) {
	src := &net.UDPAddr{IP: net.ParseIP("10.0.0.7"), Port: 1900}

	if _, err := parseSearchResponse([]byte("NOTIFY * HTTP/1.1\r\n\r\n"), src); err == nil {
		t.Error("parseSearchResponse() should reject a request-shaped datagram")
	}
	if _, err := parseSearchResponse([]byte("\x00\x01\x02"), src); err == nil {
		t.Error("parseSearchResponse() should reject binary garbage")
	}
}

func TestParseSearchResponseNon200(t *testing.T) {
	raw := []byte("HTTP/1.1 503 Service Unavailable\r\n\r\n")
	src := &net.UDPAddr{IP: net.ParseIP("10.0.0.7"), Port: 1900}

	resp, err := parseSearchResponse(raw, src)
	if err != nil {
		t.Fatalf("parseSearchResponse() error = %v", err)
	}
	// Delivered as-is; the collector decides what to discard.
	if resp.StatusCode != 503 {
		t.Errorf("StatusCode = %d, want 503", resp.StatusCode)
	}
}
