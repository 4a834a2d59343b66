package discovery

import "testing"

func TestNormalizeID(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "hyphenated uuid embedded in instance name",
			in:   "Chromecast-abcd1234-abcd-1234-abcd-123456789012._googlecast._tcp.local",
			want: "abcd1234abcd1234abcd123456789012",
		},
		{
			name: "bare hyphenated uuid",
			in:   "abcd1234-abcd-1234-abcd-123456789012",
			want: "abcd1234abcd1234abcd123456789012",
		},
		{
			name: "uppercase uuid lowercased",
			in:   "ABCD1234-ABCD-1234-ABCD-123456789012",
			want: "abcd1234abcd1234abcd123456789012",
		},
		{
			name: "bare 32 hex run",
			in:   "Chromecast-abcd1234abcd1234abcd123456789012._googlecast._tcp.local",
			want: "abcd1234abcd1234abcd123456789012",
		},
		{
			name: "uppercase bare hex lowercased",
			in:   "ABCD1234ABCD1234ABCD123456789012",
			want: "abcd1234abcd1234abcd123456789012",
		},
		{
			name: "opaque name passes through",
			in:   "Living Room TV._googlecast._tcp.local",
			want: "Living Room TV._googlecast._tcp.local",
		},
		{
			name: "short hex run passes through",
			in:   "1111222233334444555566667777",
			want: "1111222233334444555566667777",
		},
		{
			name: "empty string",
			in:   "",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeID(tt.in); got != tt.want {
				t.Errorf("NormalizeID(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeIDStable(t *testing.T) {
	// The mDNS and SSDP textual forms of the same device must map to
	// the same identifier.
	mdns := NormalizeID("Chromecast-abcd1234abcd1234abcd123456789012._googlecast._tcp.local")
	ssdp := NormalizeID("abcd1234abcd1234abcd123456789012")
	if mdns != ssdp {
		t.Errorf("mDNS form = %q, SSDP form = %q, want equal", mdns, ssdp)
	}
}
