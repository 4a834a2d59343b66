// Package transport implements the protocol I/O boundaries of the
// discovery service: the multicast mDNS listener and the SSDP search
// socket. Both decode wire data into the structured forms the
// collectors consume and know nothing about device state.
package transport

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/miekg/dns"
	"go.uber.org/zap"
	"golang.org/x/net/ipv4"
)

var mdnsGroupAddr = &net.UDPAddr{IP: net.IPv4(224, 0, 0, 251), Port: 5353}

// MDNS sends PTR queries for one service class and delivers every
// decoded answer and additional record from the responses, along with
// the responder address.
type MDNS struct {
	logger  *zap.Logger
	service string // FQDN service name, e.g. "_googlecast._tcp.local."

	uconn *net.UDPConn // unicast socket: queries out, direct replies in
	mconn *net.UDPConn // multicast group membership

	mu      sync.Mutex
	handler func(rr dns.RR, src net.Addr)

	wg     sync.WaitGroup
	closed atomic.Bool
	once   sync.Once
}

// NewMDNS opens the sockets for the given service class (without
// trailing dot or domain, e.g. "_googlecast._tcp").
func NewMDNS(service string, logger *zap.Logger) (*MDNS, error) {
	uconn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		return nil, fmt.Errorf("open mdns unicast socket: %w", err)
	}

	mconn, err := net.ListenMulticastUDP("udp4", nil, mdnsGroupAddr)
	if err != nil {
		uconn.Close()
		return nil, fmt.Errorf("join mdns group: %w", err)
	}

	// Join on every multicast-capable interface; ListenMulticastUDP only
	// covers the default one. Join failures on individual interfaces are
	// non-fatal.
	p := ipv4.NewPacketConn(mconn)
	_ = p.SetMulticastLoopback(true)
	if ifaces, err := net.Interfaces(); err == nil {
		for i := range ifaces {
			if ifaces[i].Flags&net.FlagMulticast == 0 {
				continue
			}
			_ = p.JoinGroup(&ifaces[i], &net.UDPAddr{IP: mdnsGroupAddr.IP})
		}
	}

	return &MDNS{
		logger:  logger,
		service: dns.Fqdn(service + ".local"),
		uconn:   uconn,
		mconn:   mconn,
	}, nil
}

// Listen registers the record handler and starts the reader loops.
func (t *MDNS) Listen(handler func(rr dns.RR, src net.Addr)) error {
	t.mu.Lock()
	t.handler = handler
	t.mu.Unlock()

	t.wg.Add(2)
	go t.readLoop(t.uconn)
	go t.readLoop(t.mconn)
	return nil
}

// Query multicasts a PTR question for the service class.
func (t *MDNS) Query() error {
	msg := new(dns.Msg)
	msg.SetQuestion(t.service, dns.TypePTR)
	msg.RecursionDesired = false

	packed, err := msg.Pack()
	if err != nil {
		return fmt.Errorf("pack mdns query: %w", err)
	}
	if _, err := t.uconn.WriteToUDP(packed, mdnsGroupAddr); err != nil {
		return fmt.Errorf("send mdns query: %w", err)
	}
	return nil
}

// Close shuts both sockets and waits for the reader loops to exit. No
// records are delivered after Close returns.
func (t *MDNS) Close() error {
	t.once.Do(func() {
		t.closed.Store(true)
		t.uconn.Close()
		t.mconn.Close()
		t.wg.Wait()
	})
	return nil
}

func (t *MDNS) readLoop(conn *net.UDPConn) {
	defer t.wg.Done()

	buf := make([]byte, 65536)
	for {
		n, src, err := conn.ReadFromUDP(buf)
		if err != nil {
			if t.closed.Load() {
				return
			}
			t.logger.Debug("mdns read failed", zap.Error(err))
			return
		}
		t.deliver(buf[:n], src)
	}
}

// deliver unpacks one packet and hands each answer and additional
// record to the handler. Malformed packets are dropped.
func (t *MDNS) deliver(data []byte, src *net.UDPAddr) {
	var msg dns.Msg
	if err := msg.Unpack(data); err != nil {
		t.logger.Debug("mdns packet unpack failed", zap.Error(err))
		return
	}

	t.mu.Lock()
	handler := t.handler
	t.mu.Unlock()
	if handler == nil {
		return
	}

	for _, rr := range msg.Answer {
		handler(rr, src)
	}
	for _, rr := range msg.Extra {
		handler(rr, src)
	}
}
