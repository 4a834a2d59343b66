package transport

import (
	"bufio"
	"bytes"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/travisghansen/chromecast-api/internal/discovery"
)

var ssdpGroupAddr = &net.UDPAddr{IP: net.IPv4(239, 255, 255, 250), Port: 1900}

// ssdpMX is the maximum response delay (seconds) devices are asked to
// spread their replies over.
const ssdpMX = 3

// SSDP multicasts M-SEARCH requests for one search target and delivers
// the unicast responses. Responses are parsed as HTTP envelopes; the
// UDP source address rides along because the reconciler uses it as the
// device host.
type SSDP struct {
	logger *zap.Logger
	target string
	conn   *net.UDPConn

	mu      sync.Mutex
	handler func(resp discovery.SSDPResponse)

	wg     sync.WaitGroup
	closed atomic.Bool
	once   sync.Once
}

// NewSSDP opens the search socket for the given search target.
func NewSSDP(target string, logger *zap.Logger) (*SSDP, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		return nil, fmt.Errorf("open ssdp socket: %w", err)
	}
	return &SSDP{
		logger: logger,
		target: target,
		conn:   conn,
	}, nil
}

// Listen registers the response handler and starts the reader loop.
func (t *SSDP) Listen(handler func(resp discovery.SSDPResponse)) error {
	t.mu.Lock()
	t.handler = handler
	t.mu.Unlock()

	t.wg.Add(1)
	go t.readLoop()
	return nil
}

// Search multicasts one M-SEARCH round for the configured target.
func (t *SSDP) Search() error {
	req := fmt.Sprintf("M-SEARCH * HTTP/1.1\r\n"+
		"HOST: %s\r\n"+
		"MAN: \"ssdp:discover\"\r\n"+
		"MX: %d\r\n"+
		"ST: %s\r\n"+
		"\r\n",
		ssdpGroupAddr.String(), ssdpMX, t.target)

	if _, err := t.conn.WriteToUDP([]byte(req), ssdpGroupAddr); err != nil {
		return fmt.Errorf("send m-search: %w", err)
	}
	return nil
}

// Close shuts the socket and waits for the reader loop to exit.
func (t *SSDP) Close() error {
	t.once.Do(func() {
		t.closed.Store(true)
		t.conn.Close()
		t.wg.Wait()
	})
	return nil
}

func (t *SSDP) readLoop() {
	defer t.wg.Done()

	buf := make([]byte, 65536)
	for {
		n, src, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			if t.closed.Load() {
				return
			}
			t.logger.Debug("ssdp read failed", zap.Error(err))
			return
		}

		resp, err := parseSearchResponse(buf[:n], src)
		if err != nil {
			t.logger.Debug("ssdp response parse failed",
				zap.String("src", src.String()),
				zap.Error(err),
			)
			continue
		}

		t.mu.Lock()
		handler := t.handler
		t.mu.Unlock()
		if handler != nil {
			handler(resp)
		}
	}
}

// parseSearchResponse decodes one M-SEARCH reply datagram. Replies are
// plain HTTP response envelopes with no body.
func parseSearchResponse(data []byte, src net.Addr) (discovery.SSDPResponse, error) {
	resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(data)), nil)
	if err != nil {
		return discovery.SSDPResponse{}, err
	}
	resp.Body.Close()

	return discovery.SSDPResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Responder:  src,
	}, nil
}
