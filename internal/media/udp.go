package media

import (
	"fmt"
	"net"
	"sync"

	"github.com/pion/rtp"
)

// UDPSink sends packets to a decoder pipeline listening on UDP. It is
// safe to share between playouts.
type UDPSink struct {
	mu   sync.Mutex
	conn net.Conn
	buf  []byte
}

func DialUDPSink(addr string) (*UDPSink, error) {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial playout sink %s: %w", addr, err)
	}
	return &UDPSink{conn: conn, buf: make([]byte, 1500)}, nil
}

func (s *UDPSink) WriteRTP(pkt *rtp.Packet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := pkt.MarshalTo(s.buf)
	if err != nil {
		return err
	}
	_, err = s.conn.Write(s.buf[:n])
	return err
}

func (s *UDPSink) Close() error {
	return s.conn.Close()
}
