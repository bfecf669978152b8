package rtc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicemesh/internal/core"
)

// UDPCaptureProvider turns an RTP/UDP listener into a local capture. An
// encoder pipeline (gstreamer, ffmpeg) sends Opus RTP to Addr. An empty
// Addr yields a silent capture with nothing feeding the track.
type UDPCaptureProvider struct {
	Addr string
}

var _ core.CaptureProvider = (*UDPCaptureProvider)(nil)

func (p *UDPCaptureProvider) Acquire(ctx context.Context, c core.AudioConstraints) (core.LocalCapture, error) {
	log.Info().
		Str("module", "capture").
		Str("addr", p.Addr).
		Bool("echo_cancellation", c.EchoCancellation).
		Bool("noise_suppression", c.NoiseSuppression).
		Bool("auto_gain", c.AutoGainControl).
		Msg("acquire")

	track, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio",
		"voicemesh-"+uuid.NewString(),
	)
	if err != nil {
		return nil, fmt.Errorf("local track: %w", err)
	}
	capture := &UDPCapture{track: track}

	if p.Addr == "" {
		return capture, nil
	}
	var lc net.ListenConfig
	conn, err := lc.ListenPacket(ctx, "udp", p.Addr)
	if err != nil {
		if errors.Is(err, os.ErrPermission) {
			return nil, fmt.Errorf("%w: listen %s: %w", core.ErrCaptureDenied, p.Addr, err)
		}
		return nil, fmt.Errorf("listen %s: %w", p.Addr, err)
	}
	capture.conn = conn
	go capture.readLoop()
	return capture, nil
}

// UDPCapture forwards RTP packets from its listener to the track while
// enabled and drops them while disabled.
type UDPCapture struct {
	track *webrtc.TrackLocalStaticRTP
	conn  net.PacketConn

	enabled   atomic.Bool
	forwarded atomic.Uint64
	dropped   atomic.Uint64
	stopOnce  sync.Once
}

func (c *UDPCapture) Track() webrtc.TrackLocal { return c.track }

func (c *UDPCapture) SetEnabled(enabled bool) { c.enabled.Store(enabled) }

func (c *UDPCapture) Enabled() bool { return c.enabled.Load() }

// LocalAddr is nil for a silent capture.
func (c *UDPCapture) LocalAddr() net.Addr {
	if c.conn == nil {
		return nil
	}
	return c.conn.LocalAddr()
}

func (c *UDPCapture) Stop() {
	c.stopOnce.Do(func() {
		c.enabled.Store(false)
		if c.conn != nil {
			_ = c.conn.Close()
		}
		log.Info().Str("module", "capture").Uint64("forwarded", c.forwarded.Load()).Uint64("dropped", c.dropped.Load()).Msg("stopped")
	})
}

func (c *UDPCapture) readLoop() {
	buf := make([]byte, 1500)
	for {
		n, _, err := c.conn.ReadFrom(buf)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				log.Error().Err(err).Str("module", "capture").Msg("read error")
			}
			return
		}
		pkt := &rtp.Packet{}
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			log.Debug().Err(err).Str("module", "capture").Msg("not an RTP packet")
			continue
		}
		if !c.enabled.Load() {
			c.dropped.Add(1)
			continue
		}
		if err := c.track.WriteRTP(pkt); err != nil && !errors.Is(err, io.ErrClosedPipe) {
			log.Warn().Err(err).Str("module", "capture").Msg("write rtp")
			continue
		}
		c.forwarded.Add(1)
	}
}
