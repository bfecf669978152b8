package rtc

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"

	"github.com/dkeye/voicemesh/internal/core"
)

var testICE = []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}

func TestNewAPI_RequiresICEServers(t *testing.T) {
	if _, err := NewAPI(nil); !errors.Is(err, ErrNoICEServers) {
		t.Errorf("err = %v, want ErrNoICEServers", err)
	}
}

func TestConnection_OfferAnswer(t *testing.T) {
	api, err := NewAPI(testICE)
	if err != nil {
		t.Fatalf("NewAPI: %v", err)
	}
	alice, err := api.NewConnection("bob")
	if err != nil {
		t.Fatalf("NewConnection: %v", err)
	}
	defer alice.Close()
	bob, err := api.NewConnection("alice")
	if err != nil {
		t.Fatalf("NewConnection: %v", err)
	}
	defer bob.Close()

	capture, err := (&UDPCaptureProvider{}).Acquire(context.Background(), core.VoiceConstraints)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer capture.Stop()
	if err := alice.AddLocalTrack(capture.Track()); err != nil {
		t.Fatalf("AddLocalTrack: %v", err)
	}

	offer, err := alice.CreateOffer()
	if err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}
	if offer.Type != webrtc.SDPTypeOffer || offer.SDP == "" {
		t.Fatalf("offer = %+v", offer)
	}
	if err := bob.SetRemoteDescription(offer); err != nil {
		t.Fatalf("SetRemoteDescription(offer): %v", err)
	}
	answer, err := bob.CreateAnswer()
	if err != nil {
		t.Fatalf("CreateAnswer: %v", err)
	}
	if err := alice.SetRemoteDescription(answer); err != nil {
		t.Fatalf("SetRemoteDescription(answer): %v", err)
	}
	if st := alice.(*Connection).SignalingState(); st != webrtc.SignalingStateStable {
		t.Errorf("signaling state = %s, want stable", st)
	}
}

func TestConnection_AnswerWithoutOfferFails(t *testing.T) {
	api, err := NewAPI(testICE)
	if err != nil {
		t.Fatal(err)
	}
	c, err := api.NewConnection("bob")
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if _, err := c.CreateAnswer(); err == nil {
		t.Error("CreateAnswer without a remote offer succeeded")
	}
}

func sendRTP(t *testing.T, to net.Addr, seq uint16) {
	t.Helper()
	conn, err := net.Dial("udp", to.String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	pkt := &rtp.Packet{
		Header:  rtp.Header{Version: 2, PayloadType: 111, SequenceNumber: seq, Timestamp: uint32(seq) * 960, SSRC: 1},
		Payload: []byte{0xf8, 0xff, 0xfe},
	}
	raw, err := pkt.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if _, err := conn.Write(raw); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestUDPCapture_ForwardsOnlyWhileEnabled(t *testing.T) {
	lc, err := (&UDPCaptureProvider{Addr: "127.0.0.1:0"}).Acquire(context.Background(), core.VoiceConstraints)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	capture := lc.(*UDPCapture)
	defer capture.Stop()

	sendRTP(t, capture.LocalAddr(), 1)
	waitFor(t, "dropped packet", func() bool { return capture.dropped.Load() == 1 })

	capture.SetEnabled(true)
	sendRTP(t, capture.LocalAddr(), 2)
	waitFor(t, "forwarded packet", func() bool { return capture.forwarded.Load() == 1 })

	capture.SetEnabled(false)
	sendRTP(t, capture.LocalAddr(), 3)
	waitFor(t, "second drop", func() bool { return capture.dropped.Load() == 2 })
	if capture.forwarded.Load() != 1 {
		t.Errorf("forwarded = %d while disabled", capture.forwarded.Load())
	}
}

func TestUDPCapture_StopIsIdempotent(t *testing.T) {
	lc, err := (&UDPCaptureProvider{Addr: "127.0.0.1:0"}).Acquire(context.Background(), core.VoiceConstraints)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	lc.SetEnabled(true)
	lc.Stop()
	lc.Stop()
	if lc.Enabled() {
		t.Error("enabled after Stop")
	}
}

func TestUDPCapture_SilentHasNoListener(t *testing.T) {
	lc, err := (&UDPCaptureProvider{}).Acquire(context.Background(), core.VoiceConstraints)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if lc.(*UDPCapture).LocalAddr() != nil {
		t.Error("silent capture bound a socket")
	}
	if lc.Track() == nil || lc.Track().Kind() != webrtc.RTPCodecTypeAudio {
		t.Errorf("track = %v", lc.Track())
	}
	lc.Stop()
}
