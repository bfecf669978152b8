package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicemesh/internal/adapters/rtc"
	"github.com/dkeye/voicemesh/internal/adapters/wsclient"
	"github.com/dkeye/voicemesh/internal/config"
	"github.com/dkeye/voicemesh/internal/domain"
	"github.com/dkeye/voicemesh/internal/media"
	"github.com/dkeye/voicemesh/internal/voice"
)

// identity is what the relay says we are.
type identity struct {
	mu   sync.Mutex
	name string
	room string
}

func (id *identity) get() (string, string) {
	id.mu.Lock()
	defer id.mu.Unlock()
	return id.name, id.room
}

func (id *identity) set(name, room string) {
	id.mu.Lock()
	id.name, id.room = name, room
	id.mu.Unlock()
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.LoadClient(os.Args[1:])
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("voice client")
	}
}

func run(ctx context.Context, cfg *config.ClientConfig) error {
	api, err := rtc.NewAPI(cfg.WebRTC())
	if err != nil {
		return err
	}

	client := wsclient.New(cfg.Server, wsclient.Options{
		Header:     http.Header{"Cookie": {"ct=" + uuid.NewString()}},
		PingPeriod: cfg.PingPeriod,
	})
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connect %s: %w", cfg.Server, err)
	}
	defer client.Close()

	coord := voice.NewCoordinator(voice.Options{
		Transport:         client,
		Captures:          &rtc.UDPCaptureProvider{Addr: cfg.RTPIn},
		NewPeerConnection: api.NewConnection,
	})
	defer coord.Destroy()

	players := media.NewManager()
	defer players.StopAll()
	sinks := map[string]media.RTPWriter{}
	if cfg.RTPOut != "" {
		out, err := media.DialUDPSink(cfg.RTPOut)
		if err != nil {
			return err
		}
		defer out.Close()
		sinks["udp"] = out
	}

	wireVoiceEvents(ctx, coord, players, sinks)

	var me identity
	wireRelay(client, &me)

	client.Send(domain.Message{Type: domain.KindWhoAmI})
	if cfg.Room != "" {
		client.Send(domain.Message{Type: domain.KindJoin, Room: cfg.Room, Name: cfg.Name})
	} else if cfg.Name != "" {
		client.Send(domain.Message{Type: domain.KindRename, Name: cfg.Name})
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-client.Done():
			return errors.New("relay connection lost")
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := command(ctx, line, client, coord, players, &me); quit {
				return nil
			}
		}
	}
}

func wireVoiceEvents(ctx context.Context, coord *voice.Coordinator, players *media.Manager, sinks map[string]media.RTPWriter) {
	ev := coord.Events()
	ev.On(voice.EventJoined, func(p any) {
		e := p.(voice.JoinedEvent)
		if e.Local {
			fmt.Println("* you joined voice")
			return
		}
		fmt.Printf("* %s joined voice\n", e.Username)
	})
	ev.On(voice.EventLeft, func(p any) {
		e := p.(voice.LeftEvent)
		if e.Local {
			players.StopAll()
			fmt.Println("* you left voice")
			return
		}
		fmt.Printf("* %s left voice\n", e.Username)
	})
	ev.On(voice.EventMuted, func(p any) {
		e := p.(voice.MutedEvent)
		who := e.Username
		if e.Local {
			who = "you"
		}
		state := "unmuted"
		if e.Muted {
			state = "muted"
		}
		fmt.Printf("* %s %s\n", who, state)
	})
	ev.On(voice.EventStreamAdded, func(p any) {
		e := p.(voice.StreamAddedEvent)
		if e.Stream == nil || e.Stream.Track == nil {
			return
		}
		players.Start(ctx, e.Username, e.Stream.Track, sinks)
	})
	ev.On(voice.EventStreamRemoved, func(p any) {
		players.Stop(p.(voice.StreamRemovedEvent).Username)
	})
	ev.On(voice.EventConnectionState, func(p any) {
		e := p.(voice.ConnectionStateEvent)
		log.Debug().Str("module", "cli").Str("peer", e.Username).Str("state", string(e.State)).Msg("peer state")
	})
	ev.On(voice.EventError, func(p any) {
		e := p.(voice.ErrorEvent)
		fmt.Printf("! %s: %v\n", e.Message, e.Cause)
	})
}

func wireRelay(client *wsclient.Client, me *identity) {
	client.Handle(domain.KindWhoAmI, func(m domain.Message) {
		me.set(m.Username, m.Room)
	})
	client.Handle(domain.KindRoomState, func(m domain.Message) {
		name, _ := me.get()
		me.set(name, m.Room)
		names := make([]string, 0, len(m.Members))
		for _, mem := range m.Members {
			tag := mem.Username
			if mem.InVoice {
				tag += " (voice)"
			}
			names = append(names, tag)
		}
		fmt.Printf("* room %s: %s\n", m.Room, strings.Join(names, ", "))
	})
	client.Handle(domain.KindLeft, func(domain.Message) {
		name, _ := me.get()
		me.set(name, "")
		fmt.Println("* left room")
	})
	client.Handle(domain.KindChat, func(m domain.Message) {
		fmt.Printf("<%s> %s\n", m.From, m.Text)
	})
	client.Handle(domain.KindMemberJoined, func(m domain.Message) {
		if m.User != nil {
			fmt.Printf("* %s joined the room\n", m.User.Username)
		}
	})
	client.Handle(domain.KindMemberLeft, func(m domain.Message) {
		if m.User != nil {
			fmt.Printf("* %s left the room\n", m.User.Username)
		}
	})
	client.Handle(domain.KindMemberUpdate, func(m domain.Message) {
		if m.User != nil {
			fmt.Printf("* member is now %s\n", m.User.Username)
		}
	})
	client.Handle(domain.KindError, func(m domain.Message) {
		fmt.Printf("! relay: %s\n", m.Error)
	})
	client.HandleDefault(func(m domain.Message) {
		log.Debug().Str("module", "cli").Str("type", string(m.Type)).Msg("unhandled message")
	})
}

// command runs one line of user input and reports whether to quit.
func command(ctx context.Context, line string, client *wsclient.Client, coord *voice.Coordinator, players *media.Manager, me *identity) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		client.Send(domain.Message{Type: domain.KindChat, Text: line})
		return false
	}
	fields := strings.Fields(line)
	arg := ""
	if len(fields) > 1 {
		arg = fields[1]
	}

	switch fields[0] {
	case "/room":
		if arg == "" {
			fmt.Println("usage: /room <name>")
			return false
		}
		coord.LeaveVoice()
		client.Send(domain.Message{Type: domain.KindJoin, Room: arg})
	case "/name":
		client.Send(domain.Message{Type: domain.KindRename, Name: arg})
	case "/join":
		name, room := me.get()
		if room == "" {
			fmt.Println("join a room first: /room <name>")
			return false
		}
		if err := coord.JoinVoice(ctx, name, room); err != nil {
			fmt.Printf("! join voice: %v\n", err)
		}
	case "/leave":
		coord.LeaveVoice()
	case "/mute":
		coord.ToggleMute()
	case "/silence":
		if arg == "" {
			fmt.Println("usage: /silence <user>")
			return false
		}
		players.SetSilenced(arg, !players.Silenced(arg))
	case "/who":
		s := coord.Session()
		fmt.Printf("* voice: %s\n", strings.Join(coord.Participants(), ", "))
		if s.InVoice {
			fmt.Printf("* muted: %v\n", s.Muted)
		}
	case "/quit":
		coord.LeaveVoice()
		return true
	default:
		fmt.Println("commands: /room /name /join /leave /mute /silence /who /quit")
	}
	return false
}
