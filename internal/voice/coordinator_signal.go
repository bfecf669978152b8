package voice

import (
	"github.com/dkeye/voicemesh/internal/domain"
)

// maxEarlyCandidates bounds the pre-offer buffer of one peer.
const maxEarlyCandidates = 64

func (c *Coordinator) handleSignalingMessage(msg domain.Message) {
	if !c.addressedToUs(msg) {
		c.logger.Debug().
			Str("kind", string(msg.Type)).
			Str("from", msg.From).
			Str("to", msg.To).
			Msg("signaling message not for us, dropped")
		return
	}

	switch msg.Type {
	case domain.KindOffer:
		c.acceptOffer(msg)
	case domain.KindAnswer:
		c.applyAnswer(msg)
	case domain.KindICECandidate:
		c.applyCandidate(msg)
	default:
		c.logger.Warn().Str("kind", string(msg.Type)).Msg("unknown signaling kind")
	}
}

func (c *Coordinator) addressedToUs(msg domain.Message) bool {
	if !c.session.InVoice {
		return false
	}
	if msg.From == "" || msg.From == c.session.Username {
		return false
	}
	return msg.To == c.session.Username && msg.Roomname == c.session.Roomname
}

func (c *Coordinator) acceptOffer(msg domain.Message) {
	from := msg.From
	if _, exists := c.peers[from]; exists {
		c.emitError("offer from "+from, ErrDuplicatePeerSession)
		return
	}
	if msg.Offer == nil {
		c.emitError("offer from "+from, negotiationErr("offer without session description"))
		return
	}

	s, err := c.createSession(from, RoleResponder)
	if err != nil {
		c.emitError("offer from "+from, err)
		return
	}
	delete(c.ended, from)
	early := c.early[from]
	delete(c.early, from)
	for _, ci := range early {
		// buffered by the session until the offer is applied
		if err := s.AddICECandidate(ci); err != nil {
			c.failPeer(from, err)
			return
		}
	}
	if err := s.AddLocalStream(c.session.capture); err != nil {
		c.failPeer(from, err)
		return
	}
	if err := s.HandleOffer(*msg.Offer); err != nil {
		c.failPeer(from, err)
		return
	}
	answer, err := s.CreateAnswer()
	if err != nil {
		c.failPeer(from, err)
		return
	}
	c.transport.Send(domain.Message{
		Type:     domain.KindAnswer,
		From:     c.session.Username,
		To:       from,
		Roomname: c.session.Roomname,
		Answer:   &answer,
	})
	c.logger.Info().Str("peer", from).Msg("answer sent")
}

func (c *Coordinator) applyAnswer(msg domain.Message) {
	s, ok := c.peers[msg.From]
	if !ok {
		c.logger.Debug().Str("peer", msg.From).Msg("answer for unknown peer dropped")
		return
	}
	if msg.Answer == nil {
		c.failPeer(msg.From, negotiationErr("answer without session description"))
		return
	}
	if err := s.HandleAnswer(*msg.Answer); err != nil {
		c.failPeer(msg.From, err)
	}
}

func (c *Coordinator) applyCandidate(msg domain.Message) {
	s, ok := c.peers[msg.From]
	if !ok {
		c.holdEarlyCandidate(msg)
		return
	}
	if msg.Candidate == nil {
		c.failPeer(msg.From, negotiationErr("candidate message without candidate"))
		return
	}
	if err := s.AddICECandidate(*msg.Candidate); err != nil {
		c.failPeer(msg.From, err)
	}
}

// holdEarlyCandidate keeps a candidate from a peer whose offer has not
// arrived yet. Candidates from a peer we offer to, or from a removed peer,
// are dropped.
func (c *Coordinator) holdEarlyCandidate(msg domain.Message) {
	from := msg.From
	if msg.Candidate == nil || initiates(c.session.Username, from) || c.ended[from] {
		c.logger.Debug().Str("peer", from).Msg("candidate for unknown peer dropped")
		return
	}
	if len(c.early[from]) >= maxEarlyCandidates {
		c.logger.Warn().Str("peer", from).Msg("early candidate buffer full, dropped")
		return
	}
	c.early[from] = append(c.early[from], *msg.Candidate)
	c.logger.Debug().Str("peer", from).Int("early", len(c.early[from])).Msg("candidate held until offer")
}
