package voice

import "errors"

var (
	ErrInvalidArgument      = errors.New("invalid argument")
	ErrAlreadyInVoice       = errors.New("already in voice")
	ErrMediaAccessDenied    = errors.New("media access denied")
	ErrNegotiation          = errors.New("negotiation error")
	ErrDuplicatePeerSession = errors.New("duplicate peer session")
	ErrDestroyed            = errors.New("coordinator destroyed")
)
