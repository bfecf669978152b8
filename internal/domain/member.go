package domain

// Member represents user's participation meta for a room.
// No transport or lifecycle logic here.
type Member struct {
	User    *User
	InVoice bool
	Muted   bool
}

// NewMember avoids raw literals in adapters and keeps construction obvious.
func NewMember(user *User) *Member {
	return &Member{User: user}
}

// MemberView is the wire view of a room member.
type MemberView struct {
	ID       UserID `json:"id"`
	Username string `json:"username"`
	InVoice  bool   `json:"inVoice"`
	Muted    bool   `json:"muted"`
}
