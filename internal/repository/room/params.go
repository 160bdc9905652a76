package room

type SetRoomParams struct {
	RoomID        string
	MediaURL      string
	MediaTitle    string
	MediaDuration float64
	HostID        string
	HostName      string
	Capacity      int
	CreatedAt     int64
}

type SetPlayerParams struct {
	RoomID    string
	State     string
	Position  float64
	UpdatedAt int64
}

type UpdatePlayerStateParams struct {
	RoomID    string
	State     string
	Position  float64
	UpdatedAt int64
}

type SetMemberParams struct {
	MemberID string
	Username string
	IsGuest  bool
	RoomID   string
}

type GetMemberParams struct {
	MemberID string
	RoomID   string
}

type RemoveMemberParams struct {
	MemberID string
	RoomID   string
}
