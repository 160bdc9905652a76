package room

type Room struct {
	MediaURL         string  `redis:"media_url" json:"media_url"`
	MediaTitle       string  `redis:"media_title" json:"media_title"`
	MediaDuration    float64 `redis:"media_duration" json:"media_duration"`
	HostID           string  `redis:"host_id" json:"host_id"`
	HostName         string  `redis:"host_name" json:"host_name"`
	Capacity         int     `redis:"capacity" json:"capacity"`
	CreatedAt        int64   `redis:"created_at" json:"created_at"`
	IsActive         bool    `redis:"is_active" json:"is_active"`
	PeakParticipants int     `redis:"peak_participants" json:"peak_participants"`
}

type Player struct {
	State     string  `redis:"state" json:"state"`
	Position  float64 `redis:"position" json:"position"`
	UpdatedAt int64   `redis:"updated_at" json:"updated_at"`
}

type Member struct {
	Username string `redis:"username" json:"username"`
	IsGuest  bool   `redis:"is_guest" json:"is_guest"`
}
