package room

type Room struct {
	ID               string  `json:"id"`
	MediaURL         string  `json:"media_url"`
	MediaTitle       string  `json:"media_title"`
	MediaDuration    float64 `json:"media_duration"`
	HostID           string  `json:"host_id"`
	HostName         string  `json:"host_name"`
	Capacity         int     `json:"capacity"`
	CreatedAt        int64   `json:"created_at"`
	IsActive         bool    `json:"is_active"`
	PeakParticipants int     `json:"peak_participants"`
}
