// Package player defines the normalized playback data model.
package player

// PlaybackStatus is the display-oriented playback state, using the
// capitalized names the legacy AppleScript controller reported.
type PlaybackStatus string

const (
	StatusPlaying PlaybackStatus = "Playing"
	StatusPaused  PlaybackStatus = "Paused"
	StatusStopped PlaybackStatus = "Stopped"
)

// ControlStatus is the lower-case sibling of PlaybackStatus used in the
// control-oriented snapshot.
type ControlStatus string

const (
	ControlPlaying ControlStatus = "playing"
	ControlPaused  ControlStatus = "paused"
	ControlStopped ControlStatus = "stopped"
)

// PlaybackInfo is the display-oriented snapshot delivered to clients.
type PlaybackInfo struct {
	Name             string         `json:"name"`
	Artist           string         `json:"artist"`
	Album            string         `json:"album"`
	Duration         int            `json:"duration"` // milliseconds
	PlaybackPosition float64        `json:"playbackPosition"` // seconds
	TrackID          string         `json:"trackId"`
	PlayerState      PlaybackStatus `json:"playerState"`
	AlbumArtURL      string         `json:"albumArtUrl"`
	DeviceName       string         `json:"deviceName"`
	DeviceIsActive   bool           `json:"deviceIsActive"`
}

// PlayerState is the control-oriented snapshot delivered to clients.
type PlayerState struct {
	TrackID     string        `json:"trackId"`
	Volume      int           `json:"volume"` // 0-100
	Position    float64       `json:"position"` // seconds
	State       ControlStatus `json:"state"`
	IsRepeating bool          `json:"isRepeating"`
	IsShuffling bool          `json:"isShuffling"`
}

// StateChangePayload is the unit of broadcast and of change comparison.
type StateChangePayload struct {
	PlaybackInfo PlaybackInfo `json:"playbackInfo"`
	State        PlayerState  `json:"state"`
}

// Equal reports whether two payloads are structurally identical. Both
// sides derive from the same normalization path, so exact comparison of
// the float fields is intentional.
func (p StateChangePayload) Equal(other StateChangePayload) bool {
	return p == other
}

// Item is the playable item portion of a raw upstream snapshot.
type Item struct {
	URI         string
	Name        string
	Artists     []string
	Album       string
	AlbumArtURL string
	DurationMs  int
}

// Snapshot is a point-in-time playback report from the upstream provider,
// already decoded from the wire but not yet normalized.
type Snapshot struct {
	Item         *Item // nil when nothing is loaded
	IsPlaying    bool
	ProgressMs   int
	Volume       int // 0-100
	RepeatMode   string // "off", "track" or "context"
	Shuffle      bool
	DeviceName   string
	DeviceActive bool
}
