package player

import "strings"

// Normalize maps a raw upstream snapshot to the two stable client shapes.
// It is total: a nil snapshot (or a snapshot without a playable item)
// yields the empty Stopped payload, and malformed fields default to their
// zero values rather than propagating an error.
func Normalize(snap *Snapshot) StateChangePayload {
	if snap == nil {
		return StateChangePayload{
			PlaybackInfo: PlaybackInfo{PlayerState: StatusStopped},
			State:        PlayerState{State: ControlStopped},
		}
	}

	var (
		trackID  string
		name     string
		artist   string
		album    string
		artURL   string
		duration int
	)
	if snap.Item != nil {
		trackID = snap.Item.URI
		name = snap.Item.Name
		artist = strings.Join(snap.Item.Artists, ", ")
		album = snap.Item.Album
		artURL = snap.Item.AlbumArtURL
		duration = snap.Item.DurationMs
	}
	if duration < 0 {
		duration = 0
	}

	progress := snap.ProgressMs
	if progress < 0 {
		progress = 0
	}
	position := float64(progress) / 1000.0

	volume := snap.Volume
	if volume < 0 {
		volume = 0
	} else if volume > 100 {
		volume = 100
	}

	status := playbackStatus(snap, duration, progress)

	return StateChangePayload{
		PlaybackInfo: PlaybackInfo{
			Name:             name,
			Artist:           artist,
			Album:            album,
			Duration:         duration,
			PlaybackPosition: position,
			TrackID:          trackID,
			PlayerState:      status,
			AlbumArtURL:      artURL,
			DeviceName:       snap.DeviceName,
			DeviceIsActive:   snap.DeviceActive,
		},
		State: PlayerState{
			TrackID:     trackID,
			Volume:      volume,
			Position:    position,
			State:       controlStatus(status),
			IsRepeating: snap.RepeatMode != "" && snap.RepeatMode != "off",
			IsShuffling: snap.Shuffle,
		},
	}
}

// playbackStatus distinguishes a truly paused item from "nothing loaded":
// a snapshot without a playable item is always Stopped, and Paused requires
// a known item (positive duration or progress).
func playbackStatus(snap *Snapshot, duration, progress int) PlaybackStatus {
	if snap.Item == nil {
		return StatusStopped
	}
	if snap.IsPlaying {
		return StatusPlaying
	}
	if duration > 0 || progress > 0 {
		return StatusPaused
	}
	return StatusStopped
}

func controlStatus(s PlaybackStatus) ControlStatus {
	switch s {
	case StatusPlaying:
		return ControlPlaying
	case StatusPaused:
		return ControlPaused
	default:
		return ControlStopped
	}
}
