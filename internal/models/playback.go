package models

import "fmt"

// Device is a Spotify Connect device visible to one account.
type Device struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Type          string `json:"type"`
	IsActive      bool   `json:"is_active"`
	VolumePercent int    `json:"volume_percent"`
}

// TrackInfo is the display metadata of a track. Its JSON form is the payload published for the web display.
type TrackInfo struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Artists    []string `json:"artists"`
	Album      string   `json:"album"`
	ArtURL     string   `json:"art_url"`
	DurationMS int      `json:"duration_ms"`
	URI        string   `json:"uri"`
}

// Playback is the current player state of one account.
//
// Track is nil when the item is not a track (ads, podcasts) or nothing is loaded.
type Playback struct {
	IsPlaying  bool       `json:"is_playing"`
	ProgressMS int        `json:"progress_ms"`
	Track      *TrackInfo `json:"track"`
	Device     *Device    `json:"device"`
}

// Snapshot is the observed (track, playing) pair of the leader.
//
// The zero value is the "nothing playing" snapshot and is the initial value before the first sample.
type Snapshot struct {
	TrackID   string
	IsPlaying bool
}

// SnapshotOf reduces a playback state to its snapshot. A nil playback or one without a track yields the zero snapshot.
func SnapshotOf(p *Playback) Snapshot {
	if p == nil || p.Track == nil {
		return Snapshot{}
	}
	return Snapshot{TrackID: p.Track.ID, IsPlaying: p.IsPlaying}
}

// Empty reports whether no track is loaded.
func (s Snapshot) Empty() bool {
	return s.TrackID == ""
}

// String formats the snapshot for logs.
func (s Snapshot) String() string {
	if s.Empty() {
		return "<none>"
	}
	state := "paused"
	if s.IsPlaying {
		state = "playing"
	}
	return fmt.Sprintf("%s (%s)", s.TrackID, state)
}

// TrackURI returns the spotify:track URI for a track id.
func TrackURI(trackID string) string {
	return "spotify:track:" + trackID
}
