// Package recordings implements the recording pipeline: fetching and
// normalizing recordings from the remote server, merging in imported
// references from the event-log store, and projecting the result into the
// table rows the course view renders.
package recordings

import (
	"sort"
)

// Well-known metadata keys.
const (
	MetaName              = "bbb-recording-name"
	MetaDescription       = "bbb-recording-description"
	MetaLegacyActivity    = "contextactivity"
	MetaLegacyDescription = "contextactivitydescription"
)

// Playback format types with special handling.
const (
	FormatPresentation = "presentation"
	FormatStatistics   = "statistics"
)

// PreviewImage is one thumbnail of a playback format. Attributes carries
// whatever the server attached to the image element (width, height, alt).
type PreviewImage struct {
	URL        string            `json:"url"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Playback is one playback format of a recording. Restricted is nil when the
// server did not report the flag; an explicit "false" widens access to
// otherwise gated formats, so absence and "false" are kept distinct.
type Playback struct {
	Type       string         `json:"type"`
	URL        string         `json:"url"`
	Length     string         `json:"length,omitempty"`
	Restricted *bool          `json:"restricted,omitempty"`
	Previews   []PreviewImage `json:"previews,omitempty"`
}

// IsRestricted reports whether the format was explicitly marked restricted.
func (p *Playback) IsRestricted() bool {
	return p.Restricted != nil && *p.Restricted
}

// Recording is one normalized recording. StartTime and EndTime are unix
// milliseconds as reported by the server. Protected is nil when the server
// did not report the flag at all; that absence hides the protect toggle.
// Imported carries the event-log row id when the recording is an imported
// reference, and is empty for live recordings.
type Recording struct {
	RecordID  string            `json:"recordID"`
	MeetingID string            `json:"meetingID"`
	Name      string            `json:"name"`
	Published bool              `json:"published"`
	Protected *bool             `json:"protected,omitempty"`
	StartTime int64             `json:"startTime"`
	EndTime   int64             `json:"endTime"`
	Playbacks []Playback        `json:"playbacks"`
	Metadata  map[string]string `json:"metadata"`
	Breakouts []string          `json:"breakouts,omitempty"`
	Imported  string            `json:"imported,omitempty"`
}

// Meta returns the metadata value for key, or "" when absent.
func (r *Recording) Meta(key string) string {
	if r.Metadata == nil {
		return ""
	}
	return r.Metadata[key]
}

// PlaybackByType returns the playback format with the given type, or nil.
func (r *Recording) PlaybackByType(format string) *Playback {
	for i := range r.Playbacks {
		if r.Playbacks[i].Type == format {
			return &r.Playbacks[i]
		}
	}
	return nil
}

// Set is a collection of recordings keyed by record id that preserves
// insertion order. Adding an id that is already present is a no-op, so the
// first occurrence of a duplicate wins.
type Set struct {
	order []string
	items map[string]*Recording
}

// NewSet returns an empty Set.
func NewSet() *Set {
	return &Set{items: make(map[string]*Recording)}
}

// Add inserts r unless a recording with the same record id is present.
// It reports whether the recording was inserted.
func (s *Set) Add(r *Recording) bool {
	if _, ok := s.items[r.RecordID]; ok {
		return false
	}
	s.items[r.RecordID] = r
	s.order = append(s.order, r.RecordID)
	return true
}

// Get returns the recording with the given record id, or nil.
func (s *Set) Get(recordID string) *Recording {
	return s.items[recordID]
}

// Len returns the number of recordings in the set.
func (s *Set) Len() int {
	return len(s.order)
}

// All returns the recordings in insertion (or sorted) order.
func (s *Set) All() []*Recording {
	out := make([]*Recording, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.items[id])
	}
	return out
}

// Merge adds every recording of other that is not already present.
func (s *Set) Merge(other *Set) {
	if other == nil {
		return
	}
	for _, r := range other.All() {
		s.Add(r)
	}
}

// Filter returns a new Set holding the recordings keep accepts, in order.
func (s *Set) Filter(keep func(*Recording) bool) *Set {
	out := NewSet()
	for _, r := range s.All() {
		if keep(r) {
			out.Add(r)
		}
	}
	return out
}

// SortByStartTime orders the set by start time, oldest first, or newest
// first when desc is set. Recordings with equal start times keep their
// relative order.
func (s *Set) SortByStartTime(desc bool) {
	sort.SliceStable(s.order, func(i, j int) bool {
		a, b := s.items[s.order[i]].StartTime, s.items[s.order[j]].StartTime
		if desc {
			return a > b
		}
		return a < b
	})
}

// Caller describes the requesting user as asserted by the host front end.
type Caller struct {
	UserID    string
	Admin     bool
	Moderator bool
	Manager   bool // may publish, delete, protect, edit and import
	Groups    []string
	Group     string // active group filter, "" = all groups
}

// CanManage reports whether the caller may use the recording action bar.
func (c Caller) CanManage() bool {
	return c.Manager
}

// Privileged reports whether the caller sees moderator-only content such as
// statistics playback formats.
func (c Caller) Privileged() bool {
	return c.Admin || c.Moderator
}

// InGroup reports whether the caller belongs to the given group id.
func (c Caller) InGroup(groupID string) bool {
	for _, g := range c.Groups {
		if g == groupID {
			return true
		}
	}
	return false
}

// TableRow is one rendered row of the recordings table. Playback, preview
// and actionbar are HTML fragments; the remaining fields are display text.
type TableRow struct {
	RecordID          string `json:"recordid"`
	MeetingID         string `json:"meetingid"`
	Recording         string `json:"recording"`
	Description       string `json:"description"`
	Playback          string `json:"playback"`
	Preview           string `json:"preview,omitempty"`
	Date              int64  `json:"date"`
	DateFormatted     string `json:"date_formatted"`
	Duration          int64  `json:"duration"`
	DurationFormatted string `json:"duration_formatted"`
	ActionBar         string `json:"actionbar,omitempty"`
	Published         string `json:"published"`
	Protected         string `json:"protected,omitempty"`
}

// Column describes one column of the recordings table widget.
type Column struct {
	Data  string `json:"data"`
	Title string `json:"title"`
	Width string `json:"width,omitempty"`
	Type  string `json:"type,omitempty"`
}

// TableData is the full payload the table widget polls for. RecordingsHTML
// mirrors the activity setting that selects plain-HTML rendering over the
// interactive widget.
type TableData struct {
	ActivityID     int64    `json:"activity_id"`
	Status         string   `json:"status"`
	PingInterval   int      `json:"ping_interval"` // milliseconds
	Locale         string   `json:"locale"`
	Profile        []string `json:"profile_features"`
	RecordingsHTML bool     `json:"recordings_html"`
	Columns        []Column `json:"columns"`
	Data           string   `json:"data"` // JSON-encoded []TableRow

	// Warnings surface degraded-mode conditions (unreachable server) and
	// ride in the response envelope, not in the table payload itself.
	Warnings []string `json:"-"`
}

// Activity status values reported alongside the table payload.
const (
	StatusOpen       = "open"
	StatusNotStarted = "not_started"
	StatusEnded      = "ended"
)
