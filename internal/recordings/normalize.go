package recordings

import (
	"encoding/json"
	"strconv"
	"strings"

	"bbb-recordings-gateway/internal/bigbluebutton"
)

// FromElement normalizes one wire recording into the domain shape. Numeric
// timestamps that fail to parse become zero rather than failing the whole
// fetch; a recording with a bad timestamp still sorts, just at the front.
func FromElement(el bigbluebutton.RecordingElement) *Recording {
	r := &Recording{
		RecordID:  el.RecordID,
		MeetingID: el.MeetingID,
		Name:      el.Name,
		Published: el.Published == "true",
		StartTime: parseMillis(el.StartTime),
		EndTime:   parseMillis(el.EndTime),
		Metadata:  el.Metadata.Values,
	}
	if r.Metadata == nil {
		r.Metadata = map[string]string{}
	}
	if el.Protected != nil {
		protected := *el.Protected == "true"
		r.Protected = &protected
	}
	for _, f := range el.Formats {
		r.Playbacks = append(r.Playbacks, playbackFromElement(f))
	}
	for _, room := range el.BreakoutRooms {
		r.Breakouts = append(r.Breakouts, room.RecordIDList()...)
	}
	return r
}

// FromElements normalizes a batch of wire recordings into a Set, dropping
// duplicates by record id.
func FromElements(els []bigbluebutton.RecordingElement) *Set {
	set := NewSet()
	for _, el := range els {
		set.Add(FromElement(el))
	}
	return set
}

func playbackFromElement(f bigbluebutton.FormatElement) Playback {
	p := Playback{
		Type:   f.Type,
		URL:    strings.TrimSpace(f.URL),
		Length: f.Length,
	}
	if f.Restricted != nil {
		restricted := strings.EqualFold(*f.Restricted, "true")
		p.Restricted = &restricted
	}
	for _, img := range f.Images {
		preview := PreviewImage{URL: strings.TrimSpace(img.URL)}
		if len(img.Attributes) > 0 {
			preview.Attributes = make(map[string]string, len(img.Attributes))
			for _, attr := range img.Attributes {
				preview.Attributes[attr.Name.Local] = attr.Value
			}
		}
		p.Previews = append(p.Previews, preview)
	}
	return p
}

func parseMillis(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// importEnvelope is the serialized form a recording takes inside an
// import reference row.
type importEnvelope struct {
	Recording *Recording `json:"recording"`
}

// MarshalImport serializes a recording for storage in an import row.
func MarshalImport(r *Recording) ([]byte, error) {
	return json.Marshal(importEnvelope{Recording: r})
}

// UnmarshalImport restores a recording from an import row's meta payload.
func UnmarshalImport(meta []byte) (*Recording, error) {
	var env importEnvelope
	if err := json.Unmarshal(meta, &env); err != nil {
		return nil, err
	}
	return env.Recording, nil
}
