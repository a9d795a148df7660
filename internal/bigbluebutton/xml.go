package bigbluebutton

import (
	"encoding/xml"
	"strings"
)

// API return codes carried in <returncode>.
const (
	ReturnCodeSuccess = "SUCCESS"
	ReturnCodeFailed  = "FAILED"
)

// response is the root element every management API action answers with.
// Action-specific payloads are optional siblings of returncode.
type response struct {
	XMLName    xml.Name           `xml:"response"`
	ReturnCode string             `xml:"returncode"`
	MessageKey string             `xml:"messageKey"`
	Message    string             `xml:"message"`
	Version    string             `xml:"version"`
	Recordings []RecordingElement `xml:"recordings>recording"`
}

// RecordingElement is one <recording> node of a getRecordings response.
// Protected is a pointer because its absence is meaningful: a server that
// does not support protected recordings omits the element entirely, and the
// UI hides the protect toggle in that case instead of showing "unprotected".
type RecordingElement struct {
	RecordID      string                `xml:"recordID"`
	MeetingID     string                `xml:"meetingID"`
	Name          string                `xml:"name"`
	Published     string                `xml:"published"`
	Protected     *string               `xml:"protected"`
	StartTime     string                `xml:"startTime"`
	EndTime       string                `xml:"endTime"`
	Formats       []FormatElement       `xml:"playback>format"`
	Metadata      MetadataElement       `xml:"metadata"`
	BreakoutRooms []BreakoutRoomElement `xml:"breakoutRooms>breakoutRoom"`
}

// FormatElement is one <playback><format> child of a recording.
type FormatElement struct {
	Type       string         `xml:"type"`
	URL        string         `xml:"url"`
	Length     string         `xml:"length"`
	Restricted *string        `xml:"restricted"`
	Images     []ImageElement `xml:"preview>images>image"`
}

// ImageElement is one preview <image>. Attributes are vendor-defined
// (dimensions, alt text) and are carried through untouched; the trimmed text
// content is the image URL.
type ImageElement struct {
	Attributes []xml.Attr `xml:",any,attr"`
	URL        string     `xml:",chardata"`
}

// BreakoutRoomElement lists the record ids of one breakout room. Servers have
// emitted both <breakoutRoom><recordID>r</recordID></breakoutRoom> and plain
// text content; both shapes are accepted.
type BreakoutRoomElement struct {
	RecordIDs []string `xml:"recordID"`
	Content   string   `xml:",chardata"`
}

// RecordIDList returns the record ids referenced by this breakout room.
func (b BreakoutRoomElement) RecordIDList() []string {
	if len(b.RecordIDs) > 0 {
		return b.RecordIDs
	}
	if s := strings.TrimSpace(b.Content); s != "" {
		return strings.Split(s, ",")
	}
	return nil
}

// MetadataElement flattens the vendor metadata children of <metadata> into a
// map keyed by the original (unprefixed) element name. A value that is itself
// a nested structure normalizes to the empty string; known vendors never nest
// metadata more than one level, and deeper content is unsupported.
type MetadataElement struct {
	Values map[string]string
}

// UnmarshalXML implements xml.Unmarshaler.
func (m *MetadataElement) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	m.Values = make(map[string]string)
	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			key := t.Name.Local
			value, nested, err := decodeScalar(d, t)
			if err != nil {
				return err
			}
			if nested {
				value = ""
			}
			m.Values[key] = value
		case xml.EndElement:
			if t.Name == start.Name {
				return nil
			}
		}
	}
}

// decodeScalar consumes one element and returns its trimmed text content.
// nested reports whether the element contained child elements.
func decodeScalar(d *xml.Decoder, start xml.StartElement) (value string, nested bool, err error) {
	var text strings.Builder
	depth := 1
	for depth > 0 {
		tok, err := d.Token()
		if err != nil {
			return "", false, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			nested = true
		case xml.EndElement:
			depth--
		case xml.CharData:
			if depth == 1 {
				text.Write(t)
			}
		}
	}
	return strings.TrimSpace(text.String()), nested, nil
}
