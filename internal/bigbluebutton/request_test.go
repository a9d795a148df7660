package bigbluebutton

import (
	"crypto/sha1"
	"encoding/hex"
	"net/url"
	"strings"
	"testing"
)

func TestEndpoint_APIBase(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"https://bbb.example.com/bigbluebutton", "https://bbb.example.com/bigbluebutton/api/"},
		{"https://bbb.example.com/bigbluebutton/", "https://bbb.example.com/bigbluebutton/api/"},
		{"https://bbb.example.com/bigbluebutton/api", "https://bbb.example.com/bigbluebutton/api/"},
		{"https://bbb.example.com/bigbluebutton/api/", "https://bbb.example.com/bigbluebutton/api/"},
		{"  https://bbb.example.com/bigbluebutton  ", "https://bbb.example.com/bigbluebutton/api/"},
	}
	for _, tc := range cases {
		e := Endpoint{ServerURL: tc.in}
		if got := e.APIBase(); got != tc.want {
			t.Errorf("APIBase(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestEndpoint_ActionURL_checksum(t *testing.T) {
	e := Endpoint{ServerURL: "https://bbb.example.com/bigbluebutton", SharedSecret: "secret"}
	raw := e.ActionURL("getRecordings", url.Values{"meetingID": {"abc"}}, nil)

	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("ActionURL produced unparsable URL: %v", err)
	}
	if !strings.HasPrefix(raw, "https://bbb.example.com/bigbluebutton/api/getRecordings?") {
		t.Errorf("unexpected URL prefix: %s", raw)
	}

	query := u.Query()
	if query.Get("meetingID") != "abc" {
		t.Errorf("meetingID = %q, want abc", query.Get("meetingID"))
	}
	sum := sha1.Sum([]byte("getRecordings" + "meetingID=abc" + "secret"))
	if got := query.Get("checksum"); got != hex.EncodeToString(sum[:]) {
		t.Errorf("checksum = %q, want %q", got, hex.EncodeToString(sum[:]))
	}
}

func TestEndpoint_ActionURL_metadataPrefix(t *testing.T) {
	e := Endpoint{ServerURL: "https://bbb.example.com/bigbluebutton", SharedSecret: "secret"}
	raw := e.ActionURL("updateRecordings", url.Values{"recordID": {"r1"}},
		map[string]string{"bbb-recording-name": "Lecture 1"})

	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("ActionURL produced unparsable URL: %v", err)
	}
	if got := u.Query().Get("meta_bbb-recording-name"); got != "Lecture 1" {
		t.Errorf("meta_bbb-recording-name = %q, want Lecture 1", got)
	}
}

func TestEndpoint_ActionURL_noParams(t *testing.T) {
	e := Endpoint{ServerURL: "https://bbb.example.com/bigbluebutton", SharedSecret: "secret"}
	raw := e.ActionURL("", nil, nil)

	sum := sha1.Sum([]byte("secret"))
	want := "https://bbb.example.com/bigbluebutton/api/?checksum=" + hex.EncodeToString(sum[:])
	if raw != want {
		t.Errorf("ActionURL = %q, want %q", raw, want)
	}
}

func TestEndpoint_ActionURL_trimsSecret(t *testing.T) {
	plain := Endpoint{ServerURL: "https://bbb.example.com/bbb", SharedSecret: "secret"}
	padded := Endpoint{ServerURL: "https://bbb.example.com/bbb", SharedSecret: "  secret\n"}
	if plain.ActionURL("getRecordings", nil, nil) != padded.ActionURL("getRecordings", nil, nil) {
		t.Error("surrounding whitespace in the secret should not change the checksum")
	}
}
