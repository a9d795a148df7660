package recordings

import (
	"context"
	"strings"
	"testing"
)

func boolptr(b bool) *bool { return &b }

func manager() Caller {
	return Caller{UserID: "u1", Manager: true, Admin: true, Moderator: true}
}

func student() Caller {
	return Caller{UserID: "u2"}
}

func baseView(caller Caller) ViewContext {
	return ViewContext{
		ActivityID:    7,
		MeetingID:     "meeting-a",
		GroupsVisible: true,
		ServerVersion: "2.0",
		Caller:        caller,
	}
}

func TestInclude(t *testing.T) {
	cases := []struct {
		name      string
		recording Recording
		caller    Caller
		group     string
		want      bool
	}{
		{"published for student", Recording{Published: true, MeetingID: "meeting-a"}, student(), "", true},
		{"unpublished hidden from student", Recording{Published: false, MeetingID: "meeting-a"}, student(), "", false},
		{"unpublished shown to manager", Recording{Published: false, MeetingID: "meeting-a"}, manager(), "", true},
		{"imported always shown", Recording{Published: true, MeetingID: "other", Imported: "row-1"}, student(), "g1", true},
		{"group filter hides other meetings", Recording{Published: true, MeetingID: "meeting-a"}, student(), "g1", false},
		{"group filter keeps own meeting", Recording{Published: true, MeetingID: "meeting-a[g1]"}, student(), "g1", true},
		{"privileged bypasses group filter", Recording{Published: true, MeetingID: "meeting-a"}, manager(), "g1", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := baseView(tc.caller)
			v.Caller.Group = tc.group
			if tc.group != "" {
				v.MeetingID = "meeting-a[" + tc.group + "]"
			}
			if got := Include(&tc.recording, v); got != tc.want {
				t.Errorf("Include = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestVisibleToCaller_separateGroups(t *testing.T) {
	v := baseView(student())
	v.GroupsVisible = false
	v.Caller.Groups = []string{"g1"}

	own := &Recording{MeetingID: "meeting-a[g1]", Published: true}
	foreign := &Recording{MeetingID: "meeting-a[g2]", Published: true}
	ungrouped := &Recording{MeetingID: "meeting-a", Published: true}

	if !VisibleToCaller(own, v) {
		t.Error("recording of the caller's own group must be visible")
	}
	if VisibleToCaller(foreign, v) {
		t.Error("recording of a foreign group must be hidden in separate-groups mode")
	}
	if !VisibleToCaller(ungrouped, v) {
		t.Error("ungrouped recording must stay visible")
	}

	v.GroupsVisible = true
	if !VisibleToCaller(foreign, v) {
		t.Error("visible-groups mode must show every group's recordings")
	}
}

func TestIncludePlayback_statisticsGating(t *testing.T) {
	stats := &Playback{Type: FormatStatistics}
	presentation := &Playback{Type: FormatPresentation}
	unrestricted := &Playback{Type: FormatStatistics, Restricted: boolptr(false)}
	live := &Recording{Published: true}
	imported := &Recording{Published: true, Imported: "row-1"}

	if !IncludePlayback(live, presentation, baseView(student())) {
		t.Error("presentation must be open to everyone")
	}
	if IncludePlayback(live, stats, baseView(student())) {
		t.Error("statistics must be withheld from students")
	}
	if !IncludePlayback(live, stats, baseView(manager())) {
		t.Error("statistics must be offered to moderators")
	}
	if IncludePlayback(imported, stats, baseView(manager())) {
		t.Error("statistics must never be offered on imported references")
	}
	if !IncludePlayback(live, unrestricted, baseView(student())) {
		t.Error("an explicitly unrestricted format bypasses the gate")
	}
}

func TestDisplayName_preference(t *testing.T) {
	r := &Recording{
		Name: "meeting name",
		Metadata: map[string]string{
			MetaName:           "Lecture 1",
			MetaLegacyActivity: "legacy name",
		},
	}
	if got := DisplayName(r); got != "Lecture 1" {
		t.Errorf("DisplayName = %q, recording-name metadata must win", got)
	}

	delete(r.Metadata, MetaName)
	if got := DisplayName(r); got != "legacy name" {
		t.Errorf("DisplayName = %q, legacy metadata is the fallback", got)
	}

	delete(r.Metadata, MetaLegacyActivity)
	if got := DisplayName(r); got != "meeting name" {
		t.Errorf("DisplayName = %q, meeting name is the last resort", got)
	}
}

func TestViewContext_Editable(t *testing.T) {
	v := baseView(manager())
	if !v.Editable(false) {
		t.Error("manager on a 2.0 server must get inline editing")
	}
	v.ServerVersion = "0.9"
	if v.Editable(false) {
		t.Error("pre-1.0 server must disable inline editing")
	}
	if !v.Editable(true) {
		t.Error("trusted server overrides the version check")
	}
	v = baseView(student())
	if v.Editable(true) {
		t.Error("students never edit")
	}
}

func newTestProjector() *Projector {
	return NewProjector(ProjectorOptions{PlayerBasePath: "/bbb/play"})
}

func TestProjector_Row_basics(t *testing.T) {
	p := newTestProjector()
	r := &Recording{
		RecordID:  "rec-1",
		MeetingID: "meeting-a",
		Name:      "Weekly sync",
		Published: true,
		StartTime: 1633093179864,
		Playbacks: []Playback{{Type: "presentation", URL: "https://bbb.example.com/p/rec-1", Length: "37"}},
		Metadata:  map[string]string{MetaName: "Lecture 1"},
	}

	row := p.Row(context.Background(), r, baseView(student()))
	if row == nil {
		t.Fatal("row should be visible")
	}
	if row.Date != 1633093179864 {
		t.Errorf("date = %d", row.Date)
	}
	if row.Duration != 37 || row.DurationFormatted != "37" {
		t.Errorf("duration = %d/%s", row.Duration, row.DurationFormatted)
	}
	if !strings.Contains(row.Recording, "Lecture 1") {
		t.Errorf("name cell = %s", row.Recording)
	}
	if !strings.Contains(row.Playback, "action=play&amp;bn=7&amp;mid=meeting-a&amp;rid=rec-1&amp;rtype=presentation") {
		t.Errorf("playback cell = %s", row.Playback)
	}
	if !strings.Contains(row.Playback, "&amp;href=") {
		t.Error("direct playback href expected for a live recording")
	}
	if row.ActionBar != "" {
		t.Error("students get no action bar")
	}
}

func TestProjector_Row_escapesText(t *testing.T) {
	p := newTestProjector()
	r := &Recording{
		RecordID:  "rec-1",
		Published: true,
		Metadata:  map[string]string{MetaName: `<script>alert("x")</script>`},
	}
	row := p.Row(context.Background(), r, baseView(student()))
	if strings.Contains(row.Recording, "<script>") {
		t.Error("metadata must be HTML-escaped")
	}
}

func TestProjector_Row_protectedImportHidesHref(t *testing.T) {
	p := newTestProjector()
	r := &Recording{
		RecordID:  "rec-1",
		MeetingID: "meeting-a",
		Published: true,
		Imported:  "row-1",
		Protected: boolptr(true),
		Playbacks: []Playback{{Type: "presentation", URL: "https://bbb.example.com/p/rec-1"}},
	}
	row := p.Row(context.Background(), r, baseView(student()))
	if strings.Contains(row.Playback, "&amp;href=") {
		t.Error("protected imported reference must not expose the direct playback URL")
	}
}

func TestProjector_Row_duration_skipsRestricted(t *testing.T) {
	p := newTestProjector()
	r := &Recording{
		RecordID:  "rec-1",
		Published: true,
		Playbacks: []Playback{
			{Type: "statistics", Length: "99", Restricted: boolptr(true)},
			{Type: "presentation", Length: "37"},
		},
	}
	row := p.Row(context.Background(), r, baseView(manager()))
	if row.Duration != 37 {
		t.Errorf("duration = %d, restricted playbacks must be skipped", row.Duration)
	}
}

func TestProjector_Row_actionBar(t *testing.T) {
	p := newTestProjector()
	live := &Recording{
		RecordID:  "rec-1",
		MeetingID: "meeting-a",
		Published: true,
		Protected: boolptr(false),
	}
	row := p.Row(context.Background(), live, baseView(manager()))
	if row.ActionBar == "" {
		t.Fatal("managers get an action bar")
	}
	if !strings.Contains(row.ActionBar, `data-action="protect"`) {
		t.Errorf("unprotected recording should offer protect: %s", row.ActionBar)
	}
	if !strings.Contains(row.ActionBar, `data-action="unpublish"`) {
		t.Errorf("published recording should offer unpublish: %s", row.ActionBar)
	}

	imported := &Recording{
		RecordID:  "rec-2",
		Published: true,
		Imported:  "row-1",
		Protected: boolptr(false),
	}
	row = p.Row(context.Background(), imported, baseView(manager()))
	if !strings.Contains(row.ActionBar, "disabled") {
		t.Errorf("protect must be disabled on imported references: %s", row.ActionBar)
	}

	noProtect := &Recording{RecordID: "rec-3", Published: true}
	row = p.Row(context.Background(), noProtect, baseView(manager()))
	if !strings.Contains(row.ActionBar, "invisible") {
		t.Errorf("protect must be hidden when the server never reported the flag: %s", row.ActionBar)
	}
}

type fixedChecker struct{ valid map[string]bool }

func (c fixedChecker) CheckURL(ctx context.Context, rawURL string) bool {
	return c.valid[rawURL]
}

func TestProjector_validation(t *testing.T) {
	p := NewProjector(ProjectorOptions{
		PlayerBasePath: "/bbb/play",
		ValidateURLs:   true,
		ServerHost:     "bbb.example.com",
		Checker:        fixedChecker{valid: map[string]bool{"https://cdn.example.com/p/rec-1": false}},
	})
	r := &Recording{
		RecordID:  "rec-1",
		Published: true,
		Playbacks: []Playback{{Type: "presentation", URL: "https://cdn.example.com/p/rec-1"}},
	}
	row := p.Row(context.Background(), r, baseView(student()))
	if !strings.Contains(row.Playback, "btn-warning") {
		t.Errorf("unreachable host should degrade the play button: %s", row.Playback)
	}
	if strings.Contains(row.Playback, "data-href") {
		t.Error("unreachable host must not carry a play link")
	}

	own := &Recording{
		RecordID:  "rec-2",
		Published: true,
		Playbacks: []Playback{{Type: "presentation", URL: "https://bbb.example.com/p/rec-2"}},
	}
	row = p.Row(context.Background(), own, baseView(student()))
	if strings.Contains(row.Playback, "btn-warning") {
		t.Error("the configured server's own host must skip validation")
	}
}
