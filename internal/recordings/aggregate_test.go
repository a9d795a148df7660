package recordings

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"bbb-recordings-gateway/internal/bigbluebutton"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeFetcher serves recordings keyed by meeting id and by record id, and
// records the pages it was asked for.
type fakeFetcher struct {
	mu        sync.Mutex
	byMeeting map[string][]bigbluebutton.RecordingElement
	byRecord  map[string]bigbluebutton.RecordingElement
	pages     [][]string
	failAll   bool
}

func (f *fakeFetcher) RecordingsByMeetingID(ctx context.Context, meetingIDs []string) []bigbluebutton.RecordingElement {
	f.mu.Lock()
	f.pages = append(f.pages, meetingIDs)
	f.mu.Unlock()
	if f.failAll {
		return nil
	}
	out := []bigbluebutton.RecordingElement{}
	for _, id := range meetingIDs {
		out = append(out, f.byMeeting[id]...)
	}
	return out
}

func (f *fakeFetcher) RecordingsByRecordID(ctx context.Context, recordIDs []string) []bigbluebutton.RecordingElement {
	out := []bigbluebutton.RecordingElement{}
	for _, id := range recordIDs {
		if el, ok := f.byRecord[id]; ok {
			out = append(out, el)
		}
	}
	return out
}

func meetingIDs(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("meeting-%02d", i)
	}
	return out
}

func TestAggregator_Fetch_noMeetings(t *testing.T) {
	f := &fakeFetcher{}
	agg := NewAggregator(f, nil, discardLogger())

	set := agg.Fetch(context.Background(), nil, nil)
	if set.Len() != 0 {
		t.Errorf("expected empty set, got %d", set.Len())
	}
	if len(f.pages) != 0 {
		t.Errorf("no request should be made without meeting ids, got %d pages", len(f.pages))
	}
}

func TestAggregator_Fetch_pagination(t *testing.T) {
	f := &fakeFetcher{byMeeting: map[string][]bigbluebutton.RecordingElement{}}
	agg := NewAggregator(f, nil, discardLogger())

	agg.Fetch(context.Background(), meetingIDs(30), nil)

	if len(f.pages) != 2 {
		t.Fatalf("30 meetings should fetch in 2 pages, got %d", len(f.pages))
	}
	sizes := map[int]bool{len(f.pages[0]): true, len(f.pages[1]): true}
	if !sizes[25] || !sizes[5] {
		t.Errorf("page sizes should be 25 and 5, got %d and %d", len(f.pages[0]), len(f.pages[1]))
	}
}

func TestAggregator_Fetch_pageOrderDeterministic(t *testing.T) {
	ids := meetingIDs(30)
	f := &fakeFetcher{byMeeting: map[string][]bigbluebutton.RecordingElement{}}
	for i, id := range ids {
		f.byMeeting[id] = []bigbluebutton.RecordingElement{{RecordID: fmt.Sprintf("rec-%02d", i), MeetingID: id}}
	}
	agg := NewAggregator(f, nil, discardLogger())

	set := agg.Fetch(context.Background(), ids, nil)
	if set.Len() != 30 {
		t.Fatalf("expected 30 recordings, got %d", set.Len())
	}
	all := set.All()
	if all[0].RecordID != "rec-00" || all[25].RecordID != "rec-25" {
		t.Error("results must merge in page order regardless of fetch completion order")
	}
}

func TestAggregator_Fetch_dropsForeignMeetings(t *testing.T) {
	f := &fakeFetcher{byMeeting: map[string][]bigbluebutton.RecordingElement{
		"meeting-a": {
			{RecordID: "rec-1", MeetingID: "meeting-a"},
			{RecordID: "rec-x", MeetingID: "meeting-other"},
		},
	}}
	agg := NewAggregator(f, nil, discardLogger())

	set := agg.Fetch(context.Background(), []string{"meeting-a"}, nil)
	if set.Len() != 1 || set.Get("rec-x") != nil {
		t.Errorf("recordings of unrequested meetings must be dropped, got %d", set.Len())
	}
}

func TestAggregator_Fetch_breakoutFollowUp(t *testing.T) {
	f := &fakeFetcher{
		byMeeting: map[string][]bigbluebutton.RecordingElement{
			"meeting-a": {{
				RecordID:  "rec-parent",
				MeetingID: "meeting-a",
				BreakoutRooms: []bigbluebutton.BreakoutRoomElement{
					{RecordIDs: []string{"rec-child-1", "rec-child-2"}},
				},
			}},
		},
		byRecord: map[string]bigbluebutton.RecordingElement{
			"rec-child-1": {RecordID: "rec-child-1", MeetingID: "breakout-1"},
			"rec-child-2": {RecordID: "rec-child-2", MeetingID: "breakout-2"},
		},
	}
	agg := NewAggregator(f, nil, discardLogger())

	set := agg.Fetch(context.Background(), []string{"meeting-a"}, nil)
	if set.Len() != 3 {
		t.Fatalf("expected parent plus 2 breakout recordings, got %d", set.Len())
	}
	if set.Get("rec-child-1") == nil || set.Get("rec-child-2") == nil {
		t.Error("breakout recordings must be resolved by record id")
	}
}

func TestAggregator_Fetch_failedPageContributesNothing(t *testing.T) {
	f := &fakeFetcher{failAll: true}
	agg := NewAggregator(f, nil, discardLogger())

	set := agg.Fetch(context.Background(), meetingIDs(3), nil)
	if set.Len() != 0 {
		t.Errorf("failed fetch must yield empty set, got %d", set.Len())
	}
}

func TestAggregator_Fetch_recordIDAllowList(t *testing.T) {
	f := &fakeFetcher{byMeeting: map[string][]bigbluebutton.RecordingElement{
		"meeting-a": {
			{RecordID: "rec-1", MeetingID: "meeting-a"},
			{RecordID: "rec-2", MeetingID: "meeting-a"},
		},
	}}
	agg := NewAggregator(f, nil, discardLogger())

	set := agg.Fetch(context.Background(), []string{"meeting-a"}, []string{"rec-2"})
	if set.Len() != 1 || set.Get("rec-2") == nil {
		t.Errorf("allow-list should keep only rec-2, got %d", set.Len())
	}
}

func TestAggregator_Fetch_emptyAllowListMeansNoFiltering(t *testing.T) {
	f := &fakeFetcher{byMeeting: map[string][]bigbluebutton.RecordingElement{
		"meeting-a": {{RecordID: "rec-1", MeetingID: "meeting-a"}},
	}}
	agg := NewAggregator(f, nil, discardLogger())

	set := agg.Fetch(context.Background(), []string{"meeting-a"}, []string{})
	if set.Len() != 1 {
		t.Errorf("empty allow-list must mean no filtering, got %d recordings, want 1", set.Len())
	}
}

func TestAggregator_Imported(t *testing.T) {
	protected := true
	meta, _ := MarshalImport(&Recording{RecordID: "rec-1", MeetingID: "meeting-a", Published: true})
	agg := NewAggregator(&fakeFetcher{}, nil, discardLogger())

	set := agg.Imported([]ImportReference{
		{ID: "row-1", Meta: meta, Protected: &protected},
		{ID: "row-2", Meta: []byte("not json")},
	})
	if set.Len() != 1 {
		t.Fatalf("expected 1 restored recording, got %d", set.Len())
	}
	r := set.Get("rec-1")
	if r.Imported != "row-1" {
		t.Errorf("imported marker = %q, want the row id", r.Imported)
	}
	if r.Protected == nil || !*r.Protected {
		t.Error("protection override from the row must win")
	}
}

func TestCombinedView_liveWins(t *testing.T) {
	live := NewSet()
	live.Add(&Recording{RecordID: "rec-1", Name: "live"})
	imported := NewSet()
	imported.Add(&Recording{RecordID: "rec-1", Name: "imported", Imported: "row-1"})
	imported.Add(&Recording{RecordID: "rec-2", Name: "imported only", Imported: "row-2"})

	combined := CombinedView(live, imported, false)
	if combined.Len() != 2 {
		t.Fatalf("expected 2 recordings, got %d", combined.Len())
	}
	if combined.Get("rec-1").Name != "live" {
		t.Error("a live recording must shadow its imported reference")
	}
}

func TestCombinedView_importedOnly(t *testing.T) {
	live := NewSet()
	live.Add(&Recording{RecordID: "rec-1", Name: "live"})
	imported := NewSet()
	imported.Add(&Recording{RecordID: "rec-1", Name: "imported", Imported: "row-1"})

	combined := CombinedView(live, imported, true)
	if combined.Len() != 1 || combined.Get("rec-1").Name != "imported" {
		t.Error("imported-only mode must ignore the live set")
	}
}

func TestSet_SortByStartTime_stable(t *testing.T) {
	set := NewSet()
	set.Add(&Recording{RecordID: "b", StartTime: 200})
	set.Add(&Recording{RecordID: "a1", StartTime: 100})
	set.Add(&Recording{RecordID: "a2", StartTime: 100})

	set.SortByStartTime(false)
	order := ids(set)
	if order != "a1,a2,b" {
		t.Errorf("asc order = %s", order)
	}

	set.SortByStartTime(true)
	order = ids(set)
	if order != "b,a1,a2" {
		t.Errorf("desc order = %s, equal start times must keep relative order", order)
	}
}

func ids(set *Set) string {
	var out []string
	for _, r := range set.All() {
		out = append(out, r.RecordID)
	}
	return strings.Join(out, ",")
}
