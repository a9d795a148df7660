package recordings

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"bbb-recordings-gateway/internal/bigbluebutton"
	"bbb-recordings-gateway/internal/platform/metrics"
)

// fetchPageSize caps the number of meeting ids per getRecordings request.
// Longer id lists blow past URL length limits on some proxies.
const fetchPageSize = 25

// Fetcher retrieves raw recording elements from the remote server.
type Fetcher interface {
	RecordingsByMeetingID(ctx context.Context, meetingIDs []string) []bigbluebutton.RecordingElement
	RecordingsByRecordID(ctx context.Context, recordIDs []string) []bigbluebutton.RecordingElement
}

// Aggregator assembles the full recording set for a view: paged fetches
// against the remote server, breakout-room follow-ups, and the merge of
// imported references from the event-log store.
type Aggregator struct {
	fetcher Fetcher
	metrics *metrics.Metrics
	log     *slog.Logger
}

// NewAggregator returns an Aggregator using the given fetcher.
func NewAggregator(fetcher Fetcher, m *metrics.Metrics, log *slog.Logger) *Aggregator {
	return &Aggregator{fetcher: fetcher, metrics: m, log: log}
}

// Fetch retrieves the recordings of the given meetings. The ids are split
// into pages of at most fetchPageSize, the pages are fetched concurrently,
// and the results are merged in page order so the outcome is deterministic.
// A page whose fetch fails contributes nothing; partial results are better
// than none when the server is flaky. With no meeting ids, no request is
// made at all. A non-empty allowRecordIDs restricts the result to those
// record ids; an empty or nil list means no filtering.
func (a *Aggregator) Fetch(ctx context.Context, meetingIDs []string, allowRecordIDs []string) *Set {
	out := NewSet()
	if len(meetingIDs) == 0 {
		return out
	}

	pages := chunk(meetingIDs, fetchPageSize)
	results := make([]*Set, len(pages))

	g, gctx := errgroup.WithContext(ctx)
	for i, page := range pages {
		i, page := i, page
		g.Go(func() error {
			results[i] = a.fetchPage(gctx, page)
			return nil
		})
	}
	_ = g.Wait()

	for _, page := range results {
		out.Merge(page)
	}
	if len(allowRecordIDs) > 0 {
		allowed := make(map[string]bool, len(allowRecordIDs))
		for _, id := range allowRecordIDs {
			allowed[id] = true
		}
		out = out.Filter(func(r *Recording) bool { return allowed[r.RecordID] })
	}
	return out
}

// fetchPage fetches one page of meeting ids and resolves breakout-room
// recordings referenced by the results. Recordings the server volunteers
// for meetings outside the page are dropped; breakout recordings are kept
// because they are reachable only through their parent.
func (a *Aggregator) fetchPage(ctx context.Context, meetingIDs []string) *Set {
	a.metrics.IncFetchPages()

	els := a.fetcher.RecordingsByMeetingID(ctx, meetingIDs)
	if els == nil {
		a.metrics.IncFetchFailures()
		a.log.Warn("recording page fetch returned nothing", slog.Int("meetings", len(meetingIDs)))
		return NewSet()
	}

	requested := make(map[string]bool, len(meetingIDs))
	for _, id := range meetingIDs {
		requested[id] = true
	}

	page := FromElements(els).Filter(func(r *Recording) bool {
		return requested[r.MeetingID]
	})

	// One follow-up request per parent, carrying every breakout room's
	// record ids at once. The merged union is identical to per-room
	// fetches, with fewer round trips.
	for _, r := range page.All() {
		if len(r.Breakouts) == 0 {
			continue
		}
		children := a.fetcher.RecordingsByRecordID(ctx, r.Breakouts)
		if children == nil {
			a.metrics.IncFetchFailures()
			continue
		}
		page.Merge(FromElements(children))
	}
	return page
}

// ImportReference is the slice of an event-log import row the aggregator
// needs: the row id, the serialized recording, and the optional protection
// override captured at import time.
type ImportReference struct {
	ID        string
	Meta      []byte
	Protected *bool
}

// Imported restores the recordings serialized into import references.
// The row id becomes the recording's Imported marker, and a non-nil
// Protected override replaces the serialized flag. Rows whose payload no
// longer parses are skipped with a warning.
func (a *Aggregator) Imported(refs []ImportReference) *Set {
	out := NewSet()
	for _, ref := range refs {
		r, err := UnmarshalImport(ref.Meta)
		if err != nil || r == nil {
			a.log.Warn("skipping unreadable import reference", slog.String("id", ref.ID))
			continue
		}
		r.Imported = ref.ID
		if ref.Protected != nil {
			v := *ref.Protected
			r.Protected = &v
		}
		out.Add(r)
	}
	return out
}

// CombinedView merges live and imported recordings into the set a view
// shows. Normally a live recording shadows an imported reference with the
// same record id; in imported-only mode the live set is ignored entirely
// and only the references appear.
func CombinedView(live, imported *Set, importedOnly bool) *Set {
	out := NewSet()
	if importedOnly {
		out.Merge(imported)
		return out
	}
	out.Merge(live)
	out.Merge(imported)
	return out
}

func chunk(ids []string, size int) [][]string {
	var pages [][]string
	for len(ids) > size {
		pages = append(pages, ids[:size])
		ids = ids[size:]
	}
	return append(pages, ids)
}
