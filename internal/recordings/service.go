package recordings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"bbb-recordings-gateway/internal/platform/config"
	"bbb-recordings-gateway/internal/platform/metrics"
	"bbb-recordings-gateway/internal/storage"
)

// RemoteServer is the full remote surface the service drives: recording
// fetches, the version probe, mutations, and resource probing.
type RemoteServer interface {
	Fetcher
	URLChecker
	ServerVersion(ctx context.Context) string
	PublishRecordings(ctx context.Context, recordIDs []string, publish bool) error
	DeleteRecordings(ctx context.Context, recordIDs []string) error
	UpdateRecordings(ctx context.Context, recordIDs []string, params map[string]string) error
}

// Store is the slice of the event-log store the service reads and writes.
type Store interface {
	Activity(ctx context.Context, id int64) (*storage.Activity, error)
	MeetingIDs(ctx context.Context, courseID, activityID int64, subset, includeDeleted bool) ([]string, error)
	ImportRows(ctx context.Context, courseID, activityID int64, subset bool) ([]storage.ImportRow, error)
	InsertLog(ctx context.Context, row *storage.ImportRow, event string) error
	CountImports(ctx context.Context, recordID string) (int, error)
}

// ErrRecordingNotFound is returned when a record id resolves to nothing on
// the remote server.
var ErrRecordingNotFound = errors.New("recording not found")

// EnabledFeatures is the per-activity feature resolution: the activity type
// selects a profile, and the deployment-wide toggles can switch recordings
// and import off regardless of profile.
type EnabledFeatures struct {
	ShowRoom         bool
	ShowRecordings   bool
	ImportRecordings bool
}

// Service implements the recording operations the HTTP surface exposes.
type Service struct {
	server    RemoteServer
	store     Store
	agg       *Aggregator
	projector *Projector
	cfg       *config.Config
	metrics   *metrics.Metrics
	log       *slog.Logger
	now       func() time.Time
}

// NewService wires a Service from its dependencies.
func NewService(server RemoteServer, store Store, cfg *config.Config, m *metrics.Metrics, log *slog.Logger) *Service {
	s := &Service{
		server:  server,
		store:   store,
		agg:     NewAggregator(server, m, log),
		cfg:     cfg,
		metrics: m,
		log:     log,
		now:     time.Now,
	}
	s.projector = NewProjector(ProjectorOptions{
		PlayerBasePath: cfg.Recordings.PlayerBasePath,
		ValidateURLs:   cfg.Recordings.ValidateURLs,
		TrustedServer:  cfg.BBB.TrustedServer,
		ServerHost:     serverHost(cfg.BBB.ServerURL),
		Checker:        server,
		ImportCount: func(ctx context.Context, recordID string) int {
			n, err := store.CountImports(ctx, recordID)
			if err != nil {
				log.Warn("import count failed", slog.String("recordID", recordID), slog.String("error", err.Error()))
				return 0
			}
			return n
		},
	})
	return s
}

func serverHost(serverURL string) string {
	u, err := url.Parse(serverURL)
	if err != nil {
		return ""
	}
	return u.Host
}

// Features resolves the enabled features of one activity.
func (s *Service) Features(a *storage.Activity) EnabledFeatures {
	f := EnabledFeatures{
		ShowRoom: a.Type == storage.TypeAll || a.Type == storage.TypeRoomOnly,
	}
	if s.cfg.Recordings.Enabled {
		f.ShowRecordings = a.Type == storage.TypeAll || a.Type == storage.TypeRecordingOnly
	}
	if s.cfg.Recordings.ImportEnabled {
		f.ImportRecordings = a.Type == storage.TypeAll || a.Type == storage.TypeRecordingOnly
	}
	return f
}

// ActivityStatus derives the open/not_started/ended status from the
// activity's opening and closing times.
func (s *Service) ActivityStatus(a *storage.Activity) string {
	now := s.now().Unix()
	if a.OpeningTime != 0 && now < a.OpeningTime {
		return StatusNotStarted
	}
	if a.ClosingTime != 0 && now > a.ClosingTime {
		return StatusEnded
	}
	return StatusOpen
}

func profileFeatures(activityType int) []string {
	switch activityType {
	case storage.TypeRoomOnly:
		return []string{"showroom"}
	case storage.TypeRecordingOnly:
		return []string{"showrecordings", "importrecordings"}
	default:
		return []string{"all"}
	}
}

// TableData assembles the full table payload for one activity and caller:
// the merged recording set projected into rows, plus the widget metadata
// the front end polls for.
func (s *Service) TableData(ctx context.Context, activityID int64, caller Caller) (*TableData, error) {
	activity, err := s.store.Activity(ctx, activityID)
	if err != nil {
		return nil, fmt.Errorf("load activity %d: %w", activityID, err)
	}

	features := s.Features(activity)
	td := &TableData{
		ActivityID:     activity.ID,
		Status:         s.ActivityStatus(activity),
		PingInterval:   s.cfg.Server.PingInterval * 1000,
		Locale:         s.cfg.Server.Locale,
		Profile:        profileFeatures(activity.Type),
		RecordingsHTML: activity.RecordingsHTML,
		Data:           "[]",
	}
	if !features.ShowRecordings {
		td.Columns = []Column{}
		return td, nil
	}

	set, err := s.recordingsForView(ctx, activity, features)
	if err != nil {
		return nil, err
	}
	set.SortByStartTime(s.cfg.SortDesc())

	view := s.viewContext(ctx, activity, caller)
	if view.ServerVersion == "" {
		td.Warnings = append(td.Warnings, "recording server unreachable, listing may be incomplete")
	}
	rows := s.projector.Rows(ctx, set, view)
	s.metrics.AddRecordingsListed(len(rows))

	encoded, err := json.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("encode table rows: %w", err)
	}
	if len(rows) > 0 {
		td.Data = string(encoded)
	}
	td.Columns = tableColumns(view)
	return td, nil
}

// recordingsForView fetches the live recordings the activity can see and
// merges in imported references. A room-only view restricts the fetch to
// the activity's own meeting; a recordings-only view pulls from the whole
// course.
func (s *Service) recordingsForView(ctx context.Context, activity *storage.Activity, features EnabledFeatures) (*Set, error) {
	subset := features.ShowRoom
	scopeActivityID := int64(0)
	if subset {
		scopeActivityID = activity.ID
	}

	meetingIDs, err := s.store.MeetingIDs(ctx, activity.CourseID, scopeActivityID, subset, activity.RecordingsDeleted)
	if err != nil {
		return nil, fmt.Errorf("resolve meeting ids: %w", err)
	}
	live := s.agg.Fetch(ctx, meetingIDs, nil)

	if !features.ImportRecordings {
		return live, nil
	}
	rows, err := s.store.ImportRows(ctx, activity.CourseID, activity.ID, true)
	if err != nil {
		return nil, fmt.Errorf("load import references: %w", err)
	}
	imported := s.agg.Imported(importReferences(rows))
	return CombinedView(live, imported, activity.RecordingsImported), nil
}

func importReferences(rows []storage.ImportRow) []ImportReference {
	refs := make([]ImportReference, 0, len(rows))
	for _, row := range rows {
		ref := ImportReference{ID: row.ID, Meta: row.Meta}
		if row.Protected.Valid {
			protected := row.Protected.String == "true"
			ref.Protected = &protected
		}
		refs = append(refs, ref)
	}
	return refs
}

func (s *Service) viewContext(ctx context.Context, activity *storage.Activity, caller Caller) ViewContext {
	version := s.server.ServerVersion(ctx)
	meetingID := activity.MeetingID
	if caller.Group != "" {
		meetingID += "[" + caller.Group + "]"
	}
	previewEnabled := false
	if v, err := strconv.ParseFloat(version, 64); err == nil && v >= 1.0 {
		previewEnabled = activity.RecordingsPreview
	}
	return ViewContext{
		ActivityID:     activity.ID,
		MeetingID:      meetingID,
		GroupsVisible:  activity.GroupMode == 2,
		PreviewEnabled: previewEnabled,
		ServerVersion:  version,
		Caller:         caller,
	}
}

func tableColumns(view ViewContext) []Column {
	columns := []Column{
		{Data: "playback", Title: "Playback", Width: "125px", Type: "html"},
		{Data: "recording", Title: "Name", Width: "125px", Type: "html"},
		{Data: "description", Title: "Description", Width: "250px", Type: "html"},
	}
	if view.PreviewEnabled {
		columns = append(columns, Column{Data: "preview", Title: "Preview", Width: "250px", Type: "html"})
	}
	columns = append(columns,
		Column{Data: "date_formatted", Title: "Date", Width: "225px"},
		Column{Data: "duration_formatted", Title: "Duration", Width: "50px"},
	)
	if view.Caller.CanManage() {
		columns = append(columns, Column{Data: "actionbar", Title: "Toolbar", Width: "120px", Type: "html"})
	}
	return columns
}

// Publish sets or clears the published flag of one recording.
func (s *Service) Publish(ctx context.Context, recordID string, publish bool) error {
	if err := s.server.PublishRecordings(ctx, []string{recordID}, publish); err != nil {
		return err
	}
	s.metrics.IncMutations("publish")
	return nil
}

// Delete removes one recording from the remote server. Import references
// pointing at it are left in place; they surface as dead links the front
// end already copes with.
func (s *Service) Delete(ctx context.Context, recordID string) error {
	if err := s.server.DeleteRecordings(ctx, []string{recordID}); err != nil {
		return err
	}
	s.metrics.IncMutations("delete")
	return nil
}

// Protect sets or clears the protected flag of one recording.
func (s *Service) Protect(ctx context.Context, recordID string, protect bool) error {
	params := map[string]string{"protect": strconv.FormatBool(protect)}
	if err := s.server.UpdateRecordings(ctx, []string{recordID}, params); err != nil {
		return err
	}
	s.metrics.IncMutations("update")
	return nil
}

// editTargets maps inline-editable fields to the metadata key each one
// writes through to.
var editTargets = map[string]string{
	"name":        "meta_" + MetaName,
	"description": "meta_" + MetaDescription,
}

// Edit updates the name or description metadata of one recording.
func (s *Service) Edit(ctx context.Context, recordID, target, value string) error {
	key, ok := editTargets[target]
	if !ok {
		return fmt.Errorf("unknown edit target %q", target)
	}
	if err := s.server.UpdateRecordings(ctx, []string{recordID}, map[string]string{key: value}); err != nil {
		return err
	}
	s.metrics.IncMutations("update")
	return nil
}

// Import links one remote recording into an activity: the recording is
// fetched, serialized, and stored as an import reference row whose id
// becomes the reference's imported marker.
func (s *Service) Import(ctx context.Context, activityID int64, recordID string) (*storage.ImportRow, error) {
	activity, err := s.store.Activity(ctx, activityID)
	if err != nil {
		return nil, fmt.Errorf("load activity %d: %w", activityID, err)
	}

	els := s.server.RecordingsByRecordID(ctx, []string{recordID})
	recording := FromElements(els).Get(recordID)
	if recording == nil {
		return nil, ErrRecordingNotFound
	}

	meta, err := MarshalImport(recording)
	if err != nil {
		return nil, fmt.Errorf("serialize recording %s: %w", recordID, err)
	}
	row := &storage.ImportRow{
		CourseID:   activity.CourseID,
		ActivityID: activity.ID,
		MeetingID:  recording.MeetingID,
		RecordID:   recording.RecordID,
		Meta:       meta,
	}
	if err := s.store.InsertLog(ctx, row, storage.LogEventImport); err != nil {
		return nil, fmt.Errorf("store import reference: %w", err)
	}
	s.metrics.IncMutations("import")
	s.log.Info("recording imported",
		slog.String("recordID", recordID),
		slog.Int64("activityID", activityID),
		slog.String("referenceID", row.ID))
	return row, nil
}
