package recordings

import (
	"context"
	"fmt"
	"html"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ViewContext carries the per-request facts row projection depends on: the
// viewing activity, the caller, and what the remote server supports.
type ViewContext struct {
	ActivityID     int64
	MeetingID      string // activity meeting id, including the group suffix when a group filter is active
	GroupsVisible  bool   // visible-groups mode shows every group's recordings
	PreviewEnabled bool
	ServerVersion  string
	Caller         Caller
}

// Editable reports whether inline name and description editing is offered.
// Older servers reject updateRecordings metadata, so editing requires at
// least a 1.0 server unless the deployment marks the server as trusted.
func (v ViewContext) Editable(trustedServer bool) bool {
	if !v.Caller.CanManage() {
		return false
	}
	if trustedServer {
		return true
	}
	version, err := strconv.ParseFloat(v.ServerVersion, 64)
	return err == nil && version >= 1.0
}

// Include reports whether the recording appears in the caller's table at
// all. Unpublished recordings are manager-only; imported references and
// privileged callers always pass; with an active group filter, recordings
// of other meetings are hidden.
func Include(r *Recording, v ViewContext) bool {
	if !r.Published && !v.Caller.CanManage() {
		return false
	}
	if r.Imported != "" {
		return true
	}
	if v.Caller.Privileged() {
		return true
	}
	if v.Caller.Group != "" && r.MeetingID != v.MeetingID {
		return false
	}
	return true
}

// VisibleToCaller applies the group refinement: in separate-groups mode an
// unprivileged caller only sees recordings of groups they belong to. The
// group id rides in the meeting id as a "[groupid]" suffix.
func VisibleToCaller(r *Recording, v ViewContext) bool {
	if v.GroupsVisible || v.Caller.Privileged() {
		return true
	}
	groupID, ok := groupSuffix(r.MeetingID)
	if !ok {
		return true
	}
	return v.Caller.InGroup(groupID)
}

func groupSuffix(meetingID string) (string, bool) {
	open := strings.Index(meetingID, "[")
	if open < 0 {
		return "", false
	}
	rest := meetingID[open+1:]
	end := strings.Index(rest, "]")
	if end < 0 {
		return "", false
	}
	return rest[:end], true
}

// IncludePlayback reports whether one playback format is offered to the
// caller. Everything except statistics is open; statistics are withheld
// from imported references and from unprivileged callers, unless the
// server explicitly unrestricted the format.
func IncludePlayback(r *Recording, p *Playback, v ViewContext) bool {
	if p.Restricted != nil && !*p.Restricted {
		return true
	}
	if p.Type != FormatStatistics {
		return true
	}
	if r.Imported != "" {
		return false
	}
	return v.Caller.Privileged()
}

// URLChecker probes whether a remote resource answers a HEAD request.
type URLChecker interface {
	CheckURL(ctx context.Context, rawURL string) bool
}

// ProjectorOptions configures a Projector.
type ProjectorOptions struct {
	PlayerBasePath string
	ValidateURLs   bool
	TrustedServer  bool
	ServerHost     string // playback URLs on this host skip validation
	Checker        URLChecker
	ImportCount    func(ctx context.Context, recordID string) int
}

// Projector renders recordings into table rows. Playback URL hosts are
// validated at most once per host; the verdict is cached for the lifetime
// of the projector.
type Projector struct {
	opts ProjectorOptions

	mu        sync.Mutex
	validated map[string]bool
}

// NewProjector returns a Projector with the given options.
func NewProjector(opts ProjectorOptions) *Projector {
	return &Projector{opts: opts, validated: make(map[string]bool)}
}

// Rows projects every visible recording of the set into table rows,
// preserving the set's order.
func (p *Projector) Rows(ctx context.Context, set *Set, v ViewContext) []TableRow {
	var rows []TableRow
	for _, r := range set.All() {
		if row := p.Row(ctx, r, v); row != nil {
			rows = append(rows, *row)
		}
	}
	return rows
}

// Row projects one recording, or returns nil when the caller must not see it.
func (p *Projector) Row(ctx context.Context, r *Recording, v ViewContext) *TableRow {
	if !Include(r, v) || !VisibleToCaller(r, v) {
		return nil
	}

	editable := v.Editable(p.opts.TrustedServer)
	row := &TableRow{
		RecordID:    r.RecordID,
		MeetingID:   r.MeetingID,
		Playback:    p.playbackHTML(ctx, r, v),
		Recording:   p.nameHTML(r, editable),
		Description: p.descriptionHTML(r, editable),
		Date:        r.StartTime,
		Published:   strconv.FormatBool(r.Published),
	}
	if v.PreviewEnabled {
		row.Preview = p.previewHTML(ctx, r)
	}
	row.DateFormatted = formatStartTime(r.StartTime)
	row.Duration = duration(r)
	row.DurationFormatted = strconv.FormatInt(row.Duration, 10)
	if r.Protected != nil {
		row.Protected = strconv.FormatBool(*r.Protected)
	}
	if v.Caller.CanManage() {
		row.ActionBar = p.actionBarHTML(ctx, r)
	}
	return row
}

// duration takes the length of the first unrestricted playback that reports
// one, in minutes as the server counts them.
func duration(r *Recording) int64 {
	for i := range r.Playbacks {
		pb := &r.Playbacks[i]
		if pb.IsRestricted() || pb.Length == "" {
			continue
		}
		if n, err := strconv.ParseInt(pb.Length, 10, 64); err == nil {
			return n
		}
	}
	return 0
}

// formatStartTime renders a millisecond timestamp, truncated to the second.
func formatStartTime(ms int64) string {
	if ms == 0 {
		return ""
	}
	t := time.UnixMilli(ms - ms%1000).UTC()
	return t.Format("Mon, 2 Jan 2006, 3:04 PM MST")
}

// DisplayName resolves the name shown for a recording: the recording-name
// metadata first, then the legacy activity metadata, then the server-side
// meeting name.
func DisplayName(r *Recording) string {
	if name := strings.TrimSpace(r.Meta(MetaName)); name != "" {
		return name
	}
	if name := strings.TrimSpace(r.Meta(MetaLegacyActivity)); name != "" {
		return name
	}
	return strings.TrimSpace(r.Name)
}

// DisplayDescription resolves the description shown for a recording, with
// the same new-over-legacy preference as DisplayName.
func DisplayDescription(r *Recording) string {
	if d := strings.TrimSpace(r.Meta(MetaDescription)); d != "" {
		return d
	}
	return strings.TrimSpace(r.Meta(MetaLegacyDescription))
}

func (p *Projector) nameHTML(r *Recording, editable bool) string {
	return p.textHTML(r, DisplayName(r), "name", editable)
}

func (p *Projector) descriptionHTML(r *Recording, editable bool) string {
	return p.textHTML(r, DisplayDescription(r), "description", editable)
}

// textHTML renders a text cell; for editable cells the text is wrapped with
// an inline edit control targeting the given field.
func (p *Projector) textHTML(r *Recording, text, target string, editable bool) string {
	span := "<span>" + html.EscapeString(text) + "</span>"
	if !editable {
		return span
	}
	var b strings.Builder
	fmt.Fprintf(&b, `<div id="recording-edit-%s-%s" class="quickeditlink" data-recordingid="%s" data-meetingid="%s" data-target="%s">`,
		target, html.EscapeString(r.RecordID), html.EscapeString(r.RecordID), html.EscapeString(r.MeetingID), target)
	b.WriteString(span)
	b.WriteString(p.buttonHTML(r, actionButton{Action: "edit", Tag: "edit", Target: target}, -1))
	b.WriteString("</div>")
	return b.String()
}

func (p *Projector) playbackHTML(ctx context.Context, r *Recording, v ViewContext) string {
	var b strings.Builder
	hidden := ""
	if !r.Published {
		hidden = ` hidden`
	}
	fmt.Fprintf(&b, `<div id="playbacks-%s" data-imported="%t" data-meetingid="%s" data-recordingid="%s"%s>`,
		html.EscapeString(r.RecordID), r.Imported != "", html.EscapeString(r.MeetingID), html.EscapeString(r.RecordID), hidden)
	for i := range r.Playbacks {
		pb := &r.Playbacks[i]
		if !IncludePlayback(r, pb, v) {
			continue
		}
		b.WriteString(p.playbackLinkHTML(ctx, r, pb, v))
	}
	b.WriteString("</div>")
	return b.String()
}

func (p *Projector) playbackLinkHTML(ctx context.Context, r *Recording, pb *Playback, v ViewContext) string {
	href := p.playURL(r, pb, v)
	class := "btn btn-sm btn-default"
	dataHref := ` data-href="` + html.EscapeString(href) + `"`
	if !p.validResource(ctx, pb.URL) {
		// Unreachable hosts keep the button visible but inert.
		class = "btn btn-sm btn-warning"
		dataHref = ""
	}
	return fmt.Sprintf(`<a id="recording-play-%s-%s" class="%s" data-action="play" data-target="%s"%s>%s</a> `,
		html.EscapeString(pb.Type), html.EscapeString(r.RecordID), class, html.EscapeString(pb.Type), dataHref,
		html.EscapeString(formatTypeText(pb.Type)))
}

// playURL builds the player URL for one playback format. The direct
// playback href is withheld for protected imported references; the player
// re-resolves those server side.
func (p *Projector) playURL(r *Recording, pb *Playback, v ViewContext) string {
	u := fmt.Sprintf("%s?action=play&bn=%d&mid=%s&rid=%s&rtype=%s",
		p.opts.PlayerBasePath, v.ActivityID, url.QueryEscape(r.MeetingID), url.QueryEscape(r.RecordID), url.QueryEscape(pb.Type))
	if r.Imported == "" || r.Protected == nil || !*r.Protected {
		u += "&href=" + url.QueryEscape(strings.TrimSpace(pb.URL))
	}
	return u
}

func formatTypeText(playbackType string) string {
	switch playbackType {
	case FormatPresentation:
		return "Presentation"
	case FormatStatistics:
		return "Statistics"
	case "video":
		return "Video"
	case "podcast":
		return "Podcast"
	case "notes":
		return "Notes"
	case "capture":
		return "Capture"
	}
	if playbackType == "" {
		return ""
	}
	return strings.ToUpper(playbackType[:1]) + playbackType[1:]
}

func (p *Projector) previewHTML(ctx context.Context, r *Recording) string {
	var b strings.Builder
	hidden := ""
	if !r.Published {
		hidden = ` hidden`
	}
	fmt.Fprintf(&b, `<div id="preview-%s"%s>`, html.EscapeString(r.RecordID), hidden)
	for i := range r.Playbacks {
		if len(r.Playbacks[i].Previews) > 0 {
			b.WriteString(p.previewImagesHTML(ctx, &r.Playbacks[i]))
			break
		}
	}
	b.WriteString("</div>")
	return b.String()
}

// previewImagesHTML renders the thumbnails of one playback. A single
// unreachable image host suppresses the whole strip; a partial strip looks
// broken in the table.
func (p *Projector) previewImagesHTML(ctx context.Context, pb *Playback) string {
	var b strings.Builder
	b.WriteString(`<div class="container-fluid"><div class="row">`)
	for _, img := range pb.Previews {
		src := strings.TrimSpace(img.URL)
		if !p.validResource(ctx, src) {
			return ""
		}
		fmt.Fprintf(&b, `<div><img src="%s" class="recording-thumbnail"></div>`, html.EscapeString(src))
	}
	b.WriteString(`</div></div>`)
	return b.String()
}

type actionButton struct {
	Action   string
	Tag      string
	Target   string
	Disabled string // "disabled" or "invisible"
}

func (p *Projector) actionBarHTML(ctx context.Context, r *Recording) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<div id="recording-actionbar-%s" data-recordingid="%s" data-meetingid="%s">`,
		html.EscapeString(r.RecordID), html.EscapeString(r.RecordID), html.EscapeString(r.MeetingID))

	importCount := -1
	if r.Imported == "" && p.opts.ImportCount != nil {
		importCount = p.opts.ImportCount(ctx, r.RecordID)
	}
	for _, tool := range []string{"protect", "publish", "delete"} {
		btn := buttonForTool(r, tool)
		b.WriteString(p.buttonHTML(r, btn, importCount))
	}
	b.WriteString("</div>")
	return b.String()
}

// buttonForTool resolves the toggle state for one action bar tool. The
// protect button is disabled on imported references and hidden entirely
// when the server never reported a protected flag.
func buttonForTool(r *Recording, tool string) actionButton {
	var btn actionButton
	switch tool {
	case "protect":
		if r.Protected != nil && *r.Protected {
			btn = actionButton{Action: "unprotect", Tag: "lock"}
		} else {
			btn = actionButton{Action: "protect", Tag: "unlock"}
		}
		if r.Imported != "" {
			btn.Disabled = "disabled"
		}
		if r.Protected == nil {
			btn.Disabled = "invisible"
		}
	case "publish":
		if r.Published {
			btn = actionButton{Action: "unpublish", Tag: "hide"}
		} else {
			btn = actionButton{Action: "publish", Tag: "show"}
		}
	default:
		btn = actionButton{Action: tool, Tag: tool}
	}
	return btn
}

// buttonHTML renders one action link. importCount, when non-negative, is
// attached so the client can warn before destroying a recording other
// activities still link to.
func (p *Projector) buttonHTML(r *Recording, btn actionButton, importCount int) string {
	target := btn.Action
	if btn.Target != "" {
		target += "-" + btn.Target
	}
	id := fmt.Sprintf("recording-%s-%s", target, r.RecordID)

	var attrs strings.Builder
	fmt.Fprintf(&attrs, ` id="%s" data-action="%s"`, html.EscapeString(id), html.EscapeString(btn.Action))
	if importCount >= 0 {
		fmt.Fprintf(&attrs, ` data-links="%d"`, importCount)
	}
	class := "action-icon icon-" + btn.Tag
	if btn.Disabled == "disabled" {
		class += " disabled"
	}
	if btn.Disabled == "invisible" {
		class += " invisible"
	}
	return fmt.Sprintf(`<a%s class="%s">%s</a>`, attrs.String(), class, html.EscapeString(btn.Action))
}

// validResource reports whether a playback or preview URL is safe to offer.
// The configured server's own host is always trusted; other hosts are
// HEAD-probed once and the verdict cached by host.
func (p *Projector) validResource(ctx context.Context, rawURL string) bool {
	if !p.opts.ValidateURLs || p.opts.TrustedServer {
		return true
	}
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return false
	}
	if u.Host == p.opts.ServerHost {
		return true
	}

	p.mu.Lock()
	verdict, seen := p.validated[u.Host]
	p.mu.Unlock()
	if seen {
		return verdict
	}

	verdict = p.opts.Checker != nil && p.opts.Checker.CheckURL(ctx, rawURL)

	p.mu.Lock()
	p.validated[u.Host] = verdict
	p.mu.Unlock()
	return verdict
}
