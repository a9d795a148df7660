package bigbluebutton

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultTimeout = 30 * time.Second
	probeTimeout   = 2 * time.Second
)

// Client performs signed requests against one BigBlueButton server.
// All fetch-shaped calls degrade to "no result" on transport or parse
// failure; remote servers are routinely slow or transiently unavailable, so
// absence of data is an expected outcome, not a fault.
type Client struct {
	endpoint Endpoint
	http     *http.Client
	probe    *http.Client
	log      *slog.Logger
}

// NewClient returns a Client for the given server URL and shared secret.
func NewClient(serverURL, sharedSecret string, log *slog.Logger) *Client {
	return &Client{
		endpoint: Endpoint{ServerURL: serverURL, SharedSecret: sharedSecret},
		http:     &http.Client{Timeout: defaultTimeout},
		probe:    &http.Client{Timeout: probeTimeout},
		log:      log,
	}
}

// Endpoint returns the endpoint this client signs requests for.
func (c *Client) Endpoint() Endpoint {
	return c.endpoint
}

// load performs one request and decodes the XML body. It returns nil on any
// transport, status, or parse failure; callers must treat nil as "server
// unreachable or errored" without distinguishing the cause. POST with a body
// sets Content-Type and Content-Length explicitly.
func (c *Client) load(ctx context.Context, rawURL, method string, body string, contentType string) *response {
	var reader io.Reader
	if method == http.MethodPost && body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		c.log.Warn("bbb request build failed", slog.String("error", err.Error()))
		return nil
	}
	if reader != nil {
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Content-Length", strconv.Itoa(len(body)))
		req.ContentLength = int64(len(body))
	}

	res, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("bbb request failed", slog.String("method", method), slog.String("error", err.Error()))
		return nil
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		c.log.Warn("bbb unexpected status", slog.Int("status", res.StatusCode))
		return nil
	}

	var parsed response
	if err := xml.NewDecoder(res.Body).Decode(&parsed); err != nil {
		c.log.Warn("bbb response parse failed", slog.String("error", err.Error()))
		return nil
	}
	return &parsed
}

// get runs one signed GET action and returns the decoded response, or nil.
func (c *Client) get(ctx context.Context, action string, params url.Values) *response {
	return c.load(ctx, c.endpoint.ActionURL(action, params, nil), http.MethodGet, "", "")
}

// RecordingsByMeetingID fetches the recordings of the given meetings.
// A nil slice means the server was unreachable or answered without
// recordings; the two are indistinguishable at this layer.
func (c *Client) RecordingsByMeetingID(ctx context.Context, meetingIDs []string) []RecordingElement {
	return c.recordings(ctx, url.Values{"meetingID": {strings.Join(meetingIDs, ",")}})
}

// RecordingsByRecordID fetches recordings by explicit record id, used for
// breakout-room follow-up requests.
func (c *Client) RecordingsByRecordID(ctx context.Context, recordIDs []string) []RecordingElement {
	return c.recordings(ctx, url.Values{"recordID": {strings.Join(recordIDs, ",")}})
}

func (c *Client) recordings(ctx context.Context, filter url.Values) []RecordingElement {
	res := c.get(ctx, "getRecordings", filter)
	if res == nil || res.ReturnCode != ReturnCodeSuccess {
		return nil
	}
	return res.Recordings
}

// ServerVersion probes the API root and returns the reported server version,
// or the empty string when the server is unreachable.
func (c *Client) ServerVersion(ctx context.Context) string {
	res := c.get(ctx, "", nil)
	if res == nil || res.ReturnCode != ReturnCodeSuccess {
		return ""
	}
	return res.Version
}

// PublishRecordings sets the published flag on each given recording.
// The first non-SUCCESS answer fails the whole batch; ids already processed
// stay applied remotely, the API has no transaction concept.
func (c *Client) PublishRecordings(ctx context.Context, recordIDs []string, publish bool) error {
	for _, id := range recordIDs {
		res := c.get(ctx, "publishRecordings", url.Values{
			"recordID": {id},
			"publish":  {strconv.FormatBool(publish)},
		})
		if err := mutationError("publishRecordings", id, res); err != nil {
			return err
		}
	}
	return nil
}

// DeleteRecordings deletes each given recording, with the same batch
// semantics as PublishRecordings.
func (c *Client) DeleteRecordings(ctx context.Context, recordIDs []string) error {
	for _, id := range recordIDs {
		res := c.get(ctx, "deleteRecordings", url.Values{"recordID": {id}})
		if err := mutationError("deleteRecordings", id, res); err != nil {
			return err
		}
	}
	return nil
}

// UpdateRecordings applies the given parameters (typically meta_* entries or
// the protect flag) to each given recording, with the same batch semantics as
// PublishRecordings.
func (c *Client) UpdateRecordings(ctx context.Context, recordIDs []string, params map[string]string) error {
	for _, id := range recordIDs {
		values := url.Values{"recordID": {id}}
		for k, v := range params {
			values.Set(k, v)
		}
		res := c.get(ctx, "updateRecordings", values)
		if err := mutationError("updateRecordings", id, res); err != nil {
			return err
		}
	}
	return nil
}

// CheckURL reports whether a HEAD request to rawURL answers 200 within the
// probe timeout. Used to validate playback resource hosts.
func (c *Client) CheckURL(ctx context.Context, rawURL string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return false
	}
	res, err := c.probe.Do(req)
	if err != nil {
		return false
	}
	defer res.Body.Close()
	return res.StatusCode == http.StatusOK
}

func mutationError(action, recordID string, res *response) error {
	if res == nil {
		return fmt.Errorf("%s %s: no response from server", action, recordID)
	}
	if res.ReturnCode != ReturnCodeSuccess {
		if res.MessageKey != "" {
			return fmt.Errorf("%s %s: %s", action, recordID, res.MessageKey)
		}
		return fmt.Errorf("%s %s: returncode %s", action, recordID, res.ReturnCode)
	}
	return nil
}
