// Package bigbluebutton is a thin client for the BigBlueButton management
// API: checksum-signed request URLs, XML response decoding, and the handful
// of recording actions the gateway forwards.
package bigbluebutton

import (
	"crypto/sha1"
	"encoding/hex"
	"net/url"
	"strings"
)

// Endpoint holds the two configuration values every signed request needs.
// Both come from the host configuration store; the client never mutates them.
type Endpoint struct {
	ServerURL    string
	SharedSecret string
}

// APIBase returns the server URL normalized to end in "/api/": surrounding
// whitespace, a trailing slash, and a trailing "/api" segment are removed
// before the suffix is appended.
func (e Endpoint) APIBase() string {
	base := strings.TrimSpace(e.ServerURL)
	base = strings.TrimSuffix(base, "/")
	base = strings.TrimSuffix(base, "/api")
	return base + "/api/"
}

// ActionURL builds a fully qualified, checksum-signed URL for the given API
// action. Metadata keys are prefixed "meta_" before being merged into the
// query; an empty metadata map adds nothing. The checksum is
// sha1(action + query + secret), which is what the server verifies.
func (e Endpoint) ActionURL(action string, params url.Values, metadata map[string]string) string {
	query := url.Values{}
	for k, vs := range params {
		for _, v := range vs {
			query.Add(k, v)
		}
	}
	for k, v := range metadata {
		query.Set("meta_"+k, v)
	}
	encoded := query.Encode()

	sum := sha1.Sum([]byte(action + encoded + strings.TrimSpace(e.SharedSecret)))
	checksum := hex.EncodeToString(sum[:])

	u := e.APIBase() + action + "?"
	if encoded != "" {
		u += encoded + "&"
	}
	return u + "checksum=" + checksum
}
