// Package client implements the student-side companion: it finds marked
// files, links to a browser identity and pushes every saved version.
package client

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Endpoint addresses one exercise on the server. It is parsed from the URL
// written into activation markers: <host>/<course>/<section>/<exercise>.
type Endpoint struct {
	Base     string // <host>/<course>/<section>
	Course   string
	Section  string
	Exercise string
	raw      string
}

// ParseEndpoint splits an exercise URL into its parts.
func ParseEndpoint(raw string) (*Endpoint, error) {
	raw = strings.TrimRight(raw, "/")
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse exercise url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("exercise url must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, errors.New("exercise url has no host")
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) < 3 {
		return nil, fmt.Errorf("exercise url %q must end in /<course>/<section>/<exercise>", raw)
	}
	n := len(segments)
	for _, s := range segments[n-3:] {
		if s == "" {
			return nil, fmt.Errorf("exercise url %q has an empty segment", raw)
		}
	}
	return &Endpoint{
		Base:     strings.TrimSuffix(raw, "/"+segments[n-1]),
		Course:   segments[n-3],
		Section:  segments[n-2],
		Exercise: segments[n-1],
		raw:      raw,
	}, nil
}

// String returns the exercise URL as found in markers.
func (e *Endpoint) String() string { return e.raw }

// StartURL is the page the student opens in a browser to confirm a link.
func (e *Endpoint) StartURL(ticket string) string {
	return e.Base + "/start/" + url.PathEscape(ticket)
}

// AwaitURL is polled by the client until the link is confirmed.
func (e *Endpoint) AwaitURL(ticket string) string {
	return e.Base + "/await/" + url.PathEscape(ticket)
}

// PushURL receives new versions of file.
func (e *Endpoint) PushURL(file, token string) string {
	return e.Base + "/push/" + url.PathEscape(e.Exercise) + "/" + url.PathEscape(file) + "/" + url.PathEscape(token)
}

// PullURL returns the caller's latest stored version of file.
func (e *Endpoint) PullURL(file, token string) string {
	return e.Base + "/pull/" + url.PathEscape(e.Exercise) + "/" + url.PathEscape(file) + "/" + url.PathEscape(token)
}

// WatchURL is the WebSocket address of the live view of file.
func (e *Endpoint) WatchURL(file string) string {
	base := e.Base
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/watch/" + url.PathEscape(e.Exercise) + "/" + url.PathEscape(file)
}
