package client

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Update is one message received from the live view.
type Update struct {
	Username string `json:"username"`
	Content  string `json:"content"`
	File     string `json:"file,omitempty"`
}

// Live reports whether the update is a change rather than part of the
// initial snapshot.
func (u Update) Live() bool { return u.File != "" }

// ViewOptions configures a watch connection.
type ViewOptions struct {
	CookieName string
	Session    string
	Dialer     *websocket.Dialer
}

// View streams the live view of file to handle until ctx is done or the
// server closes the connection. A normal close returns nil.
func View(ctx context.Context, endpoint *Endpoint, file string, opts ViewOptions, handle func(Update)) error {
	dialer := opts.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{HandshakeTimeout: 10 * time.Second, Proxy: http.ProxyFromEnvironment}
	}
	header := http.Header{}
	if opts.Session != "" {
		cookie := &http.Cookie{Name: opts.CookieName, Value: opts.Session}
		header.Set("Cookie", cookie.String())
	}

	conn, resp, err := dialer.DialContext(ctx, endpoint.WatchURL(file), header)
	if err != nil {
		if resp != nil {
			return &StatusError{Status: resp.StatusCode, RetryAfter: retryAfter(resp.Header)}
		}
		return err
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = conn.Close()
	})
	defer stop()

	for {
		var u Update
		if err := conn.ReadJSON(&u); err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		handle(u)
	}
}
