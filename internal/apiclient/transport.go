package apiclient

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/bhandras/starter/internal/logger"
)

// Tracker receives task start/stop notifications. *loading.Registry
// satisfies it.
type Tracker interface {
	StartLoading(task string)
	StopLoading(task string)
}

// TokenSource supplies the current access token. An empty string means the
// request goes out unauthenticated.
type TokenSource interface {
	AccessToken() string
}

type taskIDKey struct{}

// WithTaskID pins the task id used for requests built from ctx. Client sets
// it so the id stays stable across redirects and URL re-encoding.
func WithTaskID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, taskIDKey{}, id)
}

// TaskIDFromContext returns the pinned task id, if any.
func TaskIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(taskIDKey{}).(string)
	return id, ok
}

// Transport is an http.RoundTripper that brackets every request with
// StartLoading/StopLoading on the tracker and attaches the bearer token.
//
// The task is stopped once the response body has been fully read or closed,
// or immediately when the round trip fails.
type Transport struct {
	// Base performs the actual round trip. Defaults to http.DefaultTransport.
	Base http.RoundTripper
	// Tracker is notified of task start/stop. Required.
	Tracker Tracker
	// Tokens, if set, supplies the bearer token.
	Tokens TokenSource
	// TaskID derives task ids for requests without a pinned id. Defaults to
	// MethodURLTaskID.
	TaskID TaskIDFunc
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req
	if t.Tokens != nil && sameOrigin(req) {
		if token := t.Tokens.AccessToken(); token != "" {
			out = req.Clone(req.Context())
			out.Header.Set("Authorization", "Bearer "+token)
		}
	}

	id := t.taskID(out)
	logger.Tracef("apiclient: start %s", id)
	t.Tracker.StartLoading(id)

	resp, err := t.base().RoundTrip(out)
	if err != nil {
		stopID := t.taskID(out)
		logger.Debugf("apiclient: %s failed: %v", stopID, err)
		t.Tracker.StopLoading(stopID)
		return nil, err
	}

	origin := resp.Request
	if origin == nil {
		origin = out
	}
	stopID := t.taskID(origin)
	stop := func() {
		logger.Tracef("apiclient: stop %s (%d)", stopID, resp.StatusCode)
		t.Tracker.StopLoading(stopID)
	}

	if resp.Body == nil || resp.Body == http.NoBody {
		stop()
		return resp, nil
	}
	resp.Body = &trackedBody{ReadCloser: resp.Body, stop: stop}
	return resp, nil
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *Transport) taskID(req *http.Request) string {
	if id, ok := TaskIDFromContext(req.Context()); ok {
		return id
	}
	derive := t.TaskID
	if derive == nil {
		derive = MethodURLTaskID
	}
	return derive(req.Method, req.URL.String())
}

// sameOrigin reports whether req targets the host of the first request in
// its redirect chain. http.Client drops Authorization on cross-host
// redirects and the token must not be put back.
func sameOrigin(req *http.Request) bool {
	first := req
	for first.Response != nil && first.Response.Request != nil {
		first = first.Response.Request
	}
	return strings.EqualFold(first.URL.Host, req.URL.Host)
}

// trackedBody stops its task on EOF, on a read error, or on Close, whichever
// comes first.
type trackedBody struct {
	io.ReadCloser
	once sync.Once
	stop func()
}

func (b *trackedBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	if err != nil {
		b.once.Do(b.stop)
	}
	return n, err
}

func (b *trackedBody) Close() error {
	err := b.ReadCloser.Close()
	b.once.Do(b.stop)
	return err
}
