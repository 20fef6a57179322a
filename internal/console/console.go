// Package console runs ad-hoc API calls and renders their results, for
// exercising the client against the backend or third-party URLs.
package console

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bhandras/starter/internal/apiclient"
	"github.com/bhandras/starter/internal/loading"
)

// DefaultLoadingText is shown while a watched call is in flight.
const DefaultLoadingText = "Processing request..."

// Methods lists the methods the console accepts, in display order.
var Methods = []string{
	http.MethodGet,
	http.MethodPost,
	http.MethodPut,
	http.MethodDelete,
	http.MethodPatch,
}

// Input is one console call.
type Input struct {
	Address string
	Method  string
	// Body is JSON text. It is ignored for GET.
	Body string
	// Timeout overrides the client timeout when non-zero.
	Timeout time.Duration
}

// Result is the outcome of a console call. Exactly one of Data and Error is
// set once the call has finished.
type Result struct {
	Address string
	Method  string
	// Data is the response body, indented when it is JSON.
	Data  string
	Error string
}

// Preset is a canned call.
type Preset struct {
	Name  string
	Input Input
}

// Presets returns the quick tests against a public fake API.
func Presets() []Preset {
	return []Preset{
		{
			Name: "GET request test",
			Input: Input{
				Address: "https://jsonplaceholder.typicode.com/posts/1",
				Method:  http.MethodGet,
			},
		},
		{
			Name: "POST request test",
			Input: Input{
				Address: "https://jsonplaceholder.typicode.com/posts",
				Method:  http.MethodPost,
				Body:    `{"title": "Test title", "body": "Test body", "userId": 1}`,
			},
		},
	}
}

// Console runs calls through a tracked client.
type Console struct {
	client   *apiclient.Client
	registry *loading.Registry
}

// New creates a Console. registry must be the tracker client reports to.
func New(client *apiclient.Client, registry *loading.Registry) *Console {
	return &Console{client: client, registry: registry}
}

// TaskID returns the task id in.Address is tracked under.
func (c *Console) TaskID(in Input) string {
	return c.client.TaskID(normalizeMethod(in.Method), in.Address)
}

// Run validates and sends in. Validation failures are reported in the
// result without dispatching anything.
func (c *Console) Run(ctx context.Context, in Input) Result {
	method := normalizeMethod(in.Method)
	address := strings.TrimSpace(in.Address)
	res := Result{Address: address, Method: method}

	if address == "" {
		res.Error = "address is required"
		return res
	}
	if !isAllowed(method) {
		res.Error = fmt.Sprintf("unsupported method %q", in.Method)
		return res
	}

	req := apiclient.Request{
		Method:  method,
		Address: address,
		Timeout: in.Timeout,
	}
	if method != http.MethodGet && strings.TrimSpace(in.Body) != "" {
		if !json.Valid([]byte(in.Body)) {
			res.Error = "request body is not valid JSON"
			return res
		}
		req.Body = json.RawMessage(in.Body)
	}

	resp, err := c.client.Do(ctx, req)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Data = formatBody(resp.Body)
	return res
}

// Watch writes text to w each time task becomes busy. The returned function
// stops watching.
func (c *Console) Watch(w io.Writer, task, text string) (stop func()) {
	if text == "" {
		text = DefaultLoadingText
	}

	var (
		mu   sync.Mutex
		busy bool
	)
	show := func(now bool) {
		mu.Lock()
		defer mu.Unlock()
		if now && !busy {
			fmt.Fprintln(w, text)
		}
		busy = now
	}

	cancel := c.registry.Subscribe(func(s loading.Snapshot) {
		show(s.Tasks[task])
	})
	show(c.registry.IsTaskLoading(task))
	return cancel
}

// Format renders r for a terminal.
func Format(r Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", r.Method, r.Address)
	switch {
	case r.Error != "":
		fmt.Fprintf(&b, "Error: %s\n", r.Error)
	case r.Data != "":
		b.WriteString(r.Data)
		if !strings.HasSuffix(r.Data, "\n") {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func formatBody(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return ""
	}
	var out bytes.Buffer
	if err := json.Indent(&out, trimmed, "", "  "); err != nil {
		return string(body)
	}
	return out.String()
}

func normalizeMethod(method string) string {
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		return http.MethodGet
	}
	return method
}

func isAllowed(method string) bool {
	for _, m := range Methods {
		if m == method {
			return true
		}
	}
	return false
}
