package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/bhandras/starter/internal/logger"
	"github.com/bhandras/starter/internal/wire"
	"github.com/gin-gonic/gin"
)

// NewProxyHandler forwards requests under prefix to backendURL with the
// prefix stripped, so /api/users reaches <backend>/users.
func NewProxyHandler(prefix, backendURL string) (gin.HandlerFunc, error) {
	target, err := url.Parse(backendURL)
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("backend url %q must be absolute", backendURL)
	}

	proxy := &httputil.ReverseProxy{
		Rewrite: func(r *httputil.ProxyRequest) {
			r.SetURL(target)
			r.SetXForwarded()
			rest := strings.TrimPrefix(r.In.URL.Path, prefix)
			r.Out.URL.Path = singleJoin(target.Path, rest)
			r.Out.URL.RawPath = ""
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Warnf("proxy: %s %s failed: %v", r.Method, r.URL.Path, err)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadGateway)
			_ = json.NewEncoder(w).Encode(wire.ErrorResponse{Error: "backend unavailable"})
		},
	}

	return func(c *gin.Context) {
		proxy.ServeHTTP(c.Writer, c.Request)
	}, nil
}

func singleJoin(a, b string) string {
	switch {
	case b == "":
		if a == "" {
			return "/"
		}
		return a
	case strings.HasSuffix(a, "/") && strings.HasPrefix(b, "/"):
		return a + b[1:]
	case !strings.HasSuffix(a, "/") && !strings.HasPrefix(b, "/"):
		return a + "/" + b
	}
	return a + b
}
