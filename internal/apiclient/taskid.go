package apiclient

import (
	"regexp"
	"strings"
)

// absoluteURL matches addresses that already carry a scheme.
var absoluteURL = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*://`)

// TaskIDFunc derives a loading-registry task id from a request method and
// its fully resolved address.
type TaskIDFunc func(method, resolvedURL string) string

// IsAbsolute reports whether address already carries a scheme.
func IsAbsolute(address string) bool {
	return absoluteURL.MatchString(address)
}

// ResolveURL returns address unchanged when it is absolute, otherwise the
// base URL concatenated with the relative address. No slash normalisation
// is applied.
func ResolveURL(baseURL, address string) string {
	if IsAbsolute(address) {
		return address
	}
	return baseURL + address
}

// MethodURLTaskID joins the upper-cased method and the resolved URL, e.g.
// "GET_https://api.example.com/users".
func MethodURLTaskID(method, resolvedURL string) string {
	return strings.ToUpper(method) + "_" + resolvedURL
}

// TaskID resolves address against baseURL and derives its task id.
func TaskID(baseURL, method, address string) string {
	return MethodURLTaskID(method, ResolveURL(baseURL, address))
}
