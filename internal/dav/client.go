package dav

import (
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/emersion/go-webdav"
	"golang.org/x/time/rate"

	"calsync/internal/model"
)

// headerClient sets the source's static headers on every request.
type headerClient struct {
	next    webdav.HTTPClient
	headers map[string]string
}

func (c *headerClient) Do(req *http.Request) (*http.Response, error) {
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	return c.next.Do(req)
}

// limitedClient waits on a token bucket shared by every calendar of the
// gateway before sending.
type limitedClient struct {
	next    webdav.HTTPClient
	limiter *rate.Limiter
}

func (c *limitedClient) Do(req *http.Request) (*http.Response, error) {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return c.next.Do(req)
}

// statusRecorder remembers the status of the last response so that a
// go-webdav error can be reported as an HTTP-like result.
type statusRecorder struct {
	next webdav.HTTPClient

	mu     sync.Mutex
	status int
}

func (c *statusRecorder) Do(req *http.Request) (*http.Response, error) {
	resp, err := c.next.Do(req)
	if resp != nil {
		c.mu.Lock()
		c.status = resp.StatusCode
		c.mu.Unlock()
	}
	return resp, err
}

func (c *statusRecorder) Status() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// result converts the recorded status and the call's error into a
// model.Result. A failed call without any response keeps status 0.
func (c *statusRecorder) result(err error) model.Result {
	status := c.Status()
	if err != nil {
		return model.Result{Status: status, Err: err}
	}
	if status == 0 {
		status = http.StatusOK
	}
	return model.Result{OK: status >= 200 && status < 300, Status: status}
}

// httpClient builds the per-collection client stack:
// basic auth -> headers -> rate limit -> base client.
func (g *Gateway) httpClient(tr model.Transport) webdav.HTTPClient {
	var hc webdav.HTTPClient = &limitedClient{next: g.base, limiter: g.limiter}
	if len(tr.Headers) > 0 {
		hc = &headerClient{next: hc, headers: tr.Headers}
	}
	if tr.Username != "" {
		hc = webdav.HTTPClientWithBasicAuth(hc, tr.Username, tr.Password)
	}
	return hc
}

// withIfMatch returns tr with an If-Match precondition on etag. An empty
// etag leaves tr as is.
func withIfMatch(tr model.Transport, etag string) model.Transport {
	if etag == "" {
		return tr
	}
	out := tr.Clone()
	if out.Headers == nil {
		out.Headers = map[string]string{}
	}
	out.Headers["If-Match"] = quoteETag(etag)
	return out
}

// quoteETag turns the unquoted tag go-webdav reports back into an entity tag.
func quoteETag(etag string) string {
	if strings.HasPrefix(etag, `"`) || strings.HasPrefix(etag, "W/") {
		return etag
	}
	return `"` + etag + `"`
}

// pathOf returns the path component of an absolute collection or object URL.
func pathOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if u.Path == "" {
		return "/"
	}
	return u.Path
}

// resolveURL turns a server-relative path into an absolute URL on base's host.
func resolveURL(base, p string) string {
	b, err := url.Parse(base)
	if err != nil {
		return p
	}
	return b.ResolveReference(&url.URL{Path: p}).String()
}

func samePath(a, b string) bool {
	return strings.TrimSuffix(a, "/") == strings.TrimSuffix(b, "/")
}

// redactURL hides sensitive parts of a collection URL for logging purposes.
//
//	https://dav.example.com/calendars/alice/private/?token=abcd
//	-> https://dav.example.com/...(redacted)
func redactURL(raw string) string {
	const redactedSuffix = "/...(redacted)"

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "dav://...(redacted)"
	}
	return u.Scheme + "://" + u.Host + redactedSuffix
}
