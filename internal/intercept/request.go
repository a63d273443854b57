package intercept

import (
	"io"
	"net/http"
	"net/textproto"
	"net/url"
	"unicode/utf8"

	"github.com/ppiankov/callwatch/internal/redact"
)

// maxBodyCapture bounds how much of a request body is copied into events.
// Larger bodies are not captured.
const maxBodyCapture = 64 << 10

// Request describes an outbound call. It is the payload of started events
// and the body sent to the policy endpoint.
type Request struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers"`
	Body    string            `json:"body,omitempty"`
}

func (r Request) payload() map[string]any {
	headers := make(map[string]any, len(r.Headers))
	for k, v := range r.Headers {
		headers[k] = v
	}
	p := map[string]any{
		"method":  r.Method,
		"url":     r.URL,
		"headers": headers,
	}
	if r.Body != "" {
		p["body"] = r.Body
	}
	return p
}

// URLSource is one of the accepted URL shapes: URLString, URLValue or
// RequestURL.
type URLSource interface {
	urlString() string
}

// URLString is a URL already in string form.
type URLString string

func (u URLString) urlString() string { return string(u) }

// URLValue wraps a parsed URL.
type URLValue struct{ URL *url.URL }

func (u URLValue) urlString() string {
	if u.URL == nil {
		return ""
	}
	return u.URL.String()
}

// RequestURL takes the URL of an existing request.
type RequestURL struct{ Request *http.Request }

func (u RequestURL) urlString() string {
	if u.Request == nil || u.Request.URL == nil {
		return ""
	}
	return u.Request.URL.String()
}

// HeaderSource is one of HeaderCollection or HeaderMap.
type HeaderSource interface {
	headerMap() map[string]string
}

// HeaderCollection is a multi-valued header set; the first value wins.
type HeaderCollection http.Header

func (h HeaderCollection) headerMap() map[string]string {
	out := make(map[string]string, len(h))
	for k, vv := range h {
		if len(vv) == 0 {
			continue
		}
		out[textproto.CanonicalMIMEHeaderKey(k)] = vv[0]
	}
	return out
}

// HeaderMap is a plain single-valued header map.
type HeaderMap map[string]string

func (h HeaderMap) headerMap() map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[textproto.CanonicalMIMEHeaderKey(k)] = v
	}
	return out
}

// BodySource yields body text when it can be read without side effects.
type BodySource interface {
	bodyText() (string, bool)
}

// BodyText is a body already held in memory.
type BodyText string

func (b BodyText) bodyText() (string, bool) { return string(b), true }

// ReplayableBody opens a fresh copy of a request body, as http.Request.GetBody
// does. The original stream is never touched.
type ReplayableBody func() (io.ReadCloser, error)

func (b ReplayableBody) bodyText() (string, bool) {
	if b == nil {
		return "", false
	}
	rc, err := b()
	if err != nil || rc == nil {
		return "", false
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, maxBodyCapture+1))
	if err != nil || len(data) > maxBodyCapture {
		return "", false
	}
	return string(data), true
}

// Describe normalizes a call into a Request. An empty method means GET.
// Body text is kept only when it is valid UTF-8. Credential headers are
// masked whole and secrets inside the body text are masked in place.
func Describe(method string, u URLSource, h HeaderSource, body BodySource) Request {
	if method == "" {
		method = http.MethodGet
	}
	r := Request{Method: method, Headers: map[string]string{}}
	if u != nil {
		r.URL = u.urlString()
	}
	if h != nil {
		r.Headers = h.headerMap()
	}
	for k := range r.Headers {
		if redact.Header(k) {
			r.Headers[k] = redact.Mask
		}
	}
	if body != nil {
		if text, ok := body.bodyText(); ok && utf8.ValidString(text) {
			r.Body = redact.Text(text)
		}
	}
	return r
}

// describeHTTP builds the descriptor for an outgoing *http.Request.
func describeHTTP(req *http.Request) Request {
	var body BodySource
	if req.GetBody != nil && req.Body != nil && req.Body != http.NoBody {
		body = ReplayableBody(req.GetBody)
	}
	return Describe(req.Method, RequestURL{req}, HeaderCollection(req.Header), body)
}
