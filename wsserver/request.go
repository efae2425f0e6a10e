package wsserver

import (
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/cyberinferno/wsconformance/wsservice"
)

// request is the read-only view of an upgrade request handed to services.
// Method, version, URL and headers are copied at upgrade time so they stay
// valid after net/http has finished with the original request.
type request struct {
	method string
	major  int
	minor  int
	url    url.URL
	header http.Header

	mu   sync.Mutex
	body io.Reader
}

var _ wsservice.Request = (*request)(nil)

func newRequest(r *http.Request) *request {
	req := &request{
		method: r.Method,
		major:  r.ProtoMajor,
		minor:  r.ProtoMinor,
		header: r.Header.Clone(),
	}

	if r.URL != nil {
		req.url = *r.URL
	}

	if r.Body != nil && r.Body != http.NoBody {
		req.body = r.Body
	}

	return req
}

func (r *request) Method() string {
	return r.method
}

func (r *request) ProtoMajor() int {
	return r.major
}

func (r *request) ProtoMinor() int {
	return r.minor
}

// URL returns a copy; callers may modify it.
func (r *request) URL() *url.URL {
	u := r.url
	return &u
}

// Header returns a copy; callers may modify it.
func (r *request) Header() http.Header {
	return r.header.Clone()
}

func (r *request) ReadBody(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.body == nil {
		return 0, io.EOF
	}

	return r.body.Read(p)
}
