package conformance

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/cyberinferno/wsconformance/wsservice"
)

const webSocketVersionHeader = "Sec-WebSocket-Version"

// checkRequest verifies that conn's upgrade request looks like a WebSocket
// handshake and records a failure for every mismatch. phase tags the checks
// ("initial" or "delayed").
func (s *Service) checkRequest(conn wsservice.Connection, phase string) {
	id := conn.ID()
	req := conn.Request()
	if req == nil {
		s.suite.violation(id, phase+".request", "connection has no upgrade request")
		return
	}

	if m := req.Method(); m != http.MethodGet {
		s.suite.violation(id, phase+".method", fmt.Sprintf("expected %s, got %q", http.MethodGet, m))
	}

	if major, minor := req.ProtoMajor(), req.ProtoMinor(); major != 1 || minor != 1 {
		s.suite.violation(id, phase+".version", fmt.Sprintf("expected HTTP/1.1, got HTTP/%d.%d", major, minor))
	}

	if u := req.URL(); u == nil {
		s.suite.violation(id, phase+".url", "missing request URL")
	} else if !strings.HasPrefix(u.Path, s.suite.config.PathPrefix) {
		s.suite.violation(id, phase+".url", fmt.Sprintf("path %q does not start with %q", u.Path, s.suite.config.PathPrefix))
	}

	versions := req.Header().Values(webSocketVersionHeader)
	if len(versions) != 1 || versions[0] != "13" {
		s.suite.violation(id, phase+".header", fmt.Sprintf("expected exactly one %s: 13, got %q", webSocketVersionHeader, versions))
	}

	buf := make([]byte, 16)
	n, err := req.ReadBody(buf)
	if err != nil && !errors.Is(err, io.EOF) {
		s.suite.record(Failure{
			Kind:         ReadFailure,
			ConnectionID: id,
			Check:        phase + ".body",
			Message:      "reading the upgrade request body failed",
			Cause:        err,
		})
		return
	}

	if n != 0 {
		s.suite.violation(id, phase+".body", fmt.Sprintf("expected an empty body, read %d bytes", n))
	}
}
