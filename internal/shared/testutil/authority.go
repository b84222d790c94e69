package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
)

// AuthorityReply is one scripted authority response.
type AuthorityReply struct {
	Status int
	// Body is written verbatim when set; otherwise JSON is encoded.
	Body string
	JSON any
	// Hang blocks until the request context ends, simulating a timeout.
	Hang bool
}

// ValidReply builds a success reply for status with an optional license
// payload.
func ValidReply(status string, license map[string]any) AuthorityReply {
	data := map[string]any{"valid": true, "status": status, "message": "Licença válida"}
	if license != nil {
		data["license"] = license
	}
	return AuthorityReply{JSON: map[string]any{"success": true, "data": data}}
}

// InvalidReply builds a valid=false reply for status.
func InvalidReply(status, message string) AuthorityReply {
	return AuthorityReply{JSON: map[string]any{
		"success": true,
		"data":    map[string]any{"valid": false, "status": status, "message": message},
	}}
}

// AuthorityServer is a scriptable fake licensing authority. Replies are
// consumed in order; the last one repeats once the script runs out.
type AuthorityServer struct {
	*httptest.Server

	mu      sync.Mutex
	replies []AuthorityReply
	queries []url.Values
	headers []http.Header
	calls   atomic.Int32
	gate    chan struct{}
}

// NewAuthorityServer starts a fake authority closed on test cleanup.
func NewAuthorityServer(t *testing.T, replies ...AuthorityReply) *AuthorityServer {
	t.Helper()

	a := &AuthorityServer{replies: replies}
	a.Server = httptest.NewServer(http.HandlerFunc(a.serve))
	t.Cleanup(func() {
		a.Release()
		a.Server.Close()
	})
	return a
}

// Script replaces the remaining replies.
func (a *AuthorityServer) Script(replies ...AuthorityReply) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.replies = replies
}

// Hold makes subsequent requests block until Release is called.
func (a *AuthorityServer) Hold() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.gate = make(chan struct{})
}

// Release unblocks held requests.
func (a *AuthorityServer) Release() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.gate != nil {
		close(a.gate)
		a.gate = nil
	}
}

// Calls returns the number of requests received.
func (a *AuthorityServer) Calls() int {
	return int(a.calls.Load())
}

// LastQuery returns the query of the most recent request.
func (a *AuthorityServer) LastQuery() url.Values {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.queries) == 0 {
		return nil
	}
	return a.queries[len(a.queries)-1]
}

// LastHeader returns the headers of the most recent request.
func (a *AuthorityServer) LastHeader() http.Header {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.headers) == 0 {
		return nil
	}
	return a.headers[len(a.headers)-1]
}

func (a *AuthorityServer) serve(w http.ResponseWriter, r *http.Request) {
	a.calls.Add(1)

	a.mu.Lock()
	a.queries = append(a.queries, r.URL.Query())
	a.headers = append(a.headers, r.Header.Clone())
	reply := AuthorityReply{Status: http.StatusInternalServerError}
	if len(a.replies) > 0 {
		reply = a.replies[0]
		if len(a.replies) > 1 {
			a.replies = a.replies[1:]
		}
	}
	gate := a.gate
	a.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}
	if reply.Hang {
		<-r.Context().Done()
		return
	}

	status := reply.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if reply.Body != "" {
		_, _ = w.Write([]byte(reply.Body))
		return
	}
	if reply.JSON != nil {
		_ = json.NewEncoder(w).Encode(reply.JSON)
	}
}
