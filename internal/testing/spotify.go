package testing

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
)

// Call is one Web API request received by a [SpotifyStub].
type Call struct {
	Method   string
	Path     string
	RawQuery string
	Body     string
	Header   http.Header
}

// Endpoint returns "METHOD /path?query".
func (c Call) Endpoint() string {
	if c.RawQuery == "" {
		return c.Method + " " + c.Path
	}
	return c.Method + " " + c.Path + "?" + c.RawQuery
}

// SpotifyStub fakes the Spotify accounts service at /api/token and the Web API under /v1.
//
// Unregistered Web API routes answer 404. Token grants succeed with sequential access tokens
// unless TokenStatus is set.
type SpotifyStub struct {
	*httptest.Server

	mu          sync.Mutex
	routes      map[string]http.HandlerFunc
	calls       []Call
	exchanges   int
	tokenStatus int
	rotate      string
	lastForm    url.Values
	lastUser    string
	lastPass    string
}

// NewSpotifyStub starts a stub that is closed when the test ends.
func NewSpotifyStub(t *testing.T) *SpotifyStub {
	t.Helper()

	s := &SpotifyStub{routes: map[string]http.HandlerFunc{}}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// TokenURL is the stub's token endpoint.
func (s *SpotifyStub) TokenURL() string { return s.URL + "/api/token" }

// BaseURL is the stub's Web API base.
func (s *SpotifyStub) BaseURL() string { return s.URL + "/v1" }

// Handle registers h for method and path (without the /v1 prefix).
func (s *SpotifyStub) Handle(method, path string, h http.HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes[method+" "+path] = h
}

// Respond registers a fixed JSON response. An empty body writes only the status.
func (s *SpotifyStub) Respond(method, path string, status int, body string) {
	s.Handle(method, path, func(w http.ResponseWriter, _ *http.Request) {
		if body != "" {
			w.Header().Set("Content-Type", "application/json")
		}
		w.WriteHeader(status)
		if body != "" {
			io.WriteString(w, body)
		}
	})
}

// FailTokens makes every grant fail with status.
func (s *SpotifyStub) FailTokens(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokenStatus = status
}

// RotateRefreshToken makes grants return rt as a new refresh token.
func (s *SpotifyStub) RotateRefreshToken(rt string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rotate = rt
}

// Calls returns the Web API requests received so far.
func (s *SpotifyStub) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// Endpoints returns [Call.Endpoint] for every Web API request.
func (s *SpotifyStub) Endpoints() []string {
	calls := s.Calls()
	out := make([]string, 0, len(calls))
	for _, c := range calls {
		out = append(out, c.Endpoint())
	}
	return out
}

// Exchanges returns the number of token grants received.
func (s *SpotifyStub) Exchanges() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exchanges
}

// LastGrant returns the form and basic-auth credentials of the last token grant.
func (s *SpotifyStub) LastGrant() (form url.Values, clientID, clientSecret string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastForm, s.lastUser, s.lastPass
}

func (s *SpotifyStub) serve(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/api/token" {
		s.token(w, r)
		return
	}

	body, _ := io.ReadAll(r.Body)
	path := strings.TrimPrefix(r.URL.Path, "/v1")

	s.mu.Lock()
	s.calls = append(s.calls, Call{
		Method:   r.Method,
		Path:     path,
		RawQuery: r.URL.RawQuery,
		Body:     string(body),
		Header:   r.Header.Clone(),
	})
	h, ok := s.routes[r.Method+" "+path]
	s.mu.Unlock()

	if !ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"error":{"status":404,"message":"Not found."}}`)
		return
	}
	h(w, r)
}

func (s *SpotifyStub) token(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	user, pass, _ := r.BasicAuth()

	s.mu.Lock()
	s.exchanges++
	n := s.exchanges
	status := s.tokenStatus
	rotate := s.rotate
	s.lastForm = r.PostForm
	s.lastUser, s.lastPass = user, pass
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if status != 0 && status != http.StatusOK {
		w.WriteHeader(status)
		io.WriteString(w, `{"error":"invalid_grant","error_description":"Invalid refresh token"}`)
		return
	}

	refresh := ""
	if rotate != "" {
		refresh = fmt.Sprintf(`,"refresh_token":%q`, rotate)
	}
	fmt.Fprintf(w, `{"access_token":"access-%d","token_type":"Bearer","expires_in":3600,"scope":"user-read-playback-state"%s}`, n, refresh)
}
