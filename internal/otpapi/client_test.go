package otpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otp-manager/otp-manager/internal/shared"
)

type recordedCall struct {
	Method string
	Path   string
	Auth   string
	Body   string
	Cookie string
}

type fakeAPI struct {
	mu     sync.Mutex
	calls  []recordedCall
	server *httptest.Server
}

func newFakeAPI(t *testing.T, handler http.HandlerFunc) *fakeAPI {
	t.Helper()
	api := &fakeAPI{}
	api.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		api.mu.Lock()
		api.calls = append(api.calls, recordedCall{
			Method: r.Method,
			Path:   r.URL.EscapedPath(),
			Auth:   r.Header.Get("Authorization"),
			Body:   string(body),
			Cookie: r.Header.Get("Cookie"),
		})
		api.mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(api.server.Close)
	return api
}

func (a *fakeAPI) Calls() []recordedCall {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]recordedCall(nil), a.calls...)
}

type observed struct {
	route  string
	status int
}

type recordingObserver struct {
	events []observed
}

func (o *recordingObserver) ObserveForward(route string, status int) {
	o.events = append(o.events, observed{route: route, status: status})
}

func requestWithIdentity(method, target, body string, id *shared.Identity) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	sess := &shared.Session{}
	if id != nil {
		sess.SetIdentity(id)
	}
	return req.WithContext(shared.ContextWithSession(req.Context(), sess))
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	return out
}

func TestForwardSuccessInjectsUIDAndAPIURL(t *testing.T) {
	api := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":"Ok","methods":{"totp":{"active":true}},"big":12345678901234567890}`))
	})
	obs := &recordingObserver{}
	client := NewClient(Options{BaseURL: api.server.URL + "/", Password: "pw", Observer: obs})

	req := requestWithIdentity(http.MethodPut, "/api/totp/activate", `{"code":"123"}`, &shared.Identity{UID: "jdoe", Role: shared.RoleUser})
	req.AddCookie(&http.Cookie{Name: "otp_session", Value: "abc"})
	rr := httptest.NewRecorder()
	client.Forward(rr, req, Request{
		Path:   "protected/users/jdoe/methods/totp/activate/",
		Method: http.MethodPut,
		Body:   []byte(`{"code":"123"}`),
		Bearer: true,
		Route:  "protected/users/{self}/methods/{method}/activate/",
	})

	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody(t, rr)
	assert.Equal(t, "jdoe", body["uid"])
	assert.Equal(t, api.server.URL+"/", body["api_url"])
	assert.Equal(t, "Ok", body["code"])
	assert.Contains(t, rr.Body.String(), "12345678901234567890")

	calls := api.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, http.MethodPut, calls[0].Method)
	assert.Equal(t, "/protected/users/jdoe/methods/totp/activate/", calls[0].Path)
	assert.Equal(t, "Bearer pw", calls[0].Auth)
	assert.Equal(t, `{"code":"123"}`, calls[0].Body)
	assert.Empty(t, calls[0].Cookie)

	require.Len(t, obs.events, 1)
	assert.Equal(t, observed{route: "protected/users/{self}/methods/{method}/activate/", status: 200}, obs.events[0])
}

func TestForwardSuccessWithoutSessionOmitsUID(t *testing.T) {
	api := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":"Ok"}`))
	})
	client := NewClient(Options{BaseURL: api.server.URL + "/"})

	rr := httptest.NewRecorder()
	client.Forward(rr, httptest.NewRequest(http.MethodGet, "/api/methods", nil), Request{Path: "protected/methods/"})

	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody(t, rr)
	_, hasUID := body["uid"]
	assert.False(t, hasUID)
	assert.Equal(t, api.server.URL+"/", body["api_url"])

	calls := api.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, http.MethodGet, calls[0].Method)
	assert.Empty(t, calls[0].Auth)
}

func TestForwardNonObjectSuccessIsRelayed(t *testing.T) {
	api := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("pong"))
	})
	client := NewClient(Options{BaseURL: api.server.URL + "/"})

	rr := httptest.NewRecorder()
	client.Forward(rr, requestWithIdentity(http.MethodGet, "/", "", &shared.Identity{UID: "jdoe"}), Request{Path: "ping"})
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "pong", rr.Body.String())
	assert.Equal(t, "text/plain", rr.Header().Get("Content-Type"))
}

func TestForwardErrorStatusIsWrapped(t *testing.T) {
	cases := []struct {
		name      string
		status    int
		ctype     string
		body      string
		forwarded any
	}{
		{name: "json body", status: http.StatusNotFound, ctype: "application/json", body: `{"code":"Error","message":"unknown user"}`, forwarded: map[string]any{"code": "Error", "message": "unknown user"}},
		{name: "json body without content type", status: http.StatusForbidden, body: `{"code":"Error"}`, forwarded: map[string]any{"code": "Error"}},
		{name: "text body", status: http.StatusInternalServerError, ctype: "text/html", body: "<h1>boom</h1>", forwarded: "<h1>boom</h1>"},
		{name: "empty body", status: http.StatusUnauthorized, forwarded: nil},
		{name: "no content", status: http.StatusNoContent, forwarded: nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			api := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
				if tc.ctype != "" {
					w.Header().Set("Content-Type", tc.ctype)
				}
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})
			client := NewClient(Options{BaseURL: api.server.URL + "/"})

			rr := httptest.NewRecorder()
			client.Forward(rr, requestWithIdentity(http.MethodDelete, "/x", "", &shared.Identity{UID: "jdoe"}), Request{Path: "x/", Method: http.MethodDelete})

			assert.Equal(t, tc.status, rr.Code)
			if tc.status == http.StatusNoContent {
				return
			}
			body := decodeBody(t, rr)
			assert.Equal(t, "Error forwarded from API response", body["message"])
			forwarded, ok := body["forwarded"]
			assert.True(t, ok, "forwarded key present")
			assert.Equal(t, tc.forwarded, forwarded)
			_, hasUID := body["uid"]
			assert.False(t, hasUID)
		})
	}
}

func TestForwardUnreachableReturns503(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	baseURL := server.URL + "/"
	server.Close()

	obs := &recordingObserver{}
	client := NewClient(Options{BaseURL: baseURL, Observer: obs})
	for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete} {
		rr := httptest.NewRecorder()
		client.Forward(rr, requestWithIdentity(method, "/x", "", &shared.Identity{UID: "jdoe"}), Request{Path: "x/", Method: method, Route: "x/"})
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code, method)
		assert.Equal(t, "Api did not give a response", decodeBody(t, rr)["message"])
	}
	require.Len(t, obs.events, 4)
	assert.Equal(t, 0, obs.events[0].status)
}
