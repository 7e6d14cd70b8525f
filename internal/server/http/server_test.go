package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/sessionkeeper/internal/common"
	"github.com/dmitrijs2005/sessionkeeper/internal/logging"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/auth"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/calls"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/services"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/storage"
)

// --- fakes ---

type fakeSessions struct {
	registerReq services.RegisterRequest
	lastDevice  string
	lastToken   string
	pair        *auth.TokenPair
	err         error
}

func (f *fakeSessions) Register(_ context.Context, req services.RegisterRequest) (*auth.TokenPair, error) {
	f.registerReq = req
	return f.pair, f.err
}

func (f *fakeSessions) Login(_ context.Context, _, _, deviceID string) (*auth.TokenPair, error) {
	f.lastDevice = deviceID
	return f.pair, f.err
}

func (f *fakeSessions) Logout(_ context.Context, token, deviceID string) error {
	f.lastToken, f.lastDevice = token, deviceID
	return f.err
}

func (f *fakeSessions) Refresh(_ context.Context, token, deviceID string) (*auth.TokenPair, error) {
	f.lastToken, f.lastDevice = token, deviceID
	return f.pair, f.err
}

type fakeAuthn struct {
	claims     *auth.Claims
	err        error
	gotHeader  string
	gotDevice  string
	calledWith int
}

func (f *fakeAuthn) Authenticate(_ context.Context, header, device string) (*auth.Claims, error) {
	f.calledWith++
	f.gotHeader, f.gotDevice = header, device
	return f.claims, f.err
}

type fakeCalls struct {
	members  []calls.Member
	err      error
	uploaded string
}

func (f *fakeCalls) SaveUpload(_ context.Context, name, _ string, r io.Reader) (*calls.UploadResult, error) {
	b, _ := io.ReadAll(r)
	f.uploaded = string(b)
	return &calls.UploadResult{Message: "file uploaded", FileName: name, Path: "/tmp/" + name}, f.err
}

func (f *fakeCalls) Members(context.Context) ([]calls.Member, error) { return f.members, f.err }

func (f *fakeCalls) FindByPhone(_ context.Context, tel string) (*calls.Member, error) {
	for i := range f.members {
		if f.members[i].Phone == tel {
			return &f.members[i], nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeCalls) FindByID(_ context.Context, id string) (*calls.Member, error) {
	for i := range f.members {
		if f.members[i].ID == id {
			return &f.members[i], nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeCalls) UpdateStatus(context.Context, calls.StatusUpdate) string { return "status updated" }

type fakeStorage struct {
	objects map[string]string
	err     error
}

func (f *fakeStorage) Upload(_ context.Context, name, _ string, body io.Reader) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	b, _ := io.ReadAll(body)
	key := "uploads/" + name
	f.objects[key] = string(b)
	return key, nil
}

func (f *fakeStorage) Download(_ context.Context, key string) (*storage.Object, error) {
	v, ok := f.objects[key]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &storage.Object{Body: io.NopCloser(strings.NewReader(v)), ContentType: "text/plain", ContentLength: int64(len(v))}, nil
}

func (f *fakeStorage) PresignDownload(_ context.Context, key string, _ time.Duration) (string, error) {
	return "http://minio/" + key, f.err
}

type recordingObserver struct{ routes []string }

func (o *recordingObserver) ObserveHTTP(method, route string, status int) {
	o.routes = append(o.routes, method+" "+route)
}

// --- helpers ---

type testServer struct {
	sessions *fakeSessions
	authn    *fakeAuthn
	calls    *fakeCalls
	storage  *fakeStorage
	observer *recordingObserver
	handler  http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{
		sessions: &fakeSessions{pair: &auth.TokenPair{AccessToken: "at", RefreshToken: "rt"}},
		authn:    &fakeAuthn{claims: &auth.Claims{UserID: 7, Name: "Alice"}},
		calls:    &fakeCalls{members: []calls.Member{{ID: "1", Name: "Kim", Phone: "010"}}},
		storage:  &fakeStorage{objects: map[string]string{}},
		observer: &recordingObserver{},
	}
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("# metrics")) })
	ts.handler = NewServer(ts.sessions, ts.authn, ts.calls, ts.storage, ts.observer, metrics, logging.Nop{}).Router()
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = strings.NewReader(b)
	default:
		buf, err := json.Marshal(b)
		require.NoError(t, err)
		rdr = bytes.NewReader(buf)
	}
	req := httptest.NewRequest(method, path, rdr)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var e errorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&e))
	return e
}

func multipartBody(t *testing.T, field, name, content string) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	fw, err := mw.CreateFormFile(field, name)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return buf, mw.FormDataContentType()
}

// --- tests ---

func TestClassify(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{common.ErrTokenRequired, 401, CodeTokenRequired},
		{fmt.Errorf("wrapped: %w", common.ErrAccessExpired), 401, CodeAccessExpired},
		{common.ErrInvalidRefreshToken, 401, CodeInvalidRefreshToken},
		{common.ErrRefreshExpired, 401, CodeRefreshExpired},
		{common.ErrPasswordMismatch, 401, CodePasswordMismatch},
		{common.ErrUserNotFound, 404, CodeUserNotFound},
		{common.ErrUserExists, 409, CodeUserExists},
		{common.ErrorNotFound, 404, CodeNotFound},
		{errors.New("redis down"), 500, CodeInternal},
	}
	for _, tt := range tests {
		status, code, _ := classify(tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
		assert.Equal(t, tt.code, code, tt.err.Error())
	}
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	rec = ts.do(t, http.MethodGet, "/metrics", nil, nil)
	assert.Equal(t, "# metrics", rec.Body.String())

	assert.Contains(t, ts.observer.routes, "GET /health")
}

func TestUnmatchedPathsShareOneRouteLabel(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{"/random-1", "/random-2/deeper", "/auth/nope"} {
		rec := ts.do(t, http.MethodGet, path, nil, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}

	for _, route := range ts.observer.routes {
		assert.NotContains(t, route, "random", "raw paths must not become labels")
	}
	assert.Contains(t, ts.observer.routes, "GET "+unmatchedRoute)
}

func TestRequestIDIsPropagated(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/health", nil, map[string]string{requestIDHeader: "req-1"})
	assert.Equal(t, "req-1", rec.Header().Get(requestIDHeader))
}

func TestRegister(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/auth/register",
		map[string]any{"email": " a@x.com ", "password": "pw", "name": "A", "age": 30, "deviceId": "dev1"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"accessToken":"at","refreshToken":"rt"}`, rec.Body.String())
	assert.Equal(t, services.RegisterRequest{Email: "a@x.com", Password: "pw", Name: "A", Age: 30, DeviceID: "dev1"}, ts.sessions.registerReq)

	ts.sessions.err = common.ErrUserExists
	rec = ts.do(t, http.MethodPost, "/auth/register", map[string]any{"email": "a@x.com", "password": "pw"}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, CodeUserExists, decodeError(t, rec).Code)
}

func TestRegister_BadRequests(t *testing.T) {
	ts := newTestServer(t)

	for _, body := range []any{
		"{not json",
		map[string]any{"email": "a@x.com"},
		map[string]any{"email": "a@x.com", "password": "pw", "age": -1},
		map[string]any{"email": "a@x.com", "password": "pw", "unknown": 1},
	} {
		rec := ts.do(t, http.MethodPost, "/auth/register", body, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, CodeInvalidRequest, decodeError(t, rec).Code)
	}
}

func TestLogin(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/auth/login", map[string]any{"email": "a@x.com", "password": "pw"},
		map[string]string{common.DeviceIDHeaderName: "hdr-dev"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hdr-dev", ts.sessions.lastDevice, "header is used when body has no deviceId")

	rec = ts.do(t, http.MethodPost, "/auth/login", map[string]any{"email": "a@x.com", "password": "pw", "deviceId": "body-dev"},
		map[string]string{common.DeviceIDHeaderName: "hdr-dev"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "body-dev", ts.sessions.lastDevice)

	for err, code := range map[error]int{
		common.ErrUserNotFound:     http.StatusNotFound,
		common.ErrPasswordMismatch: http.StatusUnauthorized,
		errors.New("db down"):      http.StatusInternalServerError,
	} {
		ts.sessions.err = err
		rec = ts.do(t, http.MethodPost, "/auth/login", map[string]any{"email": "a@x.com", "password": "pw"}, nil)
		assert.Equal(t, code, rec.Code, err.Error())
	}
}

func TestRefresh(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/auth/refresh", map[string]any{"refreshToken": "rt", "deviceId": "dev1"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "rt", ts.sessions.lastToken)
	assert.Equal(t, "dev1", ts.sessions.lastDevice)

	rec = ts.do(t, http.MethodPost, "/auth/refresh", map[string]any{"deviceId": "dev1"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	ts.sessions.err = common.ErrInvalidRefreshToken
	rec = ts.do(t, http.MethodPost, "/auth/refresh", map[string]any{"refreshToken": "rt"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, CodeInvalidRefreshToken, decodeError(t, rec).Code)
}

func TestLogout(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/auth/logout", nil, map[string]string{
		common.AuthorizationHeaderName: "Bearer at",
		common.DeviceIDHeaderName:      "dev1",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "at", ts.sessions.lastToken)
	assert.Equal(t, "dev1", ts.sessions.lastDevice)
	assert.Zero(t, ts.authn.calledWith, "logout does not run the authenticator")

	rec = ts.do(t, http.MethodPost, "/auth/logout", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, CodeTokenRequired, decodeError(t, rec).Code)

	ts.sessions.err = common.ErrAccessExpired
	rec = ts.do(t, http.MethodPost, "/auth/logout", nil, map[string]string{common.AuthorizationHeaderName: "Bearer junk"})
	assert.Equal(t, CodeAccessExpired, decodeError(t, rec).Code)
}

func TestMe(t *testing.T) {
	ts := newTestServer(t)
	ts.authn.claims.ExpiresAt = jwt.NewNumericDate(time.Unix(1700000000, 0))

	rec := ts.do(t, http.MethodGet, "/auth/me", nil, map[string]string{
		common.AuthorizationHeaderName: "Bearer at",
		common.DeviceIDHeaderName:      "dev1",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"userId":7,"name":"Alice","authCode":0,"expiresAt":1700000000}`, rec.Body.String())
	assert.Equal(t, "Bearer at", ts.authn.gotHeader)
	assert.Equal(t, "dev1", ts.authn.gotDevice)
}

func TestProtectedRoutesRejectUnauthenticated(t *testing.T) {
	ts := newTestServer(t)

	cases := map[error]string{
		common.ErrTokenRequired:       CodeTokenRequired,
		common.ErrAccessExpired:       CodeAccessExpired,
		common.ErrInvalidRefreshToken: CodeInvalidRefreshToken,
		common.ErrRefreshExpired:      CodeRefreshExpired,
	}
	for err, code := range cases {
		ts.authn.err = err
		for _, route := range []struct{ method, path string }{
			{http.MethodGet, "/auth/me"},
			{http.MethodGet, "/call/members"},
			{http.MethodGet, "/call?tel=010"},
			{http.MethodGet, "/call/1"},
			{http.MethodPost, "/call/status"},
			{http.MethodPost, "/call/upload"},
			{http.MethodPost, "/storage/upload"},
			{http.MethodPost, "/storage/download"},
		} {
			rec := ts.do(t, route.method, route.path, nil, nil)
			assert.Equal(t, http.StatusUnauthorized, rec.Code, route.path)
			assert.Equal(t, code, decodeError(t, rec).Code, route.path)
		}
	}

	ts.authn.err = errors.New("redis down")
	rec := ts.do(t, http.MethodGet, "/auth/me", nil, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestCallRoutes(t *testing.T) {
	ts := newTestServer(t)
	hdr := map[string]string{common.AuthorizationHeaderName: "Bearer at"}

	rec := ts.do(t, http.MethodGet, "/call/members", nil, hdr)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"members":[`)

	rec = ts.do(t, http.MethodGet, "/call?tel=010", nil, hdr)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"Kim"`)

	rec = ts.do(t, http.MethodGet, "/call?tel=999", nil, hdr)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodGet, "/call", nil, hdr)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/call/1", nil, hdr)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/call/2", nil, hdr)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodPost, "/call/status", map[string]string{"status": "done", "duration": "10", "tel": "010"}, hdr)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"status updated"}`, rec.Body.String())
}

func TestCallUpload(t *testing.T) {
	ts := newTestServer(t)

	body, contentType := multipartBody(t, "file", "call.mp3", "recording")
	req := httptest.NewRequest(http.MethodPost, "/call/upload", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(common.AuthorizationHeaderName, "Bearer at")
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "recording", ts.calls.uploaded)
	assert.Contains(t, rec.Body.String(), `"fileName":"call.mp3"`)

	body, contentType = multipartBody(t, "other", "call.mp3", "recording")
	req = httptest.NewRequest(http.MethodPost, "/call/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec = httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStorageRoutes(t *testing.T) {
	ts := newTestServer(t)
	hdr := map[string]string{common.AuthorizationHeaderName: "Bearer at"}

	body, contentType := multipartBody(t, "file", "notes.txt", "hello")
	req := httptest.NewRequest(http.MethodPost, "/storage/upload", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(common.AuthorizationHeaderName, "Bearer at")
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"fileName":"uploads/notes.txt"}`, rec.Body.String())

	rec = ts.do(t, http.MethodPost, "/storage/download", map[string]string{"fileName": "uploads/notes.txt"}, hdr)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello", rec.Body.String())
	assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))

	rec = ts.do(t, http.MethodPost, "/storage/download", map[string]string{"fileName": "nope"}, hdr)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodPost, "/storage/download", map[string]string{}, hdr)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/storage/presign", map[string]string{"fileName": "uploads/notes.txt"}, hdr)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"url":"http://minio/uploads/notes.txt"}`, rec.Body.String())
}

func TestStorageNotConfigured(t *testing.T) {
	ts := newTestServer(t)
	ts.handler = NewServer(ts.sessions, ts.authn, ts.calls, nil, nil, nil, logging.Nop{}).Router()

	rec := ts.do(t, http.MethodPost, "/storage/download", map[string]string{"fileName": "x"},
		map[string]string{common.AuthorizationHeaderName: "Bearer at"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = ts.do(t, http.MethodGet, "/metrics", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
