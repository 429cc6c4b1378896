package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fangwd/restup/internal/engine"
	"github.com/fangwd/restup/internal/fields"
	"github.com/fangwd/restup/internal/record"
	"github.com/fangwd/restup/internal/request"
	"github.com/fangwd/restup/internal/testutil"
)

func newTestServer(t *testing.T, opts ...engine.Option) *httptest.Server {
	t.Helper()
	s := testutil.OpenSQLite(t)
	opts = append([]engine.Option{engine.WithLogger(testutil.Logger(t))}, opts...)
	e := engine.New(s, testutil.Catalog(t, s), opts...)
	srv := httptest.NewServer(NewHandler(e, WithLogger(testutil.Logger(t))))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

func TestPostThenGet(t *testing.T) {
	srv := newTestServer(t)

	resp, body := do(t, http.MethodPost, srv.URL+"/url",
		`[{"url": "http://a", "status": 200}, {"url": "http://b", "status": 404}, {"url": "HTTP://A", "status": 301}]`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.JSONEq(t, `[1, 2, 1]`, string(body))
	assert.NotEmpty(t, resp.Header.Get(RequestIDHeader))
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	resp, body = do(t, http.MethodGet, srv.URL+"/url.url,status?sort:id&limit:10", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.JSONEq(t, `[{"url": "HTTP://A", "status": 301}, {"url": "http://b", "status": 404}]`, string(body))

	resp, body = do(t, http.MethodGet, srv.URL+"/url.id/2", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[{"id": 2}]`, string(body))

	resp, body = do(t, http.MethodGet, srv.URL+"/url?status=999", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[]`, string(body))
}

func TestPostEmptyArray(t *testing.T) {
	srv := newTestServer(t)
	resp, body := do(t, http.MethodPost, srv.URL+"/url", `[]`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[]`, string(body))
}

func TestGetWithUpdateClaims(t *testing.T) {
	srv := newTestServer(t)
	resp, _ := do(t, http.MethodPost, srv.URL+"/job",
		`[{"id": 1, "status": 0}, {"id": 2, "status": 0}, {"id": 3, "status": 0}]`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := do(t, http.MethodGet, srv.URL+"/job.id?status=0&sort:id&limit:2&update:status=1&update:worker=w1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.JSONEq(t, `[{"id": 1, "status": "1", "worker": "w1"}, {"id": 2, "status": "1", "worker": "w1"}]`, string(body))

	resp, body = do(t, http.MethodGet, srv.URL+"/job.id?status=0&limit:10&update:status=1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[{"id": 3, "status": "1"}]`, string(body))
}

func TestPostAttachedPayload(t *testing.T) {
	reg := fields.Registry{}
	dir := t.TempDir()
	reg.Register("url", "response", fields.BlobStore{Dir: dir})
	srv := newTestServer(t, engine.WithFields(fields.NewPipeline(reg)))

	payload := []byte{0x00, 0x01, 0xfe}
	body := append([]byte(`{"id": 5, "url": "http://a"}`), 0)
	body = append(body, payload...)

	resp, out := do(t, http.MethodPost, srv.URL+"/url?attached:response=3", string(body))
	require.Equal(t, http.StatusOK, resp.StatusCode, string(out))
	assert.JSONEq(t, `[5]`, string(out))

	resp, out = do(t, http.MethodGet, srv.URL+"/url.response/5", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rows []map[string][]byte
	require.NoError(t, json.Unmarshal(out, &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, payload, rows[0]["response"])

	resp, out = do(t, http.MethodPost, srv.URL+"/url?attached:response=9", string(body))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, string(out))
}

func TestErrorStatuses(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		kind   string
	}{
		{"unknown table", http.MethodGet, "/nope", "", http.StatusNotFound, "SCHEMA"},
		{"unknown column", http.MethodPost, "/url", `{"url": "http://a", "nope": 1}`, http.StatusNotFound, "SCHEMA"},
		{"incomplete row", http.MethodPost, "/url", `{"status": 1}`, http.StatusBadRequest, "VALIDATION"},
		{"bad grammar", http.MethodGet, "/url?limit:zero", "", http.StatusBadRequest, ""},
		{"bad body", http.MethodPost, "/url", `{"url":`, http.StatusBadRequest, ""},
		{"claim on post", http.MethodPost, "/job?update:status=1", `{}`, http.StatusBadRequest, ""},
		{"not null", http.MethodPost, "/url", `{"id": 9, "url": null}`, http.StatusConflict, "CONSTRAINT"},
		{"driver error", http.MethodGet, "/url?where:nope%3D1", "", http.StatusServiceUnavailable, "TRANSPORT"},
		{"method", http.MethodDelete, "/url", "", http.StatusMethodNotAllowed, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := do(t, tt.method, srv.URL+tt.path, tt.body)
			require.Equal(t, tt.status, resp.StatusCode, string(body))

			var eb errorBody
			require.NoError(t, json.Unmarshal(body, &eb))
			assert.NotEmpty(t, eb.Error)
			assert.Equal(t, tt.kind, eb.Kind)
		})
	}
}

func TestValidationErrorCarriesRow(t *testing.T) {
	srv := newTestServer(t)
	resp, body := do(t, http.MethodPost, srv.URL+"/url", `[{"url": "http://a"}, {"status": 1}]`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var eb errorBody
	require.NoError(t, json.Unmarshal(body, &eb))
	require.NotNil(t, eb.Row)
	assert.Equal(t, 1, *eb.Row)
}

type faultyBackend struct{}

func (faultyBackend) Get(context.Context, *request.Descriptor) ([]record.Row, error) {
	return nil, nil
}

func (faultyBackend) Claim(context.Context, *request.Descriptor) ([]record.Row, error) {
	return nil, nil
}

func (faultyBackend) Update(context.Context, *request.Descriptor) ([]any, error) {
	panic(&engine.ConsistencyFault{Table: "doc", Row: 0})
}

func TestConsistencyFaultIsServerError(t *testing.T) {
	h := NewHandler(faultyBackend{}, WithLogger(testutil.Logger(t)))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/doc", strings.NewReader(`{"title": "x"}`)))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "consistency fault")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/doc", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, statusFor(assert.AnError))
	assert.Equal(t, http.StatusBadRequest, statusFor(request.ErrInvalid))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(&engine.Error{Kind: engine.KindTransport}))
	assert.Equal(t, http.StatusConflict, statusFor(&engine.Error{Kind: engine.KindConstraint}))
}
