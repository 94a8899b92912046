package routes

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bch-rest-gateway/internal/upstream"
	"bch-rest-gateway/middleware/ratelimit"
)

const goodHash = "000000000000000000c8d4ab2a4cfd8fd6ee2e2d62fd4b1ec1b05c8a4fe66d56"

type fakeNode struct {
	mu      sync.Mutex
	calls   []string
	params  [][]interface{}
	results map[string]string
	err     error
}

func (f *fakeNode) Call(_ context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, method)
	f.params = append(f.params, params)
	if f.err != nil {
		return nil, f.err
	}
	if res, ok := f.results[method]; ok {
		return json.RawMessage(res), nil
	}
	return json.RawMessage(`"ok"`), nil
}

type fakeFanout struct {
	gotPath string
	gotUsr  upstream.UsrObj
	gotN    int
	replies []upstream.Reply
}

func (f *fakeFanout) PostEach(_ context.Context, path string, usr upstream.UsrObj, bodies []map[string]interface{}) []upstream.Reply {
	f.gotPath, f.gotUsr, f.gotN = path, usr, len(bodies)
	if f.replies != nil {
		return f.replies
	}
	out := make([]upstream.Reply, len(bodies))
	for i, b := range bodies {
		raw, _ := json.Marshal(b["hash"])
		out[i] = upstream.Reply{Status: http.StatusOK, Body: raw}
	}
	return out
}

func newMux(node *fakeNode, fan *fakeFanout) *http.ServeMux {
	mux := http.NewServeMux()
	(&Handlers{Node: node, Fanout: fan}).Register(mux)
	return mux
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestPassThroughRoutes(t *testing.T) {
	node := &fakeNode{results: map[string]string{"getblockcount": "840000"}}
	mux := newMux(node, &fakeFanout{})

	for _, pt := range passThrough {
		rec := do(t, mux, http.MethodGet, pt.path, "")
		assert.Equal(t, http.StatusOK, rec.Code, pt.path)
	}
	assert.Len(t, node.calls, len(passThrough))

	rec := do(t, mux, http.MethodGet, "/v5/blockchain/getBlockCount", "")
	assert.Equal(t, "840000", rec.Body.String())
}

func TestGetBlockHeader_Validation(t *testing.T) {
	node := &fakeNode{}
	mux := newMux(node, &fakeFanout{})

	rec := do(t, mux, http.MethodGet, "/v5/blockchain/getBlockHeader/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "This is not a hash")

	zs := strings.Repeat("z", 64)
	rec = do(t, mux, http.MethodGet, "/v5/blockchain/getBlockHeader/"+zs, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, node.calls)

	rec = do(t, mux, http.MethodGet, "/v5/blockchain/getBlockHeader/"+goodHash+"?verbose=true", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, node.params, 1)
	assert.Equal(t, []interface{}{goodHash, true}, node.params[0])
}

func TestUpstreamErrorsMapToStatus(t *testing.T) {
	cases := map[string]struct {
		err    error
		status int
		msg    string
	}{
		"rpc":         {&upstream.RPCError{Code: -5, Message: "Block not found"}, http.StatusBadRequest, "Block not found"},
		"unavailable": {upstream.ErrUnavailable, http.StatusServiceUnavailable, "Network error"},
		"other":       {errors.New("boom"), http.StatusInternalServerError, "Unhandled error"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			mux := newMux(&fakeNode{err: tc.err}, &fakeFanout{})
			rec := do(t, mux, http.MethodGet, "/v5/blockchain/getBlockHeader/"+goodHash, "")
			assert.Equal(t, tc.status, rec.Code)

			var body errorBody
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Contains(t, body.Error, tc.msg)
		})
	}
}

func TestSingleHeaderRoute(t *testing.T) {
	node := &fakeNode{}
	mux := newMux(node, &fakeFanout{})

	rec := do(t, mux, http.MethodPost, singleHeaderPath,
		`{"hash":"`+goodHash+`","verbose":false,"usrObj":{"proLimit":false}}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"getblockheader"}, node.calls)

	rec = do(t, mux, http.MethodPost, singleHeaderPath, `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBulkHeader_FansOutWithCallerIdentity(t *testing.T) {
	fan := &fakeFanout{}
	mux := http.NewServeMux()
	(&Handlers{Node: &fakeNode{}, Fanout: fan}).Register(mux)

	req := httptest.NewRequest(http.MethodPost, "/v5/blockchain/getBlockHeader",
		strings.NewReader(`{"hashes":["`+goodHash+`","`+goodHash+`"]}`))
	req.RemoteAddr = "203.0.113.9:5555"
	req.Header.Set("Authorization", "Token abc")
	req = req.WithContext(ratelimit.WithProLimit(req.Context()))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, singleHeaderPath, fan.gotPath)
	assert.Equal(t, 2, fan.gotN)
	assert.Equal(t, upstream.UsrObj{JWTToken: "abc", ProLimit: true, IP: "203.0.113.9"}, fan.gotUsr)

	var out []string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, []string{goodHash, goodHash}, out)
}

func TestBulkHeader_Validation(t *testing.T) {
	fan := &fakeFanout{}
	mux := newMux(&fakeNode{}, fan)

	rec := do(t, mux, http.MethodPost, "/v5/blockchain/getBlockHeader", `{"hash":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "hashes needs to be an array")

	many := make([]string, maxBulkHashes+1)
	for i := range many {
		many[i] = goodHash
	}
	raw, _ := json.Marshal(map[string]interface{}{"hashes": many})
	rec = do(t, mux, http.MethodPost, "/v5/blockchain/getBlockHeader", string(raw))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Array too large")

	rec = do(t, mux, http.MethodPost, "/v5/blockchain/getBlockHeader", `{"hashes":["nope"]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, fan.gotN)
}

func TestBulkHeader_PropagatesHopRejection(t *testing.T) {
	fan := &fakeFanout{replies: []upstream.Reply{
		{Status: http.StatusOK, Body: json.RawMessage(`{}`)},
		{Status: http.StatusTooManyRequests, Body: json.RawMessage(`{"error":"Too many requests."}`)},
	}}
	mux := newMux(&fakeNode{}, fan)

	rec := do(t, mux, http.MethodPost, "/v5/blockchain/getBlockHeader",
		`{"hashes":["`+goodHash+`","`+goodHash+`"]}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.JSONEq(t, `{"error":"Too many requests."}`, rec.Body.String())
}
