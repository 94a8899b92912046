package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFanoutClient_ForwardsUsrObjAndKeepsOrder(t *testing.T) {
	var mu sync.Mutex
	var seen []UsrObj

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v5/blockchain/getBlockHeader/single", r.URL.Path)
		var body struct {
			Hash   string `json:"hash"`
			UsrObj UsrObj `json:"usrObj"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		mu.Lock()
		seen = append(seen, body.UsrObj)
		mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]string{"hash": body.Hash})
	}))
	defer srv.Close()

	c := NewFanoutClient(srv.URL+"/", nil, 2)
	usr := UsrObj{JWTToken: "tok", IP: "8.8.8.8"}
	replies := c.PostEach(context.Background(), "/v5/blockchain/getBlockHeader/single", usr, []map[string]interface{}{
		{"hash": "a"}, {"hash": "b"}, {"hash": "c"},
	})

	require.Len(t, replies, 3)
	for i, want := range []string{"a", "b", "c"} {
		require.NoError(t, replies[i].Err)
		assert.Equal(t, http.StatusOK, replies[i].Status)
		assert.JSONEq(t, `{"hash":"`+want+`"}`, string(replies[i].Body))
	}
	require.Len(t, seen, 3)
	for _, u := range seen {
		assert.Equal(t, usr, u)
	}
}

func TestFanoutClient_CancelledContext(t *testing.T) {
	c := NewFanoutClient("http://127.0.0.1:1", nil, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	replies := c.PostEach(ctx, "/x", UsrObj{}, []map[string]interface{}{{"a": 1}, {"a": 2}})
	for _, r := range replies {
		assert.Error(t, r.Err)
	}
}
