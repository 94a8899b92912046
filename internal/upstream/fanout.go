package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// UsrObj é a identidade do chamador original repassada nas sub-requisições
// internas, para que cada hop seja cobrado dele e não do bucket interno.
type UsrObj struct {
	JWTToken string `json:"jwtToken,omitempty"`
	ProLimit bool   `json:"proLimit"`
	IP       string `json:"ip,omitempty"`
}

// Reply é a resposta de uma sub-requisição, na ordem do pedido.
type Reply struct {
	Status int
	Body   json.RawMessage
	Err    error
}

type FanoutClient struct {
	baseURL  string
	http     *http.Client
	parallel int
}

func NewFanoutClient(baseURL string, hc *http.Client, parallel int) *FanoutClient {
	if hc == nil {
		hc = http.DefaultClient
	}
	if parallel <= 0 {
		parallel = 4
	}
	return &FanoutClient{baseURL: strings.TrimRight(baseURL, "/"), http: hc, parallel: parallel}
}

// PostEach envia um POST JSON por body, cada um com usrObj embutido.
// Falhas individuais ficam em Reply.Err; o rate limit de cada hop decide sozinho.
func (c *FanoutClient) PostEach(ctx context.Context, path string, usr UsrObj, bodies []map[string]interface{}) []Reply {
	out := make([]Reply, len(bodies))
	sem := make(chan struct{}, c.parallel)

	var wg sync.WaitGroup
	for i, b := range bodies {
		wg.Add(1)
		go func(i int, b map[string]interface{}) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				out[i] = Reply{Err: ctx.Err()}
				return
			}
			defer func() { <-sem }()
			out[i] = c.post(ctx, path, usr, b)
		}(i, b)
	}
	wg.Wait()
	return out
}

func (c *FanoutClient) post(ctx context.Context, path string, usr UsrObj, body map[string]interface{}) Reply {
	payload := make(map[string]interface{}, len(body)+1)
	for k, v := range body {
		payload[k] = v
	}
	payload["usrObj"] = usr

	buf, err := json.Marshal(payload)
	if err != nil {
		return Reply{Err: errors.Wrap(err, "encode fan-out body")}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return Reply{Err: errors.Wrap(err, "build fan-out request")}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Reply{Err: errors.Wrapf(ErrUnavailable, "fan-out %s: %v", path, err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return Reply{Status: resp.StatusCode, Err: errors.Wrap(err, "read fan-out reply")}
	}
	return Reply{Status: resp.StatusCode, Body: raw}
}
