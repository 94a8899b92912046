// Package upstream fala com os serviços atrás do gateway: o JSON-RPC do full
// node e as sub-requisições internas de fan-out para o próprio gateway.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/valyala/fastjson"
	"golang.org/x/time/rate"
)

// ErrUnavailable cobre rede, timeout e respostas sem corpo JSON-RPC.
var ErrUnavailable = errors.New("upstream unavailable")

// RPCError é o erro devolvido pelo próprio node no envelope JSON-RPC.
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string { return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message) }

type NodeConfig struct {
	URL      string
	User     string
	Password string
	Timeout  time.Duration
	// RPS/Burst limitam o ritmo de chamadas ao node (não é cota de cliente).
	RPS   float64
	Burst int
}

type NodeClient struct {
	cfg    NodeConfig
	http   *http.Client
	pacer  *rate.Limiter
	nextID atomic.Uint64
}

func NewNodeClient(cfg NodeConfig, hc *http.Client) *NodeClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	lim := rate.NewLimiter(rate.Inf, 0)
	if cfg.RPS > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(cfg.RPS), burst)
	}
	return &NodeClient{cfg: cfg, http: hc, pacer: lim}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      string        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

// Call executa um método e devolve o campo "result" cru.
func (c *NodeClient) Call(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	if params == nil {
		params = []interface{}{}
	}
	if err := c.pacer.Wait(ctx); err != nil {
		return nil, errors.Wrapf(ErrUnavailable, "pacing %s: %v", method, err)
	}

	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "1.0",
		ID:      fmt.Sprintf("gw-%d", c.nextID.Add(1)),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, errors.Wrap(err, "encode rpc request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, "build rpc request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.User != "" || c.cfg.Password != "" {
		req.SetBasicAuth(c.cfg.User, c.cfg.Password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(ErrUnavailable, "%s: %v", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, errors.Wrapf(ErrUnavailable, "read %s reply: %v", method, err)
	}

	// bitcoind responde 500 com envelope JSON-RPC válido quando o método falha
	var p fastjson.Parser
	v, err := p.ParseBytes(body)
	if err != nil {
		return nil, errors.Wrapf(ErrUnavailable, "%s: status %d, non JSON reply", method, resp.StatusCode)
	}
	if e := v.Get("error"); e != nil && e.Type() == fastjson.TypeObject {
		return nil, &RPCError{Code: e.GetInt("code"), Message: string(e.GetStringBytes("message"))}
	}
	res := v.Get("result")
	if res == nil {
		return nil, errors.Wrapf(ErrUnavailable, "%s: reply without result", method)
	}
	return json.RawMessage(res.MarshalTo(nil)), nil
}
