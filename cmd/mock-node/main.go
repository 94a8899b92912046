// mock-node responde JSON-RPC como um full node BCH mínimo, para rodar o
// gateway localmente sem um node de verdade.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

type rpcRequest struct {
	ID     interface{}     `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result interface{} `json:"result"`
	Error  *rpcError   `json:"error"`
	ID     interface{} `json:"id"`
}

var fixed = map[string]interface{}{
	"getblockcount":     840000,
	"getbestblockhash":  "000000000000000000c8d4ab2a4cfd8fd6ee2e2d62fd4b1ec1b05c8a4fe66d56",
	"getdifficulty":     512345678901.25,
	"getmempoolinfo":    map[string]interface{}{"size": 12, "bytes": 4096},
	"getnetworkinfo":    map[string]interface{}{"version": 270000, "subversion": "/mock-node:0.1/"},
	"getblockchaininfo": map[string]interface{}{"chain": "main", "blocks": 840000},
}

func handle(log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		resp := rpcResponse{ID: req.ID}
		if res, ok := fixed[req.Method]; ok {
			resp.Result = res
		} else if req.Method == "getblockheader" {
			var params []interface{}
			_ = json.Unmarshal(req.Params, &params)
			if len(params) == 0 {
				resp.Error = &rpcError{Code: -8, Message: "hash must be provided"}
			} else {
				resp.Result = map[string]interface{}{"hash": params[0], "height": 840000, "version": 536870912}
			}
		} else {
			resp.Error = &rpcError{Code: -32601, Message: "Method not found"}
		}
		log.Debug().Str("method", req.Method).Bool("error", resp.Error != nil).Msg("rpc")

		w.Header().Set("Content-Type", "application/json")
		if resp.Error != nil {
			w.WriteHeader(http.StatusInternalServerError)
		}
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	addr := ":8332"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           handle(log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("mock node listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server error")
	}
}
