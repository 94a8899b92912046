// Package routes contém os handlers finos do gateway: validam parâmetros,
// repassam ao full node e devolvem JSON. O rate limit já rodou antes deles.
package routes

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"bch-rest-gateway/internal/upstream"
	"bch-rest-gateway/middleware/ratelimit"
)

const maxBulkHashes = 20

type NodeCaller interface {
	Call(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error)
}

type Fanouter interface {
	PostEach(ctx context.Context, path string, usr upstream.UsrObj, bodies []map[string]interface{}) []upstream.Reply
}

// passThrough: rota GET sem parâmetros -> método RPC.
var passThrough = []struct {
	path   string
	method string
}{
	{"/v5/control/getNetworkInfo", "getnetworkinfo"},
	{"/v5/blockchain/getBestBlockHash", "getbestblockhash"},
	{"/v5/blockchain/getBlockchainInfo", "getblockchaininfo"},
	{"/v5/blockchain/getBlockCount", "getblockcount"},
	{"/v5/blockchain/getMempoolInfo", "getmempoolinfo"},
	{"/v5/blockchain/getDifficulty", "getdifficulty"},
}

const singleHeaderPath = "/v5/blockchain/getBlockHeader/single"

type Handlers struct {
	Node     NodeCaller
	Fanout   Fanouter
	TrustXFF bool
	Logger   zerolog.Logger
}

func (h *Handlers) Register(mux *http.ServeMux) {
	for _, pt := range passThrough {
		mux.HandleFunc("GET "+pt.path, h.rpc(pt.method))
	}
	mux.HandleFunc("GET /v5/blockchain/getBlockHeader/{hash}", h.getBlockHeader)
	mux.HandleFunc("POST "+singleHeaderPath, h.getBlockHeaderSingle)
	mux.HandleFunc("POST /v5/blockchain/getBlockHeader", h.getBlockHeaderBulk)
}

func (h *Handlers) rpc(method string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := h.Node.Call(r.Context(), method)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeRaw(w, res)
	}
}

func (h *Handlers) getBlockHeader(w http.ResponseWriter, r *http.Request) {
	hash := r.PathValue("hash")
	if msg := validateHash(hash); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	verbose := false
	if v := r.URL.Query().Get("verbose"); v != "" {
		verbose, _ = strconv.ParseBool(v)
	}
	h.blockHeader(w, r, hash, verbose)
}

type headerBody struct {
	Hash    string   `json:"hash"`
	Hashes  []string `json:"hashes"`
	Verbose bool     `json:"verbose"`
}

// getBlockHeaderSingle é o alvo das sub-requisições internas do bulk.
func (h *Handlers) getBlockHeaderSingle(w http.ResponseWriter, r *http.Request) {
	var body headerBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "body must be JSON")
		return
	}
	if msg := validateHash(body.Hash); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	h.blockHeader(w, r, body.Hash, body.Verbose)
}

func (h *Handlers) blockHeader(w http.ResponseWriter, r *http.Request, hash string, verbose bool) {
	res, err := h.Node.Call(r.Context(), "getblockheader", hash, verbose)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeRaw(w, res)
}

// getBlockHeaderBulk faz fan-out interno, um hop por hash, repassando a
// identidade do chamador para que cada hop seja cobrado dele.
func (h *Handlers) getBlockHeaderBulk(w http.ResponseWriter, r *http.Request) {
	var body headerBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Hashes == nil {
		writeError(w, http.StatusBadRequest, "hashes needs to be an array. Use GET for single hash.")
		return
	}
	if len(body.Hashes) > maxBulkHashes {
		writeError(w, http.StatusBadRequest, "Array too large.")
		return
	}
	bodies := make([]map[string]interface{}, 0, len(body.Hashes))
	for _, hash := range body.Hashes {
		if msg := validateHash(hash); msg != "" {
			writeError(w, http.StatusBadRequest, msg+": "+hash)
			return
		}
		bodies = append(bodies, map[string]interface{}{"hash": hash, "verbose": body.Verbose})
	}

	replies := h.Fanout.PostEach(r.Context(), singleHeaderPath, UsrObjFrom(r, h.TrustXFF), bodies)

	out := make([]json.RawMessage, 0, len(replies))
	for _, rep := range replies {
		if rep.Err != nil {
			h.fail(w, r, rep.Err)
			return
		}
		if rep.Status != http.StatusOK {
			// repassa o primeiro erro do hop (429 inclusive) como veio
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(rep.Status)
			_, _ = w.Write(rep.Body)
			return
		}
		out = append(out, rep.Body)
	}
	writeJSON(w, http.StatusOK, out)
}

// UsrObjFrom monta a identidade a repassar nos hops internos.
func UsrObjFrom(r *http.Request, trustXFF bool) upstream.UsrObj {
	return upstream.UsrObj{
		JWTToken: ratelimit.AccessToken(r),
		ProLimit: ratelimit.ProLimit(r.Context()),
		IP:       ratelimit.ClientIP(r, trustXFF),
	}
}

// InternalHop reconhece as sub-requisições do próprio bulk: alvo /single vindo
// de um peer interno. Olha só o RemoteAddr, nunca X-Forwarded-For.
func InternalHop(isInternal func(ip string) bool) func(*http.Request) bool {
	return func(r *http.Request) bool {
		return r.URL.Path == singleHeaderPath && isInternal(ratelimit.ClientIP(r, false))
	}
}

func validateHash(hash string) string {
	switch {
	case hash == "":
		return "hash can not be empty"
	case len(hash) != 64:
		return "This is not a hash"
	}
	if _, err := hex.DecodeString(hash); err != nil {
		return "This is not a hash"
	}
	return ""
}

func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := decodeError(err)
	ev := h.Logger.Warn()
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		ev = h.Logger.Error()
	}
	ev.Err(err).Str("path", r.URL.Path).Int("status", status).Msg("upstream call failed")
	writeError(w, status, msg)
}

func writeRaw(w http.ResponseWriter, raw json.RawMessage) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}
