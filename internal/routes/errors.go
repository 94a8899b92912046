package routes

import (
	"encoding/json"
	"errors"
	"net/http"

	"bch-rest-gateway/internal/upstream"
)

const networkErrorMsg = "Network error: Could not communicate with full node or other external service."

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// decodeError traduz erro de upstream em status HTTP + mensagem.
func decodeError(err error) (int, string) {
	var rpcErr *upstream.RPCError
	switch {
	case errors.As(err, &rpcErr):
		return http.StatusBadRequest, rpcErr.Message
	case errors.Is(err, upstream.ErrUnavailable):
		return http.StatusServiceUnavailable, networkErrorMsg
	default:
		return http.StatusInternalServerError, "Unhandled error"
	}
}
