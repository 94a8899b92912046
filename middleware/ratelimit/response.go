package ratelimit

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"bch-rest-gateway/middleware/ratelimit/domain"
)

const DefaultUpgradeHint = "Pass an access token in the Authorization header to increase your rate limits."

type errorBody struct {
	Error string `json:"error"`
}

// OverLimitMessage cita o teto efetivo floor(capacity/points) do chamador.
func OverLimitMessage(dec domain.Decision, window time.Duration, hint string) string {
	per := "minute"
	if window > 0 && window != time.Minute {
		per = window.String()
	}
	msg := fmt.Sprintf("Too many requests. Your limits are currently %d requests per %s.", dec.RequestsPerWindow, per)
	if hint != "" {
		msg += " " + hint
	}
	return msg
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: msg})
}
