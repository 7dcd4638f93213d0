package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/sells-group/scrape-relay/internal/relay"
)

type errorBody struct {
	Error string `json:"error"`
}

// upstreamBody reports a provider-side failure.
type upstreamBody struct {
	Step           string          `json:"step"`
	UpstreamStatus int             `json:"upstreamStatus,omitempty"`
	Upstream       json.RawMessage `json:"upstream"`
}

// timeoutBody reports that the job did not finish within the attempt ceiling.
type timeoutBody struct {
	Step  string          `json:"step"`
	Error string          `json:"error"`
	Last  json.RawMessage `json:"last"`
}

type healthBody struct {
	OK   bool   `json:"ok"`
	Time string `json:"time"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("write response", zap.Error(err))
	}
}

// ErrorResponse maps an orchestrator error onto its HTTP status and body.
func ErrorResponse(err error) (int, any) {
	var (
		verr *relay.ValidationError
		cerr *relay.ConfigurationError
		serr *relay.SubmissionError
		perr *relay.PollFailure
		terr *relay.PollTimeout
	)
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, errorBody{Error: verr.Error()}
	case errors.As(err, &cerr):
		return http.StatusInternalServerError, errorBody{Error: cerr.Error()}
	case errors.As(err, &serr):
		return http.StatusBadGateway, upstreamBody{Step: relay.StepStart, UpstreamStatus: serr.HTTPStatus, Upstream: orNull(serr.Body)}
	case errors.As(err, &perr):
		return http.StatusBadGateway, upstreamBody{Step: relay.StepPoll, UpstreamStatus: perr.HTTPStatus, Upstream: orNull(perr.Body)}
	case errors.As(err, &terr):
		return http.StatusGatewayTimeout, timeoutBody{Step: relay.StepPoll, Error: "timeout", Last: orNull(terr.Last)}
	default:
		return http.StatusInternalServerError, errorBody{Error: err.Error()}
	}
}

func orNull(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("null")
	}
	return raw
}
