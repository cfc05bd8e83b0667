package server

import (
	"StarLedger/internal/observability"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const maxBodyBytes = 1 << 20

// NewGateway builds the HTTP/JSON API over svc:
//
//	GET  /height
//	GET  /block/height/{height}
//	GET  /block/hash/{hash}
//	POST /requestValidation
//	POST /submitstar
//	GET  /blocks/{address}
//	GET  /validate
//
// plus /healthz and /readyz when hc is non-nil.
func NewGateway(svc StarRegistryServer, hc *observability.HealthChecker, metrics *observability.Metrics, logger zerolog.Logger) (http.Handler, error) {
	gw := &gateway{svc: svc, metrics: metrics, log: logger}
	mux := runtime.NewServeMux()

	routes := []struct {
		method  string
		pattern string
		name    string
		handler runtime.HandlerFunc
	}{
		{http.MethodGet, "/height", "GetHeight", gw.getHeight},
		{http.MethodGet, "/block/height/{height}", "GetBlockByHeight", gw.getBlockByHeight},
		{http.MethodGet, "/block/hash/{hash}", "GetBlockByHash", gw.getBlockByHash},
		{http.MethodPost, "/requestValidation", "RequestValidation", gw.requestValidation},
		{http.MethodPost, "/submitstar", "SubmitStar", gw.submitStar},
		{http.MethodGet, "/blocks/{address}", "GetStarsByOwner", gw.getStarsByOwner},
		{http.MethodGet, "/validate", "ValidateChain", gw.validateChain},
	}
	for _, r := range routes {
		if err := mux.HandlePath(r.method, r.pattern, gw.instrument(r.name, r.handler)); err != nil {
			return nil, fmt.Errorf("register %s %s: %w", r.method, r.pattern, err)
		}
	}

	root := http.NewServeMux()
	if hc != nil {
		root.HandleFunc("/healthz", hc.LivenessHandler)
		root.HandleFunc("/readyz", hc.ReadinessHandler)
	}
	root.Handle("/", mux)

	return requestIDMiddleware(root), nil
}

type gateway struct {
	svc     StarRegistryServer
	metrics *observability.Metrics
	log     zerolog.Logger
}

func (g *gateway) getHeight(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	resp, err := g.svc.GetHeight(r.Context(), &GetHeightRequest{})
	g.reply(w, r, resp, err)
}

func (g *gateway) getBlockByHeight(w http.ResponseWriter, r *http.Request, params map[string]string) {
	height, err := strconv.ParseInt(params["height"], 10, 64)
	if err != nil {
		g.reply(w, r, nil, status.Errorf(codes.InvalidArgument, "invalid height %q", params["height"]))
		return
	}
	resp, err := g.svc.GetBlockByHeight(r.Context(), &GetBlockByHeightRequest{Height: height})
	g.reply(w, r, resp, err)
}

func (g *gateway) getBlockByHash(w http.ResponseWriter, r *http.Request, params map[string]string) {
	resp, err := g.svc.GetBlockByHash(r.Context(), &GetBlockByHashRequest{Hash: params["hash"]})
	g.reply(w, r, resp, err)
}

func (g *gateway) requestValidation(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req RequestValidationRequest
	if err := decodeBody(r, &req); err != nil {
		g.reply(w, r, nil, err)
		return
	}
	resp, err := g.svc.RequestValidation(r.Context(), &req)
	g.reply(w, r, resp, err)
}

func (g *gateway) submitStar(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req SubmitStarRequest
	if err := decodeBody(r, &req); err != nil {
		g.reply(w, r, nil, err)
		return
	}
	resp, err := g.svc.SubmitStar(r.Context(), &req)
	g.reply(w, r, resp, err)
}

func (g *gateway) getStarsByOwner(w http.ResponseWriter, r *http.Request, params map[string]string) {
	resp, err := g.svc.GetStarsByOwner(r.Context(), &GetStarsByOwnerRequest{Address: params["address"]})
	if err != nil {
		g.reply(w, r, nil, err)
		return
	}
	// The HTTP API returns the bare list of claims
	g.reply(w, r, resp.Stars, nil)
}

func (g *gateway) validateChain(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	resp, err := g.svc.ValidateChain(r.Context(), &ValidateChainRequest{})
	g.reply(w, r, resp, err)
}

// reply writes v as JSON, or err as {"error","code"} with the HTTP status
// matching its gRPC code.
func (g *gateway) reply(w http.ResponseWriter, r *http.Request, v interface{}, err error) {
	if err != nil {
		st := status.Convert(err)
		code := runtime.HTTPStatusFromCode(st.Code())
		if code >= http.StatusInternalServerError {
			g.log.Error().
				Str("request_id", RequestID(r.Context())).
				Str("path", r.URL.Path).
				Str("code", st.Code().String()).
				Msg(st.Message())
		}
		writeJSON(w, code, map[string]string{
			"error": st.Message(),
			"code":  st.Code().String(),
		})
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (g *gateway) instrument(name string, h runtime.HandlerFunc) runtime.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, params map[string]string) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r, params)

		if g.metrics != nil {
			g.metrics.APIRequests.WithLabelValues("http", name, strconv.Itoa(rec.status)).Inc()
			g.metrics.APIDuration.WithLabelValues("http", name).Observe(time.Since(start).Seconds())
		}
		g.log.Debug().
			Str("request_id", RequestID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("elapsed", time.Since(start)).
			Msg("http request")
	}
}

func decodeBody(r *http.Request, v interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return status.Errorf(codes.InvalidArgument, "read body: %v", err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return status.Errorf(codes.InvalidArgument, "invalid JSON body: %v", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// requestIDMiddleware propagates X-Request-Id, generating one when absent.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r.WithContext(withRequestID(r.Context(), id)))
	})
}
