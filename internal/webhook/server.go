// Package webhook exposes the signal endpoint. Every answer is HTTP 200: callers
// read the JSON "error" field, not the status code, to detect failure.
package webhook

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Grigoriy-art/bybit-autobot/internal/execution"
	"github.com/Grigoriy-art/bybit-autobot/internal/metrics"
	"github.com/Grigoriy-art/bybit-autobot/internal/router"
	"github.com/Grigoriy-art/bybit-autobot/internal/signal"
)

const (
	// MaxBodyBytes caps an inbound signal body.
	MaxBodyBytes = 1 << 20

	msgInvalidJSON   = "Invalid JSON"
	msgInvalidSignal = "Invalid signal format"
	msgBodyTooLarge  = "Request body too large"
	msgInternal      = "Internal Server Error"
)

// SignalHandler runs one validated signal; *router.Router satisfies it.
type SignalHandler interface {
	Handle(ctx context.Context, sig signal.TradeSignal) (router.Outcome, error)
}

// Response is the body of every answer on POST /.
type Response struct {
	Status  string `json:"status,omitempty"`
	Error   string `json:"error,omitempty"`
	Details any    `json:"details,omitempty"`
	Close   any    `json:"close,omitempty"`
}

// Server binds the signal handler to HTTP.
type Server struct {
	handler         SignalHandler
	log             zerolog.Logger
	defaultLeverage int
	newID           func() string
}

// Option configures a Server.
type Option func(*Server)

// WithDefaultLeverage sets the leverage applied when a signal omits it.
func WithDefaultLeverage(leverage int) Option {
	return func(s *Server) { s.defaultLeverage = leverage }
}

// New builds a webhook server around h.
func New(h SignalHandler, log zerolog.Logger, opts ...Option) *Server {
	s := &Server{handler: h, log: log, defaultLeverage: signal.DefaultLeverage, newID: uuid.NewString}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes returns the mux: POST / for signals and GET /healthz for health checks.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /{$}", s.handleSignal)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"ok": true})
	})
	return s.requestID(mux)
}

// ListenAndServe serves until ctx is cancelled, then drains in-flight signals.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.log.Info().Str("addr", addr).Msg("webhook listening")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// requestID tags each request with an id, echoed in X-Request-ID.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" || len(id) > 128 {
			id = s.newID()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(execution.WithRequestID(r.Context(), id)))
	})
}

func (s *Server) handleSignal(w http.ResponseWriter, r *http.Request) {
	log := s.log.With().Str("request_id", execution.RequestID(r.Context())).Logger()
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("panic", rec).Msg("signal handler panicked")
			metrics.SignalsTotal.WithLabelValues("panic").Inc()
			writeJSON(w, Response{Error: msgInternal})
		}
	}()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.reject(w, log, "too_large", msgBodyTooLarge, err.Error())
			return
		}
		s.reject(w, log, "invalid_json", msgInvalidJSON, err.Error())
		return
	}
	log.Debug().RawJSON("body", safeRaw(body)).Msg("raw signal")

	sig, err := signal.Parse(body, s.defaultLeverage)
	if err != nil {
		outcome, msg, detail := parseFailure(err)
		s.reject(w, log, outcome, msg, detail)
		return
	}
	log.Info().Str("sym", sig.Symbol).Str("side", string(sig.Side)).Int("leverage", sig.Leverage).Msg("signal received")

	out, err := s.handler.Handle(r.Context(), sig)
	resp := BuildResponse(out, err)
	if err != nil {
		metrics.SignalsTotal.WithLabelValues("failed").Inc()
		writeJSON(w, resp)
		return
	}
	metrics.SignalsTotal.WithLabelValues("success").Inc()
	log.Info().Str("sym", sig.Symbol).Str("order_id", out.Open.OrderID).Bool("flipped", out.Flipped()).Msg("order sent")
	writeJSON(w, resp)
}

// BuildResponse shapes a router outcome into the webhook contract.
func BuildResponse(out router.Outcome, err error) Response {
	if err != nil {
		resp := Response{Error: msgInternal, Details: err.Error()}
		var se *router.StageError
		if errors.As(err, &se) {
			resp.Error = se.Error()
			if se.Details != nil {
				resp.Details = se.Details
			}
		}
		return resp
	}
	resp := Response{Status: "success", Details: out.Open.Raw}
	if out.Close != nil {
		resp.Close = out.Close.Raw
	}
	return resp
}

// ParseFailure shapes a signal.Parse error into the webhook contract.
func ParseFailure(err error) Response {
	_, msg, detail := parseFailure(err)
	return Response{Error: msg, Details: detail}
}

func parseFailure(err error) (outcome, msg, detail string) {
	detail = err.Error()
	var perr *signal.ParseError
	if errors.As(err, &perr) {
		detail = perr.Detail
	}
	if errors.Is(err, signal.ErrInvalidJSON) {
		return "invalid_json", msgInvalidJSON, detail
	}
	return "invalid_signal", msgInvalidSignal, detail
}

func (s *Server) reject(w http.ResponseWriter, log zerolog.Logger, outcome, msg, detail string) {
	log.Warn().Str("outcome", outcome).Str("details", detail).Msg("signal rejected")
	metrics.SignalsTotal.WithLabelValues(outcome).Inc()
	writeJSON(w, Response{Error: msg, Details: detail})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(v)
}

// safeRaw keeps the log line valid JSON when the body is not.
func safeRaw(body []byte) []byte {
	if json.Valid(body) {
		return body
	}
	quoted, _ := json.Marshal(string(body))
	return quoted
}
