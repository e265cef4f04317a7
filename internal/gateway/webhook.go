package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/mattjoyce/hookgate/internal/audit"
	"github.com/mattjoyce/hookgate/internal/auth"
	"github.com/mattjoyce/hookgate/internal/events"
	"github.com/mattjoyce/hookgate/internal/ratelimit"
	"github.com/mattjoyce/hookgate/internal/router"
)

// handleWebhook runs the admission pipeline for POST /webhook/{service}.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	service := chi.URLParam(r, "service")
	requestID := middleware.GetReqID(r.Context())

	outcome := admissionOutcome{
		requestID: requestID,
		service:   service,
		role:      auth.RoleAnonymous,
	}

	// Read the raw body once and keep it byte-for-byte; the signature was
	// computed over these exact bytes, never over a re-serialization.
	limited := io.LimitReader(r.Body, s.config.MaxBodySize+1)
	rawBody, err := io.ReadAll(limited)
	if err != nil {
		s.finish(w, &outcome, start, http.StatusInternalServerError, ErrorDetail{
			Code: CodeBodyReadFailed, Message: "failed to read request body",
		})
		return
	}
	if int64(len(rawBody)) > s.config.MaxBodySize {
		s.finish(w, &outcome, start, http.StatusRequestEntityTooLarge, ErrorDetail{
			Code: CodePayloadTooLarge, Message: "payload too large",
		})
		return
	}

	// Stage 1: signature. Rejection is generic; which part of the signature
	// was wrong is exactly what a forger wants to learn.
	if err := s.verifier.Verify(rawBody, r.Header.Get(SignatureHeader)); err != nil {
		s.logger.Warn("signature verification failed",
			"service", service,
			"request_id", requestID,
		)
		s.finish(w, &outcome, start, http.StatusForbidden, ErrorDetail{
			Code: CodeInvalidSignature, Message: "forbidden",
		})
		return
	}

	// Stage 2: role. A missing or unknown credential is the anonymous path,
	// not an error. Resolver infrastructure faults degrade to anonymous too:
	// the request was already authenticated by its signature.
	credential, hasCredential := auth.ExtractBearer(r)
	role := auth.RoleAnonymous
	if hasCredential {
		role, err = s.resolver.Resolve(r.Context(), credential)
		if err != nil {
			s.logger.Warn("role resolution failed, treating as anonymous",
				"request_id", requestID,
				"error", err,
			)
			role = auth.RoleAnonymous
		}
	}
	outcome.role = role

	// The rate-limit identifier is the credential when it bought a real
	// role, else the client IP. An unsigned-but-passing (open mode) or
	// anonymous request never consumes a named identity's budget.
	//
	// The publicID is what the events stream and watch TUI see. A
	// credential-backed identifier IS the raw API key, so the public form is
	// a short digest prefix; the key itself goes only to the audit sink.
	identifier := clientIP(r)
	publicID := identifier
	if role != auth.RoleAnonymous {
		identifier = credential
		publicID = "key:" + auth.HashKey(credential)[:8]
	}
	outcome.identifier = identifier
	outcome.publicID = publicID

	// Stage 3: rate limit. The counter store's own locking covers the
	// read-modify-write; no lock is held by the time we dispatch.
	decision, err := s.limiter.Check(r.Context(), identifier, role)
	if err != nil {
		// Checker implementations fail open internally; an error here is a
		// programming bug, not a store outage. Admit anyway.
		s.logger.Error("rate limiter returned error", "request_id", requestID, "error", err)
		decision = ratelimit.Decision{Allowed: true}
	}
	writeRateLimitHeaders(w, decision)
	outcome.remaining = decision.Remaining

	if !decision.Allowed {
		w.Header().Set("Retry-After", strconv.FormatInt(retryAfterSeconds(decision.ResetAt), 10))
		s.finish(w, &outcome, start, http.StatusTooManyRequests, ErrorDetail{
			Code:    CodeRateLimited,
			Message: "rate limit exceeded",
			ResetAt: decision.ResetAt.Unix(),
		})
		return
	}

	// Parse after admission so malformed payloads still pay their quota.
	payload := json.RawMessage(rawBody)
	if len(rawBody) == 0 {
		payload = json.RawMessage(`{}`)
	} else if !json.Valid(rawBody) {
		s.finish(w, &outcome, start, http.StatusBadRequest, ErrorDetail{
			Code: CodeInvalidPayload, Message: "body must be valid JSON",
		})
		return
	}

	// Stage 4: route and invoke. The handler runs on a context detached from
	// the client connection: a disconnect must not abandon webhook side
	// effects, it only discards the response write.
	result, err := s.registry.Dispatch(context.WithoutCancel(r.Context()), service, payload)
	if err != nil {
		var he *router.HandlerError
		switch {
		case errors.Is(err, router.ErrUnknownService):
			// Still costs quota (already charged above); invalid service
			// names are not a throttling bypass.
			s.finish(w, &outcome, start, http.StatusNotFound, ErrorDetail{
				Code: CodeUnknownService, Message: "unknown service",
			})
		case errors.As(err, &he):
			// Full detail to the log, nothing but an opaque failure to the
			// caller.
			s.logger.Error("handler failed",
				"service", service,
				"request_id", requestID,
				"error", he.Cause,
			)
			s.finish(w, &outcome, start, http.StatusInternalServerError, ErrorDetail{
				Code: CodeHandlerFailure, Message: "handler failed",
			})
		default:
			s.logger.Error("dispatch failed", "service", service, "request_id", requestID, "error", err)
			s.finish(w, &outcome, start, http.StatusInternalServerError, ErrorDetail{
				Code: CodeHandlerFailure, Message: "handler failed",
			})
		}
		return
	}

	data, err := json.Marshal(result)
	if err != nil {
		s.logger.Error("handler result not serializable",
			"service", service,
			"request_id", requestID,
			"error", err,
		)
		s.finish(w, &outcome, start, http.StatusInternalServerError, ErrorDetail{
			Code: CodeHandlerFailure, Message: "handler failed",
		})
		return
	}

	s.finishOK(w, &outcome, start, ProcessedResponse{
		Status:  "processed",
		Service: service,
		Data:    data,
	})
}

// admissionOutcome accumulates what the observability tail needs.
type admissionOutcome struct {
	requestID  string
	service    string
	role       auth.Role
	identifier string
	publicID   string
	remaining  int
}

func (s *Server) finishOK(w http.ResponseWriter, o *admissionOutcome, start time.Time, resp ProcessedResponse) {
	s.respondJSON(w, http.StatusOK, resp)
	s.observe(o, http.StatusOK, "", start)
}

func (s *Server) finish(w http.ResponseWriter, o *admissionOutcome, start time.Time, status int, detail ErrorDetail) {
	s.respondError(w, status, detail)
	s.observe(o, status, detail.Code, start)
}

// observe emits the fire-and-forget tail: usage record, audit entry, event.
// None of these block or fail the response.
func (s *Server) observe(o *admissionOutcome, status int, code string, start time.Time) {
	eventType := events.TypeProcessed
	switch {
	case status >= 500:
		eventType = events.TypeHandlerFault
	case status >= 400:
		eventType = events.TypeRejected
	}

	if o.identifier != "" {
		s.recorder.Record(o.identifier, eventType, 1)
	}

	s.auditLog.Log(audit.Event{
		ID:         uuid.NewString(),
		At:         time.Now().UTC(),
		Type:       eventType,
		Service:    o.service,
		Identifier: o.identifier,
		Role:       string(o.role),
		Status:     status,
		Detail:     code,
	})

	// The hub feeds an unauthenticated stream; only the redacted identifier
	// may cross it.
	s.hub.Publish(eventType, events.Admission{
		RequestID:  o.requestID,
		Service:    o.service,
		Role:       string(o.role),
		Identifier: o.publicID,
		Status:     status,
		Code:       code,
		Remaining:  o.remaining,
		DurationMS: time.Since(start).Milliseconds(),
	})
}

// writeRateLimitHeaders advertises the decision on every response so clients
// can pace themselves before hitting 429. A zero limit means rate limiting
// is disabled; advertising it would be noise.
func writeRateLimitHeaders(w http.ResponseWriter, d ratelimit.Decision) {
	if d.Limit <= 0 {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
}

func retryAfterSeconds(resetAt time.Time) int64 {
	secs := int64(time.Until(resetAt).Seconds())
	if secs < 1 {
		secs = 1
	}
	return secs
}

// clientIP extracts the host part of RemoteAddr; RealIP middleware has
// already folded X-Forwarded-For into it.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
