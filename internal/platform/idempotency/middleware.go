package idempotency

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/donabox/api/internal/platform/auth"
	"github.com/donabox/api/internal/platform/httpx"
)

const (
	defaultHeaderName = "Idempotency-Key"
	replayHeaderName  = "X-Idempotent-Replay"
	maxBodyBytes      = 1 << 20
)

// Logger receives events about store failures that do not change the response.
type Logger func(ctx context.Context, event string, fields map[string]any)

// RequesterFunc names the party a key is scoped to. Two requesters never share a record.
type RequesterFunc func(r *http.Request) string

type middlewareConfig struct {
	header    string
	ttl       time.Duration
	clock     func() time.Time
	logger    Logger
	required  bool
	requester RequesterFunc
}

type MiddlewareOption func(*middlewareConfig)

func WithHeader(name string) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if name = strings.TrimSpace(name); name != "" {
			cfg.header = name
		}
	}
}

// WithTTL sets how long a key stays bound to its first response.
func WithTTL(ttl time.Duration) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if ttl > 0 {
			cfg.ttl = ttl
		}
	}
}

func WithLogger(logger Logger) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithRequiredKey answers 400 when the header is missing. Without it such requests
// run unguarded.
func WithRequiredKey() MiddlewareOption {
	return func(cfg *middlewareConfig) { cfg.required = true }
}

// WithRequester replaces the default scope, which is the Firebase uid or else a hash
// of the client address.
func WithRequester(fn RequesterFunc) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if fn != nil {
			cfg.requester = fn
		}
	}
}

func WithClock(clock func() time.Time) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if clock != nil {
			cfg.clock = clock
		}
	}
}

// Middleware guards POST requests carrying the key header. The first request with a
// key runs the handler and its response is stored; retries with the same key and
// payload get that response back with X-Idempotent-Replay set. Reusing a key for a
// different payload, or while the first request is running, answers 409. 5xx
// responses are not stored so the retry runs the handler again.
func Middleware(store Store, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	cfg := middlewareConfig{
		header:    defaultHeaderName,
		ttl:       DefaultTTL,
		clock:     time.Now,
		logger:    func(context.Context, string, map[string]any) {},
		requester: requesterFromRequest,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		return &guard{store: store, cfg: cfg, next: next}
	}
}

type guard struct {
	store Store
	cfg   middlewareConfig
	next  http.Handler
}

func (g *guard) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		g.next.ServeHTTP(w, r)
		return
	}
	ctx := r.Context()
	key := strings.TrimSpace(r.Header.Get(g.cfg.header))
	if key == "" {
		if g.cfg.required {
			respondError(ctx, w, http.StatusBadRequest, "idempotency_key_required", fmt.Sprintf("%s header is required", g.cfg.header))
			return
		}
		g.next.ServeHTTP(w, r)
		return
	}

	body, err := bufferBody(r)
	switch {
	case errors.Is(err, errBodyTooLarge):
		respondError(ctx, w, http.StatusRequestEntityTooLarge, "request_too_large", "request body is too large")
		return
	case err != nil:
		respondError(ctx, w, http.StatusBadRequest, "idempotency_read_body_failed", "unable to read request body")
		return
	}

	requester := g.cfg.requester(r)
	scoped := scope(key, requester)
	fp := fingerprint(r, body, requester)

	reservation, err := g.store.Reserve(ctx, scoped, fp, g.cfg.clock().UTC(), g.cfg.ttl)
	switch {
	case errors.Is(err, ErrFingerprintMismatch):
		respondError(ctx, w, http.StatusConflict, "idempotency_key_conflict", "idempotency key already used for a different request")
		return
	case err != nil:
		g.cfg.logger(ctx, "idempotency.reserve.failed", map[string]any{"error": err.Error()})
		respondError(ctx, w, http.StatusServiceUnavailable, "idempotency_store_error", "unable to process idempotency key")
		return
	}

	switch reservation.State {
	case ReservationStateCompleted:
		record := reservation.Record
		w.Header().Set(replayHeaderName, "true")
		_ = writeResponse(w, record.ResponseStatus, record.ResponseHeaders, record.ResponseBody)
		return
	case ReservationStatePending:
		respondError(ctx, w, http.StatusConflict, "idempotency_in_progress", "another request is processing this idempotency key")
		return
	}

	buffered := newBufferedResponse()
	g.next.ServeHTTP(buffered, r)
	resp := buffered.response()
	g.finish(ctx, key, scoped, fp, resp)
	if err := writeResponse(w, resp.Status, resp.Headers, resp.Body); err != nil {
		g.cfg.logger(ctx, "idempotency.flush.failed", map[string]any{"key": key, "error": err.Error()})
	}
}

// finish stores resp for replay, or frees the key when the response is a server error
// or cannot be stored.
func (g *guard) finish(ctx context.Context, key, scoped, fp string, resp Response) {
	if resp.Status < http.StatusInternalServerError {
		err := g.store.SaveResponse(ctx, scoped, fp, resp, g.cfg.clock().UTC(), g.cfg.ttl)
		if err == nil {
			return
		}
		g.cfg.logger(ctx, "idempotency.save.failed", map[string]any{"key": key, "error": err.Error()})
	}
	if err := g.store.Release(ctx, scoped, fp); err != nil {
		g.cfg.logger(ctx, "idempotency.release.failed", map[string]any{"key": key, "error": err.Error()})
	}
}

var errBodyTooLarge = errors.New("idempotency: request body too large")

// bufferBody reads the body for hashing and puts a fresh reader back for the handler.
func bufferBody(r *http.Request) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	defer r.Body.Close()
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxBodyBytes {
		return nil, errBodyTooLarge
	}
	r.Body = io.NopCloser(bytes.NewReader(data))
	return data, nil
}

// fingerprint identifies the payload a key was first used with.
func fingerprint(r *http.Request, body []byte, requester string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\n%s\n%s\n%s\n%s\n",
		strings.ToUpper(r.Method), r.URL.Path, r.URL.RawQuery, r.Header.Get("Content-Type"), requester)
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

func scope(key, requester string) string {
	if requester = strings.TrimSpace(requester); requester == "" {
		requester = "anonymous"
	}
	return strings.TrimSpace(key) + "|" + requester
}

// requesterFromRequest scopes signed-in callers by uid. Anonymous customers are scoped
// by a hash of their address so two shoppers reusing a key never see each other's order.
func requesterFromRequest(r *http.Request) string {
	if identity, ok := auth.IdentityFromContext(r.Context()); ok && identity.UID != "" {
		return "uid:" + identity.UID
	}
	if addr := clientAddress(r); addr != "" {
		return "anon:" + sha256Hex([]byte(addr))[:16]
	}
	return "anonymous"
}

// clientAddress trusts the first X-Forwarded-For hop, which Cloud Run sets.
func clientAddress(r *http.Request) string {
	first, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ",")
	if first = strings.TrimSpace(first); first != "" {
		return first
	}
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

func respondError(ctx context.Context, w http.ResponseWriter, status int, code, message string) {
	httpx.WriteError(ctx, w, httpx.NewError(code, message, status))
}
