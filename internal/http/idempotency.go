package http

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"
	"time"

	"conti/internal/cache"
	clog "conti/internal/log"
)

const (
	IdempotencyKeyHeader = "Idempotency-Key"
	replayedHeader       = "Idempotent-Replayed"
	maxIdempotencyKeyLen = 128
)

// storedResponse is a successful response kept for replay.
type storedResponse struct {
	status      int
	body        []byte
	fingerprint string
}

// replayCache answers repeated requests carrying the same Idempotency-Key
// with the stored response. Only 2xx responses are stored: a rejected request
// changed nothing and may be retried with the same key.
type replayCache struct {
	entries *cache.LRUCache[storedResponse]
}

func newReplayCache(size int, ttl time.Duration) *replayCache {
	return &replayCache{entries: cache.NewLRUCache[storedResponse](size, ttl)}
}

type captureWriter struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
}

func (c *captureWriter) WriteHeader(code int) {
	c.status = code
	c.ResponseWriter.WriteHeader(code)
}

func (c *captureWriter) Write(p []byte) (int, error) {
	c.buf.Write(p)
	return c.ResponseWriter.Write(p)
}

// idempotencyKey returns the trimmed header value; ok is false when the
// header is present but unusable.
func idempotencyKey(r *http.Request) (key string, ok bool) {
	key = strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
	if len(key) > maxIdempotencyKeyLen {
		return "", false
	}
	return key, true
}

// wrap serves handlers whose Idempotency-Key doubles as the attempt id.
func (c *replayCache) wrap(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key, ok := idempotencyKey(r)
		if !ok {
			writeJSON(w, http.StatusBadRequest, errorResponse{
				Error: errorBody{
					Code:    "bad_request",
					Class:   "validation",
					Message: "Idempotency-Key must be at most 128 characters",
				},
				RequestID: clog.RequestID(r.Context()),
			})
			return
		}
		if key == "" {
			next(w, r)
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			writeError(w, r, errBadRequest)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		sum := sha256.Sum256(body)
		fingerprint := hex.EncodeToString(sum[:])
		cacheKey := r.Method + " " + r.URL.Path + " " + key

		if stored, found := c.entries.Get(cacheKey); found {
			if stored.fingerprint != fingerprint {
				clog.FromContext(r.Context()).WarnContext(r.Context(), "Idempotency key reused with a different body",
					clog.FieldAttemptID, key)
				writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
					Error: errorBody{
						Code:    "idempotency_key_reused",
						Class:   "validation",
						Message: "Idempotency-Key was already used with a different request body",
					},
					RequestID: clog.RequestID(r.Context()),
				})
				return
			}
			w.Header().Set(replayedHeader, "true")
			writeRaw(w, stored.status, bytes.TrimSuffix(stored.body, []byte("\n")))
			return
		}

		cw := &captureWriter{ResponseWriter: w, status: http.StatusOK}
		next(cw, r)
		if cw.status >= 200 && cw.status < 300 {
			c.entries.Set(cacheKey, storedResponse{
				status:      cw.status,
				body:        bytes.Clone(cw.buf.Bytes()),
				fingerprint: fingerprint,
			})
		}
	}
}
