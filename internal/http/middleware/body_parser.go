package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/stackhq/stack-api/internal/domain"
)

// BodyParser decodes JSON object bodies into the request context and restores
// the body for handlers. Oversized bodies get 413, malformed JSON 400.
func BodyParser(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rc, w, r := requestContext(w, r)
			if r.Body == nil || r.Body == http.NoBody || !isJSON(r.Header.Get("Content-Type")) {
				next.ServeHTTP(w, r)
				return
			}
			raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					rc.RespondError("Request body too large.", http.StatusRequestEntityTooLarge, domain.Benign("Request body too large."))
					return
				}
				rc.RespondError("Invalid JSON body.", http.StatusBadRequest, domain.BenignWrap("Invalid JSON body.", err))
				return
			}
			if len(bytes.TrimSpace(raw)) > 0 {
				var body map[string]any
				if err := json.Unmarshal(raw, &body); err != nil {
					rc.RespondError("Invalid JSON body.", http.StatusBadRequest, domain.BenignWrap("Invalid JSON body.", err))
					return
				}
				rc.Body = body
			}
			r.Body = io.NopCloser(bytes.NewReader(raw))
			next.ServeHTTP(w, r)
		})
	}
}

func isJSON(contentType string) bool {
	if contentType == "" {
		return false
	}
	mt, _, err := mime.ParseMediaType(contentType)
	return err == nil && mt == "application/json"
}
