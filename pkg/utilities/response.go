package utilities

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/apperr"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError renders err as {"error": msg}. Internal causes are logged and
// replaced by a generic message.
func WriteError(w http.ResponseWriter, r *http.Request, logger *zap.SugaredLogger, err error) {
	status, msg := apperr.Public(err)
	if status >= http.StatusInternalServerError {
		logger.Errorw("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	}
	WriteJSON(w, status, map[string]string{"error": msg})
}

// DecodeJSON reads a bounded JSON body into dst.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperr.Validation("payload too large")
		}
		return &apperr.Error{Kind: apperr.KindValidation, Msg: "invalid payload", Err: fmt.Errorf("decode: %w", err)}
	}
	return nil
}
