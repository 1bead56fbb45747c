package user

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/apperr"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/utilities"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// CallerFunc returns the uid of the authenticated account making the request.
type CallerFunc func(ctx context.Context) (uid string, ok bool)

// Handler exposes account moderation endpoints. Callers mount it behind an
// admin role check.
type Handler struct {
	svc    *UserService
	caller CallerFunc
	logger *zap.SugaredLogger
}

func NewHandler(svc *UserService, caller CallerFunc, logger *zap.SugaredLogger) *Handler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Handler{svc: svc, caller: caller, logger: logger}
}

// ListResponse never carries hashes or second-factor secrets.
type ListResponse struct {
	Users  []entity.View `json:"users"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, apperr.Validation("invalid " + name)
	}
	return n, nil
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultPageSize)
	if err != nil {
		utilities.WriteError(w, r, h.logger, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		utilities.WriteError(w, r, h.logger, err)
		return
	}
	if limit == 0 || limit > maxPageSize {
		limit = maxPageSize
	}

	users, err := h.svc.List(r.Context(), limit, offset)
	if err != nil {
		utilities.WriteError(w, r, h.logger, apperr.Internal(err))
		return
	}
	views := make([]entity.View, 0, len(users))
	for _, u := range users {
		views = append(views, u.ToView())
	}
	utilities.WriteJSON(w, http.StatusOK, ListResponse{Users: views, Limit: limit, Offset: offset})
}

// SetBannedRequest uses a pointer so a missing field is rejected rather than
// read as false.
type SetBannedRequest struct {
	Banned *bool `json:"banned"`
}

func (h *Handler) SetBanned(w http.ResponseWriter, r *http.Request) {
	uid := r.PathValue("uid")
	var req SetBannedRequest
	if err := utilities.DecodeJSON(w, r, &req); err != nil {
		utilities.WriteError(w, r, h.logger, err)
		return
	}
	if uid == "" || req.Banned == nil {
		utilities.WriteError(w, r, h.logger, apperr.Validation("uid and banned required"))
		return
	}

	if err := h.svc.SetBanned(r.Context(), uid, *req.Banned); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			utilities.WriteError(w, r, h.logger, apperr.NotFound("user not found"))
			return
		}
		utilities.WriteError(w, r, h.logger, apperr.Internal(err))
		return
	}
	h.logger.Infow("account ban updated", "uid", uid, "banned", *req.Banned)
	utilities.WriteJSON(w, http.StatusOK, map[string]any{"uid": uid, "banned": *req.Banned})
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	var actor string
	if h.caller != nil {
		actor, _ = h.caller(r.Context())
	}
	if actor == "" {
		utilities.WriteError(w, r, h.logger, apperr.Auth("unauthorized"))
		return
	}
	uid := r.PathValue("uid")
	if uid == "" {
		utilities.WriteError(w, r, h.logger, apperr.Validation("uid required"))
		return
	}

	u, err := h.svc.Delete(r.Context(), actor, uid)
	switch {
	case errors.Is(err, ErrDeleteSelf):
		utilities.WriteError(w, r, h.logger, apperr.Validation("cannot delete your own account"))
		return
	case errors.Is(err, ErrUserNotFound):
		utilities.WriteError(w, r, h.logger, apperr.NotFound("user not found"))
		return
	case err != nil:
		utilities.WriteError(w, r, h.logger, apperr.Internal(err))
		return
	}
	h.logger.Infow("account deleted", "uid", uid, "by", actor)
	utilities.WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "deletedUser": u.Username})
}
