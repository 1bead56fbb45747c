package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/apperr"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/utilities"
)

// Handler exposes the sign-in endpoints.
type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	utilities.WriteError(w, r, h.logger, err)
}

// code accepts a JSON string or number. A number keeps its literal text.
type code string

func (c *code) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*c = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*c = code(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*c = code(n.String())
	return nil
}

type SendOTPRequest struct {
	Phone string `json:"phone"`
}

type SendOTPResponse struct {
	Success bool   `json:"success"`
	Phone   string `json:"phone"`
}

func (h *Handler) SendOTP(w http.ResponseWriter, r *http.Request) {
	var req SendOTPRequest
	if err := utilities.DecodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if strings.TrimSpace(req.Phone) == "" {
		h.fail(w, r, apperr.Validation("phone required"))
		return
	}
	phone, err := h.svc.SendOTP(r.Context(), req.Phone)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	utilities.WriteJSON(w, http.StatusOK, SendOTPResponse{Success: true, Phone: phone})
}

type VerifyOTPRequest struct {
	Phone    string `json:"phone"`
	OTP      code   `json:"otp"`
	Username string `json:"username"`
}

type VerifyOTPResponse struct {
	Token     string      `json:"token"`
	UID       string      `json:"uid"`
	Role      entity.Role `json:"role"`
	Phone     string      `json:"phone"`
	Username  string      `json:"username"`
	IsNewUser bool        `json:"isNewUser"`
}

func (h *Handler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req VerifyOTPRequest
	if err := utilities.DecodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	sess, err := h.svc.VerifyOTP(r.Context(), req.Phone, string(req.OTP), req.Username)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	utilities.WriteJSON(w, http.StatusOK, VerifyOTPResponse{
		Token:     sess.Token,
		UID:       sess.User.UID,
		Role:      sess.User.Role,
		Phone:     sess.User.PhoneValue(),
		Username:  sess.User.Username,
		IsNewUser: sess.NewUser,
	})
}

type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
}

type RegisterResponse struct {
	UID      string      `json:"uid"`
	Username string      `json:"username"`
	Role     entity.Role `json:"role"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := utilities.DecodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	u, err := h.svc.Register(r.Context(), req.Username, req.Password, req.Email)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	utilities.WriteJSON(w, http.StatusCreated, RegisterResponse{UID: u.UID, Username: u.Username, Role: u.Role})
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// SessionResponse is returned by every password-path sign-in that yields a token.
type SessionResponse struct {
	Token    string      `json:"token"`
	UID      string      `json:"uid"`
	Role     entity.Role `json:"role"`
	Username string      `json:"username"`
	Email    string      `json:"email"`
}

type SecondFactorResponse struct {
	Require2FA bool `json:"require2fa"`
}

func sessionResponse(s *Session) SessionResponse {
	return SessionResponse{
		Token:    s.Token,
		UID:      s.User.UID,
		Role:     s.User.Role,
		Username: s.User.Username,
		Email:    s.User.EmailValue(),
	}
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := utilities.DecodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.svc.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.logger.Debugw("login failed", "username", req.Username, "kind", apperr.KindOf(err))
		h.fail(w, r, err)
		return
	}
	if res.RequireSecondFactor {
		utilities.WriteJSON(w, http.StatusOK, SecondFactorResponse{Require2FA: true})
		return
	}
	utilities.WriteJSON(w, http.StatusOK, sessionResponse(res.Session))
}

type VerifySecondFactorRequest struct {
	Username string `json:"username"`
	Code     code   `json:"code"`
}

func (h *Handler) VerifySecondFactor(w http.ResponseWriter, r *http.Request) {
	var req VerifySecondFactorRequest
	if err := utilities.DecodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	sess, err := h.svc.VerifySecondFactor(r.Context(), req.Username, string(req.Code))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	utilities.WriteJSON(w, http.StatusOK, sessionResponse(sess))
}

type CheckUsernameRequest struct {
	Username string `json:"username"`
}

type CheckUsernameResponse struct {
	Available bool `json:"available"`
}

func (h *Handler) CheckUsername(w http.ResponseWriter, r *http.Request) {
	var req CheckUsernameRequest
	if err := utilities.DecodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	ok, err := h.svc.UsernameAvailable(r.Context(), req.Username)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	utilities.WriteJSON(w, http.StatusOK, CheckUsernameResponse{Available: ok})
}

type MeResponse struct {
	UID      string      `json:"uid"`
	Role     entity.Role `json:"role"`
	Username string      `json:"username"`
	Phone    string      `json:"phone,omitempty"`
	Email    string      `json:"email,omitempty"`
}

// Me echoes the claims of the authenticated session. It must run behind
// Gate.Middleware.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		h.fail(w, r, unauthorized())
		return
	}
	utilities.WriteJSON(w, http.StatusOK, MeResponse{
		UID:      claims.UID,
		Role:     claims.Role,
		Username: claims.Username,
		Phone:    claims.Phone,
		Email:    claims.Email,
	})
}
