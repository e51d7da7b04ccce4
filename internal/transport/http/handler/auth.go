package handler

import (
	"net/http"

	"github.com/wiki-mailauth/internal/application/auth"
)

// AuthHandler exposes the verification-gated account flows.
type AuthHandler struct {
	svc auth.Service
}

func NewAuthHandler(svc auth.Service) *AuthHandler {
	return &AuthHandler{svc: svc}
}

func (h *AuthHandler) SendCode(w http.ResponseWriter, r *http.Request) {
	var req auth.SendCodeRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.svc.SendCode(r.Context(), req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeOK(w, "verification code sent, check your inbox", res)
}

func (h *AuthHandler) SendResetCode(w http.ResponseWriter, r *http.Request) {
	var req auth.SendCodeRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.svc.SendResetCode(r.Context(), req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeOK(w, "password reset code sent, check your inbox", res)
}

func (h *AuthHandler) VerifyCode(w http.ResponseWriter, r *http.Request) {
	var req auth.VerifyCodeRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.svc.VerifyCode(r.Context(), req); err != nil {
		httpError(w, err)
		return
	}
	writeOK(w, "email verified", nil)
}

func (h *AuthHandler) ValidateEmail(w http.ResponseWriter, r *http.Request) {
	var req auth.ValidateEmailRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.svc.ValidateEmail(r.Context(), req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeOK(w, res.Message, res)
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	if !decode(w, r, &req) {
		return
	}
	acct, err := h.svc.Register(r.Context(), req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeOK(w, "registration successful", acct)
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req auth.ResetPasswordRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.svc.ResetPassword(r.Context(), req); err != nil {
		httpError(w, err)
		return
	}
	writeOK(w, "password has been reset", nil)
}

func (h *AuthHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	var req auth.DeleteAccountRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.svc.DeleteAccount(r.Context(), req); err != nil {
		httpError(w, err)
		return
	}
	writeOK(w, "account deleted", nil)
}
