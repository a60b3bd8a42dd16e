package httpapi

import (
	"net/http"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type authPayload struct {
	User  userView `json:"user"`
	Token string   `json:"token"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err, "Registration failed")
		return
	}
	in, err := req.input()
	if err != nil {
		writeError(w, r, h.logger, err, "Registration failed")
		return
	}

	res, err := h.identity.Register(r.Context(), in)
	if err != nil {
		writeError(w, r, h.logger, err, "Registration failed")
		return
	}

	h.setSessionCookie(w, res.Token, res.Session.ExpiresAt)
	writeOK(w, http.StatusCreated, "Registered & logged in", authPayload{User: briefUser(res.User), Token: res.Token})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err, "Login failed")
		return
	}
	in, err := req.input()
	if err != nil {
		writeError(w, r, h.logger, err, "Login failed")
		return
	}

	res, err := h.identity.Authenticate(r.Context(), in)
	if err != nil {
		writeError(w, r, h.logger, err, "Login failed")
		return
	}

	h.setSessionCookie(w, res.Token, res.Session.ExpiresAt)
	writeOK(w, http.StatusOK, "Login successful", authPayload{User: briefUser(res.User), Token: res.Token})
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFrom(r.Context())
	if !ok {
		writeError(w, r, h.logger, domain.ErrUnauthenticated, "")
		return
	}
	writeOK(w, http.StatusOK, "User retrieved successfully", fullUser(user))
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	if err := h.identity.Logout(r.Context(), tokenFrom(r.Context())); err != nil {
		writeError(w, r, h.logger, err, "Logout failed")
		return
	}
	h.clearSessionCookie(w)
	writeOK(w, http.StatusOK, "Logged out", nil)
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}
