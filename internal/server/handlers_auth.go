package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/fieldsense/waterline/internal/authapi"
	"github.com/fieldsense/waterline/internal/session"
)

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req authapi.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := s.users.Authenticate(req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, ErrUserNotConfirmed):
			s.writeError(w, http.StatusBadRequest, "account not confirmed, enter the confirmation code")
		default:
			s.writeError(w, http.StatusUnauthorized, "incorrect email or password")
		}
		return
	}

	access, id, refresh, expiresIn, err := s.issuer.IssueTokens(user)
	if err != nil {
		log.Error().Err(err).Msg("failed to issue tokens")
		s.writeError(w, http.StatusInternalServerError, "failed to issue tokens")
		return
	}

	sessionToken, err := s.issuer.CreateSessionToken(user)
	if err != nil {
		log.Error().Err(err).Msg("failed to create session")
		s.writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sessionToken,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.cfg.SecureCookies,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(s.cfg.SessionTTL.Seconds()),
	})

	s.writeJSON(w, http.StatusOK, authapi.LoginResponse{
		AccessToken:  access,
		IDToken:      id,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    expiresIn,
	})
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req authapi.SignUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Email == "" || req.Password == "" {
		s.writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	user, _, err := s.users.Create(req.Email, req.Password, req.GivenName, req.FamilyName)
	if err != nil {
		if errors.Is(err, ErrUserExists) {
			s.writeError(w, http.StatusConflict, "an account with this email already exists")
			return
		}
		log.Error().Err(err).Msg("failed to create user")
		s.writeError(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	s.writeJSON(w, http.StatusOK, authapi.SignUpResponse{
		UserID:               user.ID,
		Email:                user.Email,
		ConfirmationRequired: true,
	})
}

func (s *Server) handleConfirmSignUp(w http.ResponseWriter, r *http.Request) {
	var req authapi.ConfirmSignUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.users.Confirm(req.Email, req.ConfirmationCode); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid confirmation code")
		return
	}

	s.writeJSON(w, http.StatusOK, authapi.MessageResponse{Message: "account confirmed"})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req authapi.RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	claims, err := s.issuer.VerifyToken(req.RefreshToken, "refresh")
	if err != nil {
		s.writeError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	user, err := s.users.Get(claims.Email)
	if err != nil {
		s.writeError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	access, id, refresh, expiresIn, err := s.issuer.IssueTokens(user)
	if err != nil {
		log.Error().Err(err).Msg("failed to issue tokens")
		s.writeError(w, http.StatusInternalServerError, "failed to issue tokens")
		return
	}

	s.writeJSON(w, http.StatusOK, authapi.LoginResponse{
		AccessToken:  access,
		IDToken:      id,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    expiresIn,
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := s.currentUser(r)
	if err != nil {
		s.writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	s.writeJSON(w, http.StatusOK, userView(user))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   s.cfg.SecureCookies,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   -1,
	})

	s.writeJSON(w, http.StatusOK, authapi.MessageResponse{Message: "logged out"})
}

func (s *Server) handleCSRFToken(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"csrf_token": s.issuer.IssueCSRFToken()})
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	user, err := s.currentUser(r)
	if err != nil {
		s.writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req authapi.ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.users.ChangePassword(user.Email, req.OldPassword, req.NewPassword); err != nil {
		s.writeError(w, http.StatusBadRequest, "incorrect password")
		return
	}

	s.writeJSON(w, http.StatusOK, authapi.MessageResponse{Message: "password changed"})
}

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req authapi.ForgotPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// Do not reveal whether the account exists.
	_, _ = s.users.StartReset(req.Email)

	s.writeJSON(w, http.StatusOK, authapi.MessageResponse{Message: "reset code sent"})
}

func (s *Server) handleConfirmForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req authapi.ConfirmForgotPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.users.CompleteReset(req.Email, req.ConfirmationCode, req.NewPassword); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid reset code")
		return
	}

	s.writeJSON(w, http.StatusOK, authapi.MessageResponse{Message: "password reset"})
}

// currentUser resolves the account behind a request from either a
// bearer access token or the ambient session cookie.
func (s *Server) currentUser(r *http.Request) (*User, error) {
	if authz := r.Header.Get("Authorization"); authz != "" {
		raw, ok := strings.CutPrefix(authz, "Bearer ")
		if !ok {
			return nil, ErrInvalidSession
		}
		claims, err := s.issuer.VerifyToken(raw, "access")
		if err != nil {
			return nil, err
		}
		return s.users.Get(claims.Email)
	}

	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return nil, ErrInvalidSession
	}
	data, err := s.issuer.ValidateSessionToken(cookie.Value)
	if err != nil {
		return nil, err
	}
	return s.users.Get(data.Email)
}

func userView(user *User) session.User {
	return session.User{
		Sub:        user.ID,
		Email:      user.Email,
		GivenName:  user.GivenName,
		FamilyName: user.FamilyName,
		Username:   user.Email,
		Groups:     user.Groups,
	}
}
