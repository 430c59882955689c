package httpapi

import (
	"context"
	stderrors "errors"
	"net/http"

	"github.com/HMasataka/chatrelay/pkg/auth"
	"github.com/HMasataka/chatrelay/pkg/domain"
	"github.com/samber/lo"
)

type registerRequest struct {
	Username     string `json:"username" validate:"required,min=3,max=32"`
	Password     string `json:"password" validate:"required,min=8,max=72"`
	Email        string `json:"email" validate:"omitempty,email"`
	MobileNumber string `json:"mobileNumber" validate:"omitempty,max=32"`
	Birthday     string `json:"birthday" validate:"omitempty,datetime=2006-01-02"`
}

type loginRequest struct {
	UsernameOrEmail string `json:"usernameOrEmail" validate:"required"`
	Password        string `json:"password" validate:"required"`
}

type accountResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type personResponse struct {
	ID       string `json:"_id"`
	Username string `json:"username"`
}

type claimsKey struct{}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	hash, err := s.deps.Hasher.Hash(req.Password)
	if err != nil {
		writeInternal(w, r, err)
		return
	}

	user, err := s.deps.Users.CreateUser(r.Context(), domain.NewUser{
		Username:     req.Username,
		Email:        req.Email,
		MobileNumber: req.MobileNumber,
		Birthday:     req.Birthday,
		PasswordHash: hash,
	})
	if stderrors.Is(err, domain.ErrAlreadyExists) {
		writeError(w, http.StatusConflict, "username already exists")
		return
	}
	if err != nil {
		writeInternal(w, r, err)
		return
	}

	if !s.setSessionCookie(w, r, user) {
		return
	}
	writeJSON(w, http.StatusCreated, accountResponse{ID: user.ID, Username: user.Username})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	user, err := s.deps.Users.UserByLogin(r.Context(), req.UsernameOrEmail)
	if stderrors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		writeInternal(w, r, err)
		return
	}

	ok, err := s.deps.Hasher.Compare(req.Password, user.PasswordHash)
	if err != nil {
		writeInternal(w, r, err)
		return
	}
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid password")
		return
	}

	if !s.setSessionCookie(w, r, user) {
		return
	}
	writeJSON(w, http.StatusOK, accountResponse{ID: user.ID, Username: user.Username})
}

func (s *Server) logout(w http.ResponseWriter, _ *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.deps.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, "ok")
}

func (s *Server) profile(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.claimsFromRequest(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "no token")
		return
	}
	writeJSON(w, http.StatusOK, claims.Identity())
}

func (s *Server) people(w http.ResponseWriter, r *http.Request) {
	users, err := s.deps.Users.SearchUsers(r.Context(), r.URL.Query().Get("search"))
	if err != nil {
		writeInternal(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, lo.Map(users, func(u domain.User, _ int) personResponse {
		return personResponse{ID: u.ID, Username: u.Username}
	}))
}

func (s *Server) setSessionCookie(w http.ResponseWriter, r *http.Request, user domain.User) bool {
	token, err := s.deps.Issuer.Issue(user.Identity())
	if err != nil {
		writeInternal(w, r, err)
		return false
	}

	cookie := &http.Cookie{
		Name:     s.deps.CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
	}
	if s.deps.TokenTTL > 0 {
		cookie.MaxAge = int(s.deps.TokenTTL.Seconds())
	}
	http.SetCookie(w, cookie)
	return true
}

func (s *Server) claimsFromRequest(r *http.Request) (*auth.Claims, bool) {
	token := auth.TokenFromRequest(r, s.deps.CookieName)
	if token == "" {
		return nil, false
	}
	claims, err := s.deps.Issuer.Verify(token)
	if err != nil {
		return nil, false
	}
	return claims, true
}

// requireUser rejects requests without a valid credential.
func (s *Server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := s.claimsFromRequest(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
	})
}

func claimsFrom(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(claimsKey{}).(*auth.Claims)
	return claims
}
