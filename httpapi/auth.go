package httpapi

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"goa.design/clue/log"
)

// Fixed development credentials accepted by login until a real identity
// provider is wired in.
const (
	devUsername = "admin"
	devPassword = "admin"
)

type (
	loginRequest struct {
		Username string `json:"username" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	tokenResponse struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}

	userResponse struct {
		Username string `json:"username"`
	}
)

// userContextKey carries the authenticated subject through the request
// context.
type userContextKey struct{}

func withUser(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, userContextKey{}, username)
}

func userFrom(ctx context.Context) string {
	u, _ := ctx.Value(userContextKey{}).(string)
	return u
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !s.loginLimit.Allow() {
		respondDetail(ctx, w, http.StatusTooManyRequests, "Too many login attempts")
		return
	}

	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondDetail(ctx, w, http.StatusBadRequest, validationDetails(err))
		return
	}

	userOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(devUsername)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(req.Password), []byte(devPassword)) == 1
	if !userOK || !passOK {
		log.Infof(ctx, "rejected login for %q", req.Username)
		unauthorized(ctx, w, "Incorrect username or password")
		return
	}

	token, err := s.auth.Issue(req.Username)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respond(ctx, w, http.StatusOK, tokenResponse{AccessToken: token, TokenType: "bearer"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	respond(ctx, w, http.StatusOK, userResponse{Username: userFrom(ctx)})
}

// requireAuth verifies the bearer token and stores the subject in the
// request context.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		token, ok := bearerToken(r)
		if !ok {
			unauthorized(ctx, w, "Not authenticated")
			return
		}
		username, err := s.auth.Verify(token)
		if err != nil {
			unauthorized(ctx, w, "Could not validate credentials")
			return
		}
		ctx = withUser(ctx, username)
		ctx = log.With(ctx, log.KV{K: "user", V: username})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func unauthorized(ctx context.Context, w http.ResponseWriter, detail string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	respondDetail(ctx, w, http.StatusUnauthorized, detail)
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}
