package controller

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/cesa-network/cesavote/pkg/ballot"
	"github.com/cesa-network/cesavote/pkg/db"
	"github.com/cesa-network/cesavote/pkg/db/models/vote"
	"github.com/go-jose/go-jose/v4/json"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	sessionCookie = "cv_session"
	sessionTTL    = 8 * time.Hour
)

type ctxKey int

const voterKey ctxKey = iota

// LoginRequest accepts either the account username or the voter's control
// number in Username.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// bearer returns the Authorization bearer token, if any.
func bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}

// ValidateToken checks the bearer token against ADMIN_TOKEN.
func (c *Controller) ValidateToken(r *http.Request) bool {
	return c.AdminToken != "" && bearer(r) == c.AdminToken
}

// sessionVoter returns the voter id of a valid session carried by cookie or
// bearer token.
func (c *Controller) sessionVoter(r *http.Request) (int64, bool) {
	raw := bearer(r)
	if cookie, err := r.Cookie(sessionCookie); err == nil {
		raw = cookie.Value
	}
	if raw == "" {
		return 0, false
	}
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) { return c.JWTSecret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !tok.Valid {
		return 0, false
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return 0, false
	}
	vid, ok := claims["vid"].(float64)
	if !ok || vid <= 0 {
		return 0, false
	}
	return int64(vid), true
}

// RequireVoter middleware
func (c *Controller) RequireVoter(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		vid, ok := c.sessionVoter(r)
		if !ok {
			writeMessage(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), voterKey, vid)))
	})
}

func voterFrom(ctx context.Context) int64 {
	vid, _ := ctx.Value(voterKey).(int64)
	return vid
}

// RequireAdmin middleware
func (c *Controller) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c.ValidateToken(r) {
			next.ServeHTTP(w, r)
			return
		}
		writeMessage(w, http.StatusUnauthorized, "unauthorized")
	})
}

// IssueSession signs a session for the voter and sets it as a cookie. The
// token is returned for clients that prefer a bearer header.
func (c *Controller) IssueSession(w http.ResponseWriter, username string, voterID int64) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": username,
		"vid": voterID,
		"exp": now.Add(sessionTTL).Unix(),
		"iat": now.Unix(),
	})
	ss, err := token.SignedString(c.JWTSecret)
	if err != nil {
		return "", err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    ss,
		Path:     "/",
		HttpOnly: true,
		Secure:   c.App.Config.Production(),
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(sessionTTL.Seconds()),
	})
	return ss, nil
}

// lookupLogin finds the account and voter for a username or control number.
func (c *Controller) lookupLogin(ctx context.Context, login string) (*vote.Account, *vote.Voter, error) {
	store := c.App.Store
	acct, err := store.AccountByUsername(ctx, login)
	switch {
	case err == nil:
		v, err := store.VoterByAccount(ctx, acct.ID)
		if err != nil {
			return nil, nil, err
		}
		return acct, v, nil
	case !errors.Is(err, db.ErrNotFound):
		return nil, nil, err
	}

	v, err := store.VoterByControlNumber(ctx, login)
	if err != nil {
		return nil, nil, err
	}
	if !v.Linked() {
		return nil, nil, db.ErrNotFound
	}
	acct, err = store.AccountByID(ctx, *v.AccountID)
	if err != nil {
		return nil, nil, err
	}
	return acct, v, nil
}

// HandleLogin authenticates a voter by username or control number.
func (c *Controller) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var in LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeMessage(w, http.StatusBadRequest, "bad json")
		return
	}
	in.Username = strings.TrimSpace(in.Username)
	if in.Username == "" || in.Password == "" {
		writeMessage(w, http.StatusBadRequest, "username and password are required")
		return
	}

	ctx := r.Context()
	acct, voter, err := c.lookupLogin(ctx, in.Username)
	if errors.Is(err, db.ErrNotFound) {
		writeMessage(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err != nil {
		c.writeError(w, "login", err)
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(in.Password)); err != nil {
		writeMessage(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	// Unregistered ledger accounts are refused here, not only at the ballot.
	if err := c.App.Ballots.Gate().CheckRegistration(ctx, voter); err != nil {
		c.App.Logger.Info("Login refused by ledger registration check",
			zap.Int64("voter_id", voter.ID),
			zap.String("kind", string(ballot.KindOf(err))))
		c.writeError(w, "login", err)
		return
	}

	token, err := c.IssueSession(w, acct.Username, voter.ID)
	if err != nil {
		c.writeError(w, "issue session", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":        true,
		"token":     token,
		"voter_id":  voter.ID,
		"has_voted": voter.HasVoted,
	})
}

// HandleLogout clears the session cookie.
func (c *Controller) HandleLogout(w http.ResponseWriter, _ *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
	})
	w.WriteHeader(http.StatusNoContent)
}
