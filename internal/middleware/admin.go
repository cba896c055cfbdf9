package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mmeshcher/artbid/internal/model"
)

const adminTokenTTL = 12 * time.Hour

// AdminAuth проверяет bearer-токен администратора.
type AdminAuth struct {
	secret []byte
	ttl    time.Duration
}

// NewAdminAuth создаёт проверку токенов с HMAC-подписью.
func NewAdminAuth(secret string) *AdminAuth {
	return &AdminAuth{secret: []byte(secret), ttl: adminTokenTTL}
}

// IssueToken выдаёт подписанный токен с ролью пользователя.
func (a *AdminAuth) IssueToken(userID int64, role string) (string, time.Time, error) {
	if len(a.secret) == 0 {
		return "", time.Time{}, errors.New("admin jwt secret is not configured")
	}

	now := time.Now().UTC()
	exp := now.Add(a.ttl)
	claims := jwt.MapClaims{
		"sub":  strconv.FormatInt(userID, 10),
		"role": role,
		"iat":  now.Unix(),
		"exp":  exp.Unix(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Middleware пропускает только запросы с действительным токеном роли admin.
func (a *AdminAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" || len(a.secret) == 0 {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		tok, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
			return a.secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
		if err != nil || !tok.Valid {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		claims, ok := tok.Claims.(jwt.MapClaims)
		if !ok {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		sub, err := claims.GetSubject()
		if err != nil {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		userID, err := strconv.ParseInt(sub, 10, 64)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		role, _ := claims["role"].(string)
		if role != model.RoleAdmin {
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
			return
		}

		ctx := WithUserID(r.Context(), userID)
		ctx = contextWithRole(ctx, role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
