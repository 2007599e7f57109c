package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/steamrent/rental-server-go/internal/httputil"
	"github.com/steamrent/rental-server-go/internal/model"
	"github.com/steamrent/rental-server-go/internal/repository"
	"github.com/steamrent/rental-server-go/internal/util"
)

type contextKey string

const OperatorContextKey contextKey = "operator"

func GetOperator(ctx context.Context) *model.Operator {
	if operator, ok := ctx.Value(OperatorContextKey).(*model.Operator); ok {
		return operator
	}
	return nil
}

// AuthMiddleware authenticates operators by bearer token. Tokens are stored
// hashed, so the lookup goes by hash and never touches the raw token.
type AuthMiddleware struct {
	operatorRepo repository.OperatorRepository
}

func NewAuthMiddleware(operatorRepo repository.OperatorRepository) *AuthMiddleware {
	return &AuthMiddleware{operatorRepo: operatorRepo}
}

func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		if token == "" {
			httputil.WriteJSON(w, http.StatusUnauthorized, map[string]string{
				"error": "Missing authentication token",
			})
			return
		}

		tokenHash := util.HashToken(token)
		operator, err := m.operatorRepo.FindByTokenHash(r.Context(), tokenHash)
		if err != nil {
			log.Error().Err(err).Msg("auth middleware: database error")
			httputil.WriteJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "Authentication failed",
			})
			return
		}

		if operator == nil {
			log.Warn().Msg("auth middleware: invalid token attempt")
			httputil.WriteJSON(w, http.StatusUnauthorized, map[string]string{
				"error": "Invalid token",
			})
			return
		}

		ctx := context.WithValue(r.Context(), OperatorContextKey, operator)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}
