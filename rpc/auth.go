package rpc

import (
	"errors"
	"net/http"
	"strings"

	jwt "github.com/golang-jwt/jwt/v5"

	"prism/crypto"
	"prism/observability/logging"
)

// authenticate resolves the calling account from the bearer token. The token
// subject carries the caller's bech32 address; the engines enforce their own
// admin lists on top of this identity.
func (s *Server) authenticate(r *http.Request) (crypto.Address, *RPCError) {
	if len(s.secret) == 0 {
		return crypto.Address{}, &RPCError{Code: codeUnauthorized, Message: "RPC authentication not configured"}
	}
	tokenString := extractBearer(r.Header.Get("Authorization"))
	if tokenString == "" {
		return crypto.Address{}, &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	claims, err := s.parseToken(tokenString)
	if err != nil {
		s.log.Debug("token validation failed", "error", err.Error(), logging.MaskField("token", tokenString))
		return crypto.Address{}, &RPCError{Code: codeUnauthorized, Message: "invalid token"}
	}
	subject, _ := claims["sub"].(string)
	caller, err := crypto.DecodeAddress(strings.TrimSpace(subject))
	if err != nil {
		return crypto.Address{}, &RPCError{Code: codeUnauthorized, Message: "token subject is not a valid account"}
	}
	return caller, nil
}

func (s *Server) parseToken(tokenString string) (jwt.MapClaims, error) {
	parsed, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	}, jwt.WithLeeway(s.cfg.ClockSkew))
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, errors.New("token invalid")
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("claims not map")
	}
	return claims, nil
}

// isServerAdmin gates the daemon level operations that bypass the engines:
// module pauses and the manual price feed.
func (s *Server) isServerAdmin(caller crypto.Address) bool {
	for _, admin := range s.cfg.Admins {
		if admin.Equal(caller) {
			return true
		}
	}
	return false
}

func extractBearer(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
