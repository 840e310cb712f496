package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"arenanet/pkg/core"
)

// 重连令牌
const (
	// DefaultTokenTTL 断线后能凭令牌找回原 peer id 的时限
	DefaultTokenTTL = 5 * time.Minute

	tokenIssuer = "arenanet"
	// 开发环境默认密钥，生产环境通过配置覆盖
	devTokenSecret = "arenanet-dev-secret-change-in-production"
)

var ErrInvalidToken = errors.New("session: invalid token")

// Claims 令牌内容，保持很小以便放进定长的 Welcome/Hello
type Claims struct {
	Peer uint32 `json:"peer"`
	jwt.RegisteredClaims
}

func signingKey(secret []byte) []byte {
	if len(secret) == 0 {
		return []byte(devTokenSecret)
	}
	return secret
}

// IssueToken 签发 HS256 令牌
func IssueToken(secret []byte, peer core.PeerID, ttl time.Duration, now time.Time) (string, error) {
	claims := Claims{
		Peer: uint32(peer),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(signingKey(secret))
}

// VerifyToken 校验令牌并返回其中的 peer id
func VerifyToken(secret []byte, tokenString string, now time.Time) (core.PeerID, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	token, err := parser.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (any, error) {
		return signingKey(secret), nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Peer == 0 {
		return 0, ErrInvalidToken
	}
	return core.PeerID(claims.Peer), nil
}
