package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gbrlsnchs/jwt/v3"
	"github.com/google/uuid"
)

var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
)

// Claims 登录 token 的载荷，address 为小写 0x 地址
type Claims struct {
	jwt.Payload
	Address string `json:"address"`
}

// ExpiresAt 过期时间，未设置时返回零值
func (c *Claims) ExpiresAt() time.Time {
	if c.ExpirationTime == nil {
		return time.Time{}
	}
	return c.ExpirationTime.Time
}

// TokenIssuer 负责 HS256 token 的签发与校验
type TokenIssuer struct {
	alg *jwt.HMACSHA
	ttl time.Duration
	now func() time.Time
}

func NewTokenIssuer(secret []byte, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{
		alg: jwt.NewHS256(secret),
		ttl: ttl,
		now: time.Now,
	}
}

// Issue 为 address 签发新 token，每次都带新的 jti
func (t *TokenIssuer) Issue(address string) (string, *Claims, error) {
	now := t.now()
	address = strings.ToLower(address)

	claims := &Claims{
		Payload: jwt.Payload{
			Subject:        address,
			IssuedAt:       jwt.NumericDate(now),
			ExpirationTime: jwt.NumericDate(now.Add(t.ttl)),
			JWTID:          uuid.NewString(),
		},
		Address: address,
	}

	token, err := jwt.Sign(claims, t.alg)
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}
	return string(token), claims, nil
}

// Parse 校验签名与过期时间
func (t *TokenIssuer) Parse(token string) (*Claims, error) {
	var claims Claims
	validate := jwt.ValidatePayload(&claims.Payload, jwt.ExpirationTimeValidator(t.now()))

	if _, err := jwt.Verify([]byte(token), t.alg, &claims, validate); err != nil {
		if errors.Is(err, jwt.ErrExpValidation) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if claims.Address == "" || claims.JWTID == "" {
		return nil, fmt.Errorf("%w: missing address or jti", ErrTokenInvalid)
	}
	return &claims, nil
}
