package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"wallet-session/internal/handler/request"
	"wallet-session/internal/handler/response"
	"wallet-session/internal/service/auth"
	"wallet-session/pkg/errno"
	"wallet-session/pkg/validator"
)

// ClaimsKey gin.Context 中保存已认证 token 载荷的 key
const ClaimsKey = "auth.claims"

// AuthService 由 auth.Service 实现
type AuthService interface {
	IssueNonce(ctx context.Context) (string, error)
	Verify(ctx context.Context, in auth.VerifyInput) (*auth.Grant, error)
	Authorize(ctx context.Context, token string) (*auth.Claims, error)
	Logout(ctx context.Context, claims *auth.Claims) error
}

type AuthHandler struct {
	svc AuthService
}

func NewAuthHandler(svc AuthService) *AuthHandler {
	return &AuthHandler{svc: svc}
}

// Nonce 获取登录 nonce
// @Summary 获取一次性 nonce
// @Description 返回 32 字节随机 nonce (hex)，默认 5 分钟内有效且只能使用一次
// @Tags Auth
// @Produce json
// @Success 200 {object} response.NonceResponse
// @Failure 429 {object} response.Response
// @Router /auth/nonce [get]
func (h *AuthHandler) Nonce(c *gin.Context) {
	nonce, err := h.svc.IssueNonce(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Raw(c, response.NonceResponse{Nonce: nonce})
}

// Verify 校验签名并签发 token
// @Summary 钱包签名登录
// @Description 对 "Sign this message to verify your wallet ownership. Nonce: <nonce>" 的 personal_sign 签名进行校验
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body request.VerifyRequest true "签名参数"
// @Success 200 {object} response.TokenResponse
// @Failure 400 {object} response.Response
// @Failure 401 {object} response.Response
// @Router /auth/verify [post]
func (h *AuthHandler) Verify(c *gin.Context) {
	var req request.VerifyRequest

	// 1. Bind & Validate
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errno.ErrBind.WithMessage(validator.GetErrorMsg(err)))
		return
	}

	// 2. 校验签名
	grant, err := h.svc.Verify(c.Request.Context(), auth.VerifyInput{
		Address:   req.Address,
		Signature: req.Signature,
		Nonce:     req.Nonce,
		ClientIP:  c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Raw(c, response.TokenResponse{Token: grant.Token, Address: grant.Address})
}

// Me 当前登录的钱包
// @Summary 当前钱包
// @Tags Auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.IdentityResponse
// @Failure 401 {object} response.Response
// @Router /auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	claims, ok := CurrentClaims(c)
	if !ok {
		response.Error(c, errno.ErrTokenMissing)
		return
	}
	response.Raw(c, response.IdentityResponse{
		Address:   claims.Address,
		ExpiresAt: claims.ExpiresAt().UTC(),
	})
}

// Logout 吊销当前 token
// @Summary 登出
// @Tags Auth
// @Security BearerAuth
// @Success 204
// @Failure 401 {object} response.Response
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	claims, ok := CurrentClaims(c)
	if !ok {
		response.Error(c, errno.ErrTokenMissing)
		return
	}
	if err := h.svc.Logout(c.Request.Context(), claims); err != nil {
		response.Error(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// CurrentClaims 取出中间件写入的 token 载荷
func CurrentClaims(c *gin.Context) (*auth.Claims, bool) {
	v, ok := c.Get(ClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*auth.Claims)
	return claims, ok && claims != nil
}
