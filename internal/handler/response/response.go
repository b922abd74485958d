package response

import (
	"net/http"
	"time"

	"wallet-session/pkg/errno"

	"github.com/gin-gonic/gin"
)

// Response defines the standard JSON structure
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"msg"`
	Data    interface{} `json:"data"`
}

// NonceResponse GET /auth/nonce
type NonceResponse struct {
	Nonce string `json:"nonce"`
}

// TokenResponse POST /auth/verify
type TokenResponse struct {
	Token   string `json:"token"`
	Address string `json:"address"`
}

// IdentityResponse GET /auth/me
type IdentityResponse struct {
	Address   string    `json:"address"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Success returns a success response with data
func Success(c *gin.Context, data interface{}) {
	if data == nil {
		data = gin.H{} // Return empty object instead of null
	}
	c.JSON(http.StatusOK, Response{
		Code:    errno.OK.Code,
		Message: errno.OK.Message,
		Data:    data,
	})
}

// Raw 直接返回对象本身，auth 接口与前端约定不带外层信封
func Raw(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// Error returns an error response with the HTTP status carried by the errno
func Error(c *gin.Context, err error) {
	e := errno.From(err)
	c.JSON(errno.HTTPStatus(e), Response{
		Code:    e.Code,
		Message: e.Message,
		Data:    gin.H{},
	})
}

// Abort 与 Error 相同，但会中止后续 handler，供中间件使用
func Abort(c *gin.Context, err error) {
	Error(c, err)
	c.Abort()
}
