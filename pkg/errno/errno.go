package errno

import (
	"errors"
	"net/http"
)

// Errno defines the error code logic
type Errno struct {
	Code    int
	Message string
	Status  int // HTTP 状态码
}

func (e Errno) Error() string {
	return e.Message
}

// WithMessage 返回一个替换了 Message 的副本，Code 与 Status 不变
func (e Errno) WithMessage(msg string) Errno {
	e.Message = msg
	return e
}

// Decode tries to convert an error to Errno
func Decode(err error) (int, string) {
	e := From(err)
	return e.Code, e.Message
}

// From 把任意 error 转换为 Errno (支持 %w 包装)，未知错误归为 InternalServerError 并保留原始信息
func From(err error) Errno {
	if err == nil {
		return OK
	}

	var e Errno
	if errors.As(err, &e) {
		return e
	}
	var pe *Errno
	if errors.As(err, &pe) && pe != nil {
		return *pe
	}
	return InternalServerError.WithMessage(err.Error())
}

// HTTPStatus 返回错误对应的 HTTP 状态码
func HTTPStatus(err error) int {
	e := From(err)
	if e.Status == 0 {
		return http.StatusOK
	}
	return e.Status
}

// Common Errors
var (
	OK                  = Errno{Code: 0, Message: "Success", Status: http.StatusOK}
	InternalServerError = Errno{Code: 10001, Message: "Internal server error", Status: http.StatusInternalServerError}
	ErrBind             = Errno{Code: 10002, Message: "Error occurred while binding the request body to the struct", Status: http.StatusBadRequest}
	ErrTokenInvalid     = Errno{Code: 10003, Message: "Token invalid", Status: http.StatusUnauthorized}
	ErrDatabase         = Errno{Code: 10004, Message: "Database error", Status: http.StatusInternalServerError}
	ErrTooManyRequests  = Errno{Code: 10005, Message: "Too many requests", Status: http.StatusTooManyRequests}
	ErrCache            = Errno{Code: 10006, Message: "Cache error", Status: http.StatusInternalServerError}
	ErrDependency       = Errno{Code: 10007, Message: "Dependency unavailable", Status: http.StatusServiceUnavailable}
)

// Business Errors (20000+)
var (
	ErrAddressInvalid   = Errno{Code: 20301, Message: "Wallet address invalid", Status: http.StatusBadRequest}
	ErrNonceInvalid     = Errno{Code: 20302, Message: "Nonce invalid or expired", Status: http.StatusUnauthorized}
	ErrSignatureInvalid = Errno{Code: 20303, Message: "Invalid signature", Status: http.StatusUnauthorized}
	ErrTokenMissing     = Errno{Code: 20304, Message: "Authorization token missing", Status: http.StatusUnauthorized}
	ErrTokenRevoked     = Errno{Code: 20305, Message: "Token revoked", Status: http.StatusUnauthorized}
)
