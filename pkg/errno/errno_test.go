package errno

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecode(t *testing.T) {
	code, msg := Decode(nil)
	assert.Equal(t, OK.Code, code)
	assert.Equal(t, OK.Message, msg)

	code, msg = Decode(ErrNonceInvalid)
	assert.Equal(t, 20302, code)
	assert.Equal(t, ErrNonceInvalid.Message, msg)

	code, msg = Decode(&ErrSignatureInvalid)
	assert.Equal(t, 20303, code)
	assert.Equal(t, "Invalid signature", msg)

	// %w 包装后仍能识别
	code, _ = Decode(fmt.Errorf("verify: %w", ErrSignatureInvalid))
	assert.Equal(t, 20303, code)

	// 未知错误保留原始信息
	code, msg = Decode(errors.New("boom"))
	assert.Equal(t, InternalServerError.Code, code)
	assert.Equal(t, "boom", msg)
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"bind", ErrBind, http.StatusBadRequest},
		{"nonce", ErrNonceInvalid, http.StatusUnauthorized},
		{"rate limit", ErrTooManyRequests, http.StatusTooManyRequests},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
		{"no status", Errno{Code: 1, Message: "x"}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestWithMessage(t *testing.T) {
	e := ErrBind.WithMessage("address 不能为空")
	assert.Equal(t, ErrBind.Code, e.Code)
	assert.Equal(t, ErrBind.Status, e.Status)
	assert.Equal(t, "address 不能为空", e.Error())
	// 原始变量不受影响
	assert.NotEqual(t, e.Message, ErrBind.Message)
}
