package validator

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var (
	validate *validator.Validate
	once     sync.Once

	// 65 字节签名的 0x 十六进制形式
	signaturePattern = regexp.MustCompile(`^0x[0-9a-fA-F]{130}$`)
)

// Init 在 gin 的校验器上注册自定义规则，可重复调用
func Init() {
	once.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("eth_addr", isEthAddress)
		_ = v.RegisterValidation("eth_sig", isEthSignature)
		validate = v
	})
}

// Struct 在 gin 之外校验结构体 (例如消费 MQ 消息时)
func Struct(s interface{}) error {
	Init()
	if validate == nil {
		return errors.New("validator not initialised")
	}
	return validate.Struct(s)
}

// isEthAddress 0x 前缀的 20 字节十六进制地址，大小写均可
func isEthAddress(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	return strings.HasPrefix(strings.ToLower(s), "0x") && common.IsHexAddress(s)
}

func isEthSignature(fl validator.FieldLevel) bool {
	return signaturePattern.MatchString(fl.Field().String())
}

// GetErrorMsg translates validation errors into user-friendly messages
func GetErrorMsg(err error) string {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var errMsgs []string
		for _, e := range validationErrors {
			field := e.Field()
			tag := e.Tag()
			param := e.Param()

			switch tag {
			case "required":
				errMsgs = append(errMsgs, fmt.Sprintf("%s 不能为空", field))
			case "min":
				errMsgs = append(errMsgs, fmt.Sprintf("%s 长度至少为 %s", field, param))
			case "max":
				errMsgs = append(errMsgs, fmt.Sprintf("%s 长度不能超过 %s", field, param))
			case "len":
				errMsgs = append(errMsgs, fmt.Sprintf("%s 长度必须为 %s", field, param))
			case "hexadecimal":
				errMsgs = append(errMsgs, fmt.Sprintf("%s 必须是十六进制字符串", field))
			case "eth_addr":
				errMsgs = append(errMsgs, fmt.Sprintf("%s 不是有效的钱包地址", field))
			case "eth_sig":
				errMsgs = append(errMsgs, fmt.Sprintf("%s 不是有效的签名", field))
			case "oneof":
				errMsgs = append(errMsgs, fmt.Sprintf("%s 必须是 [%s] 之一", field, param))
			default:
				errMsgs = append(errMsgs, fmt.Sprintf("%s 校验失败 (%s)", field, tag))
			}
		}
		return strings.Join(errMsgs, "; ")
	}
	return "请求参数错误"
}
