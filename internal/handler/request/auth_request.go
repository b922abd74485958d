package request

// VerifyRequest POST /auth/verify 请求体
type VerifyRequest struct {
	Address   string `json:"address" binding:"required,eth_addr" example:"0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266"`
	Signature string `json:"signature" binding:"required,eth_sig"`
	Nonce     string `json:"nonce" binding:"required,hexadecimal,len=64"`
}
