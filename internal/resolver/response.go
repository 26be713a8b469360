package resolver

import (
	"encoding/base64"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Response is the payload returned by the resolver endpoint. Only token_hash
// is read; other fields are ignored.
type Response struct {
	TokenHash *string `json:"token_hash" validate:"required,min=1"`
}

var validate = validator.New()

// NewResponse builds a Response carrying tokenHash.
func NewResponse(tokenHash string) *Response {
	return &Response{TokenHash: &tokenHash}
}

// Decode validates resp and returns the destination it carries. The decoded
// value is not checked for being a well-formed URL; whatever the endpoint
// encoded is handed on as-is.
func Decode(resp *Response) (string, error) {
	if resp == nil {
		return "", &Error{Kind: KindMalformed, Message: "empty response"}
	}
	if resp.TokenHash != nil {
		trimmed := strings.TrimSpace(*resp.TokenHash)
		resp = &Response{TokenHash: &trimmed}
	}
	if err := validate.Struct(resp); err != nil {
		msg := "token_hash is missing"
		if resp.TokenHash != nil {
			msg = "token_hash is empty"
		}
		return "", &Error{Kind: KindMalformed, Message: msg, Cause: err}
	}

	decoded, err := decodeBase64(*resp.TokenHash)
	if err != nil {
		return "", &Error{Kind: KindDecode, Message: "token_hash is not base64", Cause: err}
	}
	return decoded, nil
}

// decodeBase64 accepts padded and unpadded input in both the standard and
// URL-safe alphabets.
func decodeBase64(s string) (string, error) {
	encodings := []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	}

	var firstErr error
	for _, enc := range encodings {
		out, err := enc.DecodeString(s)
		if err == nil {
			return string(out), nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return "", firstErr
}
