package common

import (
	"encoding/base64"

	apperrors "github.com/acme/outbound-batch-dialer/pkg/errors"
)

// EncodePageToken renders a driver paging state as an opaque URL-safe
// token. An exhausted listing yields the empty token.
func EncodePageToken(state []byte) string {
	if len(state) == 0 {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(state)
}

// DecodePageToken reverses EncodePageToken. The empty token means the first page.
func DecodePageToken(token string) ([]byte, error) {
	if token == "" {
		return nil, nil
	}
	state, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, apperrors.Newf(apperrors.ErrValidation, "invalid page token")
	}
	return state, nil
}
