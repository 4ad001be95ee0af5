package facebook

import (
	"errors"
	"fmt"
	"strings"
)

// Graph OAuth error code for an invalid or expired access token
const CodeTokenInvalid = 190

// Error is the Graph API error envelope.
type Error struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	Code      int    `json:"code"`
	FbtraceID string `json:"fbtrace_id"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("facebook: %s (type: %s, code: %d, trace: %s)", e.Message, e.Type, e.Code, e.FbtraceID)
}

// IsTokenInvalidCode reports a structured code 190 answer only. The refresh
// path uses this stricter check: it marks pages expired, which is terminal
// until the user re-authorizes.
func IsTokenInvalidCode(err error) bool {
	var fbErr *Error
	return errors.As(err, &fbErr) && fbErr.Code == CodeTokenInvalid
}

// IsTokenInvalid reports whether err is a definitive invalid-token answer from
// facebook. The structured check is code 190; the message fallbacks ("190",
// "token") are a known approximation kept for parity with how facebook words
// expiry errors in practice. Any error that merely mentions tokens for an
// unrelated reason will be misclassified, so keep the heuristic confined here.
func IsTokenInvalid(err error) bool {
	if err == nil {
		return false
	}

	var fbErr *Error
	if errors.As(err, &fbErr) {
		if fbErr.Code == CodeTokenInvalid {
			return true
		}
		msg := strings.ToLower(fbErr.Message)
		return strings.Contains(msg, "190") || strings.Contains(msg, "token")
	}

	return false
}
