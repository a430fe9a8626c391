package remote

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewStatusError(t *testing.T) {
	tests := map[string]struct {
		status      int
		message     string
		wantKind    ErrorKind
		wantLimited bool
	}{
		"404":              {status: 404, message: "Not Found", wantKind: KindNotFound},
		"401":              {status: 401, message: "Bad credentials", wantKind: KindAuthFailed},
		"403":              {status: 403, message: "Forbidden", wantKind: KindForbidden},
		"403 rate limited": {status: 403, message: "API Rate Limit exceeded", wantKind: KindForbidden, wantLimited: true},
		"429":              {status: 429, message: "Too Many Requests", wantKind: KindForbidden, wantLimited: true},
		"422":              {status: 422, message: "Validation Failed", wantKind: KindInvalidRequest},
		"500":              {status: 500, message: "Server Error", wantKind: KindAPI},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			err := NewStatusError(tc.status, tc.message)
			assert.Equal(t, tc.wantKind, err.Kind)
			assert.Equal(t, tc.wantLimited, err.RateLimited)
			assert.Contains(t, err.Error(), tc.message)
		})
	}
}

func TestKindOfUnwrapsChains(t *testing.T) {
	base := NewStatusError(404, "Not Found")
	wrapped := fmt.Errorf("listing skills: %w", base)

	assert.Equal(t, KindNotFound, KindOf(wrapped))
	assert.True(t, IsNotFound(wrapped))
	assert.Equal(t, ErrorKind(""), KindOf(errors.New("plain")))
}

func TestTransportErrorUnwraps(t *testing.T) {
	cause := errors.New("connection reset by peer")
	err := NewTransportError(cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, KindTransport, KindOf(err))
	assert.Contains(t, err.Error(), "connection reset by peer")
}

func TestHint(t *testing.T) {
	tests := map[string]struct {
		err      error
		hasToken bool
		want     string
	}{
		"rate limited anonymous": {
			err:  NewStatusError(403, "API rate limit exceeded"),
			want: "GITHUB_TOKEN",
		},
		"rate limited with token": {
			err:      NewStatusError(403, "API rate limit exceeded"),
			hasToken: true,
			want:     "provided token",
		},
		"auth failed": {
			err:      NewStatusError(401, "Bad credentials"),
			hasToken: true,
			want:     "invalid or expired",
		},
		"not found anonymous": {
			err:  fmt.Errorf("wrapped: %w", NewStatusError(404, "Not Found")),
			want: "private",
		},
		"plain error": {
			err:  errors.New("disk full"),
			want: "",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			got := Hint(tc.err, tc.hasToken)
			if tc.want == "" {
				assert.Empty(t, got)
				return
			}
			assert.Contains(t, got, tc.want)
		})
	}
}

func TestIsCommitSHA(t *testing.T) {
	tests := map[string]struct {
		input string
		want  bool
	}{
		"lowercase":   {input: "0123456789abcdef0123456789abcdef01234567", want: true},
		"uppercase":   {input: "0123456789ABCDEF0123456789ABCDEF01234567", want: true},
		"too short":   {input: "0123456789abcdef", want: false},
		"non-hex":     {input: "xyz123def456abc123def456abc123def456abc1", want: false},
		"branch name": {input: "main", want: false},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsCommitSHA(tc.input))
		})
	}
}
