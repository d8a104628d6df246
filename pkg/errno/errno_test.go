package errno

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantMsg  string
	}{
		{"nil", nil, OK.Code, OK.Message},
		{"value", ErrStrategyLocked, ErrStrategyLocked.Code, ErrStrategyLocked.Message},
		{"pointer", &ErrTxNotFound, ErrTxNotFound.Code, ErrTxNotFound.Message},
		{"wrapped", fmt.Errorf("load: %w", ErrSecretNotFound), ErrSecretNotFound.Code, ErrSecretNotFound.Message},
		{"custom message", ErrBind.WithMessage("pubkey 格式不正确"), ErrBind.Code, "pubkey 格式不正确"},
		{"plain error", errors.New("boom"), InternalServerError.Code, "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, msg := Decode(tt.err)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantMsg, msg)
		})
	}
}

func TestIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("wrap: %w", ErrRoleIneligible.WithMessage("current Servant, require Master"))
	assert.True(t, errors.Is(err, ErrRoleIneligible))
	assert.False(t, errors.Is(err, ErrStrategyLocked))
}

func TestIsAuthorization(t *testing.T) {
	assert.True(t, IsAuthorization(ErrTokenInvalid))
	assert.True(t, IsAuthorization(ErrRoleIneligible.WithMessage("x")))
	assert.False(t, IsAuthorization(ErrStrategyLocked))
	assert.False(t, IsAuthorization(errors.New("other")))
}
