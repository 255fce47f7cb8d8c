package errx

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestWrapRedis(t *testing.T) {
	assert.Nil(t, WrapRedis(nil))

	notFound := WrapRedis(redis.Nil)
	assert.Equal(t, http.StatusNotFound, StatusOf(notFound))
	assert.True(t, errors.Is(notFound, redis.Nil))

	boom := errors.New("connection refused")
	wrapped := WrapRedis(boom)
	assert.Equal(t, http.StatusBadGateway, StatusOf(wrapped))
	assert.Equal(t, RedisErrorMessage, MessageOf(wrapped))
	assert.True(t, errors.Is(wrapped, boom))
}

func TestStatusOfWrappedChain(t *testing.T) {
	base := errors.New("unsupported extension .xls")
	err := fmt.Errorf("upload: %w", Validation(base))

	assert.Equal(t, http.StatusBadRequest, StatusOf(err))
	assert.Contains(t, MessageOf(err), "unsupported extension .xls")

	var appErr *AppError
	assert.True(t, errors.As(err, &appErr))
	assert.Equal(t, base, appErr.Err)
}

func TestStatusOfPlainError(t *testing.T) {
	err := errors.New("plain")
	assert.Equal(t, http.StatusInternalServerError, StatusOf(err))
	assert.Equal(t, SystemErrorMessage, MessageOf(err))
	assert.Equal(t, http.StatusNotFound, StatusOf(NotFound(err)))
}
