package errcode

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOfWalksWrappedChain(t *testing.T) {
	base := NewDuplicate("already signed up")
	wrapped := fmt.Errorf("signup: %w", base)

	assert.Equal(t, Duplicate, CodeOf(wrapped))
	assert.True(t, errors.Is(wrapped, base))
	assert.Equal(t, "already signed up", MessageOf(wrapped))
	assert.Equal(t, http.StatusConflict, HTTPStatus(CodeOf(wrapped)))
}

func TestSystemErrorsAreRedacted(t *testing.T) {
	dbErr := Persistence("insert row", errors.New("pq: relation does not exist"))
	assert.Equal(t, "internal error", MessageOf(dbErr))
	assert.Contains(t, dbErr.Error(), "relation does not exist")

	mailErr := Transient("send mail", errors.New("535 auth failed"))
	assert.Equal(t, "email delivery failed", MessageOf(mailErr))
	assert.Equal(t, http.StatusBadGateway, HTTPStatus(CodeOf(mailErr)))

	assert.Equal(t, SystemError, CodeOf(errors.New("plain")))
	assert.Equal(t, "internal error", MessageOf(errors.New("plain")))
}

func TestHTTPStatusTable(t *testing.T) {
	cases := map[int]int{
		Validation:      http.StatusBadRequest,
		Unauthorized:    http.StatusUnauthorized,
		Forbidden:       http.StatusForbidden,
		ResourceMissing: http.StatusNotFound,
		RateLimited:     http.StatusTooManyRequests,
		SystemError:     http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, HTTPStatus(code), "code %d", code)
	}
}
