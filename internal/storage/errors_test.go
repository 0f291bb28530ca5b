package storage

import (
	"errors"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
)

func TestIsMissingObject(t *testing.T) {
	assert.False(t, isMissingObject(nil))
	assert.True(t, isMissingObject(minio.ErrorResponse{Code: "NoSuchKey"}))
	assert.True(t, isMissingObject(minio.ErrorResponse{Code: "NotFound"}))
	assert.True(t, isMissingObject(errors.New("The specified key does not exist.")))
	assert.False(t, isMissingObject(minio.ErrorResponse{Code: "AccessDenied"}))
}
