package storage

import (
	"errors"
	"strings"

	"github.com/minio/minio-go/v7"

	"talentCorner/internal/errcode"
)

var (
	// ErrInfected is returned when clamd flags an upload.
	ErrInfected = errcode.NewValidation("malicious file detected")
	// ErrInvalidKey is returned for keys that would escape the storage root.
	ErrInvalidKey = errors.New("invalid object key")
)

// missingObjectCodes are the S3 error codes meaning the object is already gone.
var missingObjectCodes = map[string]bool{
	"nosuchkey": true,
	"notfound":  true,
}

// isMissingObject reports whether err means the object does not exist.
func isMissingObject(err error) bool {
	if err == nil {
		return false
	}
	resp := minio.ToErrorResponse(err)
	if missingObjectCodes[strings.ToLower(resp.Code)] {
		return true
	}
	// 部分网关只返回文本。
	return strings.Contains(strings.ToLower(err.Error()), "specified key does not exist")
}
