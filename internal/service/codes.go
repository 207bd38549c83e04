package service

import (
	"errors"

	gloom "github.com/jcalabro/gloomd"
)

// Response codes carried in the "code" field of failed responses.
const (
	CodeOK           = "ok"
	CodeInvalid      = "invalid"
	CodeInvalidName  = "invalid_name"
	CodeInvalidData  = "invalid_data"
	CodeNotFound     = "not_found"
	CodeExists       = "exists"
	CodeIncompatible = "incompatible"
	CodeLimit        = "limit"
	CodeBadRequest   = "bad_request"
	CodeInternal     = "internal"
)

// ErrBadRequest is returned for requests the server could not decode or
// route: malformed CBOR, a missing action, an unknown action or a
// missing field.
var ErrBadRequest = errors.New("gloomd: bad request")

// codeTable maps sentinels to wire codes. The first entry for a code is
// the sentinel a client unwraps to.
var codeTable = []struct {
	err  error
	code string
}{
	{gloom.ErrInvalidParams, CodeInvalid},
	{gloom.ErrInvalidName, CodeInvalidName},
	{gloom.ErrInvalidData, CodeInvalidData},
	{gloom.ErrUnsupportedVersion, CodeInvalidData},
	{gloom.ErrInvalidK, CodeInvalidData},
	{gloom.ErrNotFound, CodeNotFound},
	{gloom.ErrExists, CodeExists},
	{gloom.ErrIncompatible, CodeIncompatible},
	{gloom.ErrLimit, CodeLimit},
	{ErrBadRequest, CodeBadRequest},
}

// ErrorCode returns the wire code for err.
func ErrorCode(err error) string {
	if err == nil {
		return CodeOK
	}
	for _, entry := range codeTable {
		if errors.Is(err, entry.err) {
			return entry.code
		}
	}
	return CodeInternal
}

// sentinelFor returns the error a wire code stands for, or nil.
func sentinelFor(code string) error {
	for _, entry := range codeTable {
		if entry.code == code {
			return entry.err
		}
	}
	return nil
}
