package utils

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

var ErrMalformedRef = errors.New("malformed target reference")

// uuidLen is the length of the canonical textual uuid form.
const uuidLen = 36

// IsEmail reports whether a login identifier names an email address. Any
// identifier containing "@" is one; everything else is a username.
func IsEmail(s string) bool {
	return strings.Contains(s, "@")
}

// TargetRef joins a flow context and a user uuid: "registration-<uuid>".
func TargetRef(context, userUUID string) string {
	return context + "-" + userUUID
}

// SplitTargetRef separates the context tag from the trailing uuid. The uuid
// is always the last 36 characters, so contexts may themselves contain dashes.
func SplitTargetRef(ref string) (context, userUUID string, err error) {
	ref = strings.TrimSpace(ref)
	if len(ref) < uuidLen+2 || ref[len(ref)-uuidLen-1] != '-' {
		return "", "", ErrMalformedRef
	}
	context = ref[:len(ref)-uuidLen-1]
	id, err := uuid.Parse(ref[len(ref)-uuidLen:])
	if err != nil {
		return "", "", ErrMalformedRef
	}
	return context, id.String(), nil
}
