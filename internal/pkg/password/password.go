// Package password wraps bcrypt for stored credentials.
package password

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// bcrypt only reads the first 72 bytes of its input, so longer passwords
// are rejected outright instead of being silently cut.
const maxPasswordBytes = 72

// Above the library default; logins are rare enough that the extra
// hashing time is invisible.
const hashCost = bcrypt.DefaultCost + 2

// ErrPasswordTooLong rejects passwords past the bcrypt input limit.
var ErrPasswordTooLong = errors.New("password longer than 72 bytes")

func Hash(plain string) (string, error) {
	if len(plain) > maxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(plain), hashCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func Compare(hash, plain string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
}
