package server

import (
	"crypto/rand"
	"errors"
	"strings"
)

// CodeAlphabet omits I, O, 0 and 1. Its 32 symbols map one-to-one onto
// five random bits.
const (
	CodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	CodeLength   = 6
)

var errInvalidCode = errors.New("invalid room code")

// NewRoomCode returns a random room code.
func NewRoomCode() (string, error) {
	buf := make([]byte, CodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = CodeAlphabet[int(b)%len(CodeAlphabet)]
	}
	return string(buf), nil
}

// NormalizeRoomCode upper-cases code and checks it against the alphabet.
func NormalizeRoomCode(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != CodeLength {
		return "", errInvalidCode
	}
	for _, c := range code {
		if !strings.ContainsRune(CodeAlphabet, c) {
			return "", errInvalidCode
		}
	}
	return code, nil
}
