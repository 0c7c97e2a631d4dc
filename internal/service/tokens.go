package service

import (
	"crypto/rand"
	"math/big"
)

const (
	digits       = "0123456789"
	alphanumeric = "abcdefghijklmnopqrstuvwxyz0123456789"
	mixed        = "abcdefghijkmnpqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789"

	passwordLength = 8
	pinLength      = 10
)

func randomString(alphabet string, n int) (string, error) {
	out := make([]byte, n)
	max := big.NewInt(int64(len(alphabet)))
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = alphabet[idx.Int64()]
	}
	return string(out), nil
}

func newUsername() (string, error) {
	suffix, err := randomString(digits, 4)
	if err != nil {
		return "", err
	}
	return "user" + suffix, nil
}

func newPassword() (string, error) {
	return randomString(mixed, passwordLength)
}

func newPin() (string, error) {
	return randomString(alphanumeric, pinLength)
}
