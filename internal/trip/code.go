package trip

import (
	"crypto/rand"
	"fmt"
	"strings"
)

// CodeLength is the length of a trip code.
const CodeLength = 6

const codeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// NewCode returns a random uppercase base36 trip code.
func NewCode() (string, error) {
	var (
		out [CodeLength]byte
		buf [16]byte
		n   int
	)
	for n < CodeLength {
		if _, err := rand.Read(buf[:]); err != nil {
			return "", err
		}
		for _, b := range buf {
			// 252 is the largest multiple of 36 below 256.
			if b >= 252 {
				continue
			}
			out[n] = codeAlphabet[int(b)%len(codeAlphabet)]
			n++
			if n == CodeLength {
				break
			}
		}
	}
	return string(out[:]), nil
}

// NormalizeCode trims and upper-cases a code typed by a watcher and checks
// its shape.
func NormalizeCode(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != CodeLength {
		return "", fmt.Errorf("%w: must be %d characters", ErrInvalidCode, CodeLength)
	}
	for _, r := range code {
		if !strings.ContainsRune(codeAlphabet, r) {
			return "", fmt.Errorf("%w: unexpected character %q", ErrInvalidCode, r)
		}
	}
	return code, nil
}
