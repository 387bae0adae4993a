package room

import (
	crand "crypto/rand"
	"math/big"
	"math/rand"
)

// Room codes skip ambiguous characters (0/O, 1/I/L) so they survive being
// read aloud.
const (
	codeLength = 6
	codeChars  = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
)

// GenerateCode creates a random 6-character room code.
func GenerateCode() string {
	code := make([]byte, codeLength)
	for i := range code {
		n, err := crand.Int(crand.Reader, big.NewInt(int64(len(codeChars))))
		if err != nil {
			// fallback to math/rand if crypto fails
			code[i] = codeChars[rand.Intn(len(codeChars))]
			continue
		}
		code[i] = codeChars[n.Int64()]
	}
	return string(code)
}
