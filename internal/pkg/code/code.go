package code

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
)

// Numeric generates a numeric passcode of the given digit length, drawn
// uniformly from [10^(d-1), 10^d - 1] so the first digit is never zero.
func Numeric(digits int) (string, error) {
	if digits < 1 || digits > 18 {
		return "", fmt.Errorf("invalid otp digit length %d", digits)
	}
	lo := int64(1)
	for i := 1; i < digits; i++ {
		lo *= 10
	}
	span := lo*10 - lo // count of d-digit numbers
	n, err := rand.Int(rand.Reader, big.NewInt(span))
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(lo+n.Int64(), 10), nil
}
