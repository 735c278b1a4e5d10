package ledger

import (
	"crypto/rand"
	"time"
)

// Package describes a purchasable voucher denomination.
type Package struct {
	Duration int64 // Call time in seconds.
	Price    int64 // Sale price.
}

// Packages is the fixed denomination table staff can sell.
var Packages = map[string]Package{
	"5min":   {Duration: 300, Price: 2000},
	"15min":  {Duration: 900, Price: 5000},
	"30min":  {Duration: 1800, Price: 10000},
	"60min":  {Duration: 3600, Price: 18000},
	"120min": {Duration: 7200, Price: 35000},
}

// RedemptionWindow is how long a freshly created voucher stays redeemable.
const RedemptionWindow = 14 * 24 * time.Hour

// codeLength matches the hand-entered voucher code format.
const codeLength = 7

// generateCode returns a random uppercase voucher code. The alphabet omits
// characters that are easy to misread on a printed slip.
func generateCode(length int) (string, error) {
	const alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, length)
	for i, b := range buf {
		out[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(out), nil
}
