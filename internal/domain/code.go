package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CodeTTL is the fixed validity window of a redemption code from its
// creation. It is a design constant, not configurable per promotion.
const CodeTTL = 5 * time.Minute

// CodePrefix is the printable prefix of every issued code string.
const CodePrefix = "PROMO"

// FormatCode renders the printable code string for a code row ID, the text
// that ends up inside the QR image.
func FormatCode(id int64) string {
	return fmt.Sprintf("%s-%d", CodePrefix, id)
}

// ParseCode extracts the numeric code ID from a scanned string of the form
// "<prefix>-<id>". Anything that does not parse to a positive integer is a
// client error, not a lookup failure.
func ParseCode(raw string) (int64, error) {
	parts := strings.Split(strings.TrimSpace(raw), "-")
	if len(parts) != 2 {
		return 0, ErrInvalidCodeFormat
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrInvalidCodeFormat
	}
	return id, nil
}
