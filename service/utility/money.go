package utility

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrInvalidPhoneNumber is returned when a phone number cannot be coerced
// into the canonical 254XXXXXXXXX form.
var ErrInvalidPhoneNumber = errors.New("invalid phone number format, expected 254XXXXXXXXX, +254XXXXXXXXX, 07XXXXXXXX or 7XXXXXXXX")

var kenyanMsisdn = regexp.MustCompile(`^254\d{9}$`)

// minorUnitPlaces is the KES minor unit scale used for all ledger splits.
const minorUnitPlaces = 2

// NormalizePhoneNumber canonicalizes the four accepted subscriber number
// shapes to the international digit string the payment rails expect.
func NormalizePhoneNumber(input string) (string, error) {
	formatted := strings.TrimSpace(input)
	formatted = strings.ReplaceAll(formatted, " ", "")
	formatted = strings.TrimPrefix(formatted, "+")

	switch {
	case strings.HasPrefix(formatted, "254"):
		// already canonical
	case strings.HasPrefix(formatted, "0"):
		formatted = "254" + formatted[1:]
	default:
		formatted = "254" + formatted
	}

	if !kenyanMsisdn.MatchString(formatted) {
		return "", ErrInvalidPhoneNumber
	}
	return formatted, nil
}

// SplitForDisbursement divides a collected amount into the platform fee and
// the net owed to the property owner. The fee is rounded to the currency's
// minor unit and the net absorbs any rounding remainder, so that
// fee + net always reconstructs the amount exactly.
func SplitForDisbursement(amount decimal.Decimal, feePercent decimal.Decimal) (fee decimal.Decimal, net decimal.Decimal) {
	fee = amount.Mul(feePercent).Div(decimal.NewFromInt(100)).Round(minorUnitPlaces)
	net = amount.Sub(fee)
	return fee, net
}

// OutstandingBalance projects how much of the current rent cycle is still
// owed given the recent payment total. Payment history is treated as
// cyclically consumed against a fixed recurring rent, so this is not a
// running ledger balance.
func OutstandingBalance(rentAmount decimal.Decimal, totalPaid decimal.Decimal) decimal.Decimal {
	if !rentAmount.IsPositive() {
		return decimal.Zero
	}
	return rentAmount.Sub(totalPaid.Mod(rentAmount))
}

// NextDueDate returns the upcoming rent due date: the 5th of the current
// month, or of the next month once the 5th has passed.
func NextDueDate(now time.Time) time.Time {
	due := time.Date(now.Year(), now.Month(), 5, 0, 0, 0, 0, now.Location())
	if now.Day() > 5 {
		due = due.AddDate(0, 1, 0)
	}
	return due
}
