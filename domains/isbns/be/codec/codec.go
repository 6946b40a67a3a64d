// Package codec validates and normalizes ISBN-13 identifiers.
package codec

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Length is the number of digits in a normalized ISBN-13.
const Length = 13

// Reason explains why a raw value failed validation.
type Reason string

const (
	ReasonEmptyInput       Reason = "EmptyInput"
	ReasonWrongLength      Reason = "WrongLength"
	ReasonNonDigit         Reason = "NonDigit"
	ReasonInvalidPrefix    Reason = "InvalidPrefix"
	ReasonChecksumMismatch Reason = "ChecksumMismatch"
)

// Message returns the user-facing explanation for the reason.
func (r Reason) Message() string {
	switch r {
	case ReasonEmptyInput:
		return "Value is empty"
	case ReasonWrongLength:
		return "ISBN-13 must contain exactly 13 digits"
	case ReasonNonDigit:
		return "ISBN-13 may only contain digits, hyphens and spaces"
	case ReasonInvalidPrefix:
		return "ISBN-13 must start with 978 or 979"
	case ReasonChecksumMismatch:
		return "Check digit does not match"
	default:
		return string(r)
	}
}

// Result is the outcome of Validate. Normalized is set whenever the input was not blank.
type Result struct {
	Valid      bool
	Reason     Reason
	Normalized string
}

// Normalize strips hyphens and whitespace. It does not validate.
func Normalize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		switch r {
		case '-', ' ', '\t', '\n', '\r':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Validate normalizes raw and checks length, digits, EAN prefix and check digit, in that order.
func Validate(raw string) Result {
	if strings.TrimSpace(raw) == "" {
		return Result{Reason: ReasonEmptyInput}
	}

	value := Normalize(raw)
	if utf8.RuneCountInString(value) != Length {
		return Result{Reason: ReasonWrongLength, Normalized: value}
	}
	if !allDigits(value) {
		return Result{Reason: ReasonNonDigit, Normalized: value}
	}
	if !strings.HasPrefix(value, "978") && !strings.HasPrefix(value, "979") {
		return Result{Reason: ReasonInvalidPrefix, Normalized: value}
	}

	want, _ := CheckDigit(value[:Length-1])
	if int(value[Length-1]-'0') != want {
		return Result{Reason: ReasonChecksumMismatch, Normalized: value}
	}

	return Result{Valid: true, Normalized: value}
}

// CheckDigit computes the ISBN-13 check digit over the first twelve digits.
// Weights alternate 1,3,1,3,...
func CheckDigit(first12 string) (int, error) {
	if len(first12) != Length-1 {
		return 0, fmt.Errorf("check digit needs %d digits, got %d", Length-1, len(first12))
	}
	if !allDigits(first12) {
		return 0, errors.New("check digit input must be digits only")
	}

	sum := 0
	for i := 0; i < len(first12); i++ {
		d := int(first12[i] - '0')
		if i%2 == 1 {
			d *= 3
		}
		sum += d
	}
	return (10 - sum%10) % 10, nil
}

// Format renders a normalized value as "978-XXXXXXXXXX" for display. Invalid input is returned as-is.
func Format(value string) string {
	if len(value) != Length || !allDigits(value) {
		return value
	}
	return value[:3] + "-" + value[3:]
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
