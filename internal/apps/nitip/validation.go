package nitip

import (
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	minNameLen = 2
	maxNameLen = 100
)

var (
	phonePattern  = regexp.MustCompile(`^(?:\+62|62|0)\d{9,12}$`)
	phoneStripper = strings.NewReplacer(" ", "", "-", "")
)

// NormalizePhone drops the spaces and dashes people type into numbers.
func NormalizePhone(phone string) string {
	return phoneStripper.Replace(strings.TrimSpace(phone))
}

// Validate checks in and returns the cleaned input that will be stored.
func Validate(in DepositInput) (DepositInput, error) {
	out := DepositInput{
		OwnerName:  strings.TrimSpace(in.OwnerName),
		OwnerPhone: NormalizePhone(in.OwnerPhone),
		Slot:       in.Slot,
		PhotoURL:   strings.TrimSpace(in.PhotoURL),
	}

	if n := utf8.RuneCountInString(out.OwnerName); n < minNameLen || n > maxNameLen {
		return DepositInput{}, ErrInvalidName
	}
	if !phonePattern.MatchString(out.OwnerPhone) {
		return DepositInput{}, ErrInvalidPhone
	}
	if out.Slot < 1 || out.Slot > TotalSlots {
		return DepositInput{}, ErrInvalidSlot
	}
	if out.PhotoURL != "" && !isHTTPURL(out.PhotoURL) {
		return DepositInput{}, ErrInvalidPhotoURL
	}
	return out, nil
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
