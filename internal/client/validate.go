package client

import (
	"errors"
	"strings"
	"unicode"
)

// Validate applies the account rules the service enforces, so obvious
// mistakes are reported before a round trip. Username is normalized to
// lower case.
func (in *RegisterInput) Validate() error {
	var errs []error

	in.Username = strings.ToLower(strings.TrimSpace(in.Username))
	switch {
	case len(in.Username) < 3:
		errs = append(errs, errors.New("username must be at least 3 characters long"))
	case strings.IndexFunc(in.Username, invalidUsernameRune) >= 0:
		errs = append(errs, errors.New("username must contain only letters, numbers, underscore, dot, or @"))
	}

	if strings.TrimSpace(in.Email) == "" || !strings.Contains(in.Email, "@") {
		errs = append(errs, errors.New("a valid email address is required"))
	}
	if strings.TrimSpace(in.FullName) == "" {
		errs = append(errs, errors.New("full name is required"))
	}

	switch {
	case len(in.Password) < 8:
		errs = append(errs, errors.New("password must be at least 8 characters long"))
	case strings.IndexFunc(in.Password, unicode.IsDigit) < 0:
		errs = append(errs, errors.New("password must contain at least one number"))
	case strings.IndexFunc(in.Password, unicode.IsUpper) < 0:
		errs = append(errs, errors.New("password must contain at least one uppercase letter"))
	}
	if in.ConfirmPassword != in.Password {
		errs = append(errs, errors.New("passwords do not match"))
	}

	return errors.Join(errs...)
}

func invalidUsernameRune(r rune) bool {
	switch r {
	case '_', '.', '@':
		return false
	}
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}
