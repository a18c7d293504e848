package services

import (
	"strings"
	"unicode/utf8"
)

// UsernamePasswordInput is the registration payload.
type UsernamePasswordInput struct {
	Username string
	Email    string
	Password string
}

// validateRegister returns the first failing rule only.
func validateRegister(in UsernamePasswordInput) []FieldError {
	switch {
	case !strings.Contains(in.Email, "@"):
		return fieldErrors("email", msgInvalidEmail)
	case utf8.RuneCountInString(in.Username) <= 2:
		return fieldErrors("username", msgUsernameTooShort)
	case strings.Contains(in.Username, "@"):
		return fieldErrors("username", msgUsernameAtSign)
	case !passwordLongEnough(in.Password):
		return fieldErrors("password", msgPasswordTooShort)
	}
	return nil
}

func passwordLongEnough(pw string) bool {
	return utf8.RuneCountInString(pw) > 3
}
