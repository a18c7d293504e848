package services

import "errors"

// ErrNotAuthenticated is returned by operations that require a session.
// Clients match on its message.
var ErrNotAuthenticated = errors.New("not authenticated")

// FieldError is a user-facing validation error tied to an input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func fieldErrors(field, message string) []FieldError {
	return []FieldError{{Field: field, Message: message}}
}

const (
	msgInvalidEmail      = "Not a valid email!"
	msgUsernameTooShort  = "Length must be greater than 2!"
	msgUsernameAtSign    = "Cannot include @-sign!"
	msgPasswordTooShort  = "Length must be greater than 3!"
	msgUsernameTaken     = "Username already exists!"
	msgUnknownIdentifier = "Username / Email doesn't exist!"
	msgWrongPassword     = "Password incorrect!"
	msgTokenExpired      = "Token expired!"
	msgUserGone          = "User no longer exists!"
)
