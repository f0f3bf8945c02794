// Package validate holds the client-side field rules shared by the
// registration, settings, reset and editor forms.
package validate

import (
	"errors"
	"regexp"
	"unicode/utf8"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

var (
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{3,30}$`)
	emailPattern    = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	linkPattern     = regexp.MustCompile(`^(https?://|www\.)[^\s]+\.[^\s]+`)

	upperPattern  = regexp.MustCompile(`[A-Z]`)
	lowerPattern  = regexp.MustCompile(`[a-z]`)
	digitPattern  = regexp.MustCompile(`[0-9]`)
	symbolPattern = regexp.MustCompile(`[!@#$%^&*(),.?":{}|<>]`)
)

const (
	PasswordMinLength = 8
	PasswordMaxLength = 24
)

// UsernameRules are the rules for a username field
var UsernameRules = []validation.Rule{
	validation.Required.Error("Username is required"),
	validation.Match(usernamePattern).Error("Username must be 3-30 characters: letters, numbers and underscores only"),
}

// EmailRules are the rules for an email field
var EmailRules = []validation.Rule{
	validation.Required.Error("Email is required"),
	validation.Match(emailPattern).Error("Please enter a valid email address"),
}

// Username validates a username
func Username(value string) error {
	return validation.Validate(value, UsernameRules...)
}

// Email validates an email address
func Email(value string) error {
	return validation.Validate(value, EmailRules...)
}

// LinkURL reports whether value looks like a link the editor will accept
func LinkURL(value string) bool {
	return linkPattern.MatchString(value)
}

type passwordRule struct {
	key     string
	message string
	ok      func(string) bool
}

var passwordRules = []passwordRule{
	{"length", "Password must be at least 8 characters", func(s string) bool { return utf8.RuneCountInString(s) >= PasswordMinLength }},
	{"max_length", "Password must be at most 24 characters", func(s string) bool { return utf8.RuneCountInString(s) <= PasswordMaxLength }},
	{"uppercase", "Password must contain an uppercase letter", upperPattern.MatchString},
	{"lowercase", "Password must contain a lowercase letter", lowerPattern.MatchString},
	{"number", "Password must contain a number", digitPattern.MatchString},
	{"symbol", "Password must contain a special character", symbolPattern.MatchString},
}

// Password checks every password rule and returns the failures keyed by
// rule, or nil when the password passes them all.
func Password(value string) error {
	errs := validation.Errors{}
	for _, rule := range passwordRules {
		if !rule.ok(value) {
			errs[rule.key] = errors.New(rule.message)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// PasswordMessages returns the failing password rule messages in rule order
func PasswordMessages(value string) []string {
	var msgs []string
	for _, rule := range passwordRules {
		if !rule.ok(value) {
			msgs = append(msgs, rule.message)
		}
	}
	return msgs
}

// PasswordConfirmation checks that confirm matches password
func PasswordConfirmation(password, confirm string) error {
	return validation.Validate(confirm,
		validation.Required.Error("Please confirm your password"),
		validation.By(func(any) error {
			if confirm != password {
				return errors.New("Passwords do not match")
			}
			return nil
		}),
	)
}

// Fields flattens ozzo validation errors into a field to message map.
// Non-validation errors are returned under the empty key.
func Fields(err error) map[string]string {
	if err == nil {
		return nil
	}
	out := map[string]string{}
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for field, ferr := range verrs {
			if ferr != nil {
				out[field] = ferr.Error()
			}
		}
		return out
	}
	out[""] = err.Error()
	return out
}
