package irc

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validationTags maps struct tags to the identifier validators.
var validationTags = map[string]func(string) error{
	"ircnick":            ValidateUsername,
	"ircchannel":         ValidateChannel,
	"ircserver":          ValidateServer,
	"ircservermask":      ValidateServerMask,
	"ircprefixedchannel": ValidatePrefixedChannel,
	"ircsource":          ValidateSource,
}

// RegisterValidations registers the IRC identifier tags (ircnick, ircchannel,
// ircserver, ircservermask, ircprefixedchannel, ircsource) on v so they can be
// used in `validate:"..."` struct tags.
func RegisterValidations(v *validator.Validate) error {
	for tag, fn := range validationTags {
		check := fn
		err := v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
			field := fl.Field()
			if field.Kind() != reflect.String {
				return false
			}
			return check(field.String()) == nil
		})
		if err != nil {
			return fmt.Errorf("failed to register %s validation: %w", tag, err)
		}
	}
	return nil
}

// NewValidator returns a validator with the IRC tags registered. Field names
// in errors come from the json tag when one is present.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if err := RegisterValidations(v); err != nil {
		// tags are static, so this only fails on a programming error
		panic(err)
	}
	return v
}

// Reason returns the identifier validator's reason for a failed IRC tag, or
// the validator's own message for any other failure.
func Reason(fe validator.FieldError) string {
	if check, ok := validationTags[fe.Tag()]; ok {
		if s, ok := fe.Value().(string); ok {
			if err := check(s); err != nil {
				return err.Error()
			}
		}
	}
	return fe.Error()
}
