package dto

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var patterns = map[string]*regexp.Regexp{
	"course":    regexp.MustCompile(`^\w+\.\w+$`),
	"slug":      regexp.MustCompile(`^[\w-]+$`),
	"filename":  regexp.MustCompile(`^\w[\w.-]*$`),
	"signature": regexp.MustCompile(`^[0-9a-f]{16}$`),
	"usertoken": regexp.MustCompile(`^\w[\w.-]*:\d+:[0-9a-f]{32}$`),
	"username":  regexp.MustCompile(`^\w[\w.-]*$`),
}

var (
	registerOnce sync.Once
	registerErr  error
)

// RegisterValidators adds the path segment rules used by the uri structs to
// gin's validator. Safe to call more than once.
func RegisterValidators() error {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			registerErr = fmt.Errorf("unexpected validator engine %T", binding.Validator.Engine())
			return
		}
		registerErr = Register(v)
	})
	return registerErr
}

// Register adds the path segment rules to v.
func Register(v *validator.Validate) error {
	for tag, re := range patterns {
		re := re
		if err := v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
			return re.MatchString(fl.Field().String())
		}); err != nil {
			return fmt.Errorf("register %s validator: %w", tag, err)
		}
	}
	return nil
}
