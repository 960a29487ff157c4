package config

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/G-Research/cliffbench/internal/common/bencherrors"
)

var validate = validator.New()

// Validate checks the validate tags of cfg, returning every violation at once.
func Validate(cfg interface{}) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return errors.WithStack(err)
	}
	var result *multierror.Error
	for _, fieldErr := range fieldErrors {
		result = multierror.Append(result, errors.WithStack(&bencherrors.ErrInvalidArgument{
			Name:    stripPrefix(fieldErr.Namespace()),
			Value:   fieldErr.Value(),
			Message: describe(fieldErr),
		}))
	}
	return result.ErrorOrNil()
}

func LogValidationErrors(err error) {
	var fieldErrors validator.ValidationErrors
	if errors.As(err, &fieldErrors) {
		for _, err := range fieldErrors {
			log.Errorf("ConfigError: Field %s %s", stripPrefix(err.Namespace()), describe(err))
		}
		return
	}
	var merr *multierror.Error
	if errors.As(err, &merr) {
		for _, err := range merr.Errors {
			log.Errorf("ConfigError: %s", err)
		}
	}
}

func describe(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return "is required but was not found"
	case "oneof":
		return "must be one of " + err.Param()
	default:
		if err.Param() != "" {
			return "fails " + err.Tag() + "=" + err.Param()
		}
		return "fails " + err.Tag()
	}
}

func stripPrefix(s string) string {
	if idx := strings.Index(s, "."); idx != -1 {
		return s[idx+1:]
	}
	return s
}
