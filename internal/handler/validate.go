package handler

import (
	"errors"
	"regexp"

	"github.com/dialhaus/realtime-gateway/internal/ierr"
)

type IdValidator struct {
	idRegex *regexp.Regexp
}

func NewIdValidator() *IdValidator {
	return &IdValidator{
		idRegex: regexp.MustCompile(`^[\w-]+$`),
	}
}

func (v *IdValidator) Validate(field string, id string) error {
	if !v.idRegex.MatchString(id) {
		return ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("invalid "+field))
	}

	return nil
}
