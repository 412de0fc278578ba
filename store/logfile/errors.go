package logfile

import (
	"errors"
	"fmt"
)

// BadRequestError indicates that the value provided was not writable to the log
type BadRequestError struct {
	reason string
}

func NewBadRequestError(reason string) error {
	return &BadRequestError{reason}
}

func (b *BadRequestError) Error() string {
	return fmt.Sprintf("invalid write request (reason: %v)", b.reason)
}

func IsBadRequestError(err error) bool {
	var e *BadRequestError
	return errors.As(err, &e)
}
