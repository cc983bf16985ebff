package services

import (
	"errors"
	"fmt"
)

// Catch runs fn and guarantees a single outcome: its value, or an error.
//
// A panic carrying an error is returned as that error. A panic carrying a string
// becomes an error with that message. Any other panic value becomes a generic
// failure naming the operation. An error returned by fn is wrapped with the
// operation name and stays matchable with errors.Is.
func Catch[T any](name string, fn func() (T, error)) (result T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			result = zero
			err = recoveredError(name, r)
		}
	}()
	result, err = fn()
	if err != nil {
		var zero T
		return zero, fmt.Errorf("%s returned failure: %w", name, err)
	}
	return result, nil
}

// CatchErr is Catch for operations without a result value.
func CatchErr(name string, fn func() error) error {
	_, err := Catch(name, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

func recoveredError(name string, r any) error {
	switch v := r.(type) {
	case error:
		return v
	case string:
		return errors.New(v)
	default:
		return fmt.Errorf("%s failed: %v", name, v)
	}
}
