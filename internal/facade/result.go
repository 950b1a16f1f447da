package facade

import (
	"errors"

	"ballotkey.org/internal/voting"
)

// None is the data of results that carry none.
type None struct{}

// Result is the tagged outcome of a facade call. When OK is false, Kind and
// Error describe the failure.
type Result[T any] struct {
	OK    bool
	Data  T
	Kind  voting.Kind
	Error string
}

// Ok wraps a successful value.
func Ok[T any](data T) Result[T] {
	return Result[T]{OK: true, Data: data}
}

// Err builds a failed result.
func Err[T any](kind voting.Kind, message string) Result[T] {
	return Result[T]{Kind: kind, Error: message}
}

func resultOf[T any](data T, err error) Result[T] {
	if err == nil {
		return Ok(data)
	}
	var ve *voting.Error
	if errors.As(err, &ve) {
		return Err[T](ve.Kind, ve.Message)
	}
	return Err[T](voting.KindUnknown, err.Error())
}
