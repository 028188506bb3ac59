package api

import (
	"errors"
	"fmt"
)

var ErrInvalidQuery = errors.New("invalid_query")

// queryError reports a malformed query parameter.
type queryError struct {
	param string
	want  string
	got   string
}

func (e queryError) Error() string {
	return fmt.Sprintf("%s: expected %s, got %q", e.param, e.want, e.got)
}

func (e queryError) Unwrap() error {
	return ErrInvalidQuery
}

// paramOf returns the offending query parameter of err, if it names one.
func paramOf(err error) string {
	var qe queryError
	if errors.As(err, &qe) {
		return qe.param
	}
	return ""
}
