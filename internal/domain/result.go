package domain

// Status tells which variant a Result holds.
type Status int

const (
	StatusLoading Status = iota
	StatusSuccess
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "loading"
	}
}

// Result is what reactive streams hand to the presentation layer, so that
// "no notes" and "failed to load notes" stay distinguishable.
type Result[T any] struct {
	Status Status
	Data   T
	Err    error
}

func Ok[T any](data T) Result[T] {
	return Result[T]{Status: StatusSuccess, Data: data}
}

func Err[T any](err error) Result[T] {
	return Result[T]{Status: StatusError, Err: err}
}

func Loading[T any]() Result[T] {
	return Result[T]{Status: StatusLoading}
}

func (r Result[T]) IsSuccess() bool { return r.Status == StatusSuccess }
func (r Result[T]) IsError() bool   { return r.Status == StatusError }
func (r Result[T]) IsLoading() bool { return r.Status == StatusLoading }

// Message returns the error text of an error result, or a generic message.
func (r Result[T]) Message() string {
	if r.Err != nil {
		return r.Err.Error()
	}
	if r.Status == StatusError {
		return "an unknown error occurred"
	}
	return ""
}
