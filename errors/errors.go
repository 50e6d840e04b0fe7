// Package errors holds the errors the HTTP layer maps to status codes.
package errors

// BadRequest reports an invalid request. Details carries per-field messages, such as
// schema violations or the position of a query syntax error.
type BadRequest struct {
	Message string
	Details []string
}

func (e *BadRequest) Error() string {
	return e.Message
}

type NotFound struct {
	Message string
}

func (e *NotFound) Error() string {
	return e.Message
}

type Conflict struct {
	Message string
}

func (e *Conflict) Error() string {
	return e.Message
}

type ServiceUnavailable struct {
	Message string
}

func (e *ServiceUnavailable) Error() string {
	return e.Message
}

type Forbidden struct {
	Message string
}

func (e *Forbidden) Error() string {
	return e.Message
}

type Unauthorized struct {
	Message string
}

func (e *Unauthorized) Error() string {
	return e.Message
}
