// Package baseerror provides errors that form a hierarchy, so that a specific
// error can be matched against its more general parent with errors.Is.
package baseerror

type Error struct {
	parent error
	msg    string
}

// New creates a root error.
func New(msg string) *Error {
	return &Error{msg: msg}
}

// New creates a child error. errors.Is(child, err) holds for the result.
func (err *Error) New(msg string) *Error {
	return &Error{
		parent: err,
		msg:    msg,
	}
}

func (err *Error) Error() string {
	if err.parent != nil {
		return err.parent.Error() + ": " + err.msg
	}

	return err.msg
}

func (err *Error) Unwrap() error {
	return err.parent
}
