package protocol

// Error is both a Go error and the error frame sent to a client.
type Error struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string { return e.Code + ": " + e.Message }

func NewError(code, message string) *Error {
	return &Error{Type: TypeError, Code: code, Message: message}
}

func BadPayload(message string) *Error { return NewError(CodeBadPayload, message) }
