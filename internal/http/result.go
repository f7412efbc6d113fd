package httpapi

// Envelope codes understood by the viewer
const (
	ResultSuccess = 2000
	ResultError   = -1
)

const (
	typeSuccess = "success"
	typeError   = "error"
)

// Result wraps every JSON body: {"code","type","message","result"}.
// Errors carry a nil result.
type Result[T any] struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
	Result  T      `json:"result"`
}

// Ok envelope for a successful call
func Ok[T any](result T) Result[T] {
	return Result[T]{Code: ResultSuccess, Type: typeSuccess, Message: "ok", Result: result}
}

// Fail envelope carrying a client-facing message
func Fail(message string) Result[any] {
	return Result[any]{Code: ResultError, Type: typeError, Message: message}
}
