package httpserver

const (
	ErrInvalidJSON = "invalid json"
	ErrDependency  = "dependency error"
	ErrNotFound    = "not found"
)
