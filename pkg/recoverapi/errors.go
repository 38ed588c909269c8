package recoverapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrConnectivity means no response arrived from the backend (dial failure,
	// reset, or request timeout).
	ErrConnectivity = errors.New("cannot connect to server")
	// ErrUnauthorized matches any *APIError with status 401.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrEmptyResponse means a successful envelope carried no usable data.
	ErrEmptyResponse = errors.New("empty response from server")
)

// ConnectivityMessage 无法连接后端时展示给用户的提示
const ConnectivityMessage = "Cannot connect to server. Is the backend running?"

// APIError 后端返回的错误（非 2xx 或 success=false）
type APIError struct {
	Status  int
	Method  string
	Path    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error [%d] %s %s: %s", e.Status, e.Method, e.Path, e.Message)
}

// Is lets errors.Is(err, ErrUnauthorized) match 401 responses.
func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && e.Status == http.StatusUnauthorized
}

// UserMessage 将错误转换为可直接展示的提示；后端消息原样透出
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr.Message
	case errors.Is(err, ErrConnectivity):
		return ConnectivityMessage
	case errors.Is(err, context.Canceled):
		return "Request cancelled"
	}
	return err.Error()
}
