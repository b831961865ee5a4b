package errors

import "fmt"

const (
	CodeConfigError       = "CONFIG_ERROR"
	CodeFormatError       = "FORMAT_ERROR"
	CodeEmptyTrack        = "EMPTY_TRACK"
	CodeInvalidCoordinate = "INVALID_COORDINATE"
	CodeAuthError         = "AUTH_ERROR"
	CodeWriteError        = "WRITE_ERROR"
)

var (
	ErrMissingAPIKey = New(
		CodeConfigError,
		"GEOAPIFY_API_KEY is not set",
	)

	ErrEmptyTrack = New(
		CodeEmptyTrack,
		"Track must contain at least 2 points",
	)

	ErrNotATrack = New(
		CodeFormatError,
		"Input is not a single line/track feature",
	)
)

// NewConfigError создает ошибку конфигурации с пояснением
func NewConfigError(reason string) *AppError {
	return New(CodeConfigError, reason)
}

// NewFormatError создает ошибку разбора входного файла
func NewFormatError(reason string) *AppError {
	return New(CodeFormatError, reason)
}

// NewInvalidCoordinate создает ошибку валидации координат с индексом точки
func NewInvalidCoordinate(index int, lat, lon float64) *AppError {
	return New(
		CodeInvalidCoordinate,
		fmt.Sprintf("Point %d has coordinates out of range: lat=%f lon=%f", index, lat, lon),
	).WithDetails(map[string]interface{}{
		"index": index,
		"lat":   lat,
		"lon":   lon,
	})
}

// NewAuthError создает ошибку аутентификации внешнего API
func NewAuthError(statusCode int, body string) *AppError {
	return New(
		CodeAuthError,
		fmt.Sprintf("Snapping service rejected credentials (HTTP %d)", statusCode),
	).WithDetails(map[string]interface{}{
		"status_code": statusCode,
		"body":        body,
	})
}

// NewWriteError создает ошибку записи выходного файла
func NewWriteError(path string, err error) *AppError {
	return New(
		CodeWriteError,
		fmt.Sprintf("Failed to write output file %s: %v", path, err),
	).WithDetails(map[string]interface{}{
		"path": path,
	})
}
