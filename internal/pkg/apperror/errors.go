package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	ErrCodeNotFound          ErrorCode = "NOT_FOUND"
	ErrCodeUnauthorized      ErrorCode = "UNAUTHORIZED"
	ErrCodeBadRequest        ErrorCode = "BAD_REQUEST"
	ErrCodeInternal          ErrorCode = "INTERNAL_ERROR"
	ErrCodeValidation        ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidCriteria   ErrorCode = "INVALID_CRITERIA"
	ErrCodeSubscription      ErrorCode = "SUBSCRIPTION_ERROR"
	ErrCodeSnapshotTimeout   ErrorCode = "SNAPSHOT_TIMEOUT"
	ErrCodeSourceUnavailable ErrorCode = "SOURCE_UNAVAILABLE"
)

type AppError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Cause      error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is сравнивает ошибки приложения по коду и сообщению.
func (e *AppError) Is(target error) bool {
	var other *AppError
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code && e.Message == other.Message
}

func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
	}
}

func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
		Cause:      err,
	}
}

func codeToHTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeBadRequest, ErrCodeValidation, ErrCodeInvalidCriteria:
		return http.StatusBadRequest
	case ErrCodeSubscription, ErrCodeSourceUnavailable:
		return http.StatusServiceUnavailable
	case ErrCodeSnapshotTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// CodeOf возвращает код ошибки приложения или ErrCodeInternal.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

func IsNotFound(err error) bool {
	return CodeOf(err) == ErrCodeNotFound
}

func IsValidation(err error) bool {
	code := CodeOf(err)
	return code == ErrCodeValidation || code == ErrCodeInvalidCriteria
}

func IsSubscription(err error) bool {
	return CodeOf(err) == ErrCodeSubscription
}

var (
	ErrCampusRequired   = New(ErrCodeValidation, "не указан кампус")
	ErrInvalidViewScope = New(ErrCodeInvalidCriteria, "неизвестная область просмотра")
	ErrActorRequired    = New(ErrCodeUnauthorized, "для просмотра своих жалоб требуется авторизация")
	ErrInvalidPageSize  = New(ErrCodeInvalidCriteria, "размер страницы должен быть больше нуля")
	ErrSnapshotTimeout  = New(ErrCodeSnapshotTimeout, "данные кампуса не получены вовремя")
	ErrBeaconUnknown    = New(ErrCodeNotFound, "маячок не сопоставлен ни одной зоне")
	ErrUnauthorized     = New(ErrCodeUnauthorized, "требуется авторизация")
	ErrSourceClosed     = New(ErrCodeSourceUnavailable, "источник жалоб остановлен")
)
