package domain

import (
	"errors"
	"fmt"
)

// Ошибки биллинга. Компоненты оборачивают их через %w, HTTP слой сопоставляет через errors.Is.
var (
	// ErrUnauthenticated нет сессии или токен невалиден
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrInvalidInput неверные входные данные
	ErrInvalidInput = errors.New("invalid input data")

	// ErrInvalidAmount сумма ниже минимально допустимой
	ErrInvalidAmount = fmt.Errorf("%w: amount is below the minimum", ErrInvalidInput)

	// ErrSignatureInvalid подпись вебхука не прошла проверку
	ErrSignatureInvalid = errors.New("webhook signature invalid")

	// ErrGatewayUnavailable платежный провайдер недоступен или отклонил запрос
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")

	// ErrStoreUnavailable ошибка хранилища
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrNotFound запись не найдена
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate нарушение уникальности
	ErrDuplicate = errors.New("duplicate record")
)

// NotFoundError представляет ошибку "не найдено"
type NotFoundError struct {
	Entity string
	Key    string
	Value  string
}

// Error реализует интерфейс error
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with %s %q not found", e.Entity, e.Key, e.Value)
}

// Is проверяет, является ли ошибка ошибкой типа "не найдено"
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NewNotFoundError создает новую ошибку "не найдено"
func NewNotFoundError(entity, key, value string) *NotFoundError {
	return &NotFoundError{Entity: entity, Key: key, Value: value}
}

// DuplicateError представляет ошибку дубликата
type DuplicateError struct {
	Entity string
	Field  string
	Value  string
}

// Error реализует интерфейс error
func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s with %s '%s' already exists", e.Entity, e.Field, e.Value)
}

// Is проверяет, является ли ошибка ошибкой дубликата
func (e *DuplicateError) Is(target error) bool {
	return target == ErrDuplicate
}

// NewDuplicateError создает новую ошибку дубликата
func NewDuplicateError(entity, field, value string) *DuplicateError {
	return &DuplicateError{Entity: entity, Field: field, Value: value}
}

// StoreError оборачивает ошибку драйвера хранилища.
// errors.Is(err, ErrStoreUnavailable) == true, исходная ошибка доступна через Unwrap.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func (e *StoreError) Is(target error) bool {
	return target == ErrStoreUnavailable
}

// NewStoreError создает StoreError для операции op.
func NewStoreError(op string, err error) error {
	return &StoreError{Op: op, Err: err}
}

// GatewayError - ошибка обращения к платежному провайдеру
type GatewayError struct {
	Operation string
	Err       error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway: %s: %v", e.Operation, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

func (e *GatewayError) Is(target error) bool {
	return target == ErrGatewayUnavailable
}

// NewGatewayError создает GatewayError для операции op.
func NewGatewayError(op string, err error) error {
	return &GatewayError{Operation: op, Err: err}
}
