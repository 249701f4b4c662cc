package solar

import (
	"errors"
	"fmt"
)

var (
	ErrMissingDiscordToken  = errors.New("discord token not set")
	ErrMissingCredentials   = errors.New("service account credentials file not found")
	ErrSpreadsheetNotFound  = errors.New("spreadsheet not found")
	ErrUnknownStore         = errors.New("unknown attendance store")
	ErrUnknownLLMProvider   = errors.New("unknown llm provider")
	ErrEmptyCompletion      = errors.New("no completion choices returned")
	ErrUnsupportedPlanWrite = errors.New("write plan has no target row")
)

// StoreError is returned when reading or writing the attendance table fails.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("attendance store %s: %s", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// CompletionError is returned when a chat completion request fails.
type CompletionError struct {
	Provider string
	Err      error
}

func (e *CompletionError) Error() string {
	return fmt.Sprintf("%s completion: %s", e.Provider, e.Err)
}

func (e *CompletionError) Unwrap() error {
	return e.Err
}

// StartupError is a fatal error encountered before the bot starts
// accepting commands.
type StartupError struct {
	Component string
	Err       error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("error starting %s: %s", e.Component, e.Err)
}

func (e *StartupError) Unwrap() error {
	return e.Err
}
