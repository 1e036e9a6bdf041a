// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package errors defines the CLI's user-facing error shape: a short
// title, a detail line explaining what went wrong, and a suggestion for
// what to do about it, plus FatalError to print one and exit.
package errors

import (
	"encoding/json"
	"fmt"
	"os"
)

// Category classifies a UserError for callers that branch on it (exit
// code selection, retry logic).
type Category string

const (
	CategoryConfig     Category = "config"
	CategoryInternal   Category = "internal"
	CategoryPermission Category = "permission"
	CategoryDatabase   Category = "database"
	CategoryNetwork    Category = "network"
	CategoryInput      Category = "input"
)

// UserError is an error with enough structure to print a helpful message
// instead of a bare Go error string.
type UserError struct {
	Category   Category
	Title      string
	Detail     string
	Suggestion string
	Cause      error
}

func (e *UserError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Title, e.Detail, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Title, e.Detail)
}

func (e *UserError) Unwrap() error {
	return e.Cause
}

func newError(cat Category, title, detail, suggestion string, cause error) *UserError {
	return &UserError{Category: cat, Title: title, Detail: detail, Suggestion: suggestion, Cause: cause}
}

// NewConfigError reports a problem loading or validating project/global
// configuration.
func NewConfigError(title, detail, suggestion string, cause error) error {
	return newError(CategoryConfig, title, detail, suggestion, cause)
}

// NewInternalError reports a condition that should never happen absent a
// bug: encoding failures, invariant violations, unreachable branches.
func NewInternalError(title, detail, suggestion string, cause error) error {
	return newError(CategoryInternal, title, detail, suggestion, cause)
}

// NewPermissionError reports a filesystem permission failure.
func NewPermissionError(title, detail, suggestion string, cause error) error {
	return newError(CategoryPermission, title, detail, suggestion, cause)
}

// NewDatabaseError reports a failure in the local SQLite or vector store.
func NewDatabaseError(title, detail, suggestion string, cause error) error {
	return newError(CategoryDatabase, title, detail, suggestion, cause)
}

// NewNetworkError reports a failure reaching the reconciler server.
func NewNetworkError(title, detail, suggestion string, cause error) error {
	return newError(CategoryNetwork, title, detail, suggestion, cause)
}

// NewInputError reports invalid user-supplied input (flags, paths). Input
// errors are always the user's own mistake, so there is no cause to wrap.
func NewInputError(title, detail, suggestion string) error {
	return newError(CategoryInput, title, detail, suggestion, nil)
}

type jsonError struct {
	Error      string `json:"error"`
	Title      string `json:"title"`
	Detail     string `json:"detail"`
	Suggestion string `json:"suggestion,omitempty"`
}

// FatalError prints err to stderr (as JSON when jsonMode is set) and
// exits the process with status 1. Non-UserError values are printed as a
// plain message with no suggestion.
func FatalError(err error, jsonMode bool) {
	ue, ok := err.(*UserError)
	if !ok {
		ue = &UserError{Category: CategoryInternal, Title: "Error", Detail: err.Error()}
	}

	if jsonMode {
		_ = json.NewEncoder(os.Stderr).Encode(jsonError{
			Error:      string(ue.Category),
			Title:      ue.Title,
			Detail:     ue.Detail,
			Suggestion: ue.Suggestion,
		})
	} else {
		fmt.Fprintf(os.Stderr, "✗ %s\n", ue.Title)
		fmt.Fprintf(os.Stderr, "  %s\n", ue.Detail)
		if ue.Suggestion != "" {
			fmt.Fprintf(os.Stderr, "  → %s\n", ue.Suggestion)
		}
	}
	os.Exit(1)
}
