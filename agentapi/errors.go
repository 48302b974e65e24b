// Copyright 2026 The Agentdeck Authors
// SPDX-License-Identifier: Apache-2.0

package agentapi

import (
	"errors"
	"fmt"
)

// ServerError is a structured error response from the agent server.
// Callers can use errors.As to extract the structured information:
//
//	var serverErr *agentapi.ServerError
//	if errors.As(err, &serverErr) {
//	    if serverErr.Code == agentapi.ErrCodeSessionNotFound { ... }
//	}
type ServerError struct {
	// Code is the server's error code (e.g. "session_not_found").
	Code string `json:"code"`
	// Message is the human-readable description from the server.
	Message string `json:"message"`
	// StatusCode is the HTTP status of the response.
	StatusCode int `json:"-"`
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("agentapi: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// Error codes the agent server returns.
const (
	ErrCodeSessionNotFound    = "session_not_found"
	ErrCodeMessageNotFound    = "message_not_found"
	ErrCodePermissionNotFound = "permission_not_found"
	ErrCodeDirectoryUnknown   = "directory_unknown"
	ErrCodeSessionBusy        = "session_busy"
	ErrCodeInvalidRequest     = "invalid_request"
	ErrCodeInternal           = "internal"
)

// IsServerError checks whether err is a *ServerError with the given code.
func IsServerError(err error, code string) bool {
	var serverErr *ServerError
	if errors.As(err, &serverErr) {
		return serverErr.Code == code
	}
	return false
}
