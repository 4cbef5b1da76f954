package app

import (
	"fmt"
	"net/http"
)

// DomainError is an error with a fixed HTTP answer. Details, when set, is
// written to the response as-is.
type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{Status: status, Code: code, Message: message, Details: details}
}

var (
	errProfileNotFound = domainError(http.StatusNotFound, "PROFILE_NOT_FOUND", "Create your profile first", nil)
	errProfileExists   = domainError(http.StatusConflict, "PROFILE_EXISTS", "You already have a profile", nil)
	errPageNotFound    = domainError(http.StatusNotFound, "PROFILE_NOT_FOUND", "Page not found", nil)
)
