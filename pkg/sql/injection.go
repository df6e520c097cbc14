// Package sql screens free-text input for SQL injection patterns before it
// reaches the value index or a log line.
package sql

import (
	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionCheckResult contains the result of an injection check on an input value.
type InjectionCheckResult struct {
	IsSQLi      bool   // True if SQL injection pattern detected
	Fingerprint string // libinjection fingerprint of the detected pattern
	Field       string // Name of the input that failed the check
	Value       string // The value that was checked
}

// CheckInput uses libinjection to detect SQL injection patterns in value.
//
// Returns nil if no injection is detected, or an InjectionCheckResult with
// details about the detected pattern.
//
// Example:
//
//	result := CheckInput("mention", "Lloyds Banking Group")
//	// result == nil
//
//	result := CheckInput("mention", "'; DROP TABLE users--")
//	// result.IsSQLi == true
func CheckInput(field, value string) *InjectionCheckResult {
	if value == "" {
		return nil
	}

	isSQLi, fingerprint := libinjection.IsSQLi(value)
	if !isSQLi {
		return nil
	}

	return &InjectionCheckResult{
		IsSQLi:      true,
		Fingerprint: string(fingerprint),
		Field:       field,
		Value:       value,
	}
}
