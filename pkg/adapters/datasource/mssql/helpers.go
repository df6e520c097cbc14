package mssql

import (
	"fmt"
	"strings"
)

// quoteName brackets an identifier the way QUOTENAME() does, escaping ] as ]].
func quoteName(identifier string) string {
	escaped := strings.ReplaceAll(identifier, "]", "]]")
	return fmt.Sprintf("[%s]", escaped)
}

// buildFullyQualifiedName builds [schema].[table], defaulting to dbo.
func buildFullyQualifiedName(schema, table string) string {
	if schema == "" {
		schema = "dbo"
	}
	return fmt.Sprintf("%s.%s", quoteName(schema), quoteName(table))
}
