package db

import (
	"fmt"
	"strings"
)

const (
	defaultStatementTimeoutMs = 60000
	applicationName           = "seo-parser"
)

// AugmentDSNWithTimeout adds statement_timeout and application_name to a DSN
// unless they are already present. Supports both URL format (postgresql://...)
// and key=value format.
func AugmentDSNWithTimeout(dsn string, timeoutMs int) string {
	if dsn == "" {
		return dsn
	}
	if timeoutMs <= 0 {
		timeoutMs = defaultStatementTimeoutMs
	}

	var params []string
	if !strings.Contains(dsn, "statement_timeout") {
		params = append(params, fmt.Sprintf("statement_timeout=%d", timeoutMs))
	}
	if !strings.Contains(dsn, "application_name") {
		params = append(params, "application_name="+applicationName)
	}
	if len(params) == 0 {
		return dsn
	}

	if strings.HasPrefix(dsn, "postgresql://") || strings.HasPrefix(dsn, "postgres://") {
		separator := "?"
		if strings.Contains(dsn, "?") {
			separator = "&"
		}
		return dsn + separator + strings.Join(params, "&")
	}

	return dsn + " " + strings.Join(params, " ")
}
