// Package sqlcheck screens generated SQL and user-supplied parameter values
// before execution: injection detection on parameters, single-statement
// normalization and a read-only statement guard.
package sqlcheck

import (
	"errors"
	"fmt"
	"strings"

	libinjection "github.com/corazawaf/libinjection-go"
)

var (
	// ErrMultipleStatements indicates the query contains more than one SQL
	// statement.
	ErrMultipleStatements = errors.New("multiple SQL statements not allowed; only single statements are permitted")

	// ErrNotReadOnly indicates the statement is not a plain SELECT or CTE.
	ErrNotReadOnly = errors.New("only read-only SELECT statements are permitted")
)

// InjectionCheckResult describes an injection pattern found in a parameter.
type InjectionCheckResult struct {
	IsSQLi      bool
	Fingerprint string
	ParamName   string
	ParamValue  any
}

// CheckParameterForInjection runs libinjection over a parameter value. Only
// string values are checked; other types cannot carry injection patterns.
// Returns nil when the value is clean.
func CheckParameterForInjection(paramName string, value any) *InjectionCheckResult {
	strValue, ok := value.(string)
	if !ok {
		return nil
	}

	isSQLi, fingerprint := libinjection.IsSQLi(strValue)
	if isSQLi {
		return &InjectionCheckResult{
			IsSQLi:      true,
			Fingerprint: string(fingerprint),
			ParamName:   paramName,
			ParamValue:  value,
		}
	}
	return nil
}

// CheckAllParameters screens every parameter value. Returns one result per
// flagged parameter; empty when all are clean.
func CheckAllParameters(params map[string]any) []*InjectionCheckResult {
	var results []*InjectionCheckResult
	for name, value := range params {
		if result := CheckParameterForInjection(name, value); result != nil {
			results = append(results, result)
		}
	}
	return results
}

// ValidationResult contains the normalized SQL or the rejection reason.
type ValidationResult struct {
	NormalizedSQL string
	Error         error
}

// ValidateReadOnly normalizes a generated statement and enforces the
// execution policy: single statement, read-only.
func ValidateReadOnly(sqlQuery string) ValidationResult {
	sqlQuery = strings.TrimSpace(sqlQuery)
	if sqlQuery == "" {
		return ValidationResult{}
	}

	normalized := stripTrailingSemicolon(sqlQuery)

	if hasSemicolonOutsideStrings(normalized) {
		return ValidationResult{Error: ErrMultipleStatements}
	}
	if err := checkReadOnly(normalized); err != nil {
		return ValidationResult{Error: err}
	}
	return ValidationResult{NormalizedSQL: normalized}
}

// checkReadOnly accepts statements starting with SELECT or WITH and rejects
// write keywords appearing at statement level.
func checkReadOnly(sqlQuery string) error {
	upper := strings.ToUpper(strings.TrimSpace(sqlQuery))
	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		return fmt.Errorf("%w: statement starts with %q", ErrNotReadOnly, firstWord(upper))
	}

	// INTO inside a SELECT writes a new table on SQL Server.
	writeKeywords := []string{" INSERT ", " UPDATE ", " DELETE ", " DROP ", " ALTER ", " TRUNCATE ", " CREATE ", " MERGE ", " INTO "}
	padded := " " + collapseOutsideStrings(upper) + " "
	for _, kw := range writeKeywords {
		if strings.Contains(padded, kw) {
			return fmt.Errorf("%w: contains %s", ErrNotReadOnly, strings.TrimSpace(kw))
		}
	}
	return nil
}

func firstWord(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func stripTrailingSemicolon(sqlQuery string) string {
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(sqlQuery), ";"))
}

// collapseOutsideStrings blanks out string literals so keyword scanning
// cannot be fooled by quoted values.
func collapseOutsideStrings(sqlQuery string) string {
	var b strings.Builder
	inSingle := false
	inDouble := false
	for _, char := range sqlQuery {
		switch {
		case inSingle:
			if char == '\'' {
				inSingle = false
			}
			b.WriteRune(' ')
		case inDouble:
			if char == '"' {
				inDouble = false
			}
			b.WriteRune(' ')
		case char == '\'':
			inSingle = true
			b.WriteRune(' ')
		case char == '"':
			inDouble = true
			b.WriteRune(' ')
		default:
			b.WriteRune(char)
		}
	}
	return b.String()
}

// hasSemicolonOutsideStrings reports any semicolon outside string literals.
// The trailing semicolon has already been stripped, so any hit means a
// second statement.
func hasSemicolonOutsideStrings(sqlQuery string) bool {
	return strings.ContainsRune(collapseOutsideStrings(sqlQuery), ';')
}
