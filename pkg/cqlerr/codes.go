// Package cqlerr decodes CQL server error bodies (§6, §7 of the spec) the
// way franz-go's kerr package turns a Kafka error code into a typed Go
// error: one package-level map from wire code to a constructor, one
// exported type per error family, and ErrorForCode doing the lookup.
package cqlerr

// Code is a CQL protocol error code (§6).
type Code int32

const (
	CodeServerError     Code = 0x0000
	CodeProtocolError   Code = 0x000A
	CodeBadCredentials  Code = 0x0100
	CodeUnavailable     Code = 0x1000
	CodeOverloaded      Code = 0x1001
	CodeIsBootstrapping Code = 0x1002
	CodeTruncateError   Code = 0x1003
	CodeWriteTimeout     Code = 0x1100
	CodeReadTimeout      Code = 0x1200
	CodeReadFailure      Code = 0x1300
	CodeFunctionFailure  Code = 0x1400
	CodeWriteFailure     Code = 0x1500
	CodeSyntaxError      Code = 0x2000
	CodeUnauthorized     Code = 0x2100
	CodeInvalid          Code = 0x2200
	CodeConfigError      Code = 0x2300
	CodeAlreadyExists    Code = 0x2400
	CodeUnprepared       Code = 0x2500
)

var codeNames = map[Code]string{
	CodeServerError:      "Server error",
	CodeProtocolError:    "Protocol error",
	CodeBadCredentials:   "Bad credentials",
	CodeUnavailable:      "Unavailable exception",
	CodeOverloaded:       "Overloaded",
	CodeIsBootstrapping:  "Is bootstrapping",
	CodeTruncateError:    "Truncate error",
	CodeWriteTimeout:     "Write timeout",
	CodeReadTimeout:      "Read timeout",
	CodeReadFailure:      "Read failure",
	CodeFunctionFailure:  "Function failure",
	CodeWriteFailure:     "Write failure",
	CodeSyntaxError:      "Syntax error",
	CodeUnauthorized:     "Unauthorized",
	CodeInvalid:          "Invalid query",
	CodeConfigError:      "Config error",
	CodeAlreadyExists:    "Already exists",
	CodeUnprepared:       "Unprepared",
}

// Name returns the fixed human-readable template for a code, per spec.md
// §4.1's "derived human-readable message is filled in by a fixed template
// per code".
func (c Code) Name() string {
	if n, ok := codeNames[c]; ok {
		return n
	}
	return "Unknown error"
}
