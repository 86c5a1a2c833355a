package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies why a translation was aborted.
type Kind int

const (
	NullInput Kind = iota + 1
	AllocationFailure
	UndefinedOpcode
	UnexpectedOperandTag
	TruncatedInstruction
	UndefinedJumpTarget
	ProtectionChangeFailure
	InvariantViolation
	Unsupported
)

var kindNames = map[Kind]string{
	NullInput:               "null input",
	AllocationFailure:       "allocation failure",
	UndefinedOpcode:         "undefined opcode",
	UnexpectedOperandTag:    "unexpected operand tag",
	TruncatedInstruction:    "truncated instruction",
	UndefinedJumpTarget:     "undefined jump target",
	ProtectionChangeFailure: "protection change failure",
	InvariantViolation:      "invariant violation",
	Unsupported:             "unsupported",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// TranslationError is the single error type returned by the translator.
// IP is the source offset of the offending instruction, or -1 when the
// failure is not tied to one.
type TranslationError struct {
	Kind    Kind
	IP      int
	Message string
	Cause   error
}

func (e *TranslationError) Error() string {
	msg := e.Kind.String()
	if e.IP >= 0 {
		msg = fmt.Sprintf("%s at ip %d", msg, e.IP)
	}
	if e.Message != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *TranslationError) Unwrap() error {
	return e.Cause
}

// Errorf creates a translation error with a formatted message
func Errorf(kind Kind, ip int, format string, args ...interface{}) *TranslationError {
	return &TranslationError{
		Kind:    kind,
		IP:      ip,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error as a translation error of the given kind
func Wrap(err error, kind Kind, message string) *TranslationError {
	return &TranslationError{
		Kind:    kind,
		IP:      -1,
		Message: message,
		Cause:   err,
	}
}

// KindOf reports the kind of the first TranslationError in err's chain.
func KindOf(err error) (Kind, bool) {
	var te *TranslationError
	if stderrors.As(err, &te) {
		return te.Kind, true
	}
	return 0, false
}

// IsKind checks if err carries a translation error of the given kind
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// As is errors.As from the standard library
func As(err error, target any) bool {
	return stderrors.As(err, target)
}
