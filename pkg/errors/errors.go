// Package errors provides common, reusable error values and the coded
// business errors surfaced to callers of the transaction engine.
package errors

import (
	"errors"
	"fmt"
)

// Stable business error codes. These are programmatic identifiers for
// callers, not end-user display strings.
const (
	CodeMontantInvalide           = "MONTANT_INVALIDE"
	CodeMontantTropEleve          = "MONTANT_TROP_ELEVE"
	CodeCompteDestinationRequis   = "COMPTE_DESTINATION_REQUIS"
	CodeCompteIntrouvable         = "COMPTE_INTROUVABLE"
	CodeCompteInactif             = "COMPTE_INACTIF"
	CodeSoldeInsuffisant          = "SOLDE_INSUFFISANT"
	CodeLimiteRetraitDepassee     = "LIMITE_RETRAIT_DEPASSEE"
	CodeLimiteTransfertDepassee   = "LIMITE_TRANSFERT_DEPASSEE"
	CodeCompteDestinationInactif  = "COMPTE_DESTINATION_INACTIF"
	CodeAutoTransfertInterdit     = "AUTO_TRANSFERT_INTERDIT"
	CodeLimiteMensuelleDepassee   = "LIMITE_MENSUELLE_DEPASSEE"
	CodeTypeTransactionInvalide   = "TYPE_TRANSACTION_INVALIDE"
	CodeReferenceDupliquee        = "REFERENCE_DUPLIQUEE"
	CodeExecutionFailed           = "EXECUTION_FAILED"
	CodeErreurTechnique           = "ERREUR_TECHNIQUE"
)

// Common errors
var (
	ErrAccountNotFound            = errors.New("account not found")
	ErrAccountAlreadyExists       = errors.New("account already exists")
	ErrInsufficientBalance        = errors.New("insufficient balance")
	ErrTransactionNotFound        = errors.New("transaction not found")
	ErrTransactionAlreadyExists   = errors.New("transaction already exists")
	ErrTransactionImmutable       = errors.New("transaction is in a terminal state")
	ErrWithdrawalLimitExceeded    = errors.New("daily withdrawal limit exceeded")
	ErrTransferLimitExceeded      = errors.New("daily transfer limit exceeded")
	ErrMonthlyLimitExceeded       = errors.New("monthly operation limit exceeded")
	ErrFeeConfigNotFound          = errors.New("fee configuration not found")
	ErrIllegalStatusTransition    = errors.New("illegal status transition")
	ErrLockTimeout                = errors.New("timed out waiting for account lock")
)

// CodedError is a business rule failure carrying a stable code and a human
// readable message. Callers branch on Code, never on Message.
type CodedError struct {
	Code    string
	Message string
	cause   error
}

func (e *CodedError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *CodedError) Unwrap() error {
	return e.cause
}

// NewCoded builds a CodedError from a code and message.
func NewCoded(code, message string) *CodedError {
	return &CodedError{Code: code, Message: message}
}

// NewCodedf builds a CodedError with a formatted message.
func NewCodedf(code, format string, args ...interface{}) *CodedError {
	return &CodedError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause attaches an underlying error for diagnostics; the cause is never
// exposed in the Message.
func (e *CodedError) WithCause(err error) *CodedError {
	e.cause = err
	return e
}

// CodeOf extracts the business code from an error, or empty when the error
// carries none.
func CodeOf(err error) string {
	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code
	}
	return ""
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
