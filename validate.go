package kraconnect

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	pinPattern    = regexp.MustCompile(`^P\d{9}[A-Z]$`)
	tccPattern    = regexp.MustCompile(`^TCC\d+$`)
	periodPattern = regexp.MustCompile(`^\d{6}$`)
)

// Validate checks op's parameters before any network call is made.
func Validate(op Operation) *Error {
	switch op.Kind() {
	case PinVerification, TaxpayerDetailsLookup:
		return ValidatePIN(op.Param(ParamPIN))
	case TccVerification:
		return ValidateTCC(op.Param(ParamTCC))
	case EslipValidation:
		return ValidateEslipNumber(op.Param(ParamSlipNumber))
	case NilReturnFiling:
		if err := ValidatePIN(op.Param(ParamPIN)); err != nil {
			return err
		}
		if err := ValidatePeriod(op.Param(ParamPeriod)); err != nil {
			return err
		}
		return ValidateObligationID(op.Param(ParamObligationID))
	default:
		return NewValidationError("kind", "unsupported operation kind")
	}
}

// ValidatePIN accepts P followed by 9 digits and a letter, e.g. P051234567A.
func ValidatePIN(pin string) *Error {
	if pin == "" {
		return NewValidationError(ParamPIN, "PIN number is required")
	}
	if !pinPattern.MatchString(pin) {
		return NewValidationError(ParamPIN, "expected P followed by 9 digits and a letter (e.g. P051234567A)")
	}
	return nil
}

// ValidateTCC accepts TCC followed by digits.
func ValidateTCC(tcc string) *Error {
	if tcc == "" {
		return NewValidationError(ParamTCC, "TCC number is required")
	}
	if !tccPattern.MatchString(tcc) {
		return NewValidationError(ParamTCC, "expected TCC followed by digits")
	}
	return nil
}

// ValidatePeriod accepts YYYYMM with a year in 2000..2100.
func ValidatePeriod(period string) *Error {
	if period == "" {
		return NewValidationError(ParamPeriod, "period is required")
	}
	if !periodPattern.MatchString(period) {
		return NewValidationError(ParamPeriod, "period must be in YYYYMM format (e.g. 202401)")
	}
	year, _ := strconv.Atoi(period[:4])
	month, _ := strconv.Atoi(period[4:])
	if year < 2000 || year > 2100 {
		return NewValidationError(ParamPeriod, "year must be between 2000 and 2100")
	}
	if month < 1 || month > 12 {
		return NewValidationError(ParamPeriod, "month must be between 01 and 12")
	}
	return nil
}

func ValidateObligationID(id string) *Error {
	if id == "" {
		return NewValidationError(ParamObligationID, "obligation ID is required")
	}
	if len(id) < 3 {
		return NewValidationError(ParamObligationID, "obligation ID must be at least 3 characters")
	}
	return nil
}

func ValidateEslipNumber(slip string) *Error {
	if slip == "" {
		return NewValidationError(ParamSlipNumber, "e-slip number is required")
	}
	if len(slip) < 5 {
		return NewValidationError(ParamSlipNumber, "e-slip number must be at least 5 characters")
	}
	return nil
}

// MaskPIN hides the middle of a PIN for logging: P051234567A -> P05******7A.
func MaskPIN(pin string) string {
	if len(pin) < 5 {
		return "***"
	}
	return pin[:3] + strings.Repeat("*", len(pin)-5) + pin[len(pin)-2:]
}
