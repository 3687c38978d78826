package kraconnect

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
)

// OperationKind identifies which remote verification an Operation performs.
type OperationKind int

const (
	PinVerification OperationKind = iota + 1
	TccVerification
	EslipValidation
	NilReturnFiling
	TaxpayerDetailsLookup
)

var operationKindNames = map[OperationKind]string{
	PinVerification:       "pin_verification",
	TccVerification:       "tcc_verification",
	EslipValidation:       "eslip_validation",
	NilReturnFiling:       "nil_return_filing",
	TaxpayerDetailsLookup: "taxpayer_details",
}

func (k OperationKind) String() string {
	if name, ok := operationKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Valid reports whether k is one of the supported kinds.
func (k OperationKind) Valid() bool {
	_, ok := operationKindNames[k]
	return ok
}

// Parameter names used by the operation constructors.
const (
	ParamPIN          = "pin"
	ParamTCC          = "tcc"
	ParamSlipNumber   = "slip_number"
	ParamPeriod       = "period"
	ParamObligationID = "obligation_id"
)

// Operation is an immutable unit of work. Its fingerprint is derived from the
// kind and parameters and doubles as the cache key.
type Operation struct {
	kind        OperationKind
	params      map[string]string
	fingerprint string
}

// NewOperation builds an Operation from a kind and a parameter set. params is copied.
func NewOperation(kind OperationKind, params map[string]string) Operation {
	copied := make(map[string]string, len(params))
	for k, v := range params {
		copied[k] = v
	}
	return Operation{
		kind:        kind,
		params:      copied,
		fingerprint: fingerprint(kind, copied),
	}
}

// NewPINVerification builds a PIN verification for pin (trimmed, upper-cased).
func NewPINVerification(pin string) Operation {
	return NewOperation(PinVerification, map[string]string{ParamPIN: normalizeID(pin)})
}

// NewTCCVerification builds a tax compliance certificate verification.
func NewTCCVerification(tcc string) Operation {
	return NewOperation(TccVerification, map[string]string{ParamTCC: normalizeID(tcc)})
}

// NewEslipValidation builds a payment e-slip validation.
func NewEslipValidation(slipNumber string) Operation {
	return NewOperation(EslipValidation, map[string]string{ParamSlipNumber: strings.TrimSpace(slipNumber)})
}

// NewNilReturnFiling builds a NIL return filing for pin, period (YYYYMM) and obligation.
func NewNilReturnFiling(pin, period, obligationID string) Operation {
	return NewOperation(NilReturnFiling, map[string]string{
		ParamPIN:          normalizeID(pin),
		ParamPeriod:       strings.TrimSpace(period),
		ParamObligationID: strings.TrimSpace(obligationID),
	})
}

// NewTaxpayerDetails builds a taxpayer details lookup.
func NewTaxpayerDetails(pin string) Operation {
	return NewOperation(TaxpayerDetailsLookup, map[string]string{ParamPIN: normalizeID(pin)})
}

func (o Operation) Kind() OperationKind { return o.kind }

func (o Operation) Fingerprint() string { return o.fingerprint }

// Param returns the named parameter, or "" when absent.
func (o Operation) Param(name string) string { return o.params[name] }

// Params returns a copy of the parameter set.
func (o Operation) Params() map[string]string {
	out := make(map[string]string, len(o.params))
	for k, v := range o.params {
		out[k] = v
	}
	return out
}

func fingerprint(kind OperationKind, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{'='})
		h.Write([]byte(params[k]))
		h.Write([]byte{'\n'})
	}
	return kind.String() + ":" + hex.EncodeToString(h.Sum(nil))
}

func normalizeID(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Result is either a success carrying Value or a failure carrying Err, never both.
type Result[T any] struct {
	Value T
	Err   *Error
}

// Success wraps v in a successful Result.
func Success[T any](v T) Result[T] { return Result[T]{Value: v} }

// Failure wraps err in a failed Result.
func Failure[T any](err *Error) Result[T] { return Result[T]{Err: err} }

// Ok reports whether the result is a success.
func (r Result[T]) Ok() bool { return r.Err == nil }

// Get returns the value and a nil error on success, or the zero value and the
// classified error on failure.
func (r Result[T]) Get() (T, error) {
	if r.Err != nil {
		var zero T
		return zero, r.Err
	}
	return r.Value, nil
}

// BatchResult holds one Result per input operation, in input order.
type BatchResult []Result[json.RawMessage]

// Failed returns the indexes of failed results.
func (b BatchResult) Failed() []int {
	var idx []int
	for i, r := range b {
		if !r.Ok() {
			idx = append(idx, i)
		}
	}
	return idx
}

// Decode unmarshals a raw successful result into T. A failed result keeps its
// error; an undecodable payload becomes a permanent ServiceError.
func Decode[T any](r Result[json.RawMessage]) Result[T] {
	if r.Err != nil {
		return Failure[T](r.Err)
	}
	var v T
	if err := json.Unmarshal(r.Value, &v); err != nil {
		e := NewServiceError(0, "malformed response payload")
		e.Cause = err
		return Failure[T](e)
	}
	return Success(v)
}
