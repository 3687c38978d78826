package kraconnect

import "context"

// VerifyPIN checks that a KRA PIN exists and reports the taxpayer behind it.
func (c *Client) VerifyPIN(ctx context.Context, pin string) Result[PINVerification] {
	return Decode[PINVerification](c.Do(ctx, NewPINVerification(pin)))
}

// VerifyTCC checks a tax compliance certificate.
func (c *Client) VerifyTCC(ctx context.Context, tcc string) Result[TCCVerification] {
	return Decode[TCCVerification](c.Do(ctx, NewTCCVerification(tcc)))
}

// ValidateEslip checks an electronic payment slip.
func (c *Client) ValidateEslip(ctx context.Context, slipNumber string) Result[EslipValidationResult] {
	return Decode[EslipValidationResult](c.Do(ctx, NewEslipValidation(slipNumber)))
}

// FileNilReturn files a NIL return for period (YYYYMM) under an obligation.
func (c *Client) FileNilReturn(ctx context.Context, pin, period, obligationID string) Result[NilReturn] {
	return Decode[NilReturn](c.Do(ctx, NewNilReturnFiling(pin, period, obligationID)))
}

// GetTaxpayerDetails fetches the full taxpayer record for pin.
func (c *Client) GetTaxpayerDetails(ctx context.Context, pin string) Result[TaxpayerDetails] {
	return Decode[TaxpayerDetails](c.Do(ctx, NewTaxpayerDetails(pin)))
}

// VerifyPINsBatch verifies pins concurrently; results follow input order.
func (c *Client) VerifyPINsBatch(ctx context.Context, pins []string) []Result[PINVerification] {
	ops := make([]Operation, len(pins))
	for i, pin := range pins {
		ops[i] = NewPINVerification(pin)
	}
	return decodeBatch[PINVerification](c.ExecuteBatch(ctx, ops))
}

// VerifyTCCsBatch verifies certificates concurrently; results follow input order.
func (c *Client) VerifyTCCsBatch(ctx context.Context, tccs []string) []Result[TCCVerification] {
	ops := make([]Operation, len(tccs))
	for i, tcc := range tccs {
		ops[i] = NewTCCVerification(tcc)
	}
	return decodeBatch[TCCVerification](c.ExecuteBatch(ctx, ops))
}

func decodeBatch[T any](batch BatchResult) []Result[T] {
	out := make([]Result[T], len(batch))
	for i, r := range batch {
		out[i] = Decode[T](r)
	}
	return out
}
