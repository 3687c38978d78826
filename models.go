package kraconnect

import (
	"encoding/json"
	"strings"
	"time"
)

// TaxpayerStatus is the registration status of a taxpayer.
type TaxpayerStatus string

const (
	TaxpayerActive    TaxpayerStatus = "active"
	TaxpayerInactive  TaxpayerStatus = "inactive"
	TaxpayerSuspended TaxpayerStatus = "suspended"
	TaxpayerDormant   TaxpayerStatus = "dormant"
)

// ObligationStatus is the compliance status of a tax obligation.
type ObligationStatus string

const (
	ObligationCompliant    ObligationStatus = "compliant"
	ObligationNonCompliant ObligationStatus = "non_compliant"
	ObligationPending      ObligationStatus = "pending"
	ObligationOverdue      ObligationStatus = "overdue"
)

// Date is a calendar date encoded as YYYY-MM-DD. Full RFC 3339 timestamps
// are accepted on input.
type Date struct {
	time.Time
}

const dateLayout = "2006-01-02"

func (d *Date) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		d.Time = time.Time{}
		return nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		t, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return err
		}
	}
	d.Time = t
	return nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.Format(dateLayout))
}

// PINVerification is the answer to a PIN verification.
type PINVerification struct {
	PINNumber        string         `json:"pin_number"`
	IsValid          bool           `json:"is_valid"`
	TaxpayerName     string         `json:"taxpayer_name,omitempty"`
	Status           TaxpayerStatus `json:"status,omitempty"`
	RegistrationDate *Date          `json:"registration_date,omitempty"`
	BusinessType     string         `json:"business_type,omitempty"`
	PostalAddress    string         `json:"postal_address,omitempty"`
	PhysicalAddress  string         `json:"physical_address,omitempty"`
	Email            string         `json:"email,omitempty"`
	PhoneNumber      string         `json:"phone_number,omitempty"`
	ErrorMessage     string         `json:"error_message,omitempty"`
}

// IsActive reports whether the PIN is valid and the taxpayer active.
func (p PINVerification) IsActive() bool {
	return p.IsValid && p.Status == TaxpayerActive
}

// TCCVerification is the answer to a tax compliance certificate check.
type TCCVerification struct {
	TCCNumber       string `json:"tcc_number"`
	IsValid         bool   `json:"is_valid"`
	PINNumber       string `json:"pin_number,omitempty"`
	TaxpayerName    string `json:"taxpayer_name,omitempty"`
	IssueDate       *Date  `json:"issue_date,omitempty"`
	ExpiryDate      *Date  `json:"expiry_date,omitempty"`
	CertificateType string `json:"certificate_type,omitempty"`
	Status          string `json:"status,omitempty"`
	ErrorMessage    string `json:"error_message,omitempty"`
}

// IsExpired reports whether the certificate's expiry date is before today.
// A certificate without an expiry date is not expired.
func (t TCCVerification) IsExpired() bool {
	return t.isExpiredAt(time.Now())
}

func (t TCCVerification) isExpiredAt(now time.Time) bool {
	if t.ExpiryDate == nil || t.ExpiryDate.IsZero() {
		return false
	}
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	ey, em, ed := t.ExpiryDate.Date()
	return time.Date(ey, em, ed, 0, 0, 0, 0, time.UTC).Before(today)
}

// EslipValidationResult is the answer to an electronic payment slip check.
type EslipValidationResult struct {
	SlipNumber       string  `json:"slip_number"`
	IsValid          bool    `json:"is_valid"`
	PINNumber        string  `json:"pin_number,omitempty"`
	Amount           float64 `json:"amount,omitempty"`
	PaymentDate      *Date   `json:"payment_date,omitempty"`
	PaymentReference string  `json:"payment_reference,omitempty"`
	ObligationType   string  `json:"obligation_type,omitempty"`
	TaxPeriod        string  `json:"tax_period,omitempty"`
	Status           string  `json:"status,omitempty"`
	ErrorMessage     string  `json:"error_message,omitempty"`
}

// NilReturn is the outcome of a NIL return filing.
type NilReturn struct {
	PINNumber              string     `json:"pin_number"`
	Period                 string     `json:"period"`
	ObligationID           string     `json:"obligation_id"`
	SubmissionReference    string     `json:"submission_reference,omitempty"`
	SubmissionDate         *time.Time `json:"submission_date,omitempty"`
	IsSuccessful           bool       `json:"is_successful"`
	AcknowledgementReceipt string     `json:"acknowledgement_receipt,omitempty"`
	ErrorMessage           string     `json:"error_message,omitempty"`
}

// TaxObligation is one registered obligation of a taxpayer.
type TaxObligation struct {
	ObligationID   string           `json:"obligation_id"`
	ObligationType string           `json:"obligation_type"`
	Description    string           `json:"description"`
	Frequency      string           `json:"frequency"`
	Status         ObligationStatus `json:"status"`
	DueDate        *Date            `json:"due_date,omitempty"`
	LastFiled      *Date            `json:"last_filed,omitempty"`
}

// TaxpayerDetails is the full taxpayer record.
type TaxpayerDetails struct {
	PINNumber        string           `json:"pin_number"`
	TaxpayerName     string           `json:"taxpayer_name"`
	BusinessName     string           `json:"business_name,omitempty"`
	RegistrationDate *Date            `json:"registration_date,omitempty"`
	Status           TaxpayerStatus   `json:"status"`
	BusinessType     string           `json:"business_type,omitempty"`
	PostalAddress    string           `json:"postal_address,omitempty"`
	PhysicalAddress  string           `json:"physical_address,omitempty"`
	Email            string           `json:"email,omitempty"`
	PhoneNumber      string           `json:"phone_number,omitempty"`
	TaxObligations   []TaxObligation  `json:"tax_obligations,omitempty"`
	ComplianceStatus ObligationStatus `json:"compliance_status,omitempty"`
	TCCStatus        string           `json:"tcc_status,omitempty"`
}

// Obligation returns the obligation with the given id.
func (t TaxpayerDetails) Obligation(id string) (TaxObligation, bool) {
	for _, o := range t.TaxObligations {
		if o.ObligationID == id {
			return o, true
		}
	}
	return TaxObligation{}, false
}
