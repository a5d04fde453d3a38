// Package intent turns user-supplied payment input into a validated,
// normalized PaymentIntent. All validation happens here; chain adapters
// and orchestrators downstream can assume addresses parse and amounts
// are positive base-unit integers for a supported currency.
package intent

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/go-playground/validator/v10"

	"github.com/payce-finance/payce/service/currency"
)

// ValidationError describes rejected input. It is always produced before
// any chain interaction.
type ValidationError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
	}
	return e.Message
}

// Raw is the wire-shaped input accepted from API callers and the CLI.
// Amount is a human-unit decimal string.
type Raw struct {
	PayerAddress     string         `json:"payer_address" validate:"required"`
	RecipientAddress string         `json:"recipient_address" validate:"required"`
	Amount           string         `json:"amount" validate:"required"`
	Currency         string         `json:"currency" validate:"required"`
	Network          string         `json:"network" validate:"required"`
	Reason           string         `json:"reason,omitempty"`
	DueDate          string         `json:"due_date,omitempty"`
	ContentData      map[string]any `json:"content_data,omitempty"`
}

// RawRecipient is one line of a batch request.
type RawRecipient struct {
	Address       string `json:"address" validate:"required"`
	Amount        string `json:"amount" validate:"required"`
	Reason        string `json:"reason,omitempty"`
	RecipientName string `json:"recipient_name,omitempty"`
}

// RawBatch is the wire-shaped input for batch payments.
type RawBatch struct {
	PayerAddress string         `json:"payer_address" validate:"required"`
	Recipients   []RawRecipient `json:"recipients" validate:"required,min=1,dive"`
	Currency     string         `json:"currency" validate:"required"`
	Network      string         `json:"network" validate:"required"`
}

// Intent is the canonical payment request. Immutable once built; amounts
// are already converted to base units.
type Intent struct {
	PayerAddress     string
	RecipientAddress string
	Amount           *big.Int
	AmountDisplay    string
	Currency         currency.Currency
	Reason           string
	DueDate          *time.Time
	ContentData      map[string]any
}

// Recipient is one normalized batch line.
type Recipient struct {
	Address       string
	Amount        *big.Int
	AmountDisplay string
	Reason        string
	RecipientName string
}

// BatchIntent is the canonical batch payment request.
type BatchIntent struct {
	PayerAddress string
	Recipients   []Recipient
	Currency     currency.Currency
}

// Builder validates and normalizes raw input.
type Builder struct {
	validate *validator.Validate
}

func NewBuilder() *Builder {
	return &Builder{validate: validator.New()}
}

// Build validates a single-payment input and returns the normalized intent.
func (b *Builder) Build(raw Raw) (*Intent, error) {
	if err := b.validate.Struct(&raw); err != nil {
		return nil, structError(err)
	}

	cur, err := currency.Lookup(raw.Currency, raw.Network)
	if err != nil {
		return nil, &ValidationError{Field: "currency", Message: err.Error()}
	}
	if err := validateAddress(cur.Family, raw.PayerAddress); err != nil {
		return nil, &ValidationError{Field: "payer_address", Message: err.Error()}
	}
	if err := validateAddress(cur.Family, raw.RecipientAddress); err != nil {
		return nil, &ValidationError{Field: "recipient_address", Message: err.Error()}
	}

	amount, err := cur.ParseAmount(raw.Amount)
	if err != nil {
		return nil, &ValidationError{Field: "amount", Message: err.Error()}
	}

	var due *time.Time
	if raw.DueDate != "" {
		t, err := parseDueDate(raw.DueDate)
		if err != nil {
			return nil, &ValidationError{Field: "due_date", Message: err.Error()}
		}
		due = &t
	}

	return &Intent{
		PayerAddress:     raw.PayerAddress,
		RecipientAddress: raw.RecipientAddress,
		Amount:           amount,
		AmountDisplay:    raw.Amount,
		Currency:         cur,
		Reason:           raw.Reason,
		DueDate:          due,
		ContentData:      raw.ContentData,
	}, nil
}

// BuildBatch validates a batch input and returns the normalized batch intent.
// Every recipient line must validate; a single bad line rejects the batch.
func (b *Builder) BuildBatch(raw RawBatch) (*BatchIntent, error) {
	if err := b.validate.Struct(&raw); err != nil {
		return nil, structError(err)
	}

	cur, err := currency.Lookup(raw.Currency, raw.Network)
	if err != nil {
		return nil, &ValidationError{Field: "currency", Message: err.Error()}
	}
	if err := validateAddress(cur.Family, raw.PayerAddress); err != nil {
		return nil, &ValidationError{Field: "payer_address", Message: err.Error()}
	}

	recipients := make([]Recipient, 0, len(raw.Recipients))
	for i, line := range raw.Recipients {
		if err := validateAddress(cur.Family, line.Address); err != nil {
			return nil, &ValidationError{
				Field:   fmt.Sprintf("recipients[%d].address", i),
				Message: err.Error(),
			}
		}
		amount, err := cur.ParseAmount(line.Amount)
		if err != nil {
			return nil, &ValidationError{
				Field:   fmt.Sprintf("recipients[%d].amount", i),
				Message: err.Error(),
			}
		}
		recipients = append(recipients, Recipient{
			Address:       line.Address,
			Amount:        amount,
			AmountDisplay: line.Amount,
			Reason:        line.Reason,
			RecipientName: line.RecipientName,
		})
	}

	return &BatchIntent{
		PayerAddress: raw.PayerAddress,
		Recipients:   recipients,
		Currency:     cur,
	}, nil
}

// TotalAmount sums all recipient amounts in base units.
func (b *BatchIntent) TotalAmount() *big.Int {
	total := new(big.Int)
	for _, r := range b.Recipients {
		total.Add(total, r.Amount)
	}
	return total
}

func validateAddress(family currency.Family, addr string) error {
	switch family {
	case currency.FamilyEVM:
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("not a valid hex address: %s", addr)
		}
	case currency.FamilySolana:
		if _, err := solanago.PublicKeyFromBase58(addr); err != nil {
			return fmt.Errorf("not a valid base58 public key: %s", addr)
		}
	default:
		return fmt.Errorf("unknown chain family %q", family)
	}
	return nil
}

func parseDueDate(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date format %q", s)
}

func structError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &ValidationError{
			Field:   fe.Field(),
			Message: fmt.Sprintf("failed %q constraint", fe.Tag()),
		}
	}
	return &ValidationError{Message: err.Error()}
}
