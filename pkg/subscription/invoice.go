package subscription

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceDueAfter is how long a proration invoice stays payable.
const InvoiceDueAfter = 30 * 24 * time.Hour

// Invoice is an open charge raised for the prorated difference of an upgrade.
// Collection happens outside the engine.
type Invoice struct {
	ID             uuid.UUID       `json:"id"`
	Number         string          `json:"number"`
	SubscriptionID uuid.UUID       `json:"subscription_id"`
	TenantID       uuid.UUID       `json:"tenant_id"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	Status         InvoiceStatus   `json:"status"`
	DueDate        time.Time       `json:"due_date"`
	CreatedAt      time.Time       `json:"created_at"`
}

// newInvoice builds an open invoice for amount due InvoiceDueAfter from now.
func newInvoice(sub *Subscription, amount decimal.Decimal, currency string, now time.Time) *Invoice {
	id := uuid.New()
	return &Invoice{
		ID:             id,
		Number:         fmt.Sprintf("INV-%d-%s", now.UnixMilli(), id.String()[:8]),
		SubscriptionID: sub.ID,
		TenantID:       sub.TenantID,
		Amount:         amount,
		Currency:       currency,
		Status:         InvoiceStatusOpen,
		DueDate:        now.Add(InvoiceDueAfter),
		CreatedAt:      now,
	}
}
