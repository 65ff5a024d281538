package subscription

import "time"

// DowngradeMessage is returned with every scheduled downgrade.
const DowngradeMessage = "Downgrade scheduled for next billing cycle"

// ChangeRequest asks to move a tenant's active subscription to another plan.
// EffectiveDate only applies to downgrades; nil means the end of the current period.
type ChangeRequest struct {
	PlanID        string     `json:"plan_id"`
	EffectiveDate *time.Time `json:"effective_date,omitempty"`
}

// ChangeResult carries exactly one of Upgrade or Downgrade.
type ChangeResult struct {
	Subscription *Subscription    `json:"subscription"`
	Upgrade      *UpgradeResult   `json:"upgrade,omitempty"`
	Downgrade    *DowngradeResult `json:"downgrade,omitempty"`
}

// IsUpgrade reports whether the change was applied immediately.
func (r *ChangeResult) IsUpgrade() bool {
	return r != nil && r.Upgrade != nil
}

// UpgradeResult describes an immediate, prorated plan switch.
type UpgradeResult struct {
	PreviousPlan string    `json:"previous_plan"`
	NewPlan      string    `json:"new_plan"`
	Proration    Proration `json:"proration"`
	Invoice      *Invoice  `json:"invoice,omitempty"` // nil when nothing is owed
}

// DowngradeResult describes a plan switch deferred to EffectiveDate.
type DowngradeResult struct {
	Message       string          `json:"message"`
	EffectiveDate time.Time       `json:"effective_date"`
	CurrentPlan   string          `json:"current_plan"`
	NewPlan       string          `json:"new_plan"`
	Changes       *PlanComparison `json:"changes,omitempty"`
}

// CreateResult is returned by CreateSubscription. When the tenant already had an
// active subscription the request is treated as a plan change and Change is set.
type CreateResult struct {
	Subscription   *Subscription `json:"subscription"`
	ConvertedTrial bool          `json:"converted_trial,omitempty"`
	Change         *ChangeResult `json:"change,omitempty"`
}

// CurrentSubscription is a tenant's live row with its plans resolved.
type CurrentSubscription struct {
	Subscription  *Subscription `json:"subscription"`
	Plan          Plan          `json:"plan"`
	ScheduledPlan *Plan         `json:"scheduled_plan,omitempty"`
}

// HistoryEntry is one subscription row with its most recent invoices.
// Plan is nil when the row references a plan no longer in the catalog.
type HistoryEntry struct {
	Subscription *Subscription `json:"subscription"`
	Plan         *Plan         `json:"plan,omitempty"`
	Invoices     []*Invoice    `json:"invoices"`
}

// Validity reports whether a tenant's newest subscription still grants access.
type Validity struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}
