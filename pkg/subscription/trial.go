package subscription

import "time"

// TrialStatus is the evaluated state of a tenant's newest trial.
type TrialStatus struct {
	IsTrial       bool               `json:"is_trial"`
	TrialExpired  bool               `json:"trial_expired"`
	Status        SubscriptionStatus `json:"status,omitempty"`
	TrialEnd      *time.Time         `json:"trial_end,omitempty"`
	Remaining     time.Duration      `json:"remaining"`
	DaysRemaining int                `json:"days_remaining"`
}

// EvaluateTrial derives the trial state of sub at now without modifying it.
// A nil or non-trial row evaluates to a zero TrialStatus.
func EvaluateTrial(sub *Subscription, now time.Time) TrialStatus {
	if sub == nil || !sub.IsTrial {
		return TrialStatus{}
	}

	ts := TrialStatus{
		IsTrial:  true,
		Status:   sub.Status,
		TrialEnd: clonePtr(sub.TrialEnd),
	}
	if sub.TrialEnd == nil {
		return ts
	}

	ts.TrialExpired = now.After(*sub.TrialEnd)
	if !ts.TrialExpired {
		ts.Remaining = sub.TrialEnd.Sub(now)
		ts.DaysRemaining = sub.TrialDaysRemainingAt(now)
	}
	return ts
}

// Blocks reports whether the trial must deny access: the window has closed and
// the row was already flipped to expired. A trial past its end date that is
// still trialing keeps access until the flip happens.
func (t TrialStatus) Blocks() bool {
	return t.IsTrial && t.TrialExpired && t.Status == StatusExpired
}
