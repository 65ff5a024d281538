package subscription

// Resource represents a countable tenant resource type.
type Resource string

const (
	ResourceUsers         Resource = "users"
	ResourceProducts      Resource = "products"
	ResourceBranches      Resource = "branches"
	ResourceSalesPerMonth Resource = "sales_per_month"
)

const (
	// Unlimited indicates no limit for a resource (-1 chosen for SQL compatibility)
	Unlimited int64 = -1
)

// Feature represents a plan-specific capability that can be enabled/disabled.
type Feature string

const (
	FeatureAnalytics          Feature = "analytics"
	FeatureAdvancedReports    Feature = "advanced_reports"
	FeaturePrioritySupport    Feature = "priority_support"
	FeatureCustomBranding     Feature = "custom_branding"
	FeatureAPIAccess          Feature = "api_access"
	FeatureBulkOperations     Feature = "bulk_operations"
	FeatureDataExport         Feature = "data_export"
	FeatureCustomFields       Feature = "custom_fields"
	FeatureAdvancedSecurity   Feature = "advanced_security"
	FeatureWhiteLabel         Feature = "white_label"
	FeatureDedicatedSupport   Feature = "dedicated_support"
	FeatureSSO                Feature = "sso"
	FeatureAuditLogs          Feature = "audit_logs"
	FeatureBackupRestore      Feature = "backup_restore"
	FeatureCustomIntegrations Feature = "custom_integrations"
)

// BillingInterval represents the billing frequency for a subscription plan.
type BillingInterval string

const (
	BillingIntervalMonthly BillingInterval = "monthly"
	BillingIntervalYearly  BillingInterval = "yearly"
)

// Valid reports whether the interval is supported.
func (i BillingInterval) Valid() bool {
	return i == BillingIntervalMonthly || i == BillingIntervalYearly
}

// SubscriptionStatus represents the current state of a subscription.
type SubscriptionStatus string

const (
	StatusTrialing  SubscriptionStatus = "trialing"
	StatusActive    SubscriptionStatus = "active"
	StatusCancelled SubscriptionStatus = "cancelled"
	StatusExpired   SubscriptionStatus = "expired"
)

// Valid reports whether the status is one of the known lifecycle states.
func (s SubscriptionStatus) Valid() bool {
	switch s {
	case StatusTrialing, StatusActive, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// InvoiceStatus is the payment state of an invoice.
type InvoiceStatus string

const (
	InvoiceStatusOpen InvoiceStatus = "open"
	InvoiceStatusPaid InvoiceStatus = "paid"
	InvoiceStatusVoid InvoiceStatus = "void"
)
