// Package logger builds the *slog.Logger shared by billingd components.
//
// New takes options for level, format, output and static attributes.
// WithEnvironment applies a per-environment preset: text at debug level in
// development, JSON at info level in staging and production. Extractors
// registered with WithContextExtractors add request-scoped attributes such as
// the request ID to every record logged with a context.
//
//	log := logger.New(
//		logger.WithEnvironment(os.Getenv("APP_ENV"), "billingd"),
//		logger.WithContextExtractors(billingapi.LoggerExtractor()),
//	)
//	log.InfoContext(ctx, "subscription created",
//		logger.TenantID(tenantID),
//		logger.PlanID("pro"),
//	)
//
// The attribute helpers keep key names stable across packages and drop empty
// identifiers and nil errors.
package logger
