// Package billingapi exposes the subscription lifecycle, the entitlement gate
// and the administrative operations over HTTP.
//
// Authentication happens upstream. The proxy in front of the API forwards the
// caller as X-User-ID, X-Tenant-ID and X-Superadmin headers; the API turns them
// into an entitlement.User and a subscription.Actor for audit records.
//
// Errors are rendered as {"error": {"code": "...", "message": "..."}} with the
// status derived from the subscription error kind: 404 not found, 403 forbidden,
// 400 validation, 409 conflict, 401 unauthorized, 500 otherwise.
package billingapi
