package observability

// Metric names shared between registration in main and the components that
// record them.
const (
	MUsecaseRequests         = "usecase_requests_total"
	MUsecaseDuration         = "usecase_duration_seconds"
	MHTTPRequests            = "http_requests_total"
	MHTTPRequestDuration     = "http_request_duration_seconds"
	MExternalRequests        = "external_requests_total"
	MExternalRequestDuration = "external_request_duration_seconds"
	MReconciliationGaps      = "checkout_reconciliation_gaps_total"
)
