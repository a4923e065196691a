package domain

// FailureCategory buckets an error for retry policy selection.
type FailureCategory string

const (
	CategoryTransientNetwork FailureCategory = "transient_network_error"
	CategoryResourceNotAvail FailureCategory = "resource_not_available"
	CategoryPermanent        FailureCategory = "permanent_error"
	CategoryUnknown          FailureCategory = "unknown_error"
)
