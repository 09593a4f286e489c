package resiliency

import "testing"

func TestValidate_RequiresAtLeastOneComponent(t *testing.T) {
	err := Options{}.Validate("svc")
	if !IsArgumentError(err) {
		t.Fatalf("expected ArgumentError, got %v", err)
	}
}

func TestValidate_RejectsBothTicketsAndQuota(t *testing.T) {
	err := Options{Bulkhead: true, Tickets: 5, Quota: 0.5}.Validate("svc")
	if !IsArgumentError(err) {
		t.Fatalf("expected ArgumentError, got %v", err)
	}
}

func TestValidate_RejectsNeitherTicketsNorQuota(t *testing.T) {
	err := Options{Bulkhead: true}.Validate("svc")
	if !IsArgumentError(err) {
		t.Fatalf("expected ArgumentError, got %v", err)
	}
}

func TestValidate_RejectsDynamicTimeoutWithFixedErrorTimeout(t *testing.T) {
	err := Options{
		CircuitBreaker: true,
		DynamicTimeout: true,
		ErrorTimeout:   1,
	}.Validate("svc")
	if !IsArgumentError(err) {
		t.Fatalf("expected ArgumentError, got %v", err)
	}
}

func TestValidate_AcceptsQuotaOnlyBulkhead(t *testing.T) {
	err := Options{Bulkhead: true, Quota: 0.5}.Validate("svc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_AcceptsBreakerOnly(t *testing.T) {
	err := Options{CircuitBreaker: true, Detector: DetectorConsecutive, ErrorThreshold: 3}.Validate("svc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
