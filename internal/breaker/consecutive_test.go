package breaker

import (
	"testing"
	"time"
)

func TestConsecutiveDetector_TripsAtThreshold(t *testing.T) {
	d := NewConsecutiveDetector(ConsecutiveConfig{ErrorThreshold: 3, ErrorTimeout: time.Second})
	now := time.Now()

	for i := 0; i < 2; i++ {
		d.MarkFailed(nil, now.Add(time.Duration(i)*time.Millisecond))
	}
	if d.ShouldTrip(now) {
		t.Fatal("should not trip before reaching threshold")
	}

	d.MarkFailed(nil, now.Add(2*time.Millisecond))
	if !d.ShouldTrip(now.Add(2 * time.Millisecond)) {
		t.Fatal("should trip once error_threshold errors recorded")
	}
}

func TestConsecutiveDetector_TimeoutClearsStaleWindow(t *testing.T) {
	d := NewConsecutiveDetector(ConsecutiveConfig{
		ErrorThreshold: 2, ErrorThresholdTimeout: 10 * time.Millisecond, TimeoutEnabled: true,
	})
	now := time.Now()
	d.MarkFailed(nil, now)

	// Far enough past the threshold timeout that the stale entry is cleared.
	later := now.Add(time.Second)
	d.MarkFailed(nil, later)

	if d.ShouldTrip(later) {
		t.Fatal("stale entry should have been cleared, leaving only one fresh error")
	}
}

func TestConsecutiveDetector_LumpingDropsBurst(t *testing.T) {
	d := NewConsecutiveDetector(ConsecutiveConfig{
		ErrorThreshold: 2, ErrorTimeout: time.Second, LumpingInterval: 100 * time.Millisecond,
	})
	now := time.Now()
	d.MarkFailed(nil, now)
	d.MarkFailed(nil, now.Add(10*time.Millisecond)) // within lumping interval, dropped

	if d.ShouldTrip(now.Add(10 * time.Millisecond)) {
		t.Fatal("lumped failure should not count toward the threshold")
	}
}

func TestConsecutiveDetector_ValidationPanicsOnImpossibleConfig(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for lumping_interval * (threshold-1) > error_threshold_timeout")
		}
	}()
	NewConsecutiveDetector(ConsecutiveConfig{
		ErrorThreshold: 5, ErrorThresholdTimeout: time.Second, TimeoutEnabled: true,
		LumpingInterval: time.Second, // 4 * 1s > 1s
	})
}

func TestConsecutiveDetector_ResetClearsWindow(t *testing.T) {
	d := NewConsecutiveDetector(ConsecutiveConfig{ErrorThreshold: 1, ErrorTimeout: time.Second})
	now := time.Now()
	d.MarkFailed(nil, now)
	if !d.ShouldTrip(now) {
		t.Fatal("expected trip before reset")
	}
	d.Reset()
	if d.ShouldTrip(now) {
		t.Fatal("expected no trip after reset")
	}
}
