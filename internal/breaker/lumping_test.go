package breaker

import (
	"testing"
	"time"
)

func TestLumpingDetector_DropsBurstsWithinInterval(t *testing.T) {
	inner := NewConsecutiveDetector(ConsecutiveConfig{ErrorThreshold: 2, ErrorTimeout: time.Second})
	l := NewLumpingDetector(50*time.Millisecond, inner)

	now := time.Now()
	l.MarkFailed(nil, now)
	l.MarkFailed(nil, now.Add(10*time.Millisecond)) // within interval, dropped
	l.MarkFailed(nil, now.Add(20*time.Millisecond)) // still within interval of the first, dropped

	if l.ShouldTrip(now.Add(20 * time.Millisecond)) {
		t.Fatal("burst within lumping_interval should count only once")
	}
}

func TestLumpingDetector_AllowsFailuresOutsideInterval(t *testing.T) {
	inner := NewConsecutiveDetector(ConsecutiveConfig{ErrorThreshold: 2, ErrorTimeout: time.Second})
	l := NewLumpingDetector(10*time.Millisecond, inner)

	now := time.Now()
	l.MarkFailed(nil, now)
	l.MarkFailed(nil, now.Add(time.Second)) // well outside interval

	if !l.ShouldTrip(now.Add(time.Second)) {
		t.Fatal("failures spaced beyond lumping_interval should both count")
	}
}

func TestLumpingDetector_SuccessAlwaysPassesThrough(t *testing.T) {
	inner := NewErrorRateDetector(ErrorRateConfig{ErrorPercentThreshold: 0.5, TimeWindow: time.Second, MinimumRequestVolume: 1})
	l := NewLumpingDetector(time.Millisecond, inner)

	now := time.Now()
	l.MarkSuccess(now)
	l.MarkSuccess(now)

	if l.ShouldTrip(now) {
		t.Fatal("all-success stream should not trip")
	}
	if got := l.Metrics()["success"]; got != 2 {
		t.Fatalf("inner detector recorded %v successes, want 2", got)
	}
}
