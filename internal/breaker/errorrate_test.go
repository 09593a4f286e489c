package breaker

import (
	"testing"
	"time"
)

func TestErrorRateDetector_RequiresMinimumVolume(t *testing.T) {
	d := NewErrorRateDetector(ErrorRateConfig{
		ErrorPercentThreshold: 0.5, TimeWindow: time.Second, MinimumRequestVolume: 10,
	})
	now := time.Now()
	for i := 0; i < 5; i++ {
		d.MarkFailed(nil, now)
	}
	if d.ShouldTrip(now) {
		t.Fatal("should not trip below minimum_request_volume even at 100% errors")
	}
}

func TestErrorRateDetector_TripsAtPercentThreshold(t *testing.T) {
	d := NewErrorRateDetector(ErrorRateConfig{
		ErrorPercentThreshold: 0.5, TimeWindow: time.Second, MinimumRequestVolume: 4,
	})
	now := time.Now()
	d.MarkFailed(nil, now)
	d.MarkFailed(nil, now)
	d.MarkSuccess(now)
	d.MarkSuccess(now)

	if !d.ShouldTrip(now) {
		t.Fatal("2/4 errors at 50% threshold should trip")
	}
}

func TestErrorRateDetector_WindowPruning(t *testing.T) {
	d := NewErrorRateDetector(ErrorRateConfig{
		ErrorPercentThreshold: 0.1, TimeWindow: 50 * time.Millisecond, MinimumRequestVolume: 1,
	})
	now := time.Now()
	d.MarkFailed(nil, now)

	later := now.Add(time.Second) // well past the window
	if d.ShouldTrip(later) {
		t.Fatal("expired observations must not count toward should_trip")
	}
}

func TestErrorRateDetector_PanicsOnOutOfRangeThreshold(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for threshold outside (0,1)")
		}
	}()
	NewErrorRateDetector(ErrorRateConfig{ErrorPercentThreshold: 1, TimeWindow: time.Second, MinimumRequestVolume: 1})
}
