package calibration

import (
	"errors"
	"math"
	"testing"

	"takeoff-engine/internal/takeoff/models"
)

func TestSessionTwoClickFlow(t *testing.T) {
	// Known 10 ft between (0,0) and (100,0) -> 10 page units per ft.
	s := NewSession(false)

	if err := s.Begin("10", "ft"); err != nil {
		t.Fatal(err)
	}
	if s.State() != StateAwaitingFirstPoint {
		t.Fatalf("state after Begin: %v", s.State())
	}

	if err := s.AddPoint(models.Point{X: 0, Y: 0}); err != nil {
		t.Fatal(err)
	}
	if s.State() != StateAwaitingSecondPoint {
		t.Fatalf("state after first point: %v", s.State())
	}

	if err := s.AddPoint(models.Point{X: 100, Y: 0}); err != nil {
		t.Fatal(err)
	}
	if s.State() != StateComplete {
		t.Fatalf("state after second point: %v", s.State())
	}

	factor, unit, err := s.Result()
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(factor-10) > 1e-9 {
		t.Errorf("scale factor: got %v, want 10", factor)
	}
	if unit != "ft" {
		t.Errorf("unit: got %q, want ft", unit)
	}
}

func TestSessionFeetInchesDistance(t *testing.T) {
	s := NewSession(false)
	if err := s.Begin(`7'6"`, "ft"); err != nil {
		t.Fatal(err)
	}
	if err := s.AddPoint(models.Point{X: 0, Y: 0}); err != nil {
		t.Fatal(err)
	}
	if err := s.AddPoint(models.Point{X: 75, Y: 0}); err != nil {
		t.Fatal(err)
	}

	factor, _, err := s.Result()
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(factor-10) > 1e-9 {
		t.Errorf("scale factor: got %v, want 10", factor)
	}
}

func TestSessionImplausibleScale(t *testing.T) {
	tests := []struct {
		name   string
		second models.Point
	}{
		// 0.001 page units / 10 ft = 0.0001, below the floor.
		{"below floor", models.Point{X: 0.001, Y: 0}},
		// 20000 page units / 10 ft = 2000, above the ceiling.
		{"above ceiling", models.Point{X: 20000, Y: 0}},
		// Coincident clicks: zero distance.
		{"degenerate", models.Point{X: 0, Y: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSession(false)
			if err := s.Begin("10", "ft"); err != nil {
				t.Fatal(err)
			}
			if err := s.AddPoint(models.Point{X: 0, Y: 0}); err != nil {
				t.Fatal(err)
			}

			err := s.AddPoint(tt.second)
			if !errors.Is(err, models.ErrImplausibleScaleFactor) {
				t.Fatalf("got err %v, want ErrImplausibleScaleFactor", err)
			}
			if s.State() != StateIdle {
				t.Errorf("session not reset: %v", s.State())
			}
			if _, _, err := s.Result(); err == nil {
				t.Error("Result succeeded after rejected calibration")
			}
		})
	}
}

func TestSessionOrthoSnap(t *testing.T) {
	tests := []struct {
		name       string
		snap       bool
		second     models.Point
		wantFactor float64
	}{
		// atan2(3,100) ~ 1.7 deg: y clamps to the first point's.
		{"horizontal clamp", true, models.Point{X: 100, Y: 3}, 10},
		{"vertical clamp", true, models.Point{X: 3, Y: 100}, 10},
		{"steep angle untouched", true, models.Point{X: 60, Y: 80}, 10},
		{"snap disabled", false, models.Point{X: 100, Y: 3}, math.Hypot(100, 3) / 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSession(tt.snap)
			if err := s.Begin("10", "ft"); err != nil {
				t.Fatal(err)
			}
			if err := s.AddPoint(models.Point{X: 0, Y: 0}); err != nil {
				t.Fatal(err)
			}
			if err := s.AddPoint(tt.second); err != nil {
				t.Fatal(err)
			}

			factor, _, err := s.Result()
			if err != nil {
				t.Fatal(err)
			}
			if math.Abs(factor-tt.wantFactor) > 1e-9 {
				t.Errorf("scale factor: got %v, want %v", factor, tt.wantFactor)
			}
		})
	}
}

func TestSessionCancel(t *testing.T) {
	advance := map[string]func(*Session){
		"from idle": func(*Session) {},
		"awaiting first": func(s *Session) {
			_ = s.Begin("10", "ft")
		},
		"awaiting second": func(s *Session) {
			_ = s.Begin("10", "ft")
			_ = s.AddPoint(models.Point{X: 0, Y: 0})
		},
	}

	for name, setup := range advance {
		t.Run(name, func(t *testing.T) {
			s := NewSession(true)
			setup(s)
			s.Cancel()
			if s.State() != StateIdle {
				t.Errorf("state after cancel: %v", s.State())
			}
			// Session is reusable after cancel.
			if err := s.Begin("5", "m"); err != nil {
				t.Errorf("Begin after cancel: %v", err)
			}
		})
	}
}

func TestSessionInvalidTransitions(t *testing.T) {
	s := NewSession(false)

	if err := s.AddPoint(models.Point{}); err == nil {
		t.Error("AddPoint in Idle accepted")
	}
	if _, _, err := s.Result(); err == nil {
		t.Error("Result in Idle accepted")
	}

	if err := s.Begin("bogus", "ft"); !errors.Is(err, models.ErrInvalidCalibrationInput) {
		t.Errorf("got err %v, want ErrInvalidCalibrationInput", err)
	}
	if s.State() != StateIdle {
		t.Errorf("failed Begin moved state: %v", s.State())
	}

	if err := s.Begin("10", "ft"); err != nil {
		t.Fatal(err)
	}
	if err := s.Begin("10", "ft"); err == nil {
		t.Error("second Begin accepted mid-session")
	}
}
