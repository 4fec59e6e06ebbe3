package control

import (
	"errors"
	"math"
	"testing"

	"urdriver/shared"
)

func TestVerifyWithin(t *testing.T) {
	cases := []struct {
		name    string
		value   float64
		min     float64
		max     float64
		wantErr bool
	}{
		{"joint velocity at max", 3.14, MIN_JOINT_VELOCITY, MAX_JOINT_VELOCITY, false},
		{"joint velocity over max", 3.15, MIN_JOINT_VELOCITY, MAX_JOINT_VELOCITY, true},
		{"joint velocity negative", -0.1, MIN_JOINT_VELOCITY, MAX_JOINT_VELOCITY, true},
		{"joint acceleration at max", 40, MIN_JOINT_ACCELERATION, MAX_JOINT_ACCELERATION, false},
		{"tool velocity at max", 3.0, MIN_TOOL_VELOCITY, MAX_TOOL_VELOCITY, false},
		{"tool acceleration over max", 151, MIN_TOOL_ACCELERATION, MAX_TOOL_ACCELERATION, true},
		{"lookahead at min", 0.03, MIN_SERVO_LOOKAHEAD, MAX_SERVO_LOOKAHEAD, false},
		{"lookahead under min", 0.02, MIN_SERVO_LOOKAHEAD, MAX_SERVO_LOOKAHEAD, true},
		{"gain at min", 100, MIN_SERVO_GAIN, MAX_SERVO_GAIN, false},
		{"gain over max", 2001, MIN_SERVO_GAIN, MAX_SERVO_GAIN, true},
		{"blend at max", 2.0, MIN_BLEND_RADIUS, MAX_BLEND_RADIUS, false},
		{"blend over max", 2.1, MIN_BLEND_RADIUS, MAX_BLEND_RADIUS, true},
		{"NaN", math.NaN(), MIN_JOINT_VELOCITY, MAX_JOINT_VELOCITY, true},
	}

	for _, tc := range cases {
		err := verifyWithin(tc.name, tc.value, tc.min, tc.max)
		if tc.wantErr && !errors.Is(err, shared.ErrOutOfRange) {
			t.Errorf("%s: expected ErrOutOfRange, got %v", tc.name, err)
		}
		if !tc.wantErr && err != nil {
			t.Errorf("%s: expected no error, got %v", tc.name, err)
		}
	}
}

func TestVerifyVectorRejectsNaN(t *testing.T) {
	ok := shared.Vector6{0, -1.57, 0, -1.57, 0, 0}
	if err := verifyVector("q", ok); err != nil {
		t.Errorf("Expected valid vector to pass, got %v", err)
	}

	bad := ok
	bad[4] = math.NaN()
	if err := verifyVector("q", bad); !errors.Is(err, shared.ErrOutOfRange) {
		t.Errorf("Expected ErrOutOfRange for NaN element, got %v", err)
	}
}
