package nn

import (
	"errors"
	"math"
	"testing"
)

func TestSat(t *testing.T) {
	if got := Sat(3, 1, -1); got != 1 {
		t.Fatalf("sat high: got=%f", got)
	}
	if got := Sat(-3, 1, -1); got != -1 {
		t.Fatalf("sat low: got=%f", got)
	}
	if got := Sat(0.25, 1, -1); got != 0.25 {
		t.Fatalf("sat inside: got=%f", got)
	}
}

func TestUnscaleValue(t *testing.T) {
	cases := []struct {
		in, want float64
	}{
		{in: -1, want: 0.3},
		{in: 0, want: 1.15},
		{in: 1, want: 2},
		{in: 4, want: 2},
		{in: -4, want: 0.3},
	}
	for _, tc := range cases {
		if got := UnscaleValue(tc.in, 2, 0.3); math.Abs(got-tc.want) > 1e-12 {
			t.Fatalf("unscale %f: got=%f want=%f", tc.in, got, tc.want)
		}
	}
}

func TestActivationRegistry(t *testing.T) {
	resetActivationRegistryForTests()
	t.Cleanup(resetActivationRegistryForTests)

	if err := RegisterActivation("quad", func(x float64) float64 { return x * x }); err != nil {
		t.Fatalf("register activation: %v", err)
	}
	fn, err := GetActivation("quad")
	if err != nil {
		t.Fatalf("get activation: %v", err)
	}
	if got := fn(3); got != 9 {
		t.Fatalf("unexpected activation result: got=%f want=9", got)
	}
	if err := RegisterActivation("tanh", math.Tanh); !errors.Is(err, ErrActivationExists) {
		t.Fatalf("expected ErrActivationExists, got %v", err)
	}
	if err := RegisterActivation("", math.Tanh); err == nil {
		t.Fatal("expected empty name error")
	}
	if err := RegisterActivation("nil", nil); err == nil {
		t.Fatal("expected nil function error")
	}
	if _, err := GetActivation("missing"); !errors.Is(err, ErrActivationNotFound) {
		t.Fatalf("expected ErrActivationNotFound, got %v", err)
	}
	names := ListActivations()
	if len(names) != 5 || names[0] != "identity" || names[1] != "quad" {
		t.Fatalf("unexpected activations: %v", names)
	}
}
