package model_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/omarkets/exchange-engine/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func TestParsePrice_Valid(t *testing.T) {
	cases := []struct {
		major float64
		want  model.Price
	}{
		{0.5, 50},
		{1, 100},
		{2.5, 250},
		{5, 500},
		{9.5, 950},
		{10, 1000},
	}
	for _, tc := range cases {
		got, err := model.ParsePrice(d(tc.major))
		if err != nil {
			t.Fatalf("ParsePrice(%v): %v", tc.major, err)
		}
		if got != tc.want {
			t.Errorf("ParsePrice(%v) = %d, want %d", tc.major, got, tc.want)
		}
	}
}

func TestParsePrice_Invalid(t *testing.T) {
	for _, major := range []float64{0, 0.25, 0.6, 3.33, 10.5, -1, 100} {
		if _, err := model.ParsePrice(d(major)); !errors.Is(err, model.ErrInvalidPrice) {
			t.Errorf("ParsePrice(%v) err = %v, want ErrInvalidPrice", major, err)
		}
	}
}

func TestPriceComplement(t *testing.T) {
	for p := model.PriceTick; p <= model.ResolutionValue; p += model.PriceTick {
		c := p.Complement()
		if p+c != model.ResolutionValue {
			t.Errorf("Complement(%d) = %d, pair does not sum to resolution value", p, c)
		}
		if p != model.ResolutionValue && !c.Valid() {
			t.Errorf("Complement(%d) = %d is off the grid", p, c)
		}
	}
}

func TestPriceMajor(t *testing.T) {
	if got := model.Price(250).Major().String(); got != "2.5" {
		t.Errorf("Price(250).Major() = %s, want 2.5", got)
	}
	if got := model.Price(1000).Major().String(); got != "10" {
		t.Errorf("Price(1000).Major() = %s, want 10", got)
	}
}

func TestMajorToMinor(t *testing.T) {
	got, err := model.MajorToMinor(d(12.34))
	if err != nil {
		t.Fatalf("MajorToMinor: %v", err)
	}
	if got != 1234 {
		t.Errorf("MajorToMinor(12.34) = %d, want 1234", got)
	}

	for _, major := range []float64{0, -5, 1.001} {
		if _, err := model.MajorToMinor(d(major)); !errors.Is(err, model.ErrInvalidAmount) {
			t.Errorf("MajorToMinor(%v) err = %v, want ErrInvalidAmount", major, err)
		}
	}
}

func TestMinorToMajor(t *testing.T) {
	if got := model.MinorToMajor(5000).String(); got != "50" {
		t.Errorf("MinorToMajor(5000) = %s, want 50", got)
	}
	if got := model.MinorToMajor(1234).String(); got != "12.34" {
		t.Errorf("MinorToMajor(1234) = %s, want 12.34", got)
	}
}

func TestOutcome(t *testing.T) {
	if !model.OutcomeYes.Valid() || !model.OutcomeNo.Valid() {
		t.Fatal("yes/no must be valid outcomes")
	}
	if model.Outcome("maybe").Valid() {
		t.Error(`Outcome("maybe") must be invalid`)
	}
	if model.OutcomeYes.Opposite() != model.OutcomeNo || model.OutcomeNo.Opposite() != model.OutcomeYes {
		t.Error("Opposite must swap yes and no")
	}
}
