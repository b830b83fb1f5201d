package utils

import "testing"

func TestPercentage(t *testing.T) {
	tests := []struct {
		amount, pct, want float64
	}{
		{1000, 20, 200},
		{800, 10, 80},
		{333.33, 15, 50},
		{0.1, 33.3333, 0.03},
		{999.99, 0, 0},
	}

	for _, tt := range tests {
		if got := Percentage(tt.amount, tt.pct); got != tt.want {
			t.Errorf("Percentage(%v, %v) = %v, want %v", tt.amount, tt.pct, got, tt.want)
		}
	}
}

func TestSubunitConversion(t *testing.T) {
	tests := []struct {
		amount float64
		paise  int64
	}{
		{800, 80000},
		{0.1, 10},
		{1234.56, 123456},
		{19.99, 1999},
	}

	for _, tt := range tests {
		if got := ToSubunits(tt.amount); got != tt.paise {
			t.Errorf("ToSubunits(%v) = %d, want %d", tt.amount, got, tt.paise)
		}
		if got := FromSubunits(tt.paise); got != tt.amount {
			t.Errorf("FromSubunits(%d) = %v, want %v", tt.paise, got, tt.amount)
		}
	}
}

func TestWithinTolerance(t *testing.T) {
	if !WithinTolerance(800, 799, 1) {
		t.Error("expected 799 to be within 1 of 800")
	}
	if !WithinTolerance(800, 800.99, 1) {
		t.Error("expected 800.99 to be within 1 of 800")
	}
	if WithinTolerance(800, 798.99, 1) {
		t.Error("expected 798.99 to be outside tolerance")
	}
}

func TestFormatAmount(t *testing.T) {
	if got := FormatAmount(800); got != "800.00" {
		t.Errorf("FormatAmount(800) = %q", got)
	}
	if got := FormatAmount(12.5); got != "12.50" {
		t.Errorf("FormatAmount(12.5) = %q", got)
	}
}
