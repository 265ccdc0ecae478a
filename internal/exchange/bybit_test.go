package exchange

import (
	"errors"
	"testing"
)

func TestBybitInterval(t *testing.T) {
	tests := []struct {
		name     string
		interval string
		want     string
	}{
		{"one minute", "1m", "1"},
		{"fifteen minutes", "15m", "15"},
		{"one hour", "1h", "60"},
		{"four hours", "4h", "240"},
		{"one day", "1d", "D"},
		{"unknown passed through", "42", "42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := bybitInterval(tt.interval); got != tt.want {
				t.Errorf("bybitInterval(%q) = %q, want %q", tt.interval, got, tt.want)
			}
		})
	}
}

func TestBybitOIInterval(t *testing.T) {
	tests := []struct {
		name     string
		interval string
		want     string
	}{
		{"five minutes", "5m", "5min"},
		{"thirty minutes", "30m", "30min"},
		{"one hour", "1h", "1h"},
		{"one day", "1d", "1d"},
		{"unknown falls back to 5min", "2h", "5min"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := bybitOIInterval(tt.interval); got != tt.want {
				t.Errorf("bybitOIInterval(%q) = %q, want %q", tt.interval, got, tt.want)
			}
		})
	}
}

func TestBybitOrderStatus(t *testing.T) {
	tests := []struct {
		name   string
		status string
		want   string
	}{
		{"filled", "Filled", OrderStatusFilled},
		{"partially filled", "PartiallyFilled", OrderStatusPartial},
		{"cancelled", "Cancelled", OrderStatusCancelled},
		{"deactivated maps to cancelled", "Deactivated", OrderStatusCancelled},
		{"rejected", "Rejected", OrderStatusRejected},
		{"new order", "New", OrderStatusNew},
		{"unknown treated as new", "SomethingElse", OrderStatusNew},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := bybitOrderStatus(tt.status); got != tt.want {
				t.Errorf("bybitOrderStatus(%q) = %q, want %q", tt.status, got, tt.want)
			}
		})
	}
}

func TestExchangeError(t *testing.T) {
	original := errors.New("retCode 10001")
	err := &ExchangeError{
		Exchange: "bybit",
		Code:     "10001",
		Message:  "params error",
		Original: original,
	}

	if err.Error() != "bybit: params error" {
		t.Errorf("Error() = %q, want %q", err.Error(), "bybit: params error")
	}

	if !errors.Is(err, original) {
		t.Error("errors.Is should find the original error through Unwrap")
	}

	var exchErr *ExchangeError
	if !errors.As(error(err), &exchErr) {
		t.Error("errors.As should match *ExchangeError")
	}
	if exchErr.Code != "10001" {
		t.Errorf("Code = %q, want %q", exchErr.Code, "10001")
	}
}
