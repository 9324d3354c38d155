package domain

import (
	"testing"
	"time"
)

func TestSanitizeChargePointID(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"clean id passes through", "CP001", "CP001"},
		{"whitespace and punctuation stripped", " CP 001!", "CP001"},
		{"path characters stripped", "../CP001", "CP001"},
		{"nothing usable", "!!! ///", ""},
		{"unicode letters kept", "Ladesäule1", "Ladesäule1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeChargePointID(tc.in); got != tc.want {
				t.Fatalf("SanitizeChargePointID(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestSessionCost(t *testing.T) {
	cases := []struct {
		name        string
		energyKwh   float64
		pricePerKwh float64
		want        float64
	}{
		{"exact product", 5, 1200, 6000},
		{"rounds half up", 0.005, 1, 0.01},
		{"rounds down below half", 0.004, 1, 0},
		{"zero energy", 0, 1200, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SessionCost(tc.energyKwh, tc.pricePerKwh); got != tc.want {
				t.Fatalf("SessionCost(%v, %v) = %v, want %v", tc.energyKwh, tc.pricePerKwh, got, tc.want)
			}
		})
	}
}

func TestOrderID(t *testing.T) {
	if got := OrderID("CP001", 42); got != "order_CP001_42" {
		t.Fatalf("unexpected order id %q", got)
	}
}

func TestIdTagEffectiveStatus(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	t.Run("accepted without expiry", func(t *testing.T) {
		tag := IdTag{Status: AuthorizationAccepted}
		if tag.EffectiveStatus(now) != AuthorizationAccepted {
			t.Fatal("expected Accepted")
		}
	})

	t.Run("accepted but expired", func(t *testing.T) {
		tag := IdTag{Status: AuthorizationAccepted, ExpiresAt: &past}
		if tag.EffectiveStatus(now) != AuthorizationExpired {
			t.Fatal("expected Expired")
		}
	})

	t.Run("accepted with future expiry", func(t *testing.T) {
		tag := IdTag{Status: AuthorizationAccepted, ExpiresAt: &future}
		if tag.EffectiveStatus(now) != AuthorizationAccepted {
			t.Fatal("expected Accepted")
		}
	})

	t.Run("blocked stays blocked regardless of expiry", func(t *testing.T) {
		tag := IdTag{Status: AuthorizationBlocked, ExpiresAt: &past}
		if tag.EffectiveStatus(now) != AuthorizationBlocked {
			t.Fatal("expected Blocked")
		}
	})
}

func TestChargingSessionEnergyKwh(t *testing.T) {
	s := ChargingSession{MeterStart: 1000}
	if s.EnergyKwh() != 0 {
		t.Fatal("open session must report zero energy")
	}

	stop := int64(6000)
	s.MeterStop = &stop
	if s.EnergyKwh() != 5.0 {
		t.Fatalf("expected 5 kWh, got %v", s.EnergyKwh())
	}
}

func TestChargePointIsAvailable(t *testing.T) {
	cp := ChargePoint{Status: ChargePointStatusAvailable, OperationalStatus: OperationalEnabled}
	if !cp.IsAvailable() {
		t.Fatal("enabled available charger must be available")
	}

	cp.OperationalStatus = OperationalMaintenance
	if cp.IsAvailable() {
		t.Fatal("charger in maintenance must not be available")
	}

	cp.OperationalStatus = OperationalEnabled
	cp.Status = ChargePointStatusCharging
	if cp.IsAvailable() {
		t.Fatal("charging connector is not available")
	}
}
