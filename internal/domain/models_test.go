package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestSupplyTransitionTable(t *testing.T) {
	allowed := map[[2]SupplyStatus]bool{
		{SupplyPending, SupplyApproved}:   true,
		{SupplyPending, SupplyRejected}:   true,
		{SupplyApproved, SupplyDelivered}: true,
	}

	statuses := []SupplyStatus{SupplyPending, SupplyApproved, SupplyRejected, SupplyDelivered}
	for _, from := range statuses {
		for _, to := range statuses {
			got := from.CanTransitionTo(to)
			want := allowed[[2]SupplyStatus{from, to}]
			if got != want {
				t.Fatalf("%s -> %s: got %v, want %v", from, to, got, want)
			}
		}
	}

	if SupplyPending.IsTerminal() || SupplyApproved.IsTerminal() {
		t.Fatalf("PENDING and APPROVED must not be terminal")
	}
	if !SupplyRejected.IsTerminal() || !SupplyDelivered.IsTerminal() {
		t.Fatalf("REJECTED and DELIVERED must be terminal")
	}
}

func TestParseEnums(t *testing.T) {
	if _, ok := ParseProduct("PETROL"); !ok {
		t.Fatalf("PETROL should parse")
	}
	if _, ok := ParseProduct("petrol"); ok {
		t.Fatalf("product parsing is case-sensitive; callers normalize first")
	}
	if _, ok := ParseProduct("JETFUEL"); ok {
		t.Fatalf("JETFUEL should not parse")
	}
	if _, ok := ParseSupplyStatus("DELIVERED"); !ok {
		t.Fatalf("DELIVERED should parse")
	}
	if _, ok := ParseSupplyStatus("SHIPPED"); ok {
		t.Fatalf("SHIPPED should not parse")
	}
}

func TestStationProductPrice(t *testing.T) {
	station := Station{
		PetrolPricePerLitre: decimal.NewFromFloat(650.5),
		DieselPricePerLitre: decimal.NewFromInt(980),
	}

	if !station.ProductPrice(ProductPetrol).Equal(decimal.NewFromFloat(650.5)) {
		t.Fatalf("unexpected petrol price")
	}
	if !station.ProductPrice(ProductDiesel).Equal(decimal.NewFromInt(980)) {
		t.Fatalf("unexpected diesel price")
	}
	if !station.ProductPrice(ProductGas).IsZero() {
		t.Fatalf("gas has no station price")
	}
}

func TestSaleVolume(t *testing.T) {
	sale := Sale{
		OpeningMeterReading: decimal.NewFromInt(1000),
		ClosingMeterReading: decimal.NewFromInt(1200),
	}
	if !sale.Volume().Equal(decimal.NewFromInt(200)) {
		t.Fatalf("expected volume 200, got %s", sale.Volume())
	}
}
