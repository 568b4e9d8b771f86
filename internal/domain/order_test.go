package domain_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/order-lifecycle/internal/domain"
)

// helper для создания валидного заказа.
func makeOrder() domain.Order {
	now := time.Now().UTC()
	return domain.Order{
		OrderID:    "order-1",
		Price:      decimal.NewFromInt(50),
		Quantity:   2,
		ProductID:  "p1",
		CustomerID: "c1",
		SellerID:   "s1",
		Status:     domain.OrderStatusCreated,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestOrderValidateInvariants_Ok(t *testing.T) {
	order := makeOrder()
	if errs := order.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("expected no validation errors, got %v", errs)
	}
}

func TestOrderValidateInvariants_Errors(t *testing.T) {
	cases := []struct {
		name string
		mut  func(o *domain.Order)
	}{
		{name: "no order id", mut: func(o *domain.Order) { o.OrderID = "" }},
		{name: "zero price", mut: func(o *domain.Order) { o.Price = decimal.Zero }},
		{name: "negative price", mut: func(o *domain.Order) { o.Price = decimal.NewFromFloat(-0.01) }},
		{name: "zero quantity", mut: func(o *domain.Order) { o.Quantity = 0 }},
		{name: "no product", mut: func(o *domain.Order) { o.ProductID = " " }},
		{name: "no customer", mut: func(o *domain.Order) { o.CustomerID = "" }},
		{name: "no seller", mut: func(o *domain.Order) { o.SellerID = "" }},
		{name: "unknown status", mut: func(o *domain.Order) { o.Status = "Lost" }},
		{name: "updated before created", mut: func(o *domain.Order) { o.UpdatedAt = o.CreatedAt.Add(-time.Second) }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			order := makeOrder()
			tc.mut(&order)
			if len(order.ValidateInvariants()) == 0 {
				t.Fatalf("expected validation errors for case %s", tc.name)
			}
		})
	}
}

func TestParseOrderStatus(t *testing.T) {
	for _, status := range domain.OrderStatuses() {
		got, err := domain.ParseOrderStatus(string(status))
		if err != nil {
			t.Fatalf("parse %q: %v", status, err)
		}
		if got != status {
			t.Fatalf("parse %q: got %q", status, got)
		}
	}

	got, err := domain.ParseOrderStatus("Shipping in progress")
	if err != nil {
		t.Fatalf("legacy spelling: %v", err)
	}
	if got != domain.OrderStatusShippingInProgress {
		t.Fatalf("legacy spelling normalised to %q", got)
	}

	if _, err := domain.ParseOrderStatus("shipped"); err == nil {
		t.Fatal("expected error for lower-case status")
	}
}

func TestOrderPatch_ApplyOnlyTouchesSuppliedFields(t *testing.T) {
	order := makeOrder()
	status := domain.OrderStatusShipped
	updatedAt := order.UpdatedAt.Add(time.Second)

	patched := domain.OrderPatch{Status: &status}.Apply(order, updatedAt)

	if patched.Status != domain.OrderStatusShipped {
		t.Fatalf("expected status Shipped, got %s", patched.Status)
	}
	if !patched.Price.Equal(order.Price) || patched.Quantity != order.Quantity {
		t.Fatalf("price/quantity changed: %+v", patched)
	}
	if patched.ProductID != order.ProductID || patched.CustomerID != order.CustomerID || patched.SellerID != order.SellerID {
		t.Fatalf("references changed: %+v", patched)
	}
	if !patched.CreatedAt.Equal(order.CreatedAt) {
		t.Fatal("createdAt must not change")
	}
	if !patched.UpdatedAt.Equal(updatedAt) {
		t.Fatalf("expected updatedAt %s, got %s", updatedAt, patched.UpdatedAt)
	}
}

func TestOrderPatch_Validate(t *testing.T) {
	zero := decimal.Zero
	negQty := int64(-1)
	blank := ""
	bad := domain.OrderStatus("Unknown")
	price := decimal.RequireFromString("10.50")

	cases := []struct {
		name    string
		patch   domain.OrderPatch
		wantErr bool
	}{
		{name: "empty", patch: domain.OrderPatch{}, wantErr: true},
		{name: "zero price", patch: domain.OrderPatch{Price: &zero}, wantErr: true},
		{name: "negative quantity", patch: domain.OrderPatch{Quantity: &negQty}, wantErr: true},
		{name: "blank seller", patch: domain.OrderPatch{SellerID: &blank}, wantErr: true},
		{name: "unknown status", patch: domain.OrderPatch{Status: &bad}, wantErr: true},
		{name: "valid price", patch: domain.OrderPatch{Price: &price}, wantErr: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			errs := tc.patch.Validate()
			if tc.wantErr && len(errs) == 0 {
				t.Fatal("expected validation errors, got none")
			}
			if !tc.wantErr && len(errs) > 0 {
				t.Fatalf("expected no errors, got %v", errs)
			}
		})
	}
}

func TestOrderPatch_NormalizedTrimsReferences(t *testing.T) {
	product, seller := " p2\t", " s2 "
	status := domain.OrderStatusAccepted
	patch := domain.OrderPatch{ProductID: &product, SellerID: &seller, Status: &status}

	normalized := patch.Normalized()

	if *normalized.ProductID != "p2" || *normalized.SellerID != "s2" {
		t.Fatalf("expected trimmed references, got %q %q", *normalized.ProductID, *normalized.SellerID)
	}
	if normalized.CustomerID != nil {
		t.Fatal("absent field must stay nil")
	}
	if *normalized.Status != status {
		t.Fatalf("status changed: %s", *normalized.Status)
	}
	if product != " p2\t" || seller != " s2 " {
		t.Fatal("original patch values must not be modified")
	}
}

func TestNextUpdatedAt(t *testing.T) {
	prev := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	if got := domain.NextUpdatedAt(prev, prev.Add(time.Second)); !got.Equal(prev.Add(time.Second)) {
		t.Fatalf("expected clock value, got %s", got)
	}
	if got := domain.NextUpdatedAt(prev, prev); !got.After(prev) {
		t.Fatalf("expected strictly later value for frozen clock, got %s", got)
	}
	if got := domain.NextUpdatedAt(prev, prev.Add(-time.Hour)); !got.After(prev) {
		t.Fatalf("expected strictly later value for clock skew, got %s", got)
	}
}

func TestCreateOrderInput_Validate(t *testing.T) {
	in := domain.CreateOrderInput{
		Price:      decimal.NewFromInt(50),
		Quantity:   2,
		ProductID:  "p1",
		CustomerID: "c1",
		SellerID:   "s1",
	}
	if errs := in.Validate(); len(errs) != 0 {
		t.Fatalf("expected valid input, got %v", errs)
	}

	in.Quantity = 0
	in.SellerID = ""
	if errs := in.Validate(); len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %v", errs)
	}
}

func TestOrderEventProjection(t *testing.T) {
	order := makeOrder()
	event := order.Event()
	if event.OrderID != order.OrderID || event.Status != order.Status || !event.UpdatedAt.Equal(order.UpdatedAt) {
		t.Fatalf("unexpected event projection: %+v", event)
	}
}
