package httpapi

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/order-lifecycle/internal/domain"
)

type createOrderRequest struct {
	OrderID    string          `json:"orderId"`
	Price      decimal.Decimal `json:"price"`
	Quantity   int64           `json:"quantity"`
	ProductID  string          `json:"productId"`
	CustomerID string          `json:"customerId"`
	SellerID   string          `json:"sellerId"`
}

func (r createOrderRequest) toInput() domain.CreateOrderInput {
	return domain.CreateOrderInput{
		OrderID:    r.OrderID,
		Price:      r.Price,
		Quantity:   r.Quantity,
		ProductID:  r.ProductID,
		CustomerID: r.CustomerID,
		SellerID:   r.SellerID,
	}
}

type updateOrderRequest struct {
	Price      *decimal.Decimal `json:"price"`
	Quantity   *int64           `json:"quantity"`
	ProductID  *string          `json:"productId"`
	CustomerID *string          `json:"customerId"`
	SellerID   *string          `json:"sellerId"`
	Status     *string          `json:"status"`
}

func (r updateOrderRequest) toPatch() (domain.OrderPatch, error) {
	patch := domain.OrderPatch{
		Price:      r.Price,
		Quantity:   r.Quantity,
		ProductID:  r.ProductID,
		CustomerID: r.CustomerID,
		SellerID:   r.SellerID,
	}
	if r.Status != nil {
		status, err := domain.ParseOrderStatus(*r.Status)
		if err != nil {
			return domain.OrderPatch{}, domain.ValidationFailure([]error{err})
		}
		patch.Status = &status
	}
	return patch, nil
}

// orderResponse отдаёт цену JSON-числом, как и принимает.
type orderResponse struct {
	OrderID    string      `json:"orderId"`
	Price      json.Number `json:"price"`
	Quantity   int64       `json:"quantity"`
	ProductID  string      `json:"productId"`
	CustomerID string      `json:"customerId"`
	SellerID   string      `json:"sellerId"`
	Status     string      `json:"status"`
	CreatedAt  time.Time   `json:"createdAt"`
	UpdatedAt  time.Time   `json:"updatedAt"`
}

func toResponse(order domain.Order) orderResponse {
	return orderResponse{
		OrderID:    order.OrderID,
		Price:      json.Number(order.Price.String()),
		Quantity:   order.Quantity,
		ProductID:  order.ProductID,
		CustomerID: order.CustomerID,
		SellerID:   order.SellerID,
		Status:     string(order.Status),
		CreatedAt:  order.CreatedAt,
		UpdatedAt:  order.UpdatedAt,
	}
}

func toResponses(orders []domain.Order) []orderResponse {
	out := make([]orderResponse, 0, len(orders))
	for _, order := range orders {
		out = append(out, toResponse(order))
	}
	return out
}

type errorResponse struct {
	Error string `json:"error"`
}
