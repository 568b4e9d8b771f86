package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// OrderStatusCreated: заказ создан и ждёт решения продавца.
	OrderStatusCreated OrderStatus = "Created"
	// OrderStatusAccepted: продавец принял заказ.
	OrderStatusAccepted OrderStatus = "Accepted"
	// OrderStatusRejected: продавец отклонил заказ.
	OrderStatusRejected OrderStatus = "Rejected"
	// OrderStatusShippingInProgress: заказ передан в доставку.
	OrderStatusShippingInProgress OrderStatus = "ShippingInProgress"
	// OrderStatusShipped: заказ доставлен.
	OrderStatusShipped OrderStatus = "Shipped"
)

// legacyShippingInProgress: написание статуса в старых клиентах.
const legacyShippingInProgress = "Shipping in progress"

// OrderStatuses возвращает все поддерживаемые статусы в порядке жизненного цикла.
func OrderStatuses() []OrderStatus {
	return []OrderStatus{
		OrderStatusCreated,
		OrderStatusAccepted,
		OrderStatusRejected,
		OrderStatusShippingInProgress,
		OrderStatusShipped,
	}
}

// Valid проверяет, что статус относится к перечислению.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusCreated, OrderStatusAccepted, OrderStatusRejected,
		OrderStatusShippingInProgress, OrderStatusShipped:
		return true
	default:
		return false
	}
}

// ParseOrderStatus разбирает статус из внешнего представления.
// Старое написание "Shipping in progress" нормализуется.
func ParseOrderStatus(raw string) (OrderStatus, error) {
	value := strings.TrimSpace(raw)
	if value == legacyShippingInProgress {
		return OrderStatusShippingInProgress, nil
	}
	status := OrderStatus(value)
	if !status.Valid() {
		return "", ErrStatusInvalid
	}
	return status, nil
}

// Order: заказ покупателя у продавца на конкретный товар.
type Order struct {
	OrderID    string
	Price      decimal.Decimal
	Quantity   int64
	ProductID  string
	CustomerID string
	SellerID   string
	Status     OrderStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ValidateInvariants проверяет инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error
	if o.OrderID == "" {
		errs = append(errs, ErrOrderIDRequired)
	}
	errs = append(errs, validateFields(o.Price, o.Quantity, o.ProductID, o.CustomerID, o.SellerID)...)
	if !o.Status.Valid() {
		errs = append(errs, ErrStatusInvalid)
	}
	if o.UpdatedAt.Before(o.CreatedAt) {
		errs = append(errs, ErrTimestampsInvalid)
	}
	return errs
}

// Event строит проекцию заказа для публикации.
func (o Order) Event() OrderEvent {
	return OrderEvent{
		OrderID:   o.OrderID,
		Status:    o.Status,
		UpdatedAt: o.UpdatedAt,
	}
}

// OrderPatch: частичное обновление заказа; nil-поля не трогаются.
type OrderPatch struct {
	Price      *decimal.Decimal
	Quantity   *int64
	ProductID  *string
	CustomerID *string
	SellerID   *string
	Status     *OrderStatus
}

// Empty сообщает, что патч ничего не меняет.
func (p OrderPatch) Empty() bool {
	return p.Price == nil && p.Quantity == nil && p.ProductID == nil &&
		p.CustomerID == nil && p.SellerID == nil && p.Status == nil
}

// Validate проверяет только переданные поля.
func (p OrderPatch) Validate() []error {
	var errs []error
	if p.Empty() {
		return []error{ErrPatchEmpty}
	}
	if p.Price != nil && !p.Price.IsPositive() {
		errs = append(errs, ErrPriceInvalid)
	}
	if p.Quantity != nil && *p.Quantity <= 0 {
		errs = append(errs, ErrQuantityInvalid)
	}
	if p.ProductID != nil && strings.TrimSpace(*p.ProductID) == "" {
		errs = append(errs, ErrProductRequired)
	}
	if p.CustomerID != nil && strings.TrimSpace(*p.CustomerID) == "" {
		errs = append(errs, ErrCustomerRequired)
	}
	if p.SellerID != nil && strings.TrimSpace(*p.SellerID) == "" {
		errs = append(errs, ErrSellerRequired)
	}
	if p.Status != nil && !p.Status.Valid() {
		errs = append(errs, ErrStatusInvalid)
	}
	return errs
}

// Normalized возвращает копию патча с обрезанными пробелами в строковых
// полях, как при создании заказа.
func (p OrderPatch) Normalized() OrderPatch {
	p.ProductID = trimmedPtr(p.ProductID)
	p.CustomerID = trimmedPtr(p.CustomerID)
	p.SellerID = trimmedPtr(p.SellerID)
	return p
}

func trimmedPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

// Apply возвращает копию заказа с применёнными полями патча и новым updatedAt.
func (p OrderPatch) Apply(order Order, updatedAt time.Time) Order {
	if p.Price != nil {
		order.Price = *p.Price
	}
	if p.Quantity != nil {
		order.Quantity = *p.Quantity
	}
	if p.ProductID != nil {
		order.ProductID = *p.ProductID
	}
	if p.CustomerID != nil {
		order.CustomerID = *p.CustomerID
	}
	if p.SellerID != nil {
		order.SellerID = *p.SellerID
	}
	if p.Status != nil {
		order.Status = *p.Status
	}
	order.UpdatedAt = updatedAt
	return order
}

// NextUpdatedAt возвращает момент обновления строго после prev.
// Если часы не сдвинулись (или пошли назад), берётся prev + 1µs:
// Postgres хранит время с микросекундной точностью.
func NextUpdatedAt(prev, now time.Time) time.Time {
	if now.After(prev) && now.Sub(prev) >= time.Microsecond {
		return now
	}
	return prev.Add(time.Microsecond)
}

// CreateOrderInput: данные для создания заказа.
// OrderID необязателен: если пуст, идентификатор генерирует сервис.
type CreateOrderInput struct {
	OrderID    string
	Price      decimal.Decimal
	Quantity   int64
	ProductID  string
	CustomerID string
	SellerID   string
}

// Validate проверяет входные данные создания.
func (in CreateOrderInput) Validate() []error {
	return validateFields(in.Price, in.Quantity, in.ProductID, in.CustomerID, in.SellerID)
}

func validateFields(price decimal.Decimal, qty int64, productID, customerID, sellerID string) []error {
	var errs []error
	if !price.IsPositive() {
		errs = append(errs, ErrPriceInvalid)
	}
	if qty <= 0 {
		errs = append(errs, ErrQuantityInvalid)
	}
	if strings.TrimSpace(productID) == "" {
		errs = append(errs, ErrProductRequired)
	}
	if strings.TrimSpace(customerID) == "" {
		errs = append(errs, ErrCustomerRequired)
	}
	if strings.TrimSpace(sellerID) == "" {
		errs = append(errs, ErrSellerRequired)
	}
	return errs
}

// ValidationFailure собирает замечания в одну ошибку, распознаваемую через ErrValidation.
func ValidationFailure(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(append([]error{ErrValidation}, errs...)...)
}
