package domain

// TransitionPolicy решает, допустим ли переход статуса при обновлении.
type TransitionPolicy interface {
	Allowed(from, to OrderStatus) bool
}

// PermissiveTransitions разрешает любую запись статуса из перечисления.
type PermissiveTransitions struct{}

// Allowed разрешает переход в любой валидный статус.
func (PermissiveTransitions) Allowed(_, to OrderStatus) bool {
	return to.Valid()
}

// StrictTransitions следует графу
// Created → {Accepted, Rejected}, Accepted → ShippingInProgress → Shipped.
// Запись того же статуса допускается.
type StrictTransitions struct{}

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusCreated:            {OrderStatusAccepted, OrderStatusRejected},
	OrderStatusAccepted:           {OrderStatusShippingInProgress},
	OrderStatusShippingInProgress: {OrderStatusShipped},
}

// Allowed проверяет переход from -> to по графу статусов.
func (StrictTransitions) Allowed(from, to OrderStatus) bool {
	if !to.Valid() {
		return false
	}
	if from == to {
		return true
	}
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

var (
	_ TransitionPolicy = PermissiveTransitions{}
	_ TransitionPolicy = StrictTransitions{}
)
