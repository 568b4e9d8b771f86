package domain

import "errors"

var (
	// ErrValidation: общий вид ошибок некорректного ввода.
	ErrValidation = errors.New("validation failed")
	// Ошибка отсутствующего идентификатора заказа.
	ErrOrderIDRequired = errors.New("order_id is required")
	// Ошибка неположительной цены.
	ErrPriceInvalid = errors.New("price must be greater than zero")
	// Ошибка неположительного количества.
	ErrQuantityInvalid = errors.New("quantity must be greater than zero")
	// Ошибка отсутствующего идентификатора товара.
	ErrProductRequired = errors.New("product_id is required")
	// Ошибка отсутствующего идентификатора клиента.
	ErrCustomerRequired = errors.New("customer_id is required")
	// Ошибка отсутствующего идентификатора продавца.
	ErrSellerRequired = errors.New("seller_id is required")
	// Ошибка статуса вне перечисления.
	ErrStatusInvalid = errors.New("status is not supported")
	// Ошибка пустого патча.
	ErrPatchEmpty = errors.New("update must contain at least one field")
	// Ошибка updatedAt раньше createdAt.
	ErrTimestampsInvalid = errors.New("updated_at must not be before created_at")
	// ErrInvalidTransition: переход статуса запрещён строгой политикой.
	ErrInvalidTransition = errors.New("status transition is not allowed")

	// ErrDuplicateKey возвращается при повторном order_id.
	ErrDuplicateKey = errors.New("order already exists")
	// ErrOrderNotFound возвращается, если заказа с таким order_id нет.
	ErrOrderNotFound = errors.New("order not found")
	// ErrStore: сбой хранилища (I/O, драйвер), не повторяется автоматически.
	ErrStore = errors.New("order store failure")
	// ErrPublish: ошибка доставки события в брокер.
	ErrPublish = errors.New("event publish failed")
)

// IsValidation проверяет, относится ли ошибка к некорректному вводу.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrInvalidTransition)
}

// IsNotFound проверяет, что заказ не найден.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrOrderNotFound)
}

// IsDuplicateKey проверяет коллизию order_id.
func IsDuplicateKey(err error) bool {
	return errors.Is(err, ErrDuplicateKey)
}
