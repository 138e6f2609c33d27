package model

import (
	"math"
	"time"

	"github.com/go-playground/validator/v10"
)

// параметры платформы Deepproteam
// налоговая ставка фиксированная, значения по умолчанию подставляются,
// когда каталог не сообщает продавца или метку товара
const (
	TaxRate       = 0.10
	DefaultVendor = "Deepproteam Elite"
	DefaultTag    = "Product"
)

// Product представляет товар каталога
// теги validate используются при приёме товара из внешнего источника каталога
type Product struct {
	ID       int64   `json:"id" validate:"required"`
	Name     string  `json:"name" validate:"required"`
	Price    float64 `json:"price" validate:"gte=0"`
	Category string  `json:"category"`
	Vendor   string  `json:"vendor"`
	Tag      string  `json:"tag"`
	Image    string  `json:"image"`
	Rating   float64 `json:"rating"`
}

// LineItem — одна позиция корзины: товар и его количество
// набор полей совпадает с сохраняемым снимком корзины
type LineItem struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
	Vendor   string  `json:"vendor"`
	Tag      string  `json:"tag"`
	Image    string  `json:"image"`
}

// Totals — производные суммы корзины
// значения всегда пересчитываются из позиций, нигде не кэшируются
type Totals struct {
	Subtotal float64 `json:"subtotal"`
	Tax      float64 `json:"tax"`
	Total    float64 `json:"total"`
}

// OrderForm содержит данные формы оформления заказа
type OrderForm struct {
	Name    string `json:"name" validate:"required"`
	Email   string `json:"email" validate:"required,email"`
	Phone   string `json:"phone" validate:"required"`
	Address string `json:"address" validate:"required"`
	City    string `json:"city" validate:"required"`
	Zip     string `json:"zip" validate:"required"`
}

// Order — оформленный заказ
// существует только в момент подтверждения: локально не сохраняется,
// а передаётся коллаборатору для долговременного хранения
type Order struct {
	OrderID   string     `json:"order_id"`
	Lines     []LineItem `json:"lines"`
	Total     float64    `json:"total"`
	CreatedAt time.Time  `json:"created_at"`
}

var validate = validator.New()

// Validate проверяет корректность формы заказа на основе тегов validate
func (f *OrderForm) Validate() error {
	return validate.Struct(f)
}

// Validate проверяет корректность товара, полученного от источника каталога
func (p *Product) Validate() error {
	return validate.Struct(p)
}

// Round2 округляет сумму до двух знаков — только для отображения,
// внутренняя арифметика ведётся на неокруглённых значениях
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
