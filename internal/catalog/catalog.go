package catalog

import (
	"errors"
	"fmt"
	"iter"
	"slices"
	"strings"

	"github.com/deepproteam/marketplace-service/internal/model"
)

// ErrProductNotFound возвращается, когда товара с таким id нет в каталоге
var ErrProductNotFound = errors.New("product not found")

// Predicate — фильтр товаров для листинга
type Predicate func(p model.Product) bool

// Catalog — каталог товаров в памяти
// наполняется один раз при создании (из БД или демо-набора)
// и дальше только читается
type Catalog struct {
	products []model.Product
	byID     map[int64]model.Product
}

// New создаёт каталог из набора товаров
// порядок товаров сохраняется для листинга
func New(products []model.Product) *Catalog {
	byID := make(map[int64]model.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	return &Catalog{
		products: slices.Clone(products),
		byID:     byID,
	}
}

// List возвращает ленивую последовательность товаров, прошедших фильтр
// последовательность можно обходить заново сколько угодно раз
// nil-фильтр пропускает всё
func (c *Catalog) List(filter Predicate) iter.Seq[model.Product] {
	return func(yield func(model.Product) bool) {
		for _, p := range c.products {
			if filter != nil && !filter(p) {
				continue
			}
			if !yield(p) {
				return
			}
		}
	}
}

// Get возвращает товар по id
func (c *Catalog) Get(id int64) (model.Product, bool) {
	p, ok := c.byID[id]
	return p, ok
}

// Len возвращает размер каталога
func (c *Catalog) Len() int {
	return len(c.products)
}

// MatchText — живой поиск по имени и категории, без учёта регистра
func MatchText(query string) Predicate {
	q := strings.ToLower(strings.TrimSpace(query))
	return func(p model.Product) bool {
		if q == "" {
			return true
		}
		return strings.Contains(strings.ToLower(p.Name), q) ||
			strings.Contains(strings.ToLower(p.Category), q)
	}
}

// MatchCategories — фильтр по набору категорий
// пустой набор пропускает всё (ни один чекбокс не отмечен)
func MatchCategories(categories []string) Predicate {
	set := make(map[string]struct{}, len(categories))
	for _, c := range categories {
		set[c] = struct{}{}
	}
	return func(p model.Product) bool {
		if len(set) == 0 {
			return true
		}
		_, ok := set[p.Category]
		return ok
	}
}

// And объединяет фильтры по логическому И
func And(filters ...Predicate) Predicate {
	return func(p model.Product) bool {
		for _, f := range filters {
			if f != nil && !f(p) {
				return false
			}
		}
		return true
	}
}

// BasketAdder — часть контракта корзины, нужная мосту
type BasketAdder interface {
	AddItem(product model.Product, quantity int) error
}

// Bridge связывает каталог с корзиной: кнопка «в корзину»
type Bridge struct {
	catalog *Catalog
	basket  BasketAdder
}

// NewBridge создаёт мост каталог-корзина
func NewBridge(catalog *Catalog, basket BasketAdder) *Bridge {
	return &Bridge{catalog: catalog, basket: basket}
}

// AddToCart находит товар по id и кладёт его в корзину
// неизвестный id даёт ErrProductNotFound, корзина не меняется
func (b *Bridge) AddToCart(productID int64, quantity int) error {
	const op = "catalog.Bridge.AddToCart"

	p, ok := b.catalog.Get(productID)
	if !ok {
		return fmt.Errorf("%s: id=%d: %w", op, productID, ErrProductNotFound)
	}

	if err := b.basket.AddItem(p, quantity); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Demo возвращает демонстрационный каталог
// используется, когда источник каталога недоступен
func Demo() []model.Product {
	return []model.Product{
		{ID: 201, Name: "Enterprise Dashboard UI", Price: 59.00, Category: "UI Kits", Image: "https://images.unsplash.com/photo-1551288049-bbbda536339a?w=400", Rating: 4.9},
		{ID: 202, Name: "SEO Analytics Plugin", Price: 29.00, Category: "Plugins", Image: "https://images.unsplash.com/photo-1460925895917-afdab827c52f?w=400", Rating: 4.7},
		{ID: 203, Name: "Cloud Storage Logic", Price: 89.00, Category: "Business Logic", Image: "https://images.unsplash.com/photo-1563013544-824ae1b704d3?w=400", Rating: 4.5},
		{ID: 204, Name: "Mobile App Wireframes", Price: 35.00, Category: "UI Kits", Image: "https://images.unsplash.com/photo-1512941937669-90a1b58e7e9c?w=400", Rating: 4.8},
	}
}
