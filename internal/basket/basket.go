package basket

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/deepproteam/marketplace-service/internal/model"
)

// StorageKey — ключ, под которым хранится снимок корзины
// исторически совпадает с ключом браузерного клиента
const StorageKey = "dpt_basket"

// ErrInvalidProduct возвращается при попытке положить в корзину товар
// без идентификатора, с отрицательной ценой или неположительным количеством
var ErrInvalidProduct = errors.New("invalid product")

// Storage определяет контракт адаптера персистентности
// интерфейс объявлен на стороне потребителя, чтобы корзина
// тестировалась без реального хранилища
type Storage interface {
	Save(key string, value any) error
	Load(key string, dest any) (bool, error)
	Remove(key string) error
}

// Store владеет позициями корзины и является единственным
// источником правды для каталога, оформления заказа и отображения
type Store struct {
	mu      sync.Mutex
	items   []model.LineItem
	storage Storage
	key     string
	log     *slog.Logger

	// подписчики уведомляются после каждой мутации,
	// уже после сброса снимка в хранилище
	subscribers []func(items []model.LineItem)
}

// NewStore создаёт корзину с внедрённым адаптером персистентности
func NewStore(storage Storage, log *slog.Logger) *Store {
	return &Store{
		storage: storage,
		key:     StorageKey,
		log:     log,
	}
}

// Initialize загружает снимок корзины из хранилища
// отсутствующий снимок означает пустую корзину; битый снимок
// откатывает корзину к пустой и возвращает ошибку для уведомления,
// но корзина остаётся рабочей
// вызов идемпотентен и безопасен при повторах (раз на загрузку страницы)
func (s *Store) Initialize() error {
	const op = "basket.Store.Initialize"

	s.mu.Lock()
	defer s.mu.Unlock()

	var items []model.LineItem
	found, err := s.storage.Load(s.key, &items)
	if err != nil {
		s.items = nil
		s.log.Warn("basket snapshot is unreadable, falling back to empty",
			slog.String("op", op), slog.String("error", err.Error()))
		return fmt.Errorf("%s: %w", op, err)
	}
	if !found {
		s.items = nil
		return nil
	}

	s.items = items
	s.log.Debug("basket restored from storage", slog.String("op", op), slog.Int("lines", len(items)))
	return nil
}

// AddItem кладёт товар в корзину
// если позиция с тем же id уже есть, её количество увеличивается,
// дубликат не создаётся; иначе добавляется новая позиция,
// отсутствующие vendor/tag заменяются платформенными значениями
// неположительное количество отклоняется целиком, без частичной мутации
func (s *Store) AddItem(product model.Product, quantity int) error {
	const op = "basket.Store.AddItem"

	if product.ID <= 0 || product.Price < 0 || quantity < 1 {
		return fmt.Errorf("%s: id=%d price=%.2f quantity=%d: %w",
			op, product.ID, product.Price, quantity, ErrInvalidProduct)
	}

	s.mu.Lock()

	idx := slices.IndexFunc(s.items, func(it model.LineItem) bool { return it.ID == product.ID })
	if idx >= 0 {
		s.items[idx].Quantity += quantity
	} else {
		line := model.LineItem{
			ID:       product.ID,
			Name:     product.Name,
			Price:    product.Price,
			Quantity: quantity,
			Vendor:   product.Vendor,
			Tag:      product.Tag,
			Image:    product.Image,
		}
		if line.Vendor == "" {
			line.Vendor = model.DefaultVendor
		}
		if line.Tag == "" {
			line.Tag = model.DefaultTag
		}
		s.items = append(s.items, line)
	}

	return s.flushAndNotifyUnlock(op)
}

// RemoveItem удаляет позицию по id
// отсутствие позиции — это no-op, а не ошибка
func (s *Store) RemoveItem(id int64) error {
	const op = "basket.Store.RemoveItem"

	s.mu.Lock()

	idx := slices.IndexFunc(s.items, func(it model.LineItem) bool { return it.ID == id })
	if idx < 0 {
		s.mu.Unlock()
		return nil
	}
	s.items = slices.Delete(s.items, idx, idx+1)

	return s.flushAndNotifyUnlock(op)
}

// UpdateQuantity прибавляет delta (может быть отрицательной) к количеству
// если количество падает до нуля и ниже — позиция удаляется
// неизвестный id — no-op
func (s *Store) UpdateQuantity(id int64, delta int) error {
	const op = "basket.Store.UpdateQuantity"

	s.mu.Lock()

	idx := slices.IndexFunc(s.items, func(it model.LineItem) bool { return it.ID == id })
	if idx < 0 {
		s.mu.Unlock()
		return nil
	}

	s.items[idx].Quantity += delta
	if s.items[idx].Quantity <= 0 {
		s.items = slices.Delete(s.items, idx, idx+1)
	}

	return s.flushAndNotifyUnlock(op)
}

// Clear опустошает корзину и сохраняет пустое состояние
// используется после успешного оформления заказа; идемпотентен
func (s *Store) Clear() error {
	const op = "basket.Store.Clear"

	s.mu.Lock()

	s.items = nil
	return s.flushAndNotifyUnlock(op)
}

// Items возвращает копию позиций корзины в порядке добавления
func (s *Store) Items() []model.LineItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.items)
}

// Count возвращает суммарное количество товаров — значение для бейджа корзины
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0
	for _, it := range s.items {
		total += it.Quantity
	}
	return total
}

// Totals пересчитывает суммы из текущих позиций
// округление до двух знаков — только для отображения,
// промежуточная арифметика не округляется
func (s *Store) Totals() model.Totals {
	s.mu.Lock()
	defer s.mu.Unlock()

	return totalsOf(s.items)
}

// OnChange регистрирует подписчика на изменения корзины
// подписчик получает копию позиций и не может повлиять на состояние
// подписчик вызывается без внутренней блокировки и может читать Store
func (s *Store) OnChange(fn func(items []model.LineItem)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.subscribers = append(s.subscribers, fn)
}

// flushAndNotifyUnlock сбрасывает снимок в хранилище, отпускает mu
// и затем уведомляет подписчиков
// порядок фиксированный: сначала запись, потом уведомление,
// чтобы состояние не терялось при уходе со страницы
// подписчики вызываются уже без mu — им можно читать Store
// ошибка хранилища не откатывает состояние в памяти —
// она возвращается вызывающему как повод показать уведомление
// вызывается строго под mu
func (s *Store) flushAndNotifyUnlock(op string) error {
	snapshot := slices.Clone(s.items)
	if snapshot == nil {
		// пустая корзина сохраняется как пустой массив, а не null
		snapshot = []model.LineItem{}
	}

	saveErr := s.storage.Save(s.key, snapshot)
	if saveErr != nil {
		s.log.Warn("failed to persist basket snapshot",
			slog.String("op", op), slog.String("error", saveErr.Error()))
		saveErr = fmt.Errorf("%s: %w", op, saveErr)
	}

	subscribers := slices.Clone(s.subscribers)
	s.mu.Unlock()

	for _, fn := range subscribers {
		fn(snapshot)
	}

	return saveErr
}

func totalsOf(items []model.LineItem) model.Totals {
	var subtotal float64
	for _, it := range items {
		subtotal += it.Price * float64(it.Quantity)
	}
	tax := subtotal * model.TaxRate

	return model.Totals{
		Subtotal: model.Round2(subtotal),
		Tax:      model.Round2(tax),
		Total:    model.Round2(subtotal + tax),
	}
}
