package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepproteam/marketplace-service/internal/basket"
	"github.com/deepproteam/marketplace-service/internal/catalog"
	"github.com/deepproteam/marketplace-service/internal/checkout"
	"github.com/deepproteam/marketplace-service/internal/model"
)

// mapStorage — хранилище в памяти для тестов хэндлера
type mapStorage struct {
	data map[string][]byte
}

func (m *mapStorage) Save(key string, value any) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.data[key] = b
	return nil
}

func (m *mapStorage) Load(key string, dest any) (bool, error) {
	b, ok := m.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dest)
}

func (m *mapStorage) Remove(key string) error {
	delete(m.data, key)
	return nil
}

func newTestHandler(t *testing.T) (*Handler, *basket.Store) {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	store := basket.NewStore(&mapStorage{data: map[string][]byte{}}, log)
	require.NoError(t, store.Initialize())

	cat := catalog.New(catalog.Demo())
	bridge := catalog.NewBridge(cat, store)
	orch := checkout.NewOrchestrator(store, checkout.LocalSubmitter{}, nil, 0, log)

	return NewHandler(cat, nil, bridge, store, orch, log), store
}

// fakeSource — запасной источник товаров поверх map
type fakeSource struct {
	products map[int64]model.Product
	err      error
}

func (f *fakeSource) GetByID(_ context.Context, id int64) (model.Product, error) {
	if f.err != nil {
		return model.Product{}, f.err
	}
	p, ok := f.products[id]
	if !ok {
		return model.Product{}, catalog.ErrProductNotFound
	}
	return p, nil
}

func doJSON(t *testing.T, h http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

// TestListProducts: листинг целиком и с фильтрами
func TestListProducts(t *testing.T) {
	t.Parallel()

	h, _ := newTestHandler(t)

	rec := doJSON(t, h, http.MethodGet, "/products", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	all := decodeBody[[]model.Product](t, rec)
	assert.Len(t, all, 4)

	rec = doJSON(t, h, http.MethodGet, "/products?q=dashboard", nil)
	byText := decodeBody[[]model.Product](t, rec)
	require.Len(t, byText, 1)
	assert.Equal(t, int64(201), byText[0].ID)

	rec = doJSON(t, h, http.MethodGet, "/products?category=UI+Kits&category=Plugins", nil)
	byCat := decodeBody[[]model.Product](t, rec)
	assert.Len(t, byCat, 3)

	rec = doJSON(t, h, http.MethodGet, "/products?q=nothing+here", nil)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
}

// TestGetProduct: выборка по id и ошибки пути
func TestGetProduct(t *testing.T) {
	t.Parallel()

	h, _ := newTestHandler(t)

	rec := doJSON(t, h, http.MethodGet, "/products/203", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	p := decodeBody[model.Product](t, rec)
	assert.Equal(t, "Cloud Storage Logic", p.Name)

	rec = doJSON(t, h, http.MethodGet, "/products/999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/products/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// TestGetProduct_SourceFallback: промах каталога в памяти
// уходит в запасной источник
func TestGetProduct_SourceFallback(t *testing.T) {
	t.Parallel()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := basket.NewStore(&mapStorage{data: map[string][]byte{}}, log)
	require.NoError(t, store.Initialize())

	cat := catalog.New(catalog.Demo())
	source := &fakeSource{products: map[int64]model.Product{
		301: {ID: 301, Name: "Fresh Arrival", Price: 12.50, Category: "Plugins"},
	}}
	h := NewHandler(cat, source, catalog.NewBridge(cat, store), store,
		checkout.NewOrchestrator(store, checkout.LocalSubmitter{}, nil, 0, log), log)

	// товар из каталога в памяти отдаётся без похода в источник
	rec := doJSON(t, h, http.MethodGet, "/products/201", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// промах каталога закрывается источником
	rec = doJSON(t, h, http.MethodGet, "/products/301", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	p := decodeBody[model.Product](t, rec)
	assert.Equal(t, "Fresh Arrival", p.Name)

	// нет нигде — 404
	rec = doJSON(t, h, http.MethodGet, "/products/999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// отказ источника — внутренняя ошибка, а не 404
	source.err = errors.New("connection refused")
	rec = doJSON(t, h, http.MethodGet, "/products/302", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

// TestAddBasketItem: добавление в корзину через мост
func TestAddBasketItem(t *testing.T) {
	t.Parallel()

	h, _ := newTestHandler(t)

	rec := doJSON(t, h, http.MethodPost, "/basket/items", map[string]any{"product_id": 201, "quantity": 2})
	require.Equal(t, http.StatusCreated, rec.Code)
	view := decodeBody[basketView](t, rec)
	require.Len(t, view.Items, 1)
	assert.Equal(t, 2, view.Count)
	assert.InDelta(t, 118.00, view.Totals.Subtotal, 0.001)

	// количество по умолчанию — единица
	rec = doJSON(t, h, http.MethodPost, "/basket/items", map[string]any{"product_id": 201})
	view = decodeBody[basketView](t, rec)
	assert.Equal(t, 3, view.Count)
	assert.Len(t, view.Items, 1)
}

// TestAddBasketItem_Errors: неизвестный товар и некорректное количество
func TestAddBasketItem_Errors(t *testing.T) {
	t.Parallel()

	h, store := newTestHandler(t)

	rec := doJSON(t, h, http.MethodPost, "/basket/items", map[string]any{"product_id": 999})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/basket/items", map[string]any{"product_id": 201, "quantity": -3})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// явный ноль — не то же самое, что отсутствующее поле
	rec = doJSON(t, h, http.MethodPost, "/basket/items", map[string]any{"product_id": 201, "quantity": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Empty(t, store.Items())
}

// TestUpdateAndRemoveBasketItem: дельты количества и удаление
func TestUpdateAndRemoveBasketItem(t *testing.T) {
	t.Parallel()

	h, _ := newTestHandler(t)
	doJSON(t, h, http.MethodPost, "/basket/items", map[string]any{"product_id": 202, "quantity": 2})

	rec := doJSON(t, h, http.MethodPatch, "/basket/items/202", map[string]any{"delta": -1})
	require.Equal(t, http.StatusOK, rec.Code)
	view := decodeBody[basketView](t, rec)
	assert.Equal(t, 1, view.Count)

	// дельта в ноль и ниже удаляет позицию
	rec = doJSON(t, h, http.MethodPatch, "/basket/items/202", map[string]any{"delta": -5})
	view = decodeBody[basketView](t, rec)
	assert.Empty(t, view.Items)

	// удаление отсутствующей позиции — no-op
	rec = doJSON(t, h, http.MethodDelete, "/basket/items/999", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

// TestClearBasket: очистка корзины
func TestClearBasket(t *testing.T) {
	t.Parallel()

	h, store := newTestHandler(t)
	doJSON(t, h, http.MethodPost, "/basket/items", map[string]any{"product_id": 201})

	rec := doJSON(t, h, http.MethodPost, "/basket/clear", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, store.Items())
}

// TestCheckout_EmptyRedirect: оформление при пустой корзине
// отдаёт указание уйти в каталог
func TestCheckout_EmptyRedirect(t *testing.T) {
	t.Parallel()

	h, _ := newTestHandler(t)

	rec := doJSON(t, h, http.MethodGet, "/checkout", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[map[string]string](t, rec)
	assert.Equal(t, "empty", resp["state"])
	assert.Equal(t, "/products", resp["redirect"])
}

// TestCheckout_Flow: сводка, подтверждение, очистка корзины
func TestCheckout_Flow(t *testing.T) {
	t.Parallel()

	h, store := newTestHandler(t)
	doJSON(t, h, http.MethodPost, "/basket/items", map[string]any{"product_id": 201, "quantity": 1})

	rec := doJSON(t, h, http.MethodGet, "/checkout", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"state":"idle"`)

	form := map[string]any{
		"name": "Ivan Ivanov", "email": "ivan@example.com", "phone": "+20100000000",
		"address": "Mira street 15", "city": "Cairo", "zip": "2639809",
	}
	rec = doJSON(t, h, http.MethodPost, "/checkout", form)
	require.Equal(t, http.StatusCreated, rec.Code)
	order := decodeBody[model.Order](t, rec)
	assert.True(t, strings.HasPrefix(order.OrderID, "DPT-"))
	assert.InDelta(t, 64.90, order.Total, 0.001)
	assert.Empty(t, store.Items())

	// корзина очищена — повторная отправка отклоняется
	rec = doJSON(t, h, http.MethodPost, "/checkout", form)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

// TestCheckout_InvalidForm: невалидная форма — 422, корзина не тронута
func TestCheckout_InvalidForm(t *testing.T) {
	t.Parallel()

	h, store := newTestHandler(t)
	doJSON(t, h, http.MethodPost, "/basket/items", map[string]any{"product_id": 201})

	rec := doJSON(t, h, http.MethodPost, "/checkout", map[string]any{"name": "Ivan"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Len(t, store.Items(), 1)
}
