package http

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/deepproteam/marketplace-service/internal/basket"
	"github.com/deepproteam/marketplace-service/internal/catalog"
	"github.com/deepproteam/marketplace-service/internal/checkout"
	"github.com/deepproteam/marketplace-service/internal/model"
	"github.com/deepproteam/marketplace-service/internal/storage/localstore"
)

// интерфейсы сервисов объявлены на стороне хэндлера,
// чтобы он не зависел от конкретных реализаций

// ProductCatalog — листинг и выборка товаров
type ProductCatalog interface {
	List(filter catalog.Predicate) iter.Seq[model.Product]
	Get(id int64) (model.Product, bool)
}

// ProductSource — запасной источник товара для промахов каталога в памяти
// (товар добавлен в БД уже после старта); может отсутствовать
type ProductSource interface {
	GetByID(ctx context.Context, id int64) (model.Product, error)
}

// CartBridge — кнопка «в корзину»
type CartBridge interface {
	AddToCart(productID int64, quantity int) error
}

// BasketService — операции над корзиной
type BasketService interface {
	Items() []model.LineItem
	Totals() model.Totals
	Count() int
	RemoveItem(id int64) error
	UpdateQuantity(id int64, delta int) error
	Clear() error
}

// CheckoutService — машина оформления заказа
type CheckoutService interface {
	Enter(ctx context.Context) (checkout.Summary, checkout.State)
	Submit(ctx context.Context, form model.OrderForm) (model.Order, error)
}

// Handler обрабатывает HTTP-запросы витрины
type Handler struct {
	catalog  ProductCatalog
	source   ProductSource // может быть nil
	bridge   CartBridge
	basket   BasketService
	checkout CheckoutService
	log      *slog.Logger
	mux      *http.ServeMux
}

// NewHandler создает новый экземпляр Handler
// source может быть nil — тогда промахи каталога сразу дают 404
func NewHandler(cat ProductCatalog, source ProductSource, bridge CartBridge, basketSvc BasketService, checkoutSvc CheckoutService, log *slog.Logger) *Handler {
	h := &Handler{
		catalog:  cat,
		source:   source,
		bridge:   bridge,
		basket:   basketSvc,
		checkout: checkoutSvc,
		log:      log,
		mux:      http.NewServeMux(),
	}
	h.registerRoutes()
	return h
}

// ServeHTTP делает Handler совместимым с http.Handler
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// registerRoutes регистрирует все эндпоинты
func (h *Handler) registerRoutes() {
	h.mux.HandleFunc("GET /products", h.listProducts)
	h.mux.HandleFunc("GET /products/{id}", h.getProduct)

	h.mux.HandleFunc("GET /basket", h.getBasket)
	h.mux.HandleFunc("POST /basket/items", h.addBasketItem)
	h.mux.HandleFunc("PATCH /basket/items/{id}", h.updateBasketItem)
	h.mux.HandleFunc("DELETE /basket/items/{id}", h.removeBasketItem)
	h.mux.HandleFunc("POST /basket/clear", h.clearBasket)

	h.mux.HandleFunc("GET /checkout", h.getCheckout)
	h.mux.HandleFunc("POST /checkout", h.submitCheckout)
}

// listProducts отдаёт каталог с опциональными фильтрами:
// ?q= — живой поиск, ?category= — повторяемый фильтр категорий
func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := catalog.And(
		catalog.MatchText(query.Get("q")),
		catalog.MatchCategories(query["category"]),
	)

	products := []model.Product{}
	for p := range h.catalog.List(filter) {
		products = append(products, p)
	}

	h.respondJSON(w, http.StatusOK, products)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	p, found := h.catalog.Get(id)
	if !found {
		// промах каталога в памяти: пробуем запасной источник,
		// товар мог появиться в БД после старта
		if h.source == nil {
			h.respondError(w, http.StatusNotFound, "product not found")
			return
		}

		var err error
		p, err = h.source.GetByID(r.Context(), id)
		if err != nil {
			if errors.Is(err, catalog.ErrProductNotFound) {
				h.respondError(w, http.StatusNotFound, "product not found")
				return
			}
			h.log.Error("product source failed", slog.String("error", err.Error()))
			h.respondError(w, http.StatusInternalServerError, "internal server error")
			return
		}
	}

	h.respondJSON(w, http.StatusOK, p)
}

// basketView — ответ для страниц корзины: позиции, суммы и бейдж
// warning заполняется, когда снимок не удалось сохранить,
// но корзина в памяти актуальна
type basketView struct {
	Items   []model.LineItem `json:"items"`
	Totals  model.Totals     `json:"totals"`
	Count   int              `json:"count"`
	Warning string           `json:"warning,omitempty"`
}

func (h *Handler) basketView(warning string) basketView {
	items := h.basket.Items()
	if items == nil {
		items = []model.LineItem{}
	}
	return basketView{
		Items:   items,
		Totals:  h.basket.Totals(),
		Count:   h.basket.Count(),
		Warning: warning,
	}
}

func (h *Handler) getBasket(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.basketView(""))
}

func (h *Handler) addBasketItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProductID int64 `json:"product_id"`
		Quantity  *int  `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// отсутствующее поле — количество по умолчанию,
	// а явный ноль доходит до корзины и отклоняется как невалидный
	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}

	err := h.bridge.AddToCart(req.ProductID, quantity)
	h.respondBasketMutation(w, http.StatusCreated, err)
}

func (h *Handler) updateBasketItem(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	var req struct {
		Delta int `json:"delta"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := h.basket.UpdateQuantity(id, req.Delta)
	h.respondBasketMutation(w, http.StatusOK, err)
}

func (h *Handler) removeBasketItem(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	err := h.basket.RemoveItem(id)
	h.respondBasketMutation(w, http.StatusOK, err)
}

func (h *Handler) clearBasket(w http.ResponseWriter, r *http.Request) {
	err := h.basket.Clear()
	h.respondBasketMutation(w, http.StatusOK, err)
}

// respondBasketMutation — единая схема ответа на мутации корзины
// ошибки валидации — 4xx без мутации; отказ хранилища — не ошибка запроса,
// а предупреждение: состояние в памяти актуально и отдаётся клиенту
func (h *Handler) respondBasketMutation(w http.ResponseWriter, okStatus int, err error) {
	switch {
	case err == nil:
		h.respondJSON(w, okStatus, h.basketView(""))
	case errors.Is(err, catalog.ErrProductNotFound):
		h.respondError(w, http.StatusNotFound, "product not found")
	case errors.Is(err, basket.ErrInvalidProduct):
		h.respondError(w, http.StatusBadRequest, "invalid product or quantity")
	case errors.Is(err, localstore.ErrStorageFull), errors.Is(err, localstore.ErrCorruptState):
		h.respondJSON(w, okStatus, h.basketView("basket storage is unavailable, changes may not survive a restart"))
	default:
		h.log.Error("basket mutation failed", slog.String("error", err.Error()))
		h.respondError(w, http.StatusInternalServerError, "internal server error")
	}
}

// getCheckout открывает оформление заказа и отдаёт сводку
// пустая корзина — не ошибка, а указание витрине уйти в каталог
func (h *Handler) getCheckout(w http.ResponseWriter, r *http.Request) {
	summary, state := h.checkout.Enter(r.Context())
	if state == checkout.StateEmpty {
		h.respondJSON(w, http.StatusOK, map[string]string{
			"state":    string(state),
			"redirect": "/products",
		})
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]any{
		"state":   string(state),
		"summary": summary,
	})
}

func (h *Handler) submitCheckout(w http.ResponseWriter, r *http.Request) {
	var form model.OrderForm
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.checkout.Submit(r.Context(), form)
	if err != nil {
		switch {
		case errors.Is(err, checkout.ErrInvalidOrderForm):
			h.respondError(w, http.StatusUnprocessableEntity, "order form is invalid")
		case errors.Is(err, checkout.ErrSubmissionInProgress):
			// дубликат двойного клика: UI просто игнорирует этот ответ
			h.respondError(w, http.StatusConflict, "submission already in progress")
		case errors.Is(err, checkout.ErrEmptyBasket):
			h.respondError(w, http.StatusConflict, "basket is empty")
		default:
			h.log.Error("order submission failed", slog.String("error", err.Error()))
			h.respondError(w, http.StatusBadGateway, "order could not be submitted")
		}
		return
	}

	h.respondJSON(w, http.StatusCreated, order)
}

// pathID извлекает числовой {id} из пути
func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "id must be an integer")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		h.log.Error("failed to marshal JSON response", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": "internal server error"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(response)
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
