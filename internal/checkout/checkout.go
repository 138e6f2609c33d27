package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/deepproteam/marketplace-service/internal/model"
)

// ошибки оформления заказа
var (
	ErrInvalidOrderForm     = errors.New("invalid order form")
	ErrSubmissionInProgress = errors.New("submission already in progress")
	ErrEmptyBasket          = errors.New("basket is empty")
)

// State — состояние машины оформления заказа
type State string

const (
	StateEmpty      State = "empty"
	StateIdle       State = "idle"
	StateSubmitting State = "submitting"
	StateConfirmed  State = "confirmed"
)

// Basket — часть контракта корзины, нужная оформлению заказа
type Basket interface {
	Items() []model.LineItem
	Totals() model.Totals
	Clear() error
}

// OrderSubmitter передаёт подтверждённый заказ коллаборатору
// и возвращает идентификатор заказа
// демо-реализация (LocalSubmitter) фабрикует идентификатор локально,
// боевая публикует заказ во внешнюю систему — машина состояний
// от реализации не зависит
type OrderSubmitter interface {
	SubmitOrder(ctx context.Context, order model.Order) (string, error)
}

// RateSource отдаёт отображаемый курс конвертации
// источник строго best-effort: его отказ не влияет на оформление заказа
type RateSource interface {
	CoinPerEGP(ctx context.Context) (float64, error)
}

// Summary — сводка заказа для чтения в состоянии Idle
type Summary struct {
	Lines     []model.LineItem `json:"lines"`
	Totals    model.Totals     `json:"totals"`
	CoinTotal float64          `json:"coin_total,omitempty"`
}

// Orchestrator ведёт заказ по состояниям Empty/Idle/Submitting/Confirmed
type Orchestrator struct {
	mu      sync.Mutex
	state   State
	summary Summary

	basket    Basket
	submitter OrderSubmitter
	rates     RateSource // может быть nil
	delay     time.Duration
	log       *slog.Logger
}

// NewOrchestrator создаёт оркестратор оформления заказа
// rates может быть nil — тогда конвертация в сводке не показывается
// delay — косметическая задержка подтверждения, на корректность не влияет
func NewOrchestrator(basket Basket, submitter OrderSubmitter, rates RateSource, delay time.Duration, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		state:     StateEmpty,
		basket:    basket,
		submitter: submitter,
		rates:     rates,
		delay:     delay,
		log:       log,
	}
}

// Enter открывает оформление заказа: читает корзину и строит сводку
// пустая корзина переводит машину в Empty — это сигнал для редиректа,
// а не ошибка
func (o *Orchestrator) Enter(ctx context.Context) (Summary, State) {
	const op = "checkout.Orchestrator.Enter"

	// сводка и курс готовятся до захвата mu:
	// медленный источник курса не должен задерживать Submit и State
	lines := o.basket.Items()

	var summary Summary
	if len(lines) > 0 {
		summary = Summary{
			Lines:  lines,
			Totals: o.basket.Totals(),
		}
		summary.CoinTotal = o.coinTotal(ctx, summary.Totals.Total)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	// пока идёт отправка, сводку не трогаем
	if o.state == StateSubmitting {
		return o.summary, o.state
	}

	if len(lines) == 0 {
		o.state = StateEmpty
		o.summary = Summary{}
		o.log.Debug("checkout opened with empty basket", slog.String("op", op))
		return o.summary, o.state
	}

	o.summary = summary
	o.state = StateIdle

	return o.summary, o.state
}

// coinTotal конвертирует сумму в коины для отображения
// любой отказ источника курса молча даёт ноль — значение чисто декоративное
// вызывается вне mu: источник ходит по сети и может быть медленным
func (o *Orchestrator) coinTotal(ctx context.Context, total float64) float64 {
	if o.rates == nil {
		return 0
	}
	rate, err := o.rates.CoinPerEGP(ctx)
	if err != nil {
		return 0
	}
	return total * rate
}

// Submit проверяет форму и отправляет заказ
// повторный вызов во время отправки отклоняется с ErrSubmissionInProgress —
// двойной клик не создаёт второй заказ
// при успехе корзина очищается ровно один раз и машина переходит в Confirmed
// при отказе отправителя машина возвращается в Idle, корзина не трогается
func (o *Orchestrator) Submit(ctx context.Context, form model.OrderForm) (model.Order, error) {
	const op = "checkout.Orchestrator.Submit"
	log := o.log.With(slog.String("op", op))

	o.mu.Lock()
	if o.state == StateSubmitting {
		o.mu.Unlock()
		return model.Order{}, fmt.Errorf("%s: %w", op, ErrSubmissionInProgress)
	}

	// валидация формы до любых переходов: при отказе состояние не меняется
	if err := form.Validate(); err != nil {
		o.mu.Unlock()
		return model.Order{}, fmt.Errorf("%s: %w: %s", op, ErrInvalidOrderForm, err)
	}

	lines := o.basket.Items()
	if len(lines) == 0 {
		o.state = StateEmpty
		o.mu.Unlock()
		return model.Order{}, fmt.Errorf("%s: %w", op, ErrEmptyBasket)
	}

	totals := o.basket.Totals()
	o.state = StateSubmitting
	o.mu.Unlock()

	// косметическая задержка подтверждения
	if o.delay > 0 {
		select {
		case <-time.After(o.delay):
		case <-ctx.Done():
		}
	}

	order := model.Order{
		Lines:     lines,
		Total:     totals.Total,
		CreatedAt: time.Now().UTC(),
	}

	orderID, err := o.submitter.SubmitOrder(ctx, order)
	if err != nil {
		o.mu.Lock()
		o.state = StateIdle
		o.mu.Unlock()
		log.Error("order submission failed", slog.String("error", err.Error()))
		return model.Order{}, fmt.Errorf("%s: %w", op, err)
	}
	order.OrderID = orderID

	if err := o.basket.Clear(); err != nil {
		// заказ уже принят коллаборатором, очистку не откатываем —
		// сообщаем об отказе хранилища через лог
		log.Warn("failed to clear basket after confirmation", slog.String("error", err.Error()))
	}

	o.mu.Lock()
	o.state = StateConfirmed
	o.summary = Summary{}
	o.mu.Unlock()

	log.Info("order confirmed", slog.String("order_id", orderID), slog.Float64("total", order.Total))
	return order, nil
}

// State возвращает текущее состояние машины
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// NewOrderID фабрикует идентификатор заказа для отображения
// идентификатор непредсказуем в достаточной для демо степени,
// но не является токеном безопасности
func NewOrderID() string {
	return "DPT-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

// LocalSubmitter — демо-реализация отправителя:
// заказ никуда не передаётся, идентификатор фабрикуется локально
type LocalSubmitter struct{}

// SubmitOrder возвращает локально сфабрикованный идентификатор
func (LocalSubmitter) SubmitOrder(_ context.Context, _ model.Order) (string, error) {
	return NewOrderID(), nil
}
