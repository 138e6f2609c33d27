package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/deepproteam/marketplace-service/internal/basket"
	"github.com/deepproteam/marketplace-service/internal/catalog"
	"github.com/deepproteam/marketplace-service/internal/checkout"
	"github.com/deepproteam/marketplace-service/internal/config"
	"github.com/deepproteam/marketplace-service/internal/lib/logger"
	"github.com/deepproteam/marketplace-service/internal/model"
	"github.com/deepproteam/marketplace-service/internal/rates"
	"github.com/deepproteam/marketplace-service/internal/repository/postgres"
	"github.com/deepproteam/marketplace-service/internal/storage/localstore"
	httptransport "github.com/deepproteam/marketplace-service/internal/transport/http"
	kafkatransport "github.com/deepproteam/marketplace-service/internal/transport/kafka"
)

func main() {
	// 1. Инициализация конфигурации
	cfg := config.MustLoad("config/config.yaml")

	// 2. Инициализация логгера
	log := logger.New(cfg.Logger.Level, cfg.Logger.Format)
	log.Info("starting marketplace-service", slog.String("log_level", cfg.Logger.Level))

	// 3. Инициализация локального хранилища корзины
	store, err := localstore.New(cfg.Basket.Dir)
	if err != nil {
		log.Error("failed to open basket storage", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if !store.Available() {
		// не фатально: корзина будет жить в памяти до перезапуска
		log.Warn("basket storage is not writable, state will not survive restarts")
	}

	// 4. Инициализация корзины
	basketStore := basket.NewStore(store, log)
	if err := basketStore.Initialize(); err != nil {
		// битый снимок уже откатил корзину к пустой, работаем дальше
		log.Warn("basket snapshot was discarded", slog.String("error", err.Error()))
	}

	// 5. Наполнение каталога: из БД, а при её недоступности — демо-набор
	// пул остаётся открытым: репозиторий подстраховывает выборку товара,
	// которого ещё не было в памяти на момент старта
	initCtx, initCancel := context.WithTimeout(context.Background(), 10*time.Second)
	products, productRepo, dbpool := loadCatalog(initCtx, cfg, log)
	initCancel()
	if dbpool != nil {
		defer dbpool.Close()
	}
	cat := catalog.New(products)
	log.Info("catalog ready", slog.Int("products", cat.Len()))

	var productSource httptransport.ProductSource
	if productRepo != nil {
		productSource = productRepo
	}

	bridge := catalog.NewBridge(cat, basketStore)

	// 6. Выбор отправителя заказов: Kafka либо локальная демо-фабрикация
	var submitter checkout.OrderSubmitter = checkout.LocalSubmitter{}
	var publisher *kafkatransport.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		publisher = kafkatransport.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
		submitter = publisher
		log.Info("orders will be published to kafka", slog.String("topic", cfg.Kafka.Topic))
	} else {
		log.Info("kafka is not configured, orders are confirmed locally")
	}

	// 7. Best-effort источник курса для витрины
	var rateSource checkout.RateSource
	if cfg.Rates.URL != "" {
		rateSource = rates.New(cfg.Rates.URL, cfg.Rates.Timeout)
	}

	// 8. Оркестратор оформления заказа
	orch := checkout.NewOrchestrator(basketStore, submitter, rateSource, cfg.Checkout.SubmitDelay, log)

	// 9. Инициализация и запуск HTTP-сервера
	handler := httptransport.NewHandler(cat, productSource, bridge, basketStore, orch, log)
	httpServer := httptransport.NewServer(cfg.HTTPServer.Port, handler, cfg.HTTPServer.Timeout)
	log.Info("starting http server", slog.String("port", cfg.HTTPServer.Port))

	go func() {
		if err := httpServer.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed to start", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	// 10. Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("shutting down application")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown failed", slog.String("error", err.Error()))
	}

	if publisher != nil {
		if err := publisher.Close(); err != nil {
			log.Error("error closing kafka publisher", slog.String("error", err.Error()))
		}
	}

	log.Info("application stopped")
}

// loadCatalog читает каталог из PostgreSQL
// недоступность БД не фатальна для демо: витрина поднимается
// на встроенном наборе товаров, репозиторий и пул тогда отсутствуют
// при успехе пул возвращается открытым — закрывает его вызывающий
func loadCatalog(ctx context.Context, cfg *config.Config, log *slog.Logger) ([]model.Product, *postgres.ProductRepository, *pgxpool.Pool) {
	dbpool, err := postgres.New(ctx, cfg.Postgres)
	if err != nil {
		log.Warn("postgres is unavailable, falling back to demo catalog", slog.String("error", err.Error()))
		return catalog.Demo(), nil, nil
	}

	repo := postgres.NewProductRepository(dbpool)
	products, err := repo.GetAll(ctx)
	if err != nil {
		log.Warn("failed to load catalog from postgres, falling back to demo catalog", slog.String("error", err.Error()))
		dbpool.Close()
		return catalog.Demo(), nil, nil
	}
	if len(products) == 0 {
		log.Warn("catalog table is empty, serving the demo catalog")
		return catalog.Demo(), repo, dbpool
	}

	log.Info("catalog loaded from postgres", slog.Int("products", len(products)))
	return products, repo, dbpool
}
