package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/deepproteam/marketplace-service/internal/catalog"
	"github.com/deepproteam/marketplace-service/internal/model"
)

// ProductRepository инкапсулирует чтение каталога товаров из БД
// контракт каталога авторитетный: products(id, name, price, category, image)
type ProductRepository struct {
	db *pgxpool.Pool
	sq squirrel.StatementBuilderType
}

// NewProductRepository создает новый экземпляр репозитория
func NewProductRepository(db *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{
		db: db,
		// использую плейсхолдеры в стиле PostgreSQL ($1, $2, $3,...)
		sq: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// GetAll извлекает весь каталог
// используется один раз при старте для наполнения каталога в памяти
func (r *ProductRepository) GetAll(ctx context.Context) ([]model.Product, error) {
	const op = "repository.postgres.product.GetAll"

	sql, args, err := r.sq.
		Select("id", "name", "price", "category", "image", "rating").
		From("products").
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: failed to build query: %w", op, err)
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to query products: %w", op, err)
	}
	defer rows.Close()

	products := []model.Product{}
	for rows.Next() {
		var p model.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Category, &p.Image, &p.Rating); err != nil {
			return nil, fmt.Errorf("%s: failed to scan product row: %w", op, err)
		}
		// битые строки каталога не роняем весь листинг — пропускаем
		if err := p.Validate(); err != nil {
			continue
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows error: %w", op, err)
	}

	return products, nil
}

// GetByID извлекает один товар по его идентификатору
func (r *ProductRepository) GetByID(ctx context.Context, id int64) (model.Product, error) {
	const op = "repository.postgres.product.GetByID"

	sql, args, err := r.sq.
		Select("id", "name", "price", "category", "image", "rating").
		From("products").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return model.Product{}, fmt.Errorf("%s: failed to build query: %w", op, err)
	}

	var p model.Product
	err = r.db.QueryRow(ctx, sql, args...).Scan(&p.ID, &p.Name, &p.Price, &p.Category, &p.Image, &p.Rating)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Product{}, fmt.Errorf("%s: id=%d: %w", op, id, catalog.ErrProductNotFound)
		}
		return model.Product{}, fmt.Errorf("%s: failed to query product: %w", op, err)
	}

	return p, nil
}
