// Package repository is a standalone SQLite catalog, used when the terminal
// runs without the backend catalog service.
package repository

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/rijalghodi/qlaris-sub000/domain"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const defaultPageSize = 100

type Repository struct {
	db *sql.DB
}

func NewRepository(dbPath string) (*Repository, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite serialises writers anyway; one connection also keeps ":memory:"
	// databases from splitting across the pool.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Repository{db: db}, nil
}

func (r *Repository) RunMigrations() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("could not open embedded migrations: %w", err)
	}

	driver, err := sqlite.WithInstance(r.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}
	return nil
}

const productColumns = `id, name, price, enable_stock, stock_qty, unit, image,
		COALESCE(category_id, ''), barcode_value, is_active`

func (r *Repository) ListProducts(ctx context.Context, q domain.ProductQuery) ([]domain.ProductSnapshot, error) {
	var (
		where []string
		args  []any
	)
	if q.CategoryID != "" {
		where = append(where, "category_id = ?")
		args = append(args, q.CategoryID)
	}
	if search := strings.TrimSpace(q.Search); search != "" {
		where = append(where, "name LIKE ?")
		args = append(args, "%"+search+"%")
	}

	query := "SELECT " + productColumns + " FROM products"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY name, id LIMIT ? OFFSET ?"

	limit, offset := paging(q.Page, q.PageSize)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	products := make([]domain.ProductSnapshot, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return products, nil
}

func (r *Repository) ListCategories(ctx context.Context, page, pageSize int) ([]domain.Category, error) {
	limit, offset := paging(page, pageSize)

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name FROM categories ORDER BY name, id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	categories := make([]domain.Category, 0)
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return categories, nil
}

func (r *Repository) GetProduct(ctx context.Context, id string) (domain.ProductSnapshot, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+productColumns+" FROM products WHERE id = ?", id)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ProductSnapshot{}, domain.ErrProductNotFound
	}
	if err != nil {
		return domain.ProductSnapshot{}, err
	}
	return p, nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProduct(s scanner) (domain.ProductSnapshot, error) {
	var (
		p        domain.ProductSnapshot
		stockQty sql.NullInt64
	)
	err := s.Scan(
		&p.ID,
		&p.Name,
		&p.Price,
		&p.EnableStock,
		&stockQty,
		&p.Unit,
		&p.Image,
		&p.CategoryID,
		&p.BarcodeValue,
		&p.IsActive,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return p, err
	}
	if err != nil {
		return p, fmt.Errorf("failed to scan product: %w", err)
	}
	if stockQty.Valid {
		v := int(stockQty.Int64)
		p.StockQty = &v
	}
	return p, nil
}

func paging(page, pageSize int) (limit, offset int) {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if page < 1 {
		page = 1
	}
	return pageSize, (page - 1) * pageSize
}
