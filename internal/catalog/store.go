package catalog

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/backend-sdeal/internal/db"
)

var (
	// ErrNotFound is returned when a product or image does not exist.
	ErrNotFound = errors.New("catalog: not found")
	// ErrSlugTaken is returned when creating a product with an existing slug.
	ErrSlugTaken = errors.New("catalog: slug already exists")
)

// Store reads and writes products and their images.
type Store struct {
	db db.DBTX
	sb sq.StatementBuilderType
}

// NewStore constructs a Store over a pool or transaction.
func NewStore(conn db.DBTX) *Store {
	return &Store{db: conn, sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar)}
}

var productColumns = []string{"id::text", "slug", "title", "summary", "lead_price", "features", "sort_order"}

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Slug, &p.Title, &p.Summary, &p.LeadPrice, &p.Features, &p.SortOrder)
	if p.Features == nil {
		p.Features = []string{}
	}
	return p, err
}

// ListProducts returns every product ordered for display.
func (s *Store) ListProducts(ctx context.Context) ([]Product, error) {
	sqlStr, args, err := s.sb.
		Select(productColumns...).
		From("products").
		OrderBy("sort_order", "title").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetProductBySlug returns a single product without images.
func (s *Store) GetProductBySlug(ctx context.Context, slug string) (Product, error) {
	sqlStr, args, err := s.sb.
		Select(productColumns...).
		From("products").
		Where(sq.Eq{"slug": slug}).
		ToSql()
	if err != nil {
		return Product{}, err
	}
	p, err := scanProduct(s.db.QueryRow(ctx, sqlStr, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrNotFound
		}
		return Product{}, fmt.Errorf("get product %s: %w", slug, err)
	}
	return p, nil
}

// ListImages returns the images of the given products ordered by sort order.
func (s *Store) ListImages(ctx context.Context, productIDs ...string) ([]Image, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}
	sqlStr, args, err := s.sb.
		Select("id::text", "product_id::text", "path", "alt", "sort_order").
		From("product_images").
		Where(sq.Eq{"product_id::text": productIDs}).
		OrderBy("product_id", "sort_order", "created_at").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	defer rows.Close()

	var out []Image
	for rows.Next() {
		var img Image
		if err := rows.Scan(&img.ID, &img.ProductID, &img.Path, &img.Alt, &img.SortOrder); err != nil {
			return nil, fmt.Errorf("scan image: %w", err)
		}
		out = append(out, img)
	}
	return out, rows.Err()
}

// CreateProduct inserts a product.
func (s *Store) CreateProduct(ctx context.Context, in ProductInput) (Product, error) {
	features := in.Features
	if features == nil {
		features = []string{}
	}
	sqlStr, args, err := s.sb.
		Insert("products").
		Columns("slug", "title", "summary", "lead_price", "features", "sort_order").
		Values(in.Slug, in.Title, in.Summary, in.LeadPrice, features, in.SortOrder).
		Suffix("RETURNING id::text, slug, title, summary, lead_price, features, sort_order").
		ToSql()
	if err != nil {
		return Product{}, err
	}
	p, err := scanProduct(s.db.QueryRow(ctx, sqlStr, args...))
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return Product{}, ErrSlugTaken
		}
		return Product{}, fmt.Errorf("create product: %w", err)
	}
	return p, nil
}

// DeleteProduct removes a product and, through the foreign key, its images.
// It returns the image paths that were attached.
func (s *Store) DeleteProduct(ctx context.Context, id string) ([]string, error) {
	pathsSQL, pathArgs, err := s.sb.
		Select("path").
		From("product_images").
		Where(sq.Eq{"product_id::text": id}).
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, pathsSQL, pathArgs...)
	if err != nil {
		return nil, fmt.Errorf("list image paths: %w", err)
	}
	paths, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collect image paths: %w", err)
	}

	sqlStr, args, err := s.sb.
		Delete("products").
		Where(sq.Eq{"id::text": id}).
		ToSql()
	if err != nil {
		return nil, err
	}
	tag, err := s.db.Exec(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("delete product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	return paths, nil
}

// AddImage attaches an image to a product.
func (s *Store) AddImage(ctx context.Context, productID string, in ImageInput) (Image, error) {
	sqlStr, args, err := s.sb.
		Insert("product_images").
		Columns("product_id", "path", "alt", "sort_order").
		Values(sq.Expr("?::uuid", productID), in.Path, in.Alt, in.SortOrder).
		Suffix("RETURNING id::text, product_id::text, path, alt, sort_order").
		ToSql()
	if err != nil {
		return Image{}, err
	}
	var img Image
	err = s.db.QueryRow(ctx, sqlStr, args...).Scan(&img.ID, &img.ProductID, &img.Path, &img.Alt, &img.SortOrder)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return Image{}, ErrNotFound
		}
		return Image{}, fmt.Errorf("add image: %w", err)
	}
	return img, nil
}

// DeleteImage removes an image and returns its stored path.
func (s *Store) DeleteImage(ctx context.Context, id string) (string, error) {
	sqlStr, args, err := s.sb.
		Delete("product_images").
		Where(sq.Eq{"id::text": id}).
		Suffix("RETURNING path").
		ToSql()
	if err != nil {
		return "", err
	}
	var path string
	if err := s.db.QueryRow(ctx, sqlStr, args...).Scan(&path); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("delete image: %w", err)
	}
	return path, nil
}
