package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-sdeal/internal/cache"
	"github.com/noah-isme/backend-sdeal/internal/common"
	"github.com/noah-isme/backend-sdeal/internal/media"
)

type productStore interface {
	ListProducts(ctx context.Context) ([]Product, error)
	GetProductBySlug(ctx context.Context, slug string) (Product, error)
	ListImages(ctx context.Context, productIDs ...string) ([]Image, error)
	CreateProduct(ctx context.Context, in ProductInput) (Product, error)
	DeleteProduct(ctx context.Context, id string) ([]string, error)
	AddImage(ctx context.Context, productID string, in ImageInput) (Image, error)
	DeleteImage(ctx context.Context, id string) (string, error)
}

// objectDeleter removes stored media once its row is gone.
type objectDeleter interface {
	Delete(ctx context.Context, path string) error
}

// Product is the public product payload.
type Product struct {
	ID        string   `json:"id"`
	Slug      string   `json:"slug"`
	Title     string   `json:"title"`
	Summary   string   `json:"summary"`
	LeadPrice string   `json:"leadPrice,omitempty"`
	Features  []string `json:"features"`
	SortOrder int      `json:"sortOrder"`
	Images    []Image  `json:"images"`
}

// Image is a product gallery entry. URL is resolved at read time.
type Image struct {
	ID        string `json:"id"`
	ProductID string `json:"productId"`
	Path      string `json:"path"`
	URL       string `json:"url"`
	Alt       string `json:"alt"`
	SortOrder int    `json:"sortOrder"`
}

// ProductInput creates a product.
type ProductInput struct {
	Slug      string   `json:"slug"`
	Title     string   `json:"title"`
	Summary   string   `json:"summary"`
	LeadPrice string   `json:"leadPrice"`
	Features  []string `json:"features"`
	SortOrder int      `json:"sortOrder"`
}

// ImageInput attaches an image to a product.
type ImageInput struct {
	Path      string `json:"path"`
	Alt       string `json:"alt"`
	SortOrder int    `json:"sortOrder"`
}

// Service orchestrates catalog queries, URL resolution, and caching.
type Service struct {
	store    productStore
	cache    *cache.JSON
	resolver media.Resolver
	deleter  objectDeleter
	logger   zerolog.Logger
}

// ServiceConfig groups Service dependencies. Cache and Deleter are optional.
type ServiceConfig struct {
	Store    productStore
	Cache    *cache.JSON
	Resolver media.Resolver
	Deleter  objectDeleter
	Logger   zerolog.Logger
}

// NewService constructs a Service instance.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("catalog: store is required")
	}
	resolver := cfg.Resolver
	if resolver == nil {
		resolver = media.PublicResolver{}
	}
	return &Service{
		store:    cfg.Store,
		cache:    cfg.Cache,
		resolver: resolver,
		deleter:  cfg.Deleter,
		logger:   cfg.Logger,
	}, nil
}

// ListProducts returns every product with its images.
func (s *Service) ListProducts(ctx context.Context) ([]Product, error) {
	var cached []Product
	if ok, err := s.cache.Get(ctx, cache.ProductListKey, &cached); err == nil && ok {
		return cached, nil
	}
	products, err := s.store.ListProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	ids := make([]string, 0, len(products))
	for _, p := range products {
		ids = append(ids, p.ID)
	}
	images, err := s.store.ListImages(ctx, ids...)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	byProduct := make(map[string][]Image, len(products))
	for _, img := range images {
		byProduct[img.ProductID] = append(byProduct[img.ProductID], img)
	}
	out := make([]Product, 0, len(products))
	for _, p := range products {
		p.Images, err = s.resolveImages(ctx, byProduct[p.ID])
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := s.cache.Set(ctx, cache.ProductListKey, out); err != nil {
		s.logger.Warn().Err(err).Msg("catalog cache write failed")
	}
	return out, nil
}

// GetProduct returns one product with its images sorted by sort order.
func (s *Service) GetProduct(ctx context.Context, slug string) (Product, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return Product{}, common.BadRequest("slug", "slug is required", nil)
	}
	key := cache.ProductDetailKey(slug)
	var cached Product
	if ok, err := s.cache.Get(ctx, key, &cached); err == nil && ok {
		return cached, nil
	}
	product, err := s.store.GetProductBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Product{}, common.NotFound("product not found", err)
		}
		return Product{}, fmt.Errorf("get product: %w", err)
	}
	images, err := s.store.ListImages(ctx, product.ID)
	if err != nil {
		return Product{}, fmt.Errorf("list images: %w", err)
	}
	if product.Images, err = s.resolveImages(ctx, images); err != nil {
		return Product{}, err
	}
	if err := s.cache.Set(ctx, key, product); err != nil {
		s.logger.Warn().Err(err).Msg("catalog cache write failed")
	}
	return product, nil
}

// CreateProduct validates and inserts a product.
func (s *Service) CreateProduct(ctx context.Context, in ProductInput) (Product, error) {
	in.Slug = strings.ToLower(strings.TrimSpace(in.Slug))
	in.Title = strings.TrimSpace(in.Title)
	in.Summary = strings.TrimSpace(in.Summary)
	in.LeadPrice = strings.TrimSpace(in.LeadPrice)
	if in.Slug == "" || in.Title == "" {
		return Product{}, common.BadRequest("slug", "slug and title are required", nil)
	}
	product, err := s.store.CreateProduct(ctx, in)
	if err != nil {
		if errors.Is(err, ErrSlugTaken) {
			return Product{}, &common.AppError{Code: "CONFLICT", Message: "slug already exists", HTTPStatus: http.StatusConflict, Err: err}
		}
		return Product{}, err
	}
	product.Images = []Image{}
	s.invalidate(ctx)
	return product, nil
}

// DeleteProduct removes a product and its stored images.
func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return common.BadRequest("id", "id must be a UUID", err)
	}
	paths, err := s.store.DeleteProduct(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return common.NotFound("product not found", err)
		}
		return err
	}
	for _, p := range paths {
		s.deleteObject(ctx, p)
	}
	s.invalidate(ctx)
	return nil
}

// AddImage attaches an image. Leading slashes are stripped from the path.
func (s *Service) AddImage(ctx context.Context, productID string, in ImageInput) (Image, error) {
	if _, err := uuid.Parse(productID); err != nil {
		return Image{}, common.BadRequest("productId", "product id must be a UUID", err)
	}
	in.Path = media.CleanPath(in.Path)
	in.Alt = strings.TrimSpace(in.Alt)
	if in.Path == "" {
		return Image{}, common.BadRequest("path", "product and path are required", nil)
	}
	img, err := s.store.AddImage(ctx, productID, in)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Image{}, common.NotFound("product not found", err)
		}
		return Image{}, err
	}
	if img.URL, err = s.resolver.URL(ctx, img.Path); err != nil {
		return Image{}, err
	}
	s.invalidate(ctx)
	return img, nil
}

// DeleteImage removes an image row and its stored object.
func (s *Service) DeleteImage(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return common.BadRequest("id", "id must be a UUID", err)
	}
	path, err := s.store.DeleteImage(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return common.NotFound("image not found", err)
		}
		return err
	}
	s.deleteObject(ctx, path)
	s.invalidate(ctx)
	return nil
}

func (s *Service) resolveImages(ctx context.Context, images []Image) ([]Image, error) {
	out := make([]Image, 0, len(images))
	sorted := append([]Image(nil), images...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].SortOrder < sorted[j].SortOrder })
	for _, img := range sorted {
		url, err := s.resolver.URL(ctx, img.Path)
		if err != nil {
			return nil, fmt.Errorf("resolve image %s: %w", img.ID, err)
		}
		img.URL = url
		out = append(out, img)
	}
	return out, nil
}

func (s *Service) deleteObject(ctx context.Context, path string) {
	if s.deleter == nil {
		return
	}
	if err := s.deleter.Delete(ctx, path); err != nil {
		s.logger.Warn().Err(err).Str("path", path).Msg("delete media object failed")
	}
}

func (s *Service) invalidate(ctx context.Context) {
	if err := s.cache.DeletePrefix(ctx, cache.ProductsPrefix); err != nil {
		s.logger.Warn().Err(err).Msg("catalog cache invalidate failed")
	}
}
