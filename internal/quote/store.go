package quote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-sdeal/internal/db"
	"github.com/noah-isme/backend-sdeal/internal/pricing"
)

// quoteIDConstraint is the unique constraint guarding leads.quote_id.
const quoteIDConstraint = "leads_quote_id_key"

var (
	// ErrLeadNotFound is returned when no lead has the requested quote ID.
	ErrLeadNotFound = errors.New("quote: lead not found")
	// ErrQuoteIDTaken is returned when an insert collides on quote_id.
	ErrQuoteIDTaken = errors.New("quote: quote id already used")
)

type conn interface {
	db.DBTX
	db.TxBeginner
}

// Store persists leads and their line items.
type Store struct {
	db conn
	sb sq.StatementBuilderType
}

// NewStore constructs a Store over a pool.
func NewStore(pool conn) *Store {
	return &Store{db: pool, sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar)}
}

// QuoteIDExists reports whether a lead already uses quoteID.
func (s *Store) QuoteIDExists(ctx context.Context, quoteID string) (bool, error) {
	sqlStr, args, err := s.sb.
		Select("1").
		From("leads").
		Where(sq.Eq{"quote_id": quoteID}).
		Limit(1).
		Prefix("SELECT EXISTS (").
		Suffix(")").
		ToSql()
	if err != nil {
		return false, err
	}
	var exists bool
	if err := s.db.QueryRow(ctx, sqlStr, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("check quote id: %w", err)
	}
	return exists, nil
}

// InsertLead stores the lead and its items in one transaction and fills in
// the generated ID and timestamp.
func (s *Store) InsertLead(ctx context.Context, lead *Lead) error {
	inputs, err := json.Marshal(lead.Inputs)
	if err != nil {
		return fmt.Errorf("encode inputs: %w", err)
	}
	return db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		sqlStr, args, err := s.sb.
			Insert("leads").
			Columns("quote_id", "product_slug", "customer_name", "customer_email", "customer_phone", "notes",
				"delivery_km", "inputs", "subtotal", "discount", "vat", "total").
			Values(lead.QuoteID, lead.ProductSlug, lead.Customer.Name, lead.Customer.Email, lead.Customer.Phone, lead.Customer.Notes,
				lead.DeliveryKm.String(), string(inputs), lead.Estimate.Subtotal.String(), lead.Estimate.Discount.String(),
				lead.Estimate.VAT.String(), lead.Estimate.Total.String()).
			Suffix("RETURNING id::text, created_at").
			ToSql()
		if err != nil {
			return err
		}
		if err := tx.QueryRow(ctx, sqlStr, args...).Scan(&lead.ID, &lead.CreatedAt); err != nil {
			if db.IsUniqueViolation(err, quoteIDConstraint) {
				return ErrQuoteIDTaken
			}
			return fmt.Errorf("insert lead: %w", err)
		}
		if len(lead.Estimate.Items) == 0 {
			return nil
		}

		insert := s.sb.Insert("lead_items").
			Columns("lead_id", "position", "key", "label", "quantity", "unit_price", "line_total", "meta")
		for i, it := range lead.Estimate.Items {
			var meta any
			if it.Meta != nil {
				raw, err := json.Marshal(it.Meta)
				if err != nil {
					return fmt.Errorf("encode item meta: %w", err)
				}
				meta = string(raw)
			}
			insert = insert.Values(sq.Expr("?::uuid", lead.ID), i, it.Key, it.Label,
				it.Quantity.String(), it.UnitPrice.String(), it.LineTotal.String(), meta)
		}
		sqlStr, args, err = insert.ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, sqlStr, args...); err != nil {
			return fmt.Errorf("insert lead items: %w", err)
		}
		return nil
	})
}

var leadColumns = []string{
	"id::text", "quote_id", "product_slug", "customer_name", "customer_email", "customer_phone", "notes",
	"delivery_km::text", "subtotal::text", "discount::text", "vat::text", "total::text", "created_at",
}

type leadRow struct {
	lead                                       Lead
	deliveryKm, subtotal, discount, vat, total string
}

func scanLead(row pgx.Row, extra ...any) (Lead, error) {
	var r leadRow
	dest := []any{&r.lead.ID, &r.lead.QuoteID, &r.lead.ProductSlug, &r.lead.Customer.Name, &r.lead.Customer.Email,
		&r.lead.Customer.Phone, &r.lead.Customer.Notes, &r.deliveryKm, &r.subtotal, &r.discount, &r.vat, &r.total,
		&r.lead.CreatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return Lead{}, err
	}
	nums, err := parseDecimals(r.deliveryKm, r.subtotal, r.discount, r.vat, r.total)
	if err != nil {
		return Lead{}, fmt.Errorf("lead %s: %w", r.lead.QuoteID, err)
	}
	l := r.lead
	l.DeliveryKm = nums[0]
	l.Estimate.Subtotal = nums[1]
	l.Estimate.Discount = nums[2]
	l.Estimate.Net = decimal.Max(decimal.Zero, nums[1].Sub(nums[2]))
	l.Estimate.VAT = nums[3]
	l.Estimate.Total = nums[4]
	return l, nil
}

func parseDecimals(raw ...string) ([]decimal.Decimal, error) {
	out := make([]decimal.Decimal, len(raw))
	for i, s := range raw {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return nil, err
		}
		out[i] = d
	}
	return out, nil
}

// ListLeads returns a page of leads, newest first, and the total count.
func (s *Store) ListLeads(ctx context.Context, limit, offset int) ([]Lead, int64, error) {
	var total int64
	countSQL, countArgs, err := s.sb.Select("COUNT(*)").From("leads").ToSql()
	if err != nil {
		return nil, 0, err
	}
	if err := s.db.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count leads: %w", err)
	}

	sqlStr, args, err := s.sb.
		Select(leadColumns...).
		From("leads").
		OrderBy("created_at DESC", "quote_id").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, 0, err
	}
	rows, err := s.db.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list leads: %w", err)
	}
	defer rows.Close()

	out := make([]Lead, 0, limit)
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan lead: %w", err)
		}
		out = append(out, l)
	}
	return out, total, rows.Err()
}

// GetLead returns a lead with its inputs and line items.
func (s *Store) GetLead(ctx context.Context, quoteID string) (Lead, error) {
	sqlStr, args, err := s.sb.
		Select(append(leadColumns, "inputs")...).
		From("leads").
		Where(sq.Eq{"quote_id": quoteID}).
		ToSql()
	if err != nil {
		return Lead{}, err
	}
	var rawInputs []byte
	lead, err := scanLead(s.db.QueryRow(ctx, sqlStr, args...), &rawInputs)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Lead{}, ErrLeadNotFound
		}
		return Lead{}, fmt.Errorf("get lead %s: %w", quoteID, err)
	}
	if err := json.Unmarshal(rawInputs, &lead.Inputs); err != nil {
		return Lead{}, fmt.Errorf("decode lead inputs: %w", err)
	}

	items, err := s.listItems(ctx, lead.ID)
	if err != nil {
		return Lead{}, err
	}
	lead.Estimate.Items = items
	return lead, nil
}

func (s *Store) listItems(ctx context.Context, leadID string) ([]pricing.LineItem, error) {
	sqlStr, args, err := s.sb.
		Select("key", "label", "quantity::text", "unit_price::text", "line_total::text", "meta").
		From("lead_items").
		Where(sq.Expr("lead_id = ?::uuid", leadID)).
		OrderBy("position").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list lead items: %w", err)
	}
	defer rows.Close()

	items := make([]pricing.LineItem, 0)
	for rows.Next() {
		var (
			it                   pricing.LineItem
			qty, unit, lineTotal string
			meta                 []byte
		)
		if err := rows.Scan(&it.Key, &it.Label, &qty, &unit, &lineTotal, &meta); err != nil {
			return nil, fmt.Errorf("scan lead item: %w", err)
		}
		nums, err := parseDecimals(qty, unit, lineTotal)
		if err != nil {
			return nil, fmt.Errorf("lead item %s: %w", it.Key, err)
		}
		it.Quantity, it.UnitPrice, it.LineTotal = nums[0], nums[1], nums[2]
		if len(meta) > 0 {
			var m pricing.Meta
			if err := json.Unmarshal(meta, &m); err == nil {
				it.Meta = &m
			}
		}
		items = append(items, it)
	}
	return items, rows.Err()
}
