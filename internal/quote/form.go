package quote

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-sdeal/internal/common"
	"github.com/noah-isme/backend-sdeal/internal/pricing"
)

// OpeningForm is a count of identical openings and their unit area.
type OpeningForm struct {
	Qty    int     `json:"qty" validate:"gte=0,lte=20"`
	SizeM2 float64 `json:"sizeM2" validate:"gte=0,lte=10"`
}

// EstimateForm is the calculator form. Bounds mirror what the public quote
// page accepts; anything outside them is a client error.
type EstimateForm struct {
	ProductSlug      string      `json:"productSlug" validate:"required,oneof=garden-room house-extension house-build"`
	RoomAreaM2       float64     `json:"roomAreaM2" validate:"gte=4,lte=200"`
	CladdingAreaM2   float64     `json:"claddingAreaM2" validate:"gte=0,lte=800"`
	BathroomType1Qty int         `json:"bathroomType1Qty" validate:"gte=0,lte=10"`
	BathroomType2Qty int         `json:"bathroomType2Qty" validate:"gte=0,lte=10"`
	SwitchesQty      int         `json:"switchesQty" validate:"gte=0,lte=50"`
	DoubleSocketsQty int         `json:"doubleSocketsQty" validate:"gte=0,lte=50"`
	InternalDoorsQty int         `json:"internalDoorsQty" validate:"gte=0,lte=20"`
	InternalWallM    float64     `json:"internalWallM" validate:"gte=0,lte=200"`
	InternalWallSlug string      `json:"internalWallSlug" validate:"omitempty,oneof=none panel skim"`
	Windows          OpeningForm `json:"windows"`
	ExteriorDoors    OpeningForm `json:"exteriorDoors"`
	Skylights        OpeningForm `json:"skylights"`
	FlooringSlug     string      `json:"flooringSlug" validate:"omitempty,oneof=none wooden tile"`
	FlooringAreaM2   float64     `json:"flooringAreaM2" validate:"gte=0,lte=300"`
	DeliveryKm       float64     `json:"deliveryKm" validate:"gte=0,lte=1000"`
	DiscountAmt      float64     `json:"discountAmt" validate:"gte=0,lte=1000000"`
	ExtrasNote       string      `json:"extrasNote" validate:"max=2000"`
}

// LeadForm is the calculator form plus the customer's contact details.
type LeadForm struct {
	EstimateForm
	CustomerName  string `json:"customerName" validate:"required,max=200"`
	CustomerEmail string `json:"customerEmail" validate:"required,email,max=320"`
	CustomerPhone string `json:"customerPhone" validate:"max=50"`
	Notes         string `json:"notes" validate:"max=4000"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// normalise trims strings and accepts the legacy "<variant>PerM" and
// "<variant>PerM2" slugs older form builds still post.
func (f *EstimateForm) normalise() {
	f.ProductSlug = strings.TrimSpace(f.ProductSlug)
	f.InternalWallSlug = strings.TrimSuffix(strings.TrimSpace(f.InternalWallSlug), "PerM")
	f.FlooringSlug = strings.TrimSuffix(strings.TrimSpace(f.FlooringSlug), "PerM2")
	f.ExtrasNote = strings.TrimSpace(f.ExtrasNote)
}

func (f *LeadForm) normalise() {
	f.EstimateForm.normalise()
	f.CustomerName = strings.TrimSpace(f.CustomerName)
	f.CustomerEmail = strings.TrimSpace(f.CustomerEmail)
	f.CustomerPhone = strings.TrimSpace(f.CustomerPhone)
	f.Notes = strings.TrimSpace(f.Notes)
}

// Validate normalises and checks the form, returning a 400 AppError listing
// every offending field.
func (f *EstimateForm) Validate() error {
	f.normalise()
	return check(f, f.openingLimits())
}

// Validate normalises and checks the lead form.
func (f *LeadForm) Validate() error {
	f.normalise()
	return check(f, f.openingLimits())
}

// openingLimits caps door and skylight counts lower than windows.
func (f *EstimateForm) openingLimits() map[string]string {
	out := map[string]string{}
	if f.ExteriorDoors.Qty > 10 {
		out["exteriorDoors.qty"] = "lte"
	}
	if f.Skylights.Qty > 10 {
		out["skylights.qty"] = "lte"
	}
	return out
}

func check(form any, extra map[string]string) error {
	fields := map[string]string{}
	if err := validate.Struct(form); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return common.BadRequest("", "invalid quote form", err)
		}
		for _, fe := range verrs {
			fields[fieldPath(fe.Namespace())] = fe.Tag()
		}
	}
	for k, v := range extra {
		fields[k] = v
	}
	if len(fields) == 0 {
		return nil
	}
	appErr := common.BadRequest("", "invalid quote form", nil)
	appErr.Code = "VALIDATION_FAILED"
	appErr.Details = map[string]any{"fields": fields}
	return appErr
}

// fieldPath drops the root struct name and any embedded struct from a
// validator namespace such as "LeadForm.EstimateForm.windows.qty".
func fieldPath(ns string) string {
	parts := strings.Split(ns, ".")
	out := parts[:0]
	for i, p := range parts {
		if i == 0 || p == "EstimateForm" {
			continue
		}
		out = append(out, p)
	}
	return strings.Join(out, ".")
}

// Inputs converts a validated form to calculator inputs.
func (f EstimateForm) Inputs() pricing.Inputs {
	wall := pricing.WallNone
	if f.InternalWallSlug != "" {
		wall = pricing.WallFinish(f.InternalWallSlug)
	}
	floor := pricing.FlooringNone
	if f.FlooringSlug != "" {
		floor = pricing.Flooring(f.FlooringSlug)
	}
	return pricing.Inputs{
		Product:        pricing.ProductLine(f.ProductSlug),
		RoomAreaM2:     dec(f.RoomAreaM2),
		CladdingAreaM2: dec(f.CladdingAreaM2),
		BathroomBasic:  f.BathroomType1Qty,
		BathroomShower: f.BathroomType2Qty,
		Switches:       f.SwitchesQty,
		DoubleSockets:  f.DoubleSocketsQty,
		InternalDoors:  f.InternalDoorsQty,
		InternalWallM:  dec(f.InternalWallM),
		WallFinish:     wall,
		Windows:        opening(f.Windows),
		ExteriorDoors:  opening(f.ExteriorDoors),
		Skylights:      opening(f.Skylights),
		Flooring:       floor,
		FlooringAreaM2: dec(f.FlooringAreaM2),
		DeliveryKm:     dec(f.DeliveryKm),
		Discount:       dec(f.DiscountAmt),
		Note:           f.ExtrasNote,
	}
}

func opening(o OpeningForm) pricing.SizeQty {
	return pricing.SizeQty{Count: o.Qty, UnitArea: dec(o.SizeM2)}
}

// dec converts a JSON number using its shortest decimal representation, so
// 0.1 becomes exactly 0.1.
func dec(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}
