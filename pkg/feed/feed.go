// Package feed reads and writes the partner price-list document.
package feed

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	pkgerrors "github.com/angelmondragon/orderdesk-backend/pkg/errors"
)

// Document is a whole partner catalog.
type Document struct {
	Shop       string     `yaml:"shop" json:"shop"`
	Categories []Category `yaml:"categories" json:"categories"`
	Goods      []Good     `yaml:"goods" json:"goods"`
}

type Category struct {
	ID   uint64 `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
}

type Good struct {
	ID         uint64     `yaml:"id" json:"id"`
	Category   uint64     `yaml:"category" json:"category"`
	Model      string     `yaml:"model" json:"model"`
	Name       string     `yaml:"name" json:"name"`
	Price      Price      `yaml:"price" json:"price"`
	PriceRRC   Price      `yaml:"price_rrc" json:"price_rrc"`
	Quantity   int        `yaml:"quantity" json:"quantity"`
	Parameters Parameters `yaml:"parameters" json:"parameters"`
}

// raw mirrors Document with pointers so absent keys can be told apart from zero values.
type rawDocument struct {
	Shop       *string        `yaml:"shop" validate:"required"`
	Categories *[]rawCategory `yaml:"categories" validate:"required,dive"`
	Goods      *[]rawGood     `yaml:"goods" validate:"required,dive"`
}

type rawCategory struct {
	ID   *uint64 `yaml:"id" validate:"required"`
	Name *string `yaml:"name" validate:"required"`
}

type rawGood struct {
	ID         *uint64     `yaml:"id" validate:"required"`
	Category   *uint64     `yaml:"category" validate:"required"`
	Model      *string     `yaml:"model" validate:"required"`
	Name       *string     `yaml:"name" validate:"required"`
	Price      *Price      `yaml:"price" validate:"required"`
	PriceRRC   *Price      `yaml:"price_rrc" validate:"required"`
	Quantity   *int        `yaml:"quantity" validate:"required,gte=0"`
	Parameters *Parameters `yaml:"parameters" validate:"required"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	return v
}

// Parse decodes and validates a feed. Every failure is a VALIDATION_ERROR
// whose details map a field path to a message.
func Parse(raw []byte) (*Document, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "feed is empty")
	}

	var doc rawDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, decodeError(err)
	}
	if err := validate.Struct(doc); err != nil {
		return nil, validationError(err)
	}
	return doc.build()
}

func (r rawDocument) build() (*Document, error) {
	details := map[string]string{}
	out := &Document{Shop: strings.TrimSpace(*r.Shop)}
	if out.Shop == "" {
		details["shop"] = "must not be blank"
	}

	seen := make(map[uint64]struct{}, len(*r.Categories))
	for i, c := range *r.Categories {
		out.Categories = append(out.Categories, Category{ID: *c.ID, Name: *c.Name})
		seen[*c.ID] = struct{}{}
		if strings.TrimSpace(*c.Name) == "" {
			details[fmt.Sprintf("categories[%d].name", i)] = "must not be blank"
		}
	}

	for i, g := range *r.Goods {
		good := Good{
			ID:         *g.ID,
			Category:   *g.Category,
			Model:      *g.Model,
			Name:       *g.Name,
			Price:      *g.Price,
			PriceRRC:   *g.PriceRRC,
			Quantity:   *g.Quantity,
			Parameters: *g.Parameters,
		}
		if strings.TrimSpace(good.Name) == "" {
			details[fmt.Sprintf("goods[%d].name", i)] = "must not be blank"
		}
		if good.Price.IsNegative() {
			details[fmt.Sprintf("goods[%d].price", i)] = "must be at least 0"
		}
		if good.PriceRRC.IsNegative() {
			details[fmt.Sprintf("goods[%d].price_rrc", i)] = "must be at least 0"
		}
		out.Goods = append(out.Goods, good)
	}

	if len(details) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid feed").WithDetails(details)
	}
	return out, nil
}

// CategoryIDs returns the ids declared in the categories section.
func (d *Document) CategoryIDs() map[uint64]struct{} {
	ids := make(map[uint64]struct{}, len(d.Categories))
	for _, c := range d.Categories {
		ids[c.ID] = struct{}{}
	}
	return ids
}

// Marshal renders a document in the same shape Parse accepts.
func Marshal(doc *Document) ([]byte, error) {
	if doc == nil {
		return nil, errors.New("feed document is nil")
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeError(err error) error {
	var typeErr *yaml.TypeError
	if errors.As(err, &typeErr) {
		details := make([]string, 0, len(typeErr.Errors))
		details = append(details, typeErr.Errors...)
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid feed").WithDetails(map[string]any{"errors": details})
	}
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "feed is not valid yaml").WithDetails(map[string]any{"error": err.Error()})
}

func validationError(err error) error {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid feed")
	}
	details := map[string]string{}
	for _, fe := range errs {
		details[fieldPath(fe.Namespace())] = message(fe)
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "invalid feed").WithDetails(details)
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(ns string) string {
	if idx := strings.Index(ns, "."); idx >= 0 {
		return ns[idx+1:]
	}
	return ns
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	}
	return "is invalid"
}

// Price is a decimal that accepts YAML ints, floats and numeric strings.
type Price struct {
	decimal.Decimal
}

func NewPrice(d decimal.Decimal) Price {
	return Price{Decimal: d}
}

func (p *Price) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: price must be a number", node.Line)
	}
	d, err := decimal.NewFromString(strings.TrimSpace(node.Value))
	if err != nil {
		return fmt.Errorf("line %d: cannot parse %q as a price", node.Line, node.Value)
	}
	p.Decimal = d
	return nil
}

func (p Price) MarshalYAML() (interface{}, error) {
	tag := "!!float"
	if p.Decimal.Equal(p.Decimal.Truncate(0)) {
		tag = "!!int"
	}
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: p.Decimal.String()}, nil
}

// Parameters maps parameter name to its value. Scalar values of any YAML
// type are kept as their literal text.
type Parameters map[string]string

func (p *Parameters) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: parameters must be a mapping", node.Line)
	}
	out := make(Parameters, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		if value.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: parameter %q must be a scalar", value.Line, key.Value)
		}
		out[key.Value] = value.Value
	}
	*p = out
	return nil
}
