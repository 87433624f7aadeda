package platform

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"omnistock/internal"
	"omnistock/internal/util"
)

// Field is a canonical order column.
type Field string

const (
	FieldOrderSN   Field = "order_sn"
	FieldTracking  Field = "tracking_number"
	FieldCreatedAt Field = "order_creation_date"
	FieldSKU       Field = "sku"
	FieldVariation Field = "variation"
	FieldQuantity  Field = "quantity"
	FieldPrice     Field = "price"
	FieldTotal     Field = "total"
)

// FieldMapping lists accepted header spellings per field, in priority order.
type FieldMapping map[Field][]string

type QuantityMode string

const (
	QuantityColumn QuantityMode = "column"
	QuantityFixed  QuantityMode = "fixed"
)

type QuantityRule struct {
	Mode  QuantityMode `yaml:"mode"`
	Fixed int          `yaml:"fixed"`
}

type Definition struct {
	Name     internal.Platform `yaml:"name"`
	Aliases  []string          `yaml:"aliases"`
	Fields   FieldMapping      `yaml:"fields"`
	Quantity QuantityRule      `yaml:"quantity"`
}

// Value returns the cell of the first mapped header that holds a non-blank value.
func (d Definition) Value(row internal.RawRow, f Field) any {
	for _, header := range d.Fields[f] {
		v, ok := row.Values[header]
		if !ok || strings.TrimSpace(util.CellString(v)) == "" {
			continue
		}
		return v
	}
	return nil
}

func (d Definition) Text(row internal.RawRow, f Field) string {
	return strings.TrimSpace(util.CellString(d.Value(row, f)))
}

func (d Definition) Number(row internal.RawRow, f Field) (decimal.Decimal, error) {
	return util.ParseNumber(d.Value(row, f))
}

func (d Definition) LineQuantity(row internal.RawRow) (int, error) {
	if d.Quantity.Mode == QuantityFixed {
		return d.Quantity.Fixed, nil
	}
	return util.ParseQuantity(d.Value(row, FieldQuantity))
}

func (d Definition) validate() error {
	if strings.TrimSpace(string(d.Name)) == "" {
		return fmt.Errorf("platform without name")
	}
	for _, f := range []Field{FieldOrderSN, FieldSKU, FieldPrice} {
		if len(d.Fields[f]) == 0 {
			return fmt.Errorf("platform %s: no headers mapped for %s", d.Name, f)
		}
	}
	switch d.Quantity.Mode {
	case QuantityColumn:
		if len(d.Fields[FieldQuantity]) == 0 {
			return fmt.Errorf("platform %s: quantity column not mapped", d.Name)
		}
	case QuantityFixed:
		if d.Quantity.Fixed <= 0 {
			return fmt.Errorf("platform %s: fixed quantity must be positive", d.Name)
		}
	default:
		return fmt.Errorf("platform %s: unknown quantity mode %q", d.Name, d.Quantity.Mode)
	}
	return nil
}
