package prediction

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultConfidence is used when the endpoint answers with a label only.
var DefaultConfidence = Confidence{d: decimal.New(10, -1)}

// Confidence is an exact decimal score. It keeps the scale it was written
// with, so "1.0" renders as "1.0" and "0.950" as "0.950".
type Confidence struct {
	d decimal.Decimal
}

// NewConfidence parses s as an exact decimal. Surrounding whitespace is
// ignored.
func NewConfidence(s string) (Confidence, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Confidence{}, fmt.Errorf("invalid confidence %q: %w", s, err)
	}
	return Confidence{d: d}, nil
}

// MustConfidence is NewConfidence for constants and tests.
func MustConfidence(s string) Confidence {
	c, err := NewConfidence(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Decimal exposes the underlying value.
func (c Confidence) Decimal() decimal.Decimal { return c.d }

// Equal compares numerically, ignoring scale.
func (c Confidence) Equal(other Confidence) bool { return c.d.Equal(other.d) }

func (c Confidence) String() string {
	if exp := c.d.Exponent(); exp < 0 {
		return c.d.StringFixed(-exp)
	}
	return c.d.String()
}

func (c Confidence) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Confidence) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		// bare JSON numbers are accepted as written
		s = string(data)
	}
	parsed, err := NewConfidence(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Value stores the textual form so numeric columns keep the scale.
func (c Confidence) Value() (driver.Value, error) {
	return c.String(), nil
}

func (c *Confidence) Scan(src any) error {
	var s string
	switch v := src.(type) {
	case nil:
		*c = Confidence{}
		return nil
	case string:
		s = v
	case []byte:
		s = string(v)
	case int64:
		*c = Confidence{d: decimal.NewFromInt(v)}
		return nil
	case float64:
		*c = Confidence{d: decimal.NewFromFloat(v)}
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Confidence", src)
	}
	parsed, err := NewConfidence(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
