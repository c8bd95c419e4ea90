package order

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// KeyPrefix namespaces order entries in the key/value projection.
const KeyPrefix = "order"

// ID identifies an order. Producers send either a JSON integer or a JSON
// string; the identifier marshals back in the form it arrived in.
type ID struct {
	value   string
	numeric bool
}

// StringID keeps s as given. Padding is part of the identifier.
func StringID(s string) ID {
	return ID{value: s}
}

func NumericID(n int64) ID {
	return ID{value: strconv.FormatInt(n, 10), numeric: true}
}

func (id ID) String() string { return id.value }

// IsZero reports whether the identifier is empty or blank.
func (id ID) IsZero() bool { return strings.TrimSpace(id.value) == "" }

func (id ID) MarshalJSON() ([]byte, error) {
	if id.numeric {
		return []byte(id.value), nil
	}
	return json.Marshal(id.value)
}

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = ID{}
		return nil
	}

	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("orderId: %w", err)
		}
		*id = StringID(s)
		return nil
	}

	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return fmt.Errorf("orderId must be an integer or a string, got %s", b)
	}
	*id = NumericID(n)
	return nil
}

type Order struct {
	ID   ID         `json:"orderId"`
	Time *time.Time `json:"time,omitempty"`
}

// Validate reports an ErrValidation when the order has no identifier.
func (o Order) Validate() error {
	if o.ID.IsZero() {
		return fmt.Errorf("%w: orderId is required", ErrValidation)
	}
	return nil
}

// Key returns the projection key for the order.
func (o Order) Key() string {
	return Key(o.ID)
}

func Key(id ID) string {
	return KeyPrefix + id.String()
}
