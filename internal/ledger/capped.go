package ledger

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// HistoryCap bounds every append-only history kept on a record.
const HistoryCap = 720

// Capped is a ring buffer that keeps the most recent entries, evicting the
// oldest once full. The zero value holds up to HistoryCap entries.
// Copies share storage; use Clone before mutating a copy.
type Capped[T any] struct {
	limit int
	buf   []T
	start int
}

func NewCapped[T any](limit int) Capped[T] {
	if limit <= 0 {
		limit = HistoryCap
	}
	return Capped[T]{limit: limit}
}

func (c *Capped[T]) capacity() int {
	if c.limit <= 0 {
		c.limit = HistoryCap
	}
	return c.limit
}

// Push appends v, dropping the oldest entry when at capacity.
func (c *Capped[T]) Push(v T) {
	limit := c.capacity()
	if len(c.buf) < limit {
		c.buf = append(c.buf, v)
		return
	}
	c.buf[c.start] = v
	c.start = (c.start + 1) % limit
}

func (c Capped[T]) Len() int { return len(c.buf) }

// Items returns the entries oldest first.
func (c Capped[T]) Items() []T {
	out := make([]T, 0, len(c.buf))
	out = append(out, c.buf[c.start:]...)
	return append(out, c.buf[:c.start]...)
}

// Last returns the newest entry.
func (c Capped[T]) Last() (T, bool) {
	var zero T
	if len(c.buf) == 0 {
		return zero, false
	}
	i := c.start - 1
	if i < 0 {
		i = len(c.buf) - 1
	}
	return c.buf[i], true
}

func (c Capped[T]) Clone() Capped[T] {
	return Capped[T]{limit: c.limit, buf: c.Items()}
}

func (c Capped[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Items())
}

func (c *Capped[T]) UnmarshalJSON(data []byte) error {
	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	limit := c.capacity()
	if len(items) > limit {
		items = items[len(items)-limit:]
	}
	c.buf = items
	c.start = 0
	return nil
}

func (c Capped[T]) Value() (driver.Value, error) {
	b, err := c.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (c *Capped[T]) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		c.buf, c.start = nil, 0
		return nil
	case []byte:
		return c.UnmarshalJSON(v)
	case string:
		return c.UnmarshalJSON([]byte(v))
	}
	return fmt.Errorf("unsupported history scan type %T", src)
}
