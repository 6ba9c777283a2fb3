package lclock

import "fmt"

// Clock is a Lamport timestamp tagged with the id of the owning process.
type Clock struct {
	Owner int    `json:"owner"`
	Value uint64 `json:"value"`
}

// New creates the clock of process owner. Every process starts at value 1.
func New(owner int) Clock {
	return Clock{Owner: owner, Value: 1}
}

// Increment advances the clock by one.
func (c *Clock) Increment() {
	c.Value++
}

// Merge sets the clock to max(own, remote) + 1.
// Afterwards the clock is strictly greater than both the previous own value
// and the remote value.
func (c *Clock) Merge(remote Clock) {
	c.Value = max(c.Value, remote.Value) + 1
}

// Compare returns -1 if c orders before other, 1 if after and 0 if both
// clocks are identical.
func (c Clock) Compare(other Clock) int {
	switch {
	case c.Value < other.Value:
		return -1
	case c.Value > other.Value:
		return 1
	case c.Owner < other.Owner:
		return -1
	case c.Owner > other.Owner:
		return 1
	default:
		return 0
	}
}

// Less reports whether c orders strictly before other.
func (c Clock) Less(other Clock) bool {
	return c.Compare(other) < 0
}

// LowestOf returns the lower of two clocks under the total order.
func LowestOf(a, b Clock) Clock {
	if b.Less(a) {
		return b
	}
	return a
}

// String returns the clock as (owner,value)
func (c Clock) String() string {
	return fmt.Sprintf("(%d,%d)", c.Owner, c.Value)
}
