package profile

import (
	"fmt"
	"slices"
)

// Grid is the key layout of the device. Slots are addressed "col,row" with
// row 0 at the bottom.
type Grid struct {
	Columns int `mapstructure:"columns"`
	Rows    int `mapstructure:"rows"`
}

// Validate rejects grids too small to hold navigation plus content.
func (g Grid) Validate() error {
	if g.Columns < 2 || g.Rows < 2 {
		return fmt.Errorf("device grid must be at least 2x2, got %dx%d", g.Columns, g.Rows)
	}
	return nil
}

// Slot formats a slot key.
func Slot(col, row int) string {
	return fmt.Sprintf("%d,%d", col, row)
}

// Prev is the previous-page key.
func (g Grid) Prev() string { return Slot(0, 0) }

// Next is the next-page key.
func (g Grid) Next() string { return Slot(g.Columns-1, 0) }

// Home is the back-to-home key on a model's first page.
func (g Grid) Home() string { return Slot(0, g.Rows-1) }

// Slots lists every key from the top row down, left to right.
func (g Grid) Slots() []string {
	out := make([]string, 0, g.Columns*g.Rows)
	for row := g.Rows - 1; row >= 0; row-- {
		for col := 0; col < g.Columns; col++ {
			out = append(out, Slot(col, row))
		}
	}
	return out
}

// Usable lists the content keys of a page. The navigation keys are only
// free on the first page (no previous) and the last page (no next), and
// then come first and last respectively.
func (g Grid) Usable(first, last bool) []string {
	prev, next := g.Prev(), g.Next()
	var out []string
	if first {
		out = append(out, prev)
	}
	for _, s := range g.Slots() {
		if s != prev && s != next {
			out = append(out, s)
		}
	}
	if last {
		out = append(out, next)
	}
	return out
}

// Paginate splits n items into page sizes. The first page loses reserved
// keys. Pages are filled greedily: a page is treated as the last one as
// soon as the remaining items fit with the next key free, so no item is
// ever dropped.
func (g Grid) Paginate(n, reserved int) []int {
	var sizes []int
	remaining := n
	for page := 0; ; page++ {
		first := page == 0
		hold := 0
		if first {
			hold = reserved
		}

		if fit := len(g.Usable(first, true)) - hold; remaining <= fit {
			return append(sizes, remaining)
		}
		take := len(g.Usable(first, false)) - hold
		if take <= 0 {
			// only reachable for grids that fail Validate
			return append(sizes, 0)
		}
		sizes = append(sizes, take)
		remaining -= take
	}
}

// without returns slots minus the given keys, keeping order.
func without(slots []string, keys ...string) []string {
	return slices.DeleteFunc(slices.Clone(slots), func(s string) bool {
		return slices.Contains(keys, s)
	})
}
