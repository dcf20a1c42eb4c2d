package delta

import (
	"errors"
	"fmt"
)

// Kind discriminates the edit operation variants.
type Kind string

const (
	KindInsert Kind = "insert"
	KindDelete Kind = "delete"
	KindFormat Kind = "format"
)

// Attrs carries formatting attributes, e.g. {"bold":"true"} or {"header":"1"}.
type Attrs map[string]string

func (a Attrs) equal(b Attrs) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

func (a Attrs) clone() Attrs {
	if len(a) == 0 {
		return nil
	}
	out := make(Attrs, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Delta is a single atomic edit against a document. Exactly one variant is
// active, selected by Kind: Insert uses Pos/Text, Delete uses Pos/Len,
// Format uses Pos/Len/Attrs. Positions are rune offsets.
type Delta struct {
	Kind  Kind   `json:"kind"`
	Pos   int    `json:"pos"`
	Text  string `json:"text,omitempty"`
	Len   int    `json:"len,omitempty"`
	Attrs Attrs  `json:"attrs,omitempty"`
}

func Insert(pos int, text string) Delta {
	return Delta{Kind: KindInsert, Pos: pos, Text: text}
}

func Delete(pos, length int) Delta {
	return Delta{Kind: KindDelete, Pos: pos, Len: length}
}

func Format(pos, length int, attrs Attrs) Delta {
	return Delta{Kind: KindFormat, Pos: pos, Len: length, Attrs: attrs}
}

func (d Delta) Validate() error {
	if d.Pos < 0 {
		return errors.New("delta: negative position")
	}
	switch d.Kind {
	case KindInsert:
		if d.Text == "" {
			return errors.New("delta: empty insert")
		}
	case KindDelete, KindFormat:
		if d.Len <= 0 {
			return fmt.Errorf("delta: %s with non-positive length", d.Kind)
		}
	default:
		return fmt.Errorf("delta: unknown kind %q", d.Kind)
	}
	return nil
}

// Range is a cursor selection: Anchor is where the selection started,
// Head is where it currently ends. Anchor == Head for a bare caret.
type Range struct {
	Anchor int `json:"anchor"`
	Head   int `json:"head"`
}
