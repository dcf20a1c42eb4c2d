package delta

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Doc is the materialized state of a document: a rune sequence with a
// formatting attribute set per rune. It is not safe for concurrent use;
// the sync agent applies deltas from a single goroutine.
type Doc struct {
	text  []rune
	attrs []Attrs
}

func NewDoc() *Doc {
	return &Doc{}
}

func (d *Doc) Len() int {
	return len(d.text)
}

func (d *Doc) String() string {
	return string(d.text)
}

// Apply mutates the document with one delta. Out-of-bounds deltas are
// rejected rather than clamped so a desynced client fails loudly.
func (d *Doc) Apply(dl Delta) error {
	if err := dl.Validate(); err != nil {
		return err
	}
	switch dl.Kind {
	case KindInsert:
		if dl.Pos > len(d.text) {
			return fmt.Errorf("delta: insert at %d beyond length %d", dl.Pos, len(d.text))
		}
		runes := []rune(dl.Text)
		d.text = append(d.text[:dl.Pos], append(runes, d.text[dl.Pos:]...)...)
		blanks := make([]Attrs, len(runes))
		d.attrs = append(d.attrs[:dl.Pos], append(blanks, d.attrs[dl.Pos:]...)...)
	case KindDelete:
		if dl.Pos+dl.Len > len(d.text) {
			return fmt.Errorf("delta: delete [%d,%d) beyond length %d", dl.Pos, dl.Pos+dl.Len, len(d.text))
		}
		d.text = append(d.text[:dl.Pos], d.text[dl.Pos+dl.Len:]...)
		d.attrs = append(d.attrs[:dl.Pos], d.attrs[dl.Pos+dl.Len:]...)
	case KindFormat:
		if dl.Pos+dl.Len > len(d.text) {
			return fmt.Errorf("delta: format [%d,%d) beyond length %d", dl.Pos, dl.Pos+dl.Len, len(d.text))
		}
		for i := dl.Pos; i < dl.Pos+dl.Len; i++ {
			merged := d.attrs[i].clone()
			if merged == nil {
				merged = make(Attrs)
			}
			for k, v := range dl.Attrs {
				if v == "" {
					delete(merged, k)
				} else {
					merged[k] = v
				}
			}
			if len(merged) == 0 {
				merged = nil
			}
			d.attrs[i] = merged
		}
	}
	return nil
}

// snapshotOp is one run of equally formatted text in the serialized form.
type snapshotOp struct {
	Insert     string `json:"insert"`
	Attributes Attrs  `json:"attributes,omitempty"`
}

type snapshotDoc struct {
	Ops []snapshotOp `json:"ops"`
}

// EmptySnapshot is the serialized form of a document with no content.
const EmptySnapshot = `{"ops":[]}`

// Snapshot serializes the document as a run-compressed op list:
// consecutive runes sharing the same attributes become one op.
func (d *Doc) Snapshot() ([]byte, error) {
	snap := snapshotDoc{Ops: []snapshotOp{}}
	var run strings.Builder
	var runAttrs Attrs
	flush := func() {
		if run.Len() == 0 {
			return
		}
		snap.Ops = append(snap.Ops, snapshotOp{Insert: run.String(), Attributes: runAttrs.clone()})
		run.Reset()
	}
	for i, r := range d.text {
		if run.Len() > 0 && !d.attrs[i].equal(runAttrs) {
			flush()
		}
		runAttrs = d.attrs[i]
		run.WriteRune(r)
	}
	flush()
	return json.Marshal(snap)
}

// FromSnapshot rebuilds a document from its serialized form.
func FromSnapshot(raw []byte) (*Doc, error) {
	if len(raw) == 0 {
		return NewDoc(), nil
	}
	var snap snapshotDoc
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("delta: bad snapshot: %w", err)
	}
	doc := NewDoc()
	for _, op := range snap.Ops {
		runes := []rune(op.Insert)
		doc.text = append(doc.text, runes...)
		for range runes {
			doc.attrs = append(doc.attrs, op.Attributes.clone())
		}
	}
	return doc, nil
}
