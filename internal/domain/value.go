package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	KindNull Kind = iota
	KindText
	KindBool
	KindNumber
	KindRef
	KindRefList
	KindTextList
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindText:
		return "text"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindRef:
		return "ref"
	case KindRefList:
		return "ref_list"
	case KindTextList:
		return "text_list"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is a single cell value. The zero Value is Null.
type Value struct {
	kind  Kind
	text  string
	num   float64
	b     bool
	ids   []int64
	texts []string
}

func Null() Value            { return Value{} }
func Text(s string) Value    { return Value{kind: KindText, text: s} }
func Bool(b bool) Value      { return Value{kind: KindBool, b: b} }
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }
func Ref(id int64) Value     { return Value{kind: KindRef, ids: []int64{id}} }

// RefList builds a reference list. No ids means no value.
func RefList(ids ...int64) Value {
	if len(ids) == 0 {
		return Null()
	}
	cp := make([]int64, len(ids))
	copy(cp, ids)
	return Value{kind: KindRefList, ids: cp}
}

// TextList builds a list of names (a choice list, or references spelled by name).
func TextList(items ...string) Value {
	if len(items) == 0 {
		return Null()
	}
	cp := make([]string, len(items))
	copy(cp, items)
	return Value{kind: KindTextList, texts: cp}
}

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsText returns the text payload of a Text value.
func (v Value) AsText() (string, bool) {
	if v.kind != KindText {
		return "", false
	}
	return v.text, true
}

// AsBool returns the payload of a Bool value.
func (v Value) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

// AsNumber returns the payload of a Number value.
func (v Value) AsNumber() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	return v.num, true
}

// RefID returns the record id held by a Ref, or by an integral Number
// (Grist sends single references as bare integers).
func (v Value) RefID() (int64, bool) {
	switch v.kind {
	case KindRef:
		return v.ids[0], true
	case KindNumber:
		// float64(math.MaxInt64) rounds up to 2^63, which overflows int64.
		if v.num > 0 && v.num < math.MaxInt64 && v.num == math.Trunc(v.num) {
			return int64(v.num), true
		}
	}
	return 0, false
}

// IDs returns the ids of a RefList.
func (v Value) IDs() []int64 {
	if v.kind != KindRefList {
		return nil
	}
	cp := make([]int64, len(v.ids))
	copy(cp, v.ids)
	return cp
}

// Items flattens the value into its elements: list kinds yield one Value per
// entry, Null yields nothing, any scalar yields itself.
func (v Value) Items() []Value {
	switch v.kind {
	case KindNull:
		return nil
	case KindRefList:
		out := make([]Value, len(v.ids))
		for i, id := range v.ids {
			out[i] = Ref(id)
		}
		return out
	case KindTextList:
		out := make([]Value, len(v.texts))
		for i, s := range v.texts {
			out[i] = Text(s)
		}
		return out
	default:
		return []Value{v}
	}
}

// String renders scalars the way they compare in a name lookup.
func (v Value) String() string {
	switch v.kind {
	case KindText:
		return v.text
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindRef:
		return strconv.FormatInt(v.ids[0], 10)
	case KindRefList:
		return fmt.Sprint(v.ids)
	case KindTextList:
		return fmt.Sprint(v.texts)
	default:
		return ""
	}
}

// Equal reports whether two values hold the same variant and payload.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindText:
		return v.text == o.text
	case KindBool:
		return v.b == o.b
	case KindNumber:
		return v.num == o.num
	case KindRef, KindRefList:
		if len(v.ids) != len(o.ids) {
			return false
		}
		for i := range v.ids {
			if v.ids[i] != o.ids[i] {
				return false
			}
		}
		return true
	case KindTextList:
		if len(v.texts) != len(o.texts) {
			return false
		}
		for i := range v.texts {
			if v.texts[i] != o.texts[i] {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// ── Wire form ──────────────────────────────────────────────

// FromWire converts a decoded JSON cell into a Value. Tagged lists go through
// DecodeList; arrays with another marker (error or date cells) become Null.
func FromWire(raw any) Value {
	switch x := raw.(type) {
	case nil:
		return Null()
	case string:
		return Text(x)
	case bool:
		return Bool(x)
	case float64:
		return Number(x)
	case int:
		return Number(float64(x))
	case int64:
		return Number(float64(x))
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return Text(x.String())
		}
		return Number(f)
	case []any:
		payload, ok := DecodeList(x)
		if !ok {
			return Null()
		}
		return fromPayload(payload)
	default:
		return Text(fmt.Sprint(x))
	}
}

func fromPayload(payload []any) Value {
	ids := make([]int64, 0, len(payload))
	for _, p := range payload {
		f, ok := p.(float64)
		if !ok || f != math.Trunc(f) {
			ids = nil
			break
		}
		ids = append(ids, int64(f))
	}
	if ids != nil {
		return RefList(ids...)
	}
	texts := make([]string, len(payload))
	for i, p := range payload {
		texts[i] = FromWire(p).String()
	}
	return TextList(texts...)
}

// ToWire converts the value into what the Grist API expects in a cell.
func (v Value) ToWire() any {
	switch v.kind {
	case KindText:
		return v.text
	case KindBool:
		return v.b
	case KindNumber:
		return v.num
	case KindRef:
		return v.ids[0]
	case KindRefList:
		items := make([]any, len(v.ids))
		for i, id := range v.ids {
			items[i] = id
		}
		return EncodeList(items)
	case KindTextList:
		items := make([]any, len(v.texts))
		for i, s := range v.texts {
			items[i] = s
		}
		return EncodeList(items)
	default:
		return nil
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.ToWire())
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = FromWire(raw)
	return nil
}
