package domain

// ListMarker is the leading element Grist puts in front of every list cell
// (reference lists, choice lists, attachment lists).
const ListMarker = "L"

// EncodeList wraps items in the tagged list form. An empty input encodes to nil
// so the cell is written as "no value".
func EncodeList(items []any) any {
	if len(items) == 0 {
		return nil
	}
	out := make([]any, 0, len(items)+1)
	out = append(out, ListMarker)
	return append(out, items...)
}

// DecodeList strips the marker from a tagged list and returns its payload.
// The bool is false for nil, for anything that is not a tagged list, and for
// a marker-only list.
func DecodeList(raw any) ([]any, bool) {
	arr, ok := raw.([]any)
	if !ok || len(arr) < 2 {
		return nil, false
	}
	if marker, _ := arr[0].(string); marker != ListMarker {
		return nil, false
	}
	payload := make([]any, len(arr)-1)
	copy(payload, arr[1:])
	return payload, true
}
