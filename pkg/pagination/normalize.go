package pagination

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// Shape describes which payload layout a page was recognized as.
type Shape string

const (
	ShapeArray   Shape = "array"
	ShapeItems   Shape = "items"
	ShapeData    Shape = "data"
	ShapeUnknown Shape = "unknown"
)

// Fields checked, in order, for the item list and the next cursor.
var (
	itemFields   = []Shape{ShapeItems, ShapeData}
	cursorFields = []string{"next_starting_after", "next_cursor", "nextCursor"}
)

// Normalize converts an upstream payload into a PageResponse. Unrecognized
// payloads yield an empty page without a cursor.
func Normalize(body []byte) PageResponse {
	page, _ := normalize(body)
	return page
}

func normalize(body []byte) (PageResponse, Shape) {
	if !gjson.ValidBytes(body) {
		return PageResponse{}, ShapeUnknown
	}

	root := gjson.ParseBytes(body)
	if root.IsArray() {
		return PageResponse{Items: collect(root)}, ShapeArray
	}
	if !root.IsObject() {
		return PageResponse{}, ShapeUnknown
	}

	for _, field := range itemFields {
		list := root.Get(string(field))
		if !list.IsArray() {
			continue
		}
		return PageResponse{
			Items:      collect(list),
			NextCursor: nextCursor(root),
		}, field
	}

	return PageResponse{}, ShapeUnknown
}

func collect(list gjson.Result) []json.RawMessage {
	items := make([]json.RawMessage, 0, len(list.Array()))
	list.ForEach(func(_, value gjson.Result) bool {
		items = append(items, json.RawMessage(value.Raw))
		return true
	})
	return items
}

// nextCursor reads the cursor verbatim. Numbers are kept in their raw form;
// anything else counts as absent.
func nextCursor(root gjson.Result) Cursor {
	for _, field := range cursorFields {
		value := root.Get(field)
		switch value.Type {
		case gjson.String:
			if value.Str != "" {
				return Cursor(value.Str)
			}
		case gjson.Number:
			return Cursor(value.Raw)
		}
	}
	return ""
}
