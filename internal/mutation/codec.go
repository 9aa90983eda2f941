package mutation

import (
	"encoding/json"
	"fmt"
)

type decodeFunc func([]byte) (Action, error)

func decoder[T Action]() decodeFunc {
	return func(payload []byte) (Action, error) {
		var a T
		if err := json.Unmarshal(payload, &a); err != nil {
			return nil, err
		}
		return a, nil
	}
}

var registry = map[Kind]decodeFunc{
	KindCreateRetailer:  decoder[CreateRetailer](),
	KindUpdateRetailer:  decoder[UpdateRetailer](),
	KindDeleteRetailer:  decoder[DeleteRetailer](),
	KindCreateTrip:      decoder[CreateTrip](),
	KindUpdateTrip:      decoder[UpdateTrip](),
	KindDeleteTrip:      decoder[DeleteTrip](),
	KindCreateItem:      decoder[CreateItem](),
	KindUpdateItem:      decoder[UpdateItem](),
	KindDeleteItem:      decoder[DeleteItem](),
	KindToggleItem:      decoder[ToggleItem](),
	KindUpdateItemPrice: decoder[UpdateItemPrice](),
}

// Kinds returns every registered kind.
func Kinds() []Kind {
	out := make([]Kind, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	return out
}

// Encode serializes an action for storage.
func Encode(a Action) (Kind, []byte, error) {
	payload, err := json.Marshal(a)
	if err != nil {
		return "", nil, fmt.Errorf("encode %s: %w", a.Kind(), err)
	}
	return a.Kind(), payload, nil
}

// Decode rebuilds an action from its stored kind and payload.
func Decode(kind Kind, payload []byte) (Action, error) {
	dec, ok := registry[kind]
	if !ok {
		return nil, fmt.Errorf("unknown mutation kind %q", kind)
	}
	a, err := dec(payload)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", kind, err)
	}
	return a, nil
}
