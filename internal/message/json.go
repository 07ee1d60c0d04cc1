package message

import (
	"encoding/json"
	"fmt"
)

// typeTag is the shape every variant's wire encoding reduces to for the
// purpose of reading the "type" discriminator before fully decoding.
type typeTag struct {
	Type string `json:"type"`
}

// Decode parses a full Message from its wire JSON, trying the Routable
// variants first and falling back to UnRoutable — the outer union is
// untagged, but the two variant sets never share a "type" value.
func Decode(data []byte) (Message, error) {
	var tag typeTag
	if err := json.Unmarshal(data, &tag); err != nil {
		return nil, fmt.Errorf("message: reading type tag: %w", err)
	}

	switch tag.Type {
	case "connect", "addresses", "routing_table", "error", "query":
		return DecodeRoutable(data)
	case "source_route", "app_data":
		return decodeUnRoutable(data, tag.Type)
	default:
		// Unrecognized discriminator: treat as an opaque routable message
		// so that it can still be source-routed to a peer that does
		// understand it, per UnknownMessage's doc comment.
		var raw json.RawMessage = append(json.RawMessage{}, data...)
		return &UnknownMessage{Type: tag.Type, Raw: raw}, nil
	}
}

// DecodeRoutable parses data as a RoutableMessage, used both for top-level
// decoding and for SourceRoute.Content.
func DecodeRoutable(data []byte) (RoutableMessage, error) {
	var tag typeTag
	if err := json.Unmarshal(data, &tag); err != nil {
		return nil, fmt.Errorf("message: reading type tag: %w", err)
	}

	switch tag.Type {
	case "connect":
		var v Connect
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("message: decoding connect: %w", err)
		}
		return &v, nil
	case "addresses":
		var v Addresses
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("message: decoding addresses: %w", err)
		}
		return &v, nil
	case "routing_table":
		var v RoutingTable
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("message: decoding routing_table: %w", err)
		}
		return &v, nil
	case "query":
		var v Query
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("message: decoding query: %w", err)
		}
		return &v, nil
	case "error":
		var v Error
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("message: decoding error: %w", err)
		}
		return &v, nil
	default:
		raw := append(json.RawMessage{}, data...)
		return &UnknownMessage{Type: tag.Type, Raw: raw}, nil
	}
}

func decodeUnRoutable(data []byte, tagType string) (UnRoutableMessage, error) {
	switch tagType {
	case "source_route":
		var wire struct {
			Path    json.RawMessage `json:"path"`
			Content json.RawMessage `json:"content"`
		}
		if err := json.Unmarshal(data, &wire); err != nil {
			return nil, fmt.Errorf("message: decoding source_route: %w", err)
		}
		var sr SourceRoute
		if err := json.Unmarshal(wire.Path, &sr.Path); err != nil {
			return nil, fmt.Errorf("message: decoding source_route path: %w", err)
		}
		content, err := DecodeRoutable(wire.Content)
		if err != nil {
			return nil, fmt.Errorf("message: decoding source_route content: %w", err)
		}
		sr.Content = content
		return &sr, nil
	case "app_data":
		var v AppData
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("message: decoding app_data: %w", err)
		}
		return &v, nil
	default:
		return nil, fmt.Errorf("message: unrecognized unroutable type %q", tagType)
	}
}

// ---------------------------------------------------------------------------
// MarshalJSON: each variant writes its own "type" discriminator.
// ---------------------------------------------------------------------------

func (c *Connect) MarshalJSON() ([]byte, error) {
	type alias Connect
	return json.Marshal(struct {
		Type string `json:"type"`
		*alias
	}{Type: c.routableType(), alias: (*alias)(c)})
}

func (a *Addresses) MarshalJSON() ([]byte, error) {
	type alias Addresses
	return json.Marshal(struct {
		Type string `json:"type"`
		*alias
	}{Type: a.routableType(), alias: (*alias)(a)})
}

func (r *RoutingTable) MarshalJSON() ([]byte, error) {
	type alias RoutingTable
	return json.Marshal(struct {
		Type string `json:"type"`
		*alias
	}{Type: r.routableType(), alias: (*alias)(r)})
}

func (q *Query) MarshalJSON() ([]byte, error) {
	type alias Query
	return json.Marshal(struct {
		Type string `json:"type"`
		*alias
	}{Type: q.routableType(), alias: (*alias)(q)})
}

// MarshalJSON flattens Data's entries into the same object as "type" and
// "msg", matching the original schema's #[serde(flatten)] on Error.data.
func (e *Error) MarshalJSON() ([]byte, error) {
	out := make(map[string]string, len(e.Data)+2)
	for k, v := range e.Data {
		out[k] = v
	}
	out["type"] = e.routableType()
	out["msg"] = e.Msg
	return json.Marshal(out)
}

// UnmarshalJSON reverses MarshalJSON's flattening: everything except
// "type" and "msg" is collected back into Data.
func (e *Error) UnmarshalJSON(data []byte) error {
	var flat map[string]string
	if err := json.Unmarshal(data, &flat); err != nil {
		return fmt.Errorf("message: decoding error fields: %w", err)
	}
	e.Msg = flat["msg"]
	delete(flat, "type")
	delete(flat, "msg")
	if len(flat) > 0 {
		e.Data = flat
	}
	return nil
}

func (u *UnknownMessage) MarshalJSON() ([]byte, error) {
	if len(u.Raw) > 0 {
		return u.Raw, nil
	}
	return json.Marshal(typeTag{Type: u.Type})
}

func (sr *SourceRoute) MarshalJSON() ([]byte, error) {
	content, err := json.Marshal(sr.Content)
	if err != nil {
		return nil, fmt.Errorf("message: encoding source_route content: %w", err)
	}
	return json.Marshal(struct {
		Type    string          `json:"type"`
		Path    interface{}     `json:"path"`
		Content json.RawMessage `json:"content"`
	}{Type: sr.unRoutableType(), Path: sr.Path, Content: content})
}

func (ad *AppData) MarshalJSON() ([]byte, error) {
	type alias AppData
	return json.Marshal(struct {
		Type string `json:"type"`
		*alias
	}{Type: ad.unRoutableType(), alias: (*alias)(ad)})
}
