package normalize

import (
	"bytes"
	"encoding/json"

	"github.com/smallbiznis/payhook/internal/webhook/domain"
)

// Payload is the shape an event carries, resolved once per event.
type Payload interface {
	payload()
}

// ThinReference is a related_object pointer with no embedded state.
type ThinReference struct {
	Type string
	ID   string
}

// SnapshotObject is a data.object carried inline.
type SnapshotObject struct {
	Type   string
	ID     string
	Fields map[string]any
}

// EmptyPayload is an event with neither related_object nor a usable data.object.
type EmptyPayload struct{}

func (ThinReference) payload()  {}
func (SnapshotObject) payload() {}
func (EmptyPayload) payload()   {}

// Full reports whether the object looks like a complete snapshot rather than
// a minimal id stub: it must be typed and carry more than id and object.
func (o SnapshotObject) Full() bool {
	return o.Type != "" && len(o.Fields) > 2
}

// Classify picks the payload variant. related_object wins over data.
func Classify(evt *domain.ProviderEvent) Payload {
	if evt == nil {
		return EmptyPayload{}
	}
	if evt.RelatedObject != nil {
		return ThinReference{Type: evt.RelatedObject.Type, ID: evt.RelatedObject.ID}
	}
	if evt.Data == nil {
		return EmptyPayload{}
	}
	fields, ok := decodeObject(evt.Data.Object)
	if !ok {
		return EmptyPayload{}
	}
	return SnapshotObject{
		Type:   stringField(fields, "object"),
		ID:     stringField(fields, "id"),
		Fields: fields,
	}
}

// PayloadStyle labels the variant for the delivery response.
func PayloadStyle(p Payload) string {
	if _, ok := p.(SnapshotObject); ok {
		return domain.PayloadStyleSnapshot
	}
	return domain.PayloadStyleThin
}

func decodeObject(raw json.RawMessage) (map[string]any, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, false
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var fields map[string]any
	if err := dec.Decode(&fields); err != nil || fields == nil {
		return nil, false
	}
	return fields, true
}
