package memory

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"maps"
	"time"
	"unicode/utf8"
)

// Kind is the recall channel a record belongs to.
type Kind string

const (
	Episodic   Kind = "episodic"
	Semantic   Kind = "semantic"
	Procedural Kind = "procedural"
)

// Valid reports whether k is one of the known channels.
func (k Kind) Valid() bool {
	switch k {
	case Episodic, Semantic, Procedural:
		return true
	}
	return false
}

// Record is a single remembered event.
//
// ID, Content, Context, Kind, Category, CreatedAt and BaseImportance are fixed
// at creation. AccessCount and LastAccessedAt move on recall. CurrentImportance
// is derived and only ever written by the decay pass.
type Record struct {
	ID                string            `json:"id"`
	Content           string            `json:"content"`
	Context           map[string]string `json:"context,omitempty"`
	Kind              Kind              `json:"kind"`
	Category          string            `json:"category"`
	CreatedAt         time.Time         `json:"created_at"`
	LastAccessedAt    time.Time         `json:"last_accessed_at"`
	BaseImportance    float64           `json:"base_importance"`
	AccessCount       int               `json:"access_count"`
	CurrentImportance float64           `json:"current_importance"`
}

// clone returns a copy that shares no mutable state with r.
func (r Record) clone() Record {
	if len(r.Context) == 0 {
		r.Context = nil
	} else {
		r.Context = maps.Clone(r.Context)
	}
	return r
}

// Text fields that are not valid UTF-8 cannot pass through a JSON string
// unchanged. Such records are written with "encoding":"base64" and every text
// field base64-encoded.
const encodingBase64 = "base64"

type recordFields Record

type wireRecord struct {
	recordFields
	Encoding string `json:"encoding,omitempty"`
}

// MarshalJSON encodes r so that decoding returns the same bytes in every
// text field.
func (r Record) MarshalJSON() ([]byte, error) {
	w := wireRecord{recordFields: recordFields(r)}
	if !r.validUTF8() {
		enc := base64.StdEncoding.EncodeToString
		w.Encoding = encodingBase64
		w.ID = enc([]byte(r.ID))
		w.Content = enc([]byte(r.Content))
		w.Category = enc([]byte(r.Category))
		if r.Context != nil {
			w.Context = make(map[string]string, len(r.Context))
			for k, v := range r.Context {
				w.Context[enc([]byte(k))] = enc([]byte(v))
			}
		}
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes records written by MarshalJSON.
func (r *Record) UnmarshalJSON(data []byte) error {
	var w wireRecord
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch w.Encoding {
	case "":
	case encodingBase64:
		var err error
		dec := func(s string) string {
			b, derr := base64.StdEncoding.DecodeString(s)
			if derr != nil && err == nil {
				err = derr
			}
			return string(b)
		}
		w.ID = dec(w.ID)
		w.Content = dec(w.Content)
		w.Category = dec(w.Category)
		if w.Context != nil {
			ctx := make(map[string]string, len(w.Context))
			for k, v := range w.Context {
				ctx[dec(k)] = dec(v)
			}
			w.Context = ctx
		}
		if err != nil {
			return fmt.Errorf("record %s: %w", w.ID, err)
		}
	default:
		return fmt.Errorf("record %s: unknown encoding %q", w.ID, w.Encoding)
	}
	*r = Record(w.recordFields)
	return nil
}

func (r Record) validUTF8() bool {
	if !utf8.ValidString(r.ID) || !utf8.ValidString(r.Content) || !utf8.ValidString(r.Category) {
		return false
	}
	for k, v := range r.Context {
		if !utf8.ValidString(k) || !utf8.ValidString(v) {
			return false
		}
	}
	return true
}

// NewRecord describes a record to be added to a Store.
type NewRecord struct {
	Content        string
	Context        map[string]string
	Kind           Kind
	Category       string
	BaseImportance float64
}
