package pocketbase

import "encoding/json"

// Record is a PocketBase record. Well-known auth fields are promoted to
// struct fields; everything else the collection carries lands in Fields.
type Record struct {
	ID       string
	Email    string
	Verified bool
	Fields   map[string]any
}

// Get returns an arbitrary profile field.
func (r *Record) Get(key string) (any, bool) {
	if r == nil || r.Fields == nil {
		return nil, false
	}
	v, ok := r.Fields[key]
	return v, ok
}

// UnmarshalJSON keeps fields beyond id/email/verified instead of dropping them.
func (r *Record) UnmarshalJSON(data []byte) error {
	raw := make(map[string]any)
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	r.ID, _ = raw["id"].(string)
	r.Email, _ = raw["email"].(string)
	r.Verified, _ = raw["verified"].(bool)

	delete(raw, "id")
	delete(raw, "email")
	delete(raw, "verified")
	r.Fields = raw
	return nil
}

// MarshalJSON restores the flat wire shape.
func (r *Record) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(r.Fields)+3)
	for k, v := range r.Fields {
		flat[k] = v
	}
	flat["id"] = r.ID
	flat["email"] = r.Email
	flat["verified"] = r.Verified
	return json.Marshal(flat)
}
