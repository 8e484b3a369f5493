package session

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// User is the identity record returned by the accounts backend. The fields
// the Guard reads are typed; every other key the backend sends is kept in
// Extra and written back verbatim, so the stored record is the backend's
// object as a whole.
type User struct {
	ID            int64
	Email         string
	Name          string
	Contact       string
	IsActive      bool
	EmailVerified bool

	// Extra holds the keys not listed above, as raw JSON values.
	Extra map[string]json.RawMessage
}

// knownUser carries the JSON names of the typed fields.
type knownUser struct {
	ID            int64  `json:"id,omitempty"`
	Email         string `json:"email"`
	Name          string `json:"name,omitempty"`
	Contact       string `json:"contact,omitempty"`
	IsActive      bool   `json:"is_active,omitempty"`
	EmailVerified bool   `json:"email_verified,omitempty"`
}

var knownUserKeys = map[string]bool{
	"id":             true,
	"email":          true,
	"name":           true,
	"contact":        true,
	"is_active":      true,
	"email_verified": true,
}

// MarshalJSON writes the typed fields and every Extra key as one object.
func (u User) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(knownUser{
		ID:            u.ID,
		Email:         u.Email,
		Name:          u.Name,
		Contact:       u.Contact,
		IsActive:      u.IsActive,
		EmailVerified: u.EmailVerified,
	})
	if err != nil {
		return nil, err
	}
	if len(u.Extra) == 0 {
		return known, nil
	}

	obj := make(map[string]json.RawMessage, len(u.Extra)+len(knownUserKeys))
	for k, v := range u.Extra {
		if knownUserKeys[k] {
			continue
		}
		obj[k] = v
	}
	if err := json.Unmarshal(known, &obj); err != nil {
		return nil, err
	}
	return json.Marshal(obj)
}

// UnmarshalJSON reads the typed fields and keeps the remaining keys in Extra.
func (u *User) UnmarshalJSON(data []byte) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	var known knownUser
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}

	*u = User{
		ID:            known.ID,
		Email:         known.Email,
		Name:          known.Name,
		Contact:       known.Contact,
		IsActive:      known.IsActive,
		EmailVerified: known.EmailVerified,
	}
	for k, v := range obj {
		if knownUserKeys[k] {
			continue
		}
		if u.Extra == nil {
			u.Extra = make(map[string]json.RawMessage)
		}
		u.Extra[k] = append(json.RawMessage(nil), v...)
	}
	return nil
}

// Merge overlays patch onto u key by key, the way a JSON object spread
// would. Keys absent from patch keep their value.
func (u User) Merge(patch map[string]json.RawMessage) (User, error) {
	if len(patch) == 0 {
		return u.Clone(), nil
	}

	base, err := json.Marshal(u)
	if err != nil {
		return User{}, err
	}
	obj := make(map[string]json.RawMessage)
	if err := json.Unmarshal(base, &obj); err != nil {
		return User{}, err
	}
	for k, v := range patch {
		obj[k] = v
	}
	merged, err := json.Marshal(obj)
	if err != nil {
		return User{}, err
	}

	var out User
	if err := json.Unmarshal(merged, &out); err != nil {
		return User{}, fmt.Errorf("merge user: %w", err)
	}
	return out, nil
}

// Field returns the raw value of an Extra key.
func (u User) Field(key string) (json.RawMessage, bool) {
	v, ok := u.Extra[key]
	return v, ok
}

// StringField returns an Extra key that holds a JSON string.
func (u User) StringField(key string) (string, bool) {
	raw, ok := u.Extra[key]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// Clone returns a copy of u that shares no map with it.
func (u User) Clone() User {
	if u.Extra == nil {
		return u
	}
	extra := make(map[string]json.RawMessage, len(u.Extra))
	for k, v := range u.Extra {
		extra[k] = append(json.RawMessage(nil), v...)
	}
	u.Extra = extra
	return u
}

// Equal reports whether u and o describe the same record.
func (u User) Equal(o User) bool {
	if u.ID != o.ID || u.Email != o.Email || u.Name != o.Name || u.Contact != o.Contact ||
		u.IsActive != o.IsActive || u.EmailVerified != o.EmailVerified {
		return false
	}
	if len(u.Extra) != len(o.Extra) {
		return false
	}
	for k, v := range u.Extra {
		ov, ok := o.Extra[k]
		if !ok || !bytes.Equal(compactJSON(v), compactJSON(ov)) {
			return false
		}
	}
	return true
}

// IsZero reports whether u carries no identity at all.
func (u User) IsZero() bool {
	return u.ID == 0 && u.Email == "" && u.Name == "" && u.Contact == "" &&
		!u.IsActive && !u.EmailVerified && len(u.Extra) == 0
}

func compactJSON(raw json.RawMessage) []byte {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return raw
	}
	return buf.Bytes()
}

// Session is the authenticated identity together with its bearer token.
type Session struct {
	User  User
	Token string
}

// Valid reports whether both halves of the session are present.
func (s *Session) Valid() bool {
	return s != nil && s.Token != "" && !s.User.IsZero()
}
