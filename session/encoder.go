package session

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// EncodeUser serializes u for storage.
func EncodeUser(u User) (string, error) {
	data, err := json.Marshal(u)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DecodeUser parses a stored user record. Anything that is not a JSON object
// describing some identity is reported as [ErrCorrupt].
func DecodeUser(raw string) (User, error) {
	trimmed := bytes.TrimSpace([]byte(raw))
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return User{}, ErrCorrupt
	}

	var u User
	if err := json.Unmarshal(trimmed, &u); err != nil {
		return User{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if u.IsZero() {
		return User{}, ErrCorrupt
	}
	return u, nil
}
