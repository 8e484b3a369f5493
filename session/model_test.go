package session

import (
	"encoding/json"
	"strings"
	"testing"
)

const backendUserJSON = `{"id":1,"email":"demo@smartanom.com","name":"Demo","username":"farmer1","avatar":"x.png","farm":{"plots":3}}`

func TestDecodeKeepsUnknownFields(t *testing.T) {
	u, err := DecodeUser(backendUserJSON)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if u.ID != 1 || u.Email != "demo@smartanom.com" || u.Name != "Demo" {
		t.Fatalf("typed fields not decoded: %+v", u)
	}
	if got, ok := u.StringField("username"); !ok || got != "farmer1" {
		t.Fatalf("expected username farmer1, got %q (present=%v)", got, ok)
	}
	if _, ok := u.Field("farm"); !ok {
		t.Fatal("expected nested farm object to be kept")
	}
	if _, ok := u.Extra["email"]; ok {
		t.Fatal("typed keys must not be duplicated into Extra")
	}

	encoded, err := EncodeUser(u)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var got, want map[string]any
	if err := json.Unmarshal([]byte(encoded), &got); err != nil {
		t.Fatalf("re-decode: %v", err)
	}
	if err := json.Unmarshal([]byte(backendUserJSON), &want); err != nil {
		t.Fatal(err)
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d keys, got %d: %s", len(want), len(got), encoded)
	}
	for _, key := range []string{"username", "avatar", "farm"} {
		if _, ok := got[key]; !ok {
			t.Fatalf("expected %q in encoded record %s", key, encoded)
		}
	}
}

func TestMergeOverlaysKeys(t *testing.T) {
	u, err := DecodeUser(backendUserJSON)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	merged, err := u.Merge(map[string]json.RawMessage{
		"username": json.RawMessage(`"farmer2"`),
		"name":     json.RawMessage(`"Budi"`),
		"bio":      json.RawMessage(`"hi"`),
	})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if merged.Name != "Budi" || merged.Email != "demo@smartanom.com" {
		t.Fatalf("unexpected typed fields: %+v", merged)
	}
	if got, _ := merged.StringField("username"); got != "farmer2" {
		t.Fatalf("expected username farmer2, got %q", got)
	}
	if got, _ := merged.StringField("bio"); got != "hi" {
		t.Fatalf("expected bio, got %q", got)
	}
	if got, _ := merged.StringField("avatar"); got != "x.png" {
		t.Fatalf("expected avatar kept, got %q", got)
	}
	if got, _ := u.StringField("username"); got != "farmer1" {
		t.Fatalf("merge must not modify the receiver, got %q", got)
	}

	if _, err := u.Merge(map[string]json.RawMessage{"id": json.RawMessage(`"abc"`)}); err == nil {
		t.Fatal("expected a type error for a non-numeric id")
	}
}

func TestEqualAndClone(t *testing.T) {
	u, _ := DecodeUser(backendUserJSON)
	c := u.Clone()
	if !u.Equal(c) {
		t.Fatal("clone must be equal")
	}
	c.Extra["avatar"] = json.RawMessage(`"y.png"`)
	if u.Equal(c) {
		t.Fatal("changed clone must differ")
	}
	if got, _ := u.StringField("avatar"); got != "x.png" {
		t.Fatalf("clone shares map with original: %q", got)
	}
}

func TestDecodeRejectsNonObjects(t *testing.T) {
	for _, raw := range []string{"", "null", `"demo"`, "[1]", "{}", "{not json"} {
		if _, err := DecodeUser(raw); err == nil {
			t.Fatalf("expected %q to be rejected", raw)
		} else if !strings.Contains(err.Error(), "corrupt") {
			t.Fatalf("expected corrupt error for %q, got %v", raw, err)
		}
	}
}
