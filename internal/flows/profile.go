package flows

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/SmarTanom/sessionguard/internal"
	"github.com/SmarTanom/sessionguard/internal/backend"
	"github.com/SmarTanom/sessionguard/session"
)

// ProfilePatch holds the changes a caller wants to make. Nil fields are left
// alone; Fields carries any other keys of the user record.
type ProfilePatch struct {
	Name     *string
	Email    *string
	Contact  *string
	Username *string
	Fields   map[string]json.RawMessage
}

// ProfileErrors carries host-level sentinel errors used by profile flows.
type ProfileErrors struct {
	NoSession          error
	InvalidInput       error
	Unauthorized       error
	StorageUnavailable error
	Transport          TransportErrors
}

// ProfileDeps captures profile dependencies.
type ProfileDeps struct {
	CurrentSession func() (session.Session, bool)
	Validate       func(ProfilePatch) error
	SaveUser       func(context.Context, session.User) error
	PublishUser    func(session.User)
	FetchRemote    func(context.Context, string) (session.User, error)

	MetricInc func(int)
	EmitAudit AuditFunc

	MetricProfileUpdated int
	MetricProfileFetched int
	EventProfileUpdated  string
	Errors               ProfileErrors
}

// liftStrings moves string values for the typed keys out of Fields so they
// are normalized and validated like the typed fields.
func (p ProfilePatch) liftStrings() ProfilePatch {
	if len(p.Fields) == 0 {
		return p
	}
	fields := make(map[string]json.RawMessage, len(p.Fields))
	for k, v := range p.Fields {
		fields[k] = v
	}
	for key, dst := range map[string]**string{
		"name":     &p.Name,
		"email":    &p.Email,
		"contact":  &p.Contact,
		"username": &p.Username,
	} {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			continue
		}
		if *dst == nil {
			*dst = &s
		}
		delete(fields, key)
	}
	p.Fields = fields
	return p
}

// Apply merges p into u. Keys in p replace the same keys in u; everything
// else in u is kept.
func (p ProfilePatch) Apply(u session.User) (session.User, error) {
	merged := make(map[string]json.RawMessage, len(p.Fields)+4)
	for k, v := range p.Fields {
		merged[k] = v
	}
	if p.Email != nil {
		email := internal.NormalizeEmail(*p.Email)
		p.Email = &email
	}
	for _, f := range []struct {
		key string
		val *string
	}{
		{"name", p.Name},
		{"email", p.Email},
		{"contact", p.Contact},
		{"username", p.Username},
	} {
		if f.val == nil {
			continue
		}
		// Marshalling a string cannot fail.
		raw, _ := json.Marshal(*f.val)
		merged[f.key] = raw
	}
	return u.Merge(merged)
}

// RunUpdateProfile merges patch into the current user, persists it and only
// then publishes it in memory.
func RunUpdateProfile(ctx context.Context, patch ProfilePatch, deps ProfileDeps) (session.User, error) {
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetric
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}

	cur, ok := deps.CurrentSession()
	if !ok {
		return session.User{}, deps.Errors.NoSession
	}
	patch = patch.liftStrings()
	if patch.Email != nil {
		email := internal.NormalizeEmail(*patch.Email)
		patch.Email = &email
	}
	if deps.Validate != nil {
		if err := deps.Validate(patch); err != nil {
			return session.User{}, fmt.Errorf("%w: %v", deps.Errors.InvalidInput, err)
		}
	}

	updated, err := patch.Apply(cur.User)
	if err != nil {
		return session.User{}, fmt.Errorf("%w: %v", deps.Errors.InvalidInput, err)
	}
	if err := deps.SaveUser(ctx, updated); err != nil {
		return session.User{}, fmt.Errorf("%w: %v", deps.Errors.StorageUnavailable, err)
	}
	deps.PublishUser(updated)

	deps.MetricInc(deps.MetricProfileUpdated)
	deps.EmitAudit(ctx, deps.EventProfileUpdated, true, updated.Email, nil, nil)
	return updated, nil
}

// RunFetchProfile refreshes the current user from the backend using the
// session token.
func RunFetchProfile(ctx context.Context, deps ProfileDeps) (session.User, error) {
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetric
	}

	cur, ok := deps.CurrentSession()
	if !ok {
		return session.User{}, deps.Errors.NoSession
	}

	u, err := deps.FetchRemote(ctx, cur.Token)
	if err != nil {
		if mapped, ok := mapTransport(err, deps.Errors.Transport); ok {
			return session.User{}, mapped
		}
		se, _ := backend.AsStatusError(err)
		if se.StatusCode == http.StatusUnauthorized || se.StatusCode == http.StatusForbidden {
			return session.User{}, fmt.Errorf("%w: %s", deps.Errors.Unauthorized, se.Message)
		}
		return session.User{}, fmt.Errorf("%w: %v", deps.Errors.Transport.Network, se)
	}

	if err := deps.SaveUser(ctx, u); err != nil {
		return session.User{}, fmt.Errorf("%w: %v", deps.Errors.StorageUnavailable, err)
	}
	deps.PublishUser(u)
	deps.MetricInc(deps.MetricProfileFetched)
	return u, nil
}
