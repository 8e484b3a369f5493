package sessionguard

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/SmarTanom/sessionguard/internal/flows"
)

// UpdateUserProfile merges the non-nil fields of update, and every key in
// update.Fields, into the current user and persists the result before publishing it. It fails with
// ErrNoSession when signed out; on a storage failure the in-memory user is
// left unchanged.
func (g *Guard) UpdateUserProfile(ctx context.Context, update ProfileUpdate) (User, error) {
	if g == nil {
		return User{}, ErrGuardNotReady
	}
	ctx = requestContext(ctx)

	patch := flows.ProfilePatch{
		Name:     update.Name,
		Email:    update.Email,
		Contact:  update.Contact,
		Username: update.Username,
	}
	if len(update.Fields) > 0 {
		patch.Fields = make(map[string]json.RawMessage, len(update.Fields))
		for k, v := range update.Fields {
			raw, err := json.Marshal(v)
			if err != nil {
				return User{}, fmt.Errorf("%w: field %q: %v", ErrInvalidInput, k, err)
			}
			patch.Fields[k] = raw
		}
	}

	g.opMu.Lock()
	defer g.opMu.Unlock()

	return flows.RunUpdateProfile(ctx, patch, g.profileDeps())
}

// FetchProfile refreshes the current user from the backend. A rejected token
// yields ErrUnauthorized and keeps the local session; signing out is left to
// the caller.
func (g *Guard) FetchProfile(ctx context.Context) (User, error) {
	if g == nil {
		return User{}, ErrGuardNotReady
	}
	ctx = requestContext(ctx)

	g.opMu.Lock()
	defer g.opMu.Unlock()

	return flows.RunFetchProfile(ctx, g.profileDeps())
}

func (g *Guard) profileDeps() flows.ProfileDeps {
	return flows.ProfileDeps{
		CurrentSession: g.snapshot,
		Validate: func(p flows.ProfilePatch) error {
			return g.validateStruct(ProfileUpdate{
				Name:     p.Name,
				Email:    p.Email,
				Contact:  p.Contact,
				Username: p.Username,
			})
		},
		SaveUser:             g.sessions.SaveUser,
		PublishUser:          g.publishUser,
		FetchRemote:          g.backend.Profile,
		MetricInc:            g.metricInc,
		EmitAudit:            g.emitAudit,
		MetricProfileUpdated: int(MetricProfileUpdated),
		MetricProfileFetched: int(MetricProfileFetched),
		EventProfileUpdated:  auditEventProfileUpdated,
		Errors: flows.ProfileErrors{
			NoSession:          ErrNoSession,
			InvalidInput:       ErrInvalidInput,
			Unauthorized:       ErrUnauthorized,
			StorageUnavailable: ErrStorageUnavailable,
			Transport:          g.transportErrors(),
		},
	}
}

func (g *Guard) validateStruct(v any) error {
	return g.validate.Struct(v)
}
