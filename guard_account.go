package sessionguard

import (
	"context"
	"log/slog"

	"github.com/SmarTanom/sessionguard/internal"
	"github.com/SmarTanom/sessionguard/internal/backend"
	"github.com/SmarTanom/sessionguard/internal/flows"
)

// Register submits a sign-up. The request is validated locally first. The
// account starts inactive, so Register never signs in.
func (g *Guard) Register(ctx context.Context, req RegisterRequest) (RegisterResult, error) {
	if g == nil {
		return RegisterResult{}, ErrGuardNotReady
	}
	ctx = requestContext(ctx)

	resp, err := flows.RunRegister(ctx, backend.RegisterPayload{
		Email:     req.Email,
		Name:      req.Name,
		Password:  req.Password,
		Password2: req.Password2,
		Contact:   req.Contact,
	}, g.accountDeps())
	if err != nil {
		return RegisterResult{}, err
	}

	g.logger.LogAttrs(ctx, slog.LevelInfo, "sessionguard: registered",
		slog.String("email", internal.MaskEmail(resp.Email)),
	)
	return RegisterResult{UserID: resp.UserID, Email: resp.Email, Message: resp.Message}, nil
}

// Activate follows the activation link identified by uid and token. On
// success the user is signed in exactly as after [Guard.Login].
func (g *Guard) Activate(ctx context.Context, uid, token string) (User, error) {
	if g == nil {
		return User{}, ErrGuardNotReady
	}
	ctx = requestContext(ctx)

	g.opMu.Lock()
	defer g.opMu.Unlock()

	sess, err := flows.RunActivate(ctx, uid, token, g.accountDeps())
	if err != nil {
		return User{}, err
	}
	return sess.User, nil
}

func (g *Guard) accountDeps() flows.AccountDeps {
	return flows.AccountDeps{
		Validate: func(p backend.RegisterPayload) error {
			return g.validateStruct(RegisterRequest{
				Email:     p.Email,
				Name:      p.Name,
				Password:  p.Password,
				Password2: p.Password2,
				Contact:   p.Contact,
			})
		},
		Register:       g.backend.Register,
		Activate:       g.backend.Activate,
		ResetLockout:   g.lockout.Reset,
		PersistSession: g.persist,
		PublishSession: g.publish,
		MetricInc:      g.metricInc,
		EmitAudit:      g.emitAudit,
		Warn:           g.warn,
		Metrics: flows.AccountMetrics{
			RegisterSuccess:   int(MetricRegisterSuccess),
			RegisterFailure:   int(MetricRegisterFailure),
			ActivationSuccess: int(MetricActivationSuccess),
			ActivationFailure: int(MetricActivationFailure),
		},
		Events: flows.AccountEvents{
			Register:   auditEventRegister,
			Activation: auditEventActivation,
		},
		Errors: flows.AccountErrors{
			InvalidInput:       ErrInvalidInput,
			RegistrationFailed: ErrRegistrationFailed,
			ActivationInvalid:  ErrActivationInvalid,
			StorageUnavailable: ErrStorageUnavailable,
			Transport:          g.transportErrors(),
		},
	}
}
