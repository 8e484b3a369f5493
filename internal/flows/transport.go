package flows

import (
	"errors"
	"fmt"

	"github.com/SmarTanom/sessionguard/internal/backend"
)

// TransportErrors maps backend transport failures onto host sentinels.
type TransportErrors struct {
	RequestTimeout    error
	Network           error
	MalformedResponse error
}

// mapTransport translates timeout, malformed and network failures. Status
// errors are left for the caller and reported with ok == false.
func mapTransport(err error, errs TransportErrors) (error, bool) {
	switch {
	case errors.Is(err, backend.ErrTimeout):
		return fmt.Errorf("%w: %v", errs.RequestTimeout, err), true
	case errors.Is(err, backend.ErrMalformedResponse):
		return fmt.Errorf("%w: %v", errs.MalformedResponse, err), true
	}
	if _, isStatus := backend.AsStatusError(err); isStatus {
		return err, false
	}
	return fmt.Errorf("%w: %v", errs.Network, err), true
}
