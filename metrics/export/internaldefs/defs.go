package internaldefs

import (
	"github.com/SmarTanom/sessionguard"
)

// Series is one labelled sample within a family.
type Series struct {
	ID    sessionguard.MetricID
	Value string
}

// FamilyDef groups counters that share a name and differ by one label.
// A family with an empty Label has exactly one unlabelled series.
type FamilyDef struct {
	Name   string
	Help   string
	Label  string
	Series []Series
}

// HistogramDef maps a histogram ID to its exported name.
type HistogramDef struct {
	ID   sessionguard.MetricID
	Name string
	Help string
}

// Login outcome label values.
const (
	OutcomeSuccess      = "success"
	OutcomeRejected     = "rejected"
	OutcomeLocked       = "locked"
	OutcomeTimeout      = "timeout"
	OutcomeNetworkError = "network_error"
	OutcomeMalformed    = "malformed"
)

// CounterFamilies lists every exported counter family in render order.
var CounterFamilies = []FamilyDef{
	{
		Name:  "sessionguard_login_attempts_total",
		Help:  "Login attempts by outcome.",
		Label: "outcome",
		Series: []Series{
			{ID: sessionguard.MetricLoginSuccess, Value: OutcomeSuccess},
			{ID: sessionguard.MetricLoginFailure, Value: OutcomeRejected},
			{ID: sessionguard.MetricLoginLocked, Value: OutcomeLocked},
			{ID: sessionguard.MetricLoginTimeout, Value: OutcomeTimeout},
			{ID: sessionguard.MetricLoginNetworkError, Value: OutcomeNetworkError},
			{ID: sessionguard.MetricLoginMalformed, Value: OutcomeMalformed},
		},
	},
	{
		Name:  "sessionguard_lockout_events_total",
		Help:  "Lockout transitions. triggered counts failures that engaged a lock, expired counts locks cleared after the window.",
		Label: "event",
		Series: []Series{
			{ID: sessionguard.MetricLockoutTriggered, Value: "triggered"},
			{ID: sessionguard.MetricLockoutExpired, Value: "expired"},
		},
	},
	{
		Name:  "sessionguard_profile_operations_total",
		Help:  "Profile writes and backend refreshes.",
		Label: "op",
		Series: []Series{
			{ID: sessionguard.MetricProfileUpdated, Value: "update"},
			{ID: sessionguard.MetricProfileFetched, Value: "fetch"},
		},
	},
	{
		Name:  "sessionguard_register_total",
		Help:  "Sign-up attempts by result.",
		Label: "result",
		Series: []Series{
			{ID: sessionguard.MetricRegisterSuccess, Value: "accepted"},
			{ID: sessionguard.MetricRegisterFailure, Value: "rejected"},
		},
	},
	{
		Name:  "sessionguard_activation_total",
		Help:  "Account activations by result.",
		Label: "result",
		Series: []Series{
			{ID: sessionguard.MetricActivationSuccess, Value: "success"},
			{ID: sessionguard.MetricActivationFailure, Value: "failure"},
		},
	},
	{
		Name:   "sessionguard_logout_total",
		Help:   "Logouts that cleared a session.",
		Series: []Series{{ID: sessionguard.MetricLogout}},
	},
	{
		Name:   "sessionguard_session_restored_total",
		Help:   "Sessions restored from storage.",
		Series: []Series{{ID: sessionguard.MetricSessionRestored}},
	},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: sessionguard.MetricLoginLatency, Name: "sessionguard_login_latency_seconds", Help: "Backend login round-trip latency."},
}

// Names of the series that are not snapshot counters.
const (
	AuditDroppedName = "sessionguard_audit_dropped_total"
	AuditDroppedHelp = "Audit events dropped because the dispatcher buffer was full."

	AuthenticatedName = "sessionguard_session_authenticated"
	AuthenticatedHelp = "1 while a session is published, 0 when signed out."
)

// Bool01 maps a flag onto a gauge value.
func Bool01(v bool) uint64 {
	if v {
		return 1
	}
	return 0
}

// HistogramBounds are the Prometheus le labels matching the core buckets.
var HistogramBounds = []string{
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"1",
	"2.5",
	"5",
	"+Inf",
}

// HistogramBoundSuffix are instrument-safe forms of HistogramBounds.
var HistogramBoundSuffix = []string{
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"1",
	"2_5",
	"5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed-size array, zero-filling short input.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
