package internaldefs

import (
	authcore "github.com/MrEthical07/authcore"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for exporters.
type HistogramDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: authcore.MetricPasswordLoginSuccess, Name: "authcore_password_login_success_total", Help: "Successful password logins."},
	{ID: authcore.MetricPasswordLoginFailure, Name: "authcore_password_login_failure_total", Help: "Failed password logins."},
	{ID: authcore.MetricOtpLoginSuccess, Name: "authcore_otp_login_success_total", Help: "Successful one-time-code logins."},
	{ID: authcore.MetricOtpLoginFailure, Name: "authcore_otp_login_failure_total", Help: "Failed one-time-code logins."},
	{ID: authcore.MetricFederatedLoginSuccess, Name: "authcore_federated_login_success_total", Help: "Successful federated logins."},
	{ID: authcore.MetricFederatedLoginFailure, Name: "authcore_federated_login_failure_total", Help: "Failed federated logins."},
	{ID: authcore.MetricOtpIssued, Name: "authcore_otp_issued_total", Help: "One-time-code challenges recorded."},
	{ID: authcore.MetricOtpConsumed, Name: "authcore_otp_consumed_total", Help: "One-time-code challenges consumed."},
	{ID: authcore.MetricOtpMissingChallenge, Name: "authcore_otp_missing_challenge_total", Help: "Code submissions without an outstanding challenge."},
	{ID: authcore.MetricOtpRequestThrottled, Name: "authcore_otp_request_throttled_total", Help: "Code requests refused by the local throttle."},
	{ID: authcore.MetricFederatedIgnored, Name: "authcore_federated_ignored_total", Help: "Provider sign-in events ignored while authenticated."},
	{ID: authcore.MetricBootstrapSuccess, Name: "authcore_bootstrap_success_total", Help: "Stored tokens verified at startup."},
	{ID: authcore.MetricBootstrapFailure, Name: "authcore_bootstrap_failure_total", Help: "Stored tokens rejected at startup."},
	{ID: authcore.MetricBootstrapTimeout, Name: "authcore_bootstrap_timeout_total", Help: "Startup verifications that timed out."},
	{ID: authcore.MetricLogout, Name: "authcore_logout_total", Help: "User-initiated logouts."},
	{ID: authcore.MetricForcedLogout, Name: "authcore_forced_logout_total", Help: "Logouts caused by expiry or a failed extension."},
	{ID: authcore.MetricExtendSuccess, Name: "authcore_extend_success_total", Help: "Successful session extensions."},
	{ID: authcore.MetricExtendFailure, Name: "authcore_extend_failure_total", Help: "Failed session extensions."},
	{ID: authcore.MetricProfileUpdated, Name: "authcore_profile_updated_total", Help: "Applied profile updates."},
	{ID: authcore.MetricStaleResultDiscarded, Name: "authcore_stale_result_discarded_total", Help: "Backend results discarded because the session moved on."},
	{ID: authcore.MetricWarningShown, Name: "authcore_warning_shown_total", Help: "Expiry warnings raised."},
	{ID: authcore.MetricGuardRedirect, Name: "authcore_guard_redirect_total", Help: "Route decisions that redirected."},
	{ID: authcore.MetricTokenStoreFailure, Name: "authcore_token_store_failure_total", Help: "Token store reads or writes that failed."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: authcore.MetricBackendLatency, Name: "authcore_backend_latency_seconds", Help: "Backend call latency histogram."},
}

// AuditDroppedName is the counter of audit events dropped for backpressure.
const AuditDroppedName = "authcore_audit_dropped_total"

// HistogramBounds are the upper bounds, in seconds, of the latency buckets.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundValues are HistogramBounds without the +Inf bucket.
var HistogramBoundValues = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names the buckets for exporters that need identifier-safe keys.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates raw to the fixed bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
