package internaldefs

import (
	goAdmin "github.com/MrEthical07/goAdmin"
)

// CounterDef binds a panel counter to its exported name.
type CounterDef struct {
	ID   goAdmin.MetricID
	Name string
	Help string
}

// HistogramDef binds a panel latency histogram to its exported name.
type HistogramDef struct {
	ID   goAdmin.MetricID
	Name string
	Help string
}

const (
	AuditDroppedName = "goadmin_audit_dropped_total"
	AuditDroppedHelp = "Audit events dropped because the dispatcher buffer was full."
)

// CounterDefs lists every exported counter in rendering order.
var CounterDefs = []CounterDef{
	{ID: goAdmin.MetricDirectoryLoadSuccess, Name: "goadmin_directory_load_success_total", Help: "Directory loads that replaced the cache."},
	{ID: goAdmin.MetricDirectoryLoadFailure, Name: "goadmin_directory_load_failure_total", Help: "Directory loads that failed."},
	{ID: goAdmin.MetricReauthChallenged, Name: "goadmin_reauth_challenged_total", Help: "Deletion requests that opened a reauthentication challenge."},
	{ID: goAdmin.MetricReauthSuccess, Name: "goadmin_reauth_success_total", Help: "Accepted reauthentication credentials."},
	{ID: goAdmin.MetricReauthInvalid, Name: "goadmin_reauth_invalid_total", Help: "Rejected reauthentication credentials."},
	{ID: goAdmin.MetricReauthUnavailable, Name: "goadmin_reauth_unavailable_total", Help: "Reauthentication attempts the identity provider could not answer."},
	{ID: goAdmin.MetricReauthRateLimited, Name: "goadmin_reauth_rate_limited_total", Help: "Reauthentication attempts refused by the limiter."},
	{ID: goAdmin.MetricReauthCancelled, Name: "goadmin_reauth_cancelled_total", Help: "Challenges cancelled by the operator."},
	{ID: goAdmin.MetricReauthExpired, Name: "goadmin_reauth_expired_total", Help: "Challenges that expired before a credential arrived."},
	{ID: goAdmin.MetricWrongPrincipal, Name: "goadmin_wrong_principal_total", Help: "Deletions refused because the target was not the signed-in principal."},
	{ID: goAdmin.MetricAccountDeleted, Name: "goadmin_account_deleted_total", Help: "Accounts removed from both stores."},
	{ID: goAdmin.MetricProfileDeleteFailure, Name: "goadmin_profile_delete_failure_total", Help: "Profile store deletions that failed."},
	{ID: goAdmin.MetricIdentityDeleteFailure, Name: "goadmin_identity_delete_failure_total", Help: "Identity deletions that failed after the profile was removed."},
	{ID: goAdmin.MetricOrphanDetected, Name: "goadmin_orphan_detected_total", Help: "Profiles deleted while their identity survived."},
	{ID: goAdmin.MetricSignOutFailure, Name: "goadmin_sign_out_failure_total", Help: "Sign-outs that failed after a completed deletion."},
	{ID: goAdmin.MetricSessionLost, Name: "goadmin_session_lost_total", Help: "Session-present to session-absent transitions."},
}

// HistogramDefs lists the latency histograms.
var HistogramDefs = []HistogramDef{
	{ID: goAdmin.MetricLoadLatency, Name: "goadmin_directory_load_seconds", Help: "Directory load latency."},
	{ID: goAdmin.MetricDeleteLatency, Name: "goadmin_account_delete_seconds", Help: "Cross-store account deletion latency."},
}

// HistogramBounds are the upper bounds of the eight core buckets, in seconds.
var HistogramBounds = [8]string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// Cumulative turns the per-bucket counts of a snapshot into cumulative
// counts. Missing buckets count as zero.
func Cumulative(raw []uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := range out {
		if i < len(raw) {
			running += raw[i]
		}
		out[i] = running
	}
	return out
}
