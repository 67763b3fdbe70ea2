package goAdmin

import (
	"context"
	"time"
)

// AccountRecord is one entry of the profile store. ID equals the identity
// provider subject id.
type AccountRecord struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	Role        string `json:"role"`
}

// Principal is the identity currently holding the ambient session.
type Principal struct {
	ID    string
	Email string
}

// ProfileStore is the document store holding per-account metadata.
//
//	Implementations: profile/redisstore, profile/pgstore
type ProfileStore interface {
	ListAll(ctx context.Context) ([]AccountRecord, error)
	DeleteByID(ctx context.Context, id string) error
}

// IdentityProvider is the system of record for credentials and the ambient
// session. The panel observes the session and never mutates it, except by
// calling SignOut after the signed-in principal was deleted.
//
// ValidateCredential must return an error matching ErrInvalidCredential when
// the secret is wrong. OnSessionChange must invoke fn with the current
// presence before returning and again on every change until unsubscribe is
// called.
//
//	Implementations: identity/redisidp, identity/kratosidp
type IdentityProvider interface {
	CurrentPrincipal(ctx context.Context) (Principal, bool, error)
	ValidateCredential(ctx context.Context, email, secret string) error
	DeleteCurrentPrincipal(ctx context.Context) error
	SignOut(ctx context.Context) error
	OnSessionChange(fn func(present bool)) (unsubscribe func(), err error)
}

// DestinationKind selects where a Navigator should go.
type DestinationKind uint8

const (
	// DestinationLogin is used when the session ends.
	DestinationLogin DestinationKind = iota
	// DestinationEdit is used when the operator chooses to edit an account.
	DestinationEdit
)

// Destination is handed to the Navigator.
type Destination struct {
	Kind      DestinationKind
	AccountID string
}

// Path renders the destination the way the panel's shells route it.
func (d Destination) Path() string {
	if d.Kind == DestinationEdit {
		return "/edit-user/" + d.AccountID
	}
	return "/"
}

// Navigator is the UI shell collaborator that changes screens.
type Navigator interface {
	Navigate(ctx context.Context, dest Destination)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(ctx context.Context, dest Destination)

func (f NavigatorFunc) Navigate(ctx context.Context, dest Destination) {
	f(ctx, dest)
}

// OrphanReport describes a profile record deleted without its identity.
type OrphanReport struct {
	TargetID   string
	Email      string
	DetectedAt time.Time
	Cause      string
}

// OrphanRecorder persists orphan incidents for reconciliation tooling.
//
//	Implementation: reconcile.Ledger
type OrphanRecorder interface {
	RecordOrphan(ctx context.Context, report OrphanReport) (string, error)
}

// DisplayState is what the directory view should render.
type DisplayState uint8

const (
	// DisplayLoading is reported while a Load is in flight.
	DisplayLoading DisplayState = iota
	// DisplayReady is reported after a successful Load.
	DisplayReady
	// DisplayLoadFailed is reported after a failed Load.
	DisplayLoadFailed
	// DisplaySignedOut is reported once the session ended.
	DisplaySignedOut
)

func (s DisplayState) String() string {
	switch s {
	case DisplayLoading:
		return "loading"
	case DisplayReady:
		return "ready"
	case DisplayLoadFailed:
		return "load_failed"
	case DisplaySignedOut:
		return "signed_out"
	default:
		return "unknown"
	}
}

// GateState is the resting state of the reauthentication gate.
type GateState uint8

const (
	// GateIdle means no challenge is open.
	GateIdle GateState = iota
	// GateChallenged means the operator is being asked for a credential.
	GateChallenged
	// GateVerifying means a credential is being checked or the verified
	// deletion is running.
	GateVerifying
)

func (s GateState) String() string {
	switch s {
	case GateIdle:
		return "idle"
	case GateChallenged:
		return "challenged"
	case GateVerifying:
		return "verifying"
	default:
		return "unknown"
	}
}

// GateOutcome is the transient result of a gate transition.
type GateOutcome uint8

const (
	// OutcomeNone means the gate did not leave Challenged.
	OutcomeNone GateOutcome = iota
	// OutcomeVerified means the credential was accepted and the deletion ran.
	OutcomeVerified
	// OutcomeRejected means the pending deletion was discarded.
	OutcomeRejected
)

func (o GateOutcome) String() string {
	switch o {
	case OutcomeVerified:
		return "verified"
	case OutcomeRejected:
		return "rejected"
	default:
		return "none"
	}
}

// PendingDeletion is the operator's destructive intent awaiting step-up.
type PendingDeletion struct {
	TargetID    string
	RequestedAt time.Time
}

// ReauthChallenge is open while a PendingDeletion waits for fresh proof.
type ReauthChallenge struct {
	TargetID    string
	PrincipalID string
	IssuedAt    time.Time
	Attempts    int
}

// SubmitResult is returned by Panel.SubmitCredential.
type SubmitResult struct {
	Outcome GateOutcome
	State   GateState
	Delete  *DeleteResult
}

// DeleteResult is returned when both stores accepted the deletion.
type DeleteResult struct {
	TargetID  string
	SignedOut bool
	// SignOutErr is set (matching ErrSignOutFailed) when the final sign-out
	// failed. The deletion itself completed.
	SignOutErr error
}
