// Package checkin composes identity, enrollment, token, and ledger into the
// per-attempt state machine:
//
//	IdentityPending → EnrollmentPending → TokenValidation →
//	AlreadyMarked | Marking → Marked
//
// with Failed(reason) reachable from every state. Each attempt is stateless;
// re-entry (a reload mid-flow) simply resumes from EnrollmentPending with the
// session identity. Dedup under concurrency is carried by the ledger's atomic
// insert, never by a read-then-write here.
package checkin

import (
	"context"
	"time"

	"qrattend/internal/apperr"
	"qrattend/internal/dateutil"
	"qrattend/internal/enrollment"
	"qrattend/internal/identity"
	"qrattend/internal/ledger"
)

// Status is the terminal outcome of a successful attempt. AlreadyMarked is a
// success, not an error: it is displayed distinctly from Marked.
type Status string

const (
	StatusMarked        Status = "marked"
	StatusAlreadyMarked Status = "already_marked"
)

// Result is what the caller renders after an attempt.
type Result struct {
	Status   Status        `json:"status"`
	Record   ledger.Record `json:"-"`
	MarkedAt time.Time     `json:"timestamp"`
}

// EnrollmentLookup answers enrollment state for a (subject, batch) pair.
type EnrollmentLookup interface {
	Lookup(ctx context.Context, subjectID, batchID string) (enrollment.Enrollment, error)
}

// TokenResolver maps a presented token value to its (batch, day).
type TokenResolver interface {
	Resolve(ctx context.Context, value string) (batchID, day string, err error)
}

// Ledger is the slice of the attendance ledger the orchestrator writes.
type Ledger interface {
	AlreadyMarked(ctx context.Context, studentID, batchID, day string) (bool, error)
	Mark(ctx context.Context, studentID, batchID, day, tokenValue string) (ledger.Record, bool, error)
}

// Orchestrator runs check-in attempts.
type Orchestrator struct {
	verifier    identity.Verifier
	enrollments EnrollmentLookup
	tokens      TokenResolver
	ledger      Ledger

	now func() time.Time
}

func New(verifier identity.Verifier, enrollments EnrollmentLookup, tokens TokenResolver, led Ledger) *Orchestrator {
	return &Orchestrator{
		verifier:    verifier,
		enrollments: enrollments,
		tokens:      tokens,
		ledger:      led,
		now:         time.Now,
	}
}

// AttemptCredential is the cold path: the caller presents a raw provider
// credential which must verify before anything else happens.
func (o *Orchestrator) AttemptCredential(ctx context.Context, credential, batchID, tokenValue string) (Result, error) {
	ident, err := o.verifier.Verify(ctx, credential)
	if err != nil {
		return Result{}, err
	}
	return o.Attempt(ctx, ident.SubjectID, batchID, tokenValue)
}

// Attempt runs the state machine for an already-verified subject (the warm
// path, identity carried by the session token).
func (o *Orchestrator) Attempt(ctx context.Context, subjectID, batchID, tokenValue string) (Result, error) {
	if subjectID == "" {
		return Result{}, apperr.InvalidCredential("missing subject")
	}
	if batchID == "" || tokenValue == "" {
		return Result{}, apperr.Invalid("batch and token are required")
	}

	// EnrollmentPending
	enr, err := o.enrollments.Lookup(ctx, subjectID, batchID)
	if err != nil {
		return Result{}, err
	}

	// TokenValidation: the token must belong to this batch and to today.
	tokenBatch, tokenDay, err := o.tokens.Resolve(ctx, tokenValue)
	if err != nil {
		return Result{}, err
	}
	if tokenBatch != enr.BatchID {
		return Result{}, apperr.TokenBatchMismatch()
	}
	today := dateutil.Format(o.now())
	if tokenDay != today {
		return Result{}, apperr.TokenExpired(tokenDay)
	}

	// AlreadyMarked gate. Advisory only: the ledger insert below is the
	// authoritative dedup, so a race between the two reads is harmless.
	already, err := o.ledger.AlreadyMarked(ctx, subjectID, batchID, today)
	if err != nil {
		return Result{}, err
	}

	// Marking → Marked (or convergence on the existing record).
	rec, created, err := o.ledger.Mark(ctx, subjectID, batchID, today, tokenValue)
	if err != nil {
		return Result{}, err
	}

	status := StatusMarked
	if already || !created {
		status = StatusAlreadyMarked
	}
	return Result{Status: status, Record: rec, MarkedAt: rec.MarkedAt}, nil
}
