package token

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"net/url"
	"time"

	"github.com/redis/go-redis/v9"

	"qrattend/internal/apperr"
	"qrattend/internal/dateutil"
)

// DailyToken is the rotating secret for one (batch, calendar day) pair.
// Rotating daily bounds the replay window of a photographed QR code to one
// day while keeping one reusable code per day for every student.
type DailyToken struct {
	BatchID  string    `json:"batch_id"`
	Day      string    `json:"day"`
	Value    string    `json:"token"`
	IssuedAt time.Time `json:"issued_at"`
}

// Repo is the storage contract for daily tokens.
type Repo interface {
	// Insert is insert-if-absent on (batch, day); it reports whether this call
	// stored the row.
	Insert(ctx context.Context, t DailyToken) (bool, error)
	GetByBatchDay(ctx context.Context, batchID, day string) (*DailyToken, error)
	GetByValue(ctx context.Context, value string) (*DailyToken, error)
}

// Issuer mints and resolves daily tokens.
type Issuer struct {
	repo    Repo
	cache   *redis.Client // nil disables the resolve cache
	baseURL string
}

const cacheTTL = 48 * time.Hour

func NewIssuer(repo Repo, cache *redis.Client, publicBaseURL string) *Issuer {
	return &Issuer{repo: repo, cache: cache, baseURL: publicBaseURL}
}

// Current returns the token for (batchID, day), minting one if none exists.
// Concurrent callers converge on a single value: the insert is conditional on
// the composite key and losers re-read the winner's row. The day is caller
// supplied so instructors can issue for makeup sessions; "use today" is the
// caller's policy, not the issuer's.
func (i *Issuer) Current(ctx context.Context, batchID, day string) (DailyToken, bool, error) {
	if batchID == "" {
		return DailyToken{}, false, apperr.Invalid("batch id is required")
	}
	if !dateutil.Valid(day) {
		return DailyToken{}, false, apperr.Invalid("date must be YYYY-MM-DD")
	}

	if existing, err := i.repo.GetByBatchDay(ctx, batchID, day); err != nil {
		return DailyToken{}, false, apperr.Transient(err)
	} else if existing != nil {
		return *existing, true, nil
	}

	minted := DailyToken{
		BatchID:  batchID,
		Day:      day,
		Value:    newValue(),
		IssuedAt: time.Now().UTC(),
	}
	created, err := i.repo.Insert(ctx, minted)
	if err != nil {
		return DailyToken{}, false, apperr.Transient(err)
	}
	if created {
		return minted, false, nil
	}

	// Lost the race: another issuer minted first. Return theirs.
	stored, err := i.repo.GetByBatchDay(ctx, batchID, day)
	if err != nil || stored == nil {
		return DailyToken{}, false, apperr.Transient(err)
	}
	return *stored, true, nil
}

// Resolve maps a presented token value back to its (batch, day). Past-day
// tokens still resolve for audit; rejecting them for check-in is the
// orchestrator's job.
func (i *Issuer) Resolve(ctx context.Context, value string) (string, string, error) {
	if value == "" {
		return "", "", apperr.InvalidToken()
	}

	if i.cache != nil {
		if cached, err := i.cache.Get(ctx, cacheKey(value)).Result(); err == nil {
			if batchID, day, ok := splitCached(cached); ok {
				return batchID, day, nil
			}
		}
	}

	t, err := i.repo.GetByValue(ctx, value)
	if err != nil {
		return "", "", apperr.Transient(err)
	}
	if t == nil {
		return "", "", apperr.InvalidToken()
	}

	if i.cache != nil {
		_ = i.cache.Set(ctx, cacheKey(value), t.BatchID+"|"+t.Day, cacheTTL).Err()
	}
	return t.BatchID, t.Day, nil
}

// AttendanceURL builds the link embedded in the daily QR code.
func (i *Issuer) AttendanceURL(batchID, value string) string {
	return i.baseURL + "/attend?batch=" + url.QueryEscape(batchID) + "&token=" + url.QueryEscape(value)
}

// EnrollmentURL builds the one-time enrollment link for a batch.
func (i *Issuer) EnrollmentURL(batchID string) string {
	return i.baseURL + "/enroll?batch=" + url.QueryEscape(batchID)
}

// newValue returns 128 bits from crypto/rand, URL-safe encoded.
func newValue() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		panic("token: crypto/rand unavailable: " + err.Error())
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}

func cacheKey(value string) string { return "token:" + value }

func splitCached(s string) (string, string, bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == '|' {
			return s[:i], s[i+1:], true
		}
	}
	return "", "", false
}
