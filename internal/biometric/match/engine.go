// Package match compares an encrypted query vector against the enrolled
// vectors of a single organization and produces ranked, confidence-scored
// candidates.
package match

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"medid/internal/biometric/models"
	id "medid/pkg/domain"
	dErrors "medid/pkg/domain-errors"
)

// Confidence tiers. Candidates below LowTier are discarded outright; only
// candidates at or above HighTier are eligible for token issuance.
const (
	LowTier  = 0.0
	HighTier = 0.75
)

// NoMatchReason distinguishes the two non-error "no matches" outcomes for the
// audit trail.
type NoMatchReason string

const (
	// ReasonNoEnrollments: nothing cleared the low tier (or the org has no
	// enrollments at all).
	ReasonNoEnrollments NoMatchReason = "no_matches"
	// ReasonInsufficientConfidence: candidates cleared the low tier but none
	// cleared the high tier.
	ReasonInsufficientConfidence NoMatchReason = "insufficient_confidence"
)

// maxConcurrentCompares bounds the decrypt-compare fan-out per call.
const maxConcurrentCompares = 8

// VectorStore is the slice of the record store the engine needs.
type VectorStore interface {
	FindEnrolledVectorsByOrg(ctx context.Context, orgID id.OrgID) ([]models.EnrolledVector, error)
}

// Decrypter recovers plaintext vectors inside the scoped
// decrypt-compare-discard window.
type Decrypter interface {
	DecryptVector(ciphertext []byte) ([]float64, error)
}

// Result is the outcome of one identification call.
type Result struct {
	// Candidates holds every candidate above the low tier, ordered by
	// confidence descending (patient id ascending on ties).
	Candidates []models.MatchCandidate
	// Reason is set when Eligible() is empty.
	Reason NoMatchReason
}

// Eligible returns only the candidates that clear the high tier and may be
// named in an issued access token.
func (r Result) Eligible() []models.MatchCandidate {
	var out []models.MatchCandidate
	for _, c := range r.Candidates {
		if c.Confidence >= HighTier {
			out = append(out, c)
		}
	}
	return out
}

// Engine matches encrypted query vectors against enrolled vectors.
//
// The encryption boundary is crossed only inside Identify: vectors are
// decrypted, compared, and discarded within the call's lifetime and never
// persisted in plaintext.
type Engine struct {
	vectors   VectorStore
	decrypter Decrypter
	logger    *slog.Logger
}

// Option configures optional engine collaborators.
type Option func(*Engine)

// WithLogger attaches a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// NewEngine constructs a match engine.
func NewEngine(vectors VectorStore, decrypter Decrypter, opts ...Option) *Engine {
	e := &Engine{vectors: vectors, decrypter: decrypter}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Identify compares the encrypted query against every enrollment scoped to
// orgID. The org scope is a hard tenant boundary: the engine only ever
// queries the store with the caller's organization.
func (e *Engine) Identify(ctx context.Context, encryptedQuery []byte, orgID id.OrgID) (Result, error) {
	if orgID.IsNil() {
		return Result{}, dErrors.New(dErrors.CodeTenantScope, "organization scope is required")
	}

	query, err := e.decrypter.DecryptVector(encryptedQuery)
	if err != nil {
		return Result{}, dErrors.Wrap(err, dErrors.CodeCrypto, "could not decrypt query vector")
	}

	enrolled, err := e.vectors.FindEnrolledVectorsByOrg(ctx, orgID)
	if err != nil {
		return Result{}, dErrors.Wrap(err, dErrors.CodeInternal, "could not load enrolled vectors")
	}
	if len(enrolled) == 0 {
		return Result{Reason: ReasonNoEnrollments}, nil
	}

	now := time.Now()
	var mu sync.Mutex
	candidates := make([]models.MatchCandidate, 0, len(enrolled))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentCompares)
	for _, entry := range enrolled {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			reference, err := e.decrypter.DecryptVector(entry.EncryptedVector)
			if err != nil {
				// A single undecryptable enrollment must not fail the whole
				// identification; the row is skipped and the rest compared.
				if e.logger != nil {
					e.logger.WarnContext(ctx, "skipping undecryptable enrollment",
						"patient_id", entry.PatientID.String())
				}
				return nil
			}
			confidence := Confidence(query, reference)
			if confidence < LowTier || confidence == 0 {
				return nil
			}
			mu.Lock()
			candidates = append(candidates, models.MatchCandidate{
				PatientID:      entry.PatientID,
				OrganizationID: entry.OrganizationID,
				Confidence:     confidence,
				LastUpdated:    now,
			})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	if len(candidates) == 0 {
		return Result{Reason: ReasonNoEnrollments}, nil
	}

	sortCandidates(candidates)

	result := Result{Candidates: candidates}
	if len(result.Eligible()) == 0 {
		result.Reason = ReasonInsufficientConfidence
	}
	return result, nil
}

// sortCandidates orders by descending confidence; equal confidence ties break
// by patient id ascending for determinism.
func sortCandidates(candidates []models.MatchCandidate) {
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Confidence != candidates[j].Confidence {
			return candidates[i].Confidence > candidates[j].Confidence
		}
		return candidates[i].PatientID.String() < candidates[j].PatientID.String()
	})
}

// Confidence maps the Euclidean distance between two vectors to a similarity
// score in (0,1], where 1 means identical. The distance is normalized by the
// vector dimension so the mapping is stable across embedding sizes:
//
//	confidence = 1 / (1 + d/n)
//
// The mapping is monotonic in d and used identically at enrollment and
// identification time. Mismatched dimensions score 0 (not comparable).
func Confidence(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var sum float64
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	distance := math.Sqrt(sum)
	return 1 / (1 + distance/float64(len(a)))
}
