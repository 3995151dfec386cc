package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/scielo-br/pid-provider/pkg/errors"
)

const (
	pidLen     = 23
	v3Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

var (
	v3Pattern = regexp.MustCompile(`^[A-Za-z0-9]{23}$`)
	v2Pattern = regexp.MustCompile(`^S[0-9]{4}-?[0-9]{3}[0-9Xx][0-9]{13}$`)
)

// TakenFunc reports whether a candidate pid is already registered.
type TakenFunc func(ctx context.Context, pid string) (bool, error)

// PidGenerator mints v3 and legacy v2 identifiers. Uniqueness is probed
// through a caller-supplied predicate; the storage unique constraint remains
// the final arbiter.
type PidGenerator struct {
	maxAttempts int
	metrics     *MetricsService
	logger      *zap.Logger
}

// NewPidGenerator creates a generator. maxAttempts caps the candidate probes
// per identifier before the space is declared exhausted.
func NewPidGenerator(maxAttempts int, metrics *MetricsService, logger *zap.Logger) *PidGenerator {
	if maxAttempts <= 0 {
		maxAttempts = 50
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PidGenerator{maxAttempts: maxAttempts, metrics: metrics, logger: logger}
}

// GenerateV3 returns a random 23 character opaque identifier.
func (g *PidGenerator) GenerateV3() string {
	buf := make([]byte, pidLen)
	max := big.NewInt(int64(len(v3Alphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand only fails when the OS entropy source is broken.
			panic(err)
		}
		buf[i] = v3Alphabet[n.Int64()]
	}
	return string(buf)
}

// GenerateV2 returns a legacy identifier: the literal S, the journal ISSN,
// the date as yyyymmdd and a random 5 digit suffix.
func (g *PidGenerator) GenerateV2(issn string, t time.Time) string {
	n, err := rand.Int(rand.Reader, big.NewInt(100000))
	if err != nil {
		panic(err)
	}
	return fmt.Sprintf("S%s%s%05d", issn, t.Format("20060102"), n.Int64())
}

// UniqueV3 generates v3 candidates until one is unused.
func (g *PidGenerator) UniqueV3(ctx context.Context, taken TakenFunc) (string, error) {
	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		candidate := g.GenerateV3()
		used, err := taken(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !used {
			return candidate, nil
		}
		if g.metrics != nil {
			g.metrics.ObservePidCollision()
		}
		g.logger.Debug("v3 candidate collision", zap.Int("attempt", attempt+1))
	}
	return "", appErrors.Clone(appErrors.ErrPidSpaceExhausted, fmt.Sprintf("no unused v3 pid after %d attempts", g.maxAttempts))
}

// UniqueV2 generates v2 candidates for a journal and date until one is
// unused in both the v2 and aop pid columns.
func (g *PidGenerator) UniqueV2(ctx context.Context, issn string, t time.Time, taken TakenFunc) (string, error) {
	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		candidate := g.GenerateV2(issn, t)
		used, err := taken(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !used {
			return candidate, nil
		}
		if g.metrics != nil {
			g.metrics.ObservePidCollision()
		}
		g.logger.Debug("v2 candidate collision", zap.Int("attempt", attempt+1))
	}
	return "", appErrors.Clone(appErrors.ErrPidSpaceExhausted, fmt.Sprintf("no unused v2 pid after %d attempts", g.maxAttempts))
}

// IsValidV3 reports whether a value is a well-formed opaque pid.
func IsValidV3(pid string) bool { return v3Pattern.MatchString(pid) }

// IsValidV2 reports whether a value is a well-formed legacy pid.
func IsValidV2(pid string) bool { return v2Pattern.MatchString(pid) }
