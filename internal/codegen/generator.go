// Package codegen produces human-typeable session codes bound to course,
// lecture hall and creation minute.
package codegen

import (
	"crypto/rand"
	"fmt"
	"io"
	"regexp"
	"time"

	"sams/pkg/interfaces"
)

const (
	alphabet     = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	suffixLength = 6
	// largest multiple of len(alphabet) that fits in a byte; bytes at or
	// above it are rejected so every symbol is equally likely
	rejectionBound = 252
)

var codePattern = regexp.MustCompile(`^\d{3}-\d{2}-\d{10}-[A-Z0-9]{6}$`)

// Generator formats codes as CCC-HH-yyMMddHHmm-XXXXXX
type Generator struct {
	location *time.Location
	random   io.Reader
}

// NewGenerator uses crypto/rand and renders timestamps in loc
func NewGenerator(loc *time.Location) *Generator {
	return NewGeneratorWithSource(loc, rand.Reader)
}

// NewGeneratorWithSource is for tests that need a controlled random source
func NewGeneratorWithSource(loc *time.Location, random io.Reader) *Generator {
	if loc == nil {
		loc = time.UTC
	}
	return &Generator{location: loc, random: random}
}

// Generate builds a code for the given course, hall and creation instant.
// An unreadable random source is a fatal error; there is no weaker fallback.
func (g *Generator) Generate(courseID, hallID int64, createdAt time.Time) (string, error) {
	suffix, err := g.randomSuffix()
	if err != nil {
		return "", err
	}
	local := createdAt.In(g.location)
	return fmt.Sprintf("%03d-%02d-%s-%s", courseID, hallID, local.Format("0601021504"), suffix), nil
}

// For binds the course, hall and instant so the store can draw retries
func (g *Generator) For(courseID, hallID int64, createdAt time.Time) interfaces.CodeFunc {
	return func() (string, error) {
		return g.Generate(courseID, hallID, createdAt)
	}
}

func (g *Generator) randomSuffix() (string, error) {
	out := make([]byte, 0, suffixLength)
	buf := make([]byte, 16)
	for len(out) < suffixLength {
		if _, err := io.ReadFull(g.random, buf); err != nil {
			return "", fmt.Errorf("%w: secure random source unavailable: %v", interfaces.ErrFatal, err)
		}
		for _, b := range buf {
			if b >= rejectionBound {
				continue
			}
			out = append(out, alphabet[int(b)%len(alphabet)])
			if len(out) == suffixLength {
				break
			}
		}
	}
	return string(out), nil
}

// ValidCode reports whether code has the generated layout
func ValidCode(code string) bool {
	return codePattern.MatchString(code)
}
