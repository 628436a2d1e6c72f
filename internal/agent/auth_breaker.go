// internal/agent/auth_breaker.go
package agent

import "strings"

// AuthBreaker counts consecutive iterations spent on authentication pages.
// It is per-run state; a new run gets a new breaker.
type AuthBreaker struct {
	markers   []string
	threshold int
	streak    int
}

// NewAuthBreaker trips after threshold consecutive auth URLs.
func NewAuthBreaker(markers []string, threshold int) *AuthBreaker {
	return &AuthBreaker{markers: markers, threshold: threshold}
}

// IsAuthStep reports whether url contains any authentication marker.
func (b *AuthBreaker) IsAuthStep(url string) bool {
	for _, m := range b.markers {
		if m != "" && strings.Contains(url, m) {
			return true
		}
	}
	return false
}

// Observe records one iteration's URL and returns true once the streak of
// auth pages reaches the threshold. A non-auth URL resets the streak.
func (b *AuthBreaker) Observe(url string) bool {
	if !b.IsAuthStep(url) {
		b.streak = 0
		return false
	}
	b.streak++
	return b.streak >= b.threshold
}

// Streak returns the current run of consecutive auth pages.
func (b *AuthBreaker) Streak() int { return b.streak }
