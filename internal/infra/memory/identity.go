package memory

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"pfp-quiz-service/internal/app"
	"pfp-quiz-service/internal/domain"
)

// MockIdentityProvider accepts a numeric fid as the handshake token and
// returns a generated profile for it. Known profiles override the generated one.
type MockIdentityProvider struct {
	known map[int64]domain.Profile
}

func NewMockIdentityProvider(known ...domain.Profile) *MockIdentityProvider {
	m := &MockIdentityProvider{known: make(map[int64]domain.Profile, len(known))}
	for _, p := range known {
		m.known[p.FID] = p
	}
	return m
}

func (m *MockIdentityProvider) Authenticate(_ context.Context, handshake string) (domain.Profile, error) {
	fid, err := strconv.ParseInt(strings.TrimSpace(handshake), 10, 64)
	if err != nil || fid <= 0 {
		return domain.Profile{}, fmt.Errorf("%w: invalid token", domain.ErrAuthenticationFailed)
	}
	if p, ok := m.known[fid]; ok {
		return p, nil
	}
	return app.MockProfile(fid, int(fid)), nil
}
