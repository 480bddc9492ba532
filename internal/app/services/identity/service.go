// Package identity maintains the decentralized-identifier registry, issued
// credentials and reputation scores.
package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	domain "github.com/ReLoop-Network/market_layer/internal/app/domain/identity"
	"github.com/ReLoop-Network/market_layer/internal/app/storage"
	"github.com/ReLoop-Network/market_layer/pkg/logger"
)

var (
	// ErrIdentityNotFound reports a registry miss for an address.
	ErrIdentityNotFound = errors.New("identity not found")

	// ErrUnknownEvent reports an unrecognised reputation event kind.
	ErrUnknownEvent = errors.New("unknown reputation event")
)

// Service is the identity/reputation registry.
type Service struct {
	store storage.IdentityStore
	log   *logger.Logger
}

// New creates a configured identity service.
func New(store storage.IdentityStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("identity")
	}
	return &Service{store: store, log: log}
}

// DID derives the deterministic identifier for an address, so repeated
// EnsureIdentity calls always yield the same value.
func DID(address string) string {
	sum := sha256.Sum256([]byte(address))
	return "did:market:" + hex.EncodeToString(sum[:16])
}

// EnsureIdentity returns the identity record for an address, creating it on
// first use. The operation is an idempotent upsert.
func (s *Service) EnsureIdentity(ctx context.Context, address string) (domain.Record, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return domain.Record{}, fmt.Errorf("address is required")
	}

	rec, err := s.store.GetIdentity(ctx, address)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return domain.Record{}, err
	}

	rec = domain.Record{
		Address:    address,
		DID:        DID(address),
		Reputation: domain.InitialReputation,
	}
	rec, err = s.store.PutIdentity(ctx, rec)
	if err != nil {
		return domain.Record{}, err
	}
	s.log.WithField("address", address).WithField("did", rec.DID).Info("identity registered")
	return rec, nil
}

// IssueCredential attests a completed recycling activity. Both issuer and
// subject must already hold identities.
func (s *Service) IssueCredential(ctx context.Context, issuer, subject, activity string) (domain.Credential, error) {
	issuer = strings.TrimSpace(issuer)
	subject = strings.TrimSpace(subject)
	if issuer == "" || subject == "" {
		return domain.Credential{}, fmt.Errorf("issuer and subject are required")
	}
	if strings.TrimSpace(activity) == "" {
		return domain.Credential{}, fmt.Errorf("activity is required")
	}

	if _, err := s.store.GetIdentity(ctx, issuer); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.Credential{}, fmt.Errorf("issuer %s: %w", issuer, ErrIdentityNotFound)
		}
		return domain.Credential{}, err
	}
	rec, err := s.store.GetIdentity(ctx, subject)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.Credential{}, fmt.Errorf("subject %s: %w", subject, ErrIdentityNotFound)
		}
		return domain.Credential{}, err
	}

	cred := domain.Credential{
		ID:       uuid.NewString(),
		Issuer:   issuer,
		Subject:  subject,
		Activity: activity,
		IssuedAt: time.Now().UTC(),
	}
	rec.Credentials = append(rec.Credentials, cred)
	if _, err := s.store.PutIdentity(ctx, rec); err != nil {
		return domain.Credential{}, err
	}

	s.log.WithField("subject", subject).
		WithField("credential_id", cred.ID).
		Info("credential issued")
	return cred, nil
}

// UpdateReputation applies a fixed per-event delta to an address's score and
// returns the new value, clamped to the allowed range.
func (s *Service) UpdateReputation(ctx context.Context, address string, event domain.Event) (int, error) {
	delta, ok := domain.Delta(event)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownEvent, event)
	}

	rec, err := s.store.GetIdentity(ctx, address)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return 0, fmt.Errorf("%s: %w", address, ErrIdentityNotFound)
		}
		return 0, err
	}

	rec.Reputation = domain.Clamp(rec.Reputation + delta)
	if _, err := s.store.PutIdentity(ctx, rec); err != nil {
		return 0, err
	}
	return rec.Reputation, nil
}

// Get returns the identity record for an address.
func (s *Service) Get(ctx context.Context, address string) (domain.Record, error) {
	rec, err := s.store.GetIdentity(ctx, address)
	if errors.Is(err, storage.ErrNotFound) {
		return domain.Record{}, fmt.Errorf("%s: %w", address, ErrIdentityNotFound)
	}
	return rec, err
}
