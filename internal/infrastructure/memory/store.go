// Package memory holds an in-memory OTP record store with the same
// conditional-update semantics as the DynamoDB implementation. It backs local
// development and tests; nothing here survives a restart.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-otp-api/internal/domain"
)

// Store is a mutex-guarded map of OTP records keyed by id. Every status
// transition re-checks status=new under the lock, mirroring the CAS guard the
// DynamoDB repo gets from its ConditionExpression.
type Store struct {
	mu      sync.Mutex
	records map[string]*domain.OtpRecord
}

func NewStore() *Store {
	return &Store{records: make(map[string]*domain.OtpRecord)}
}

func (s *Store) Create(_ context.Context, rec *domain.OtpRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.OtpID]; ok {
		return fmt.Errorf("otp id collision: %w", domain.ErrConflict)
	}
	cp := *rec
	s.records[rec.OtpID] = &cp
	return nil
}

func (s *Store) GetActive(_ context.Context, otpID string, notBefore int64) (*domain.OtpRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[otpID]
	if !ok || rec.Status != domain.OtpStatusNew || rec.CreatedAt <= notBefore {
		return nil, fmt.Errorf("otp not addressable: %w", domain.ErrNotFound)
	}
	cp := *rec
	return &cp, nil
}

func (s *Store) GetNew(_ context.Context, otpID string) (*domain.OtpRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[otpID]
	if !ok || rec.Status != domain.OtpStatusNew {
		return nil, fmt.Errorf("otp not active: %w", domain.ErrNotFound)
	}
	cp := *rec
	return &cp, nil
}

func (s *Store) ExpireActive(_ context.Context, destination, otpType string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	affected := 0
	for _, rec := range s.records {
		if rec.Destination == destination && rec.Type == otpType && rec.Status == domain.OtpStatusNew {
			rec.Status = domain.OtpStatusExpired
			affected++
		}
	}
	return affected, nil
}

func (s *Store) MarkUsed(ctx context.Context, otpID string) error {
	return s.transition(otpID, domain.OtpStatusUsed)
}

func (s *Store) MarkExpired(ctx context.Context, otpID string) error {
	return s.transition(otpID, domain.OtpStatusExpired)
}

func (s *Store) IncrementRetry(_ context.Context, otpID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[otpID]
	if !ok {
		return fmt.Errorf("otp not found: %w", domain.ErrNotFound)
	}
	if rec.Status != domain.OtpStatusNew {
		return fmt.Errorf("otp no longer active: %w", domain.ErrConflict)
	}
	rec.Retry++
	return nil
}

func (s *Store) transition(otpID, newStatus string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[otpID]
	if !ok {
		return fmt.Errorf("otp not found: %w", domain.ErrNotFound)
	}
	if rec.Status != domain.OtpStatusNew {
		return fmt.Errorf("otp no longer active: %w", domain.ErrConflict)
	}
	rec.Status = newStatus
	return nil
}
