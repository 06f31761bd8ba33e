package service

import (
	"otpbot/internal/domain"
)

// AuthService resolves users against the static allow-list
type AuthService struct {
	allowed map[int64]struct{}
}

// NewAuthService creates a new auth service
func NewAuthService(allowedUsers []int64) *AuthService {
	allowed := make(map[int64]struct{}, len(allowedUsers))
	for _, id := range allowedUsers {
		allowed[id] = struct{}{}
	}
	return &AuthService{allowed: allowed}
}

// IsAuthorized checks if user is on the allow-list
func (s *AuthService) IsAuthorized(userID int64) bool {
	_, ok := s.allowed[userID]
	return ok
}

// User returns the domain user for an id
func (s *AuthService) User(userID int64) domain.User {
	return domain.User{ID: userID, Authorized: s.IsAuthorized(userID)}
}

// Count returns the number of allow-listed users
func (s *AuthService) Count() int {
	return len(s.allowed)
}
