package cache

import "context"

// Token returns the stored session token, or "" when signed out.
func (s *Store) Token(ctx context.Context) (string, error) {
	var tok string
	if _, err := s.Get(ctx, KeyAuthToken, &tok); err != nil {
		return "", err
	}
	return tok, nil
}

// SetToken stores the session token.
func (s *Store) SetToken(ctx context.Context, token string) error {
	return s.Put(ctx, KeyAuthToken, CollectionMeta, token)
}

// ClearToken signs out locally.
func (s *Store) ClearToken(ctx context.Context) error {
	return s.Remove(ctx, KeyAuthToken)
}
