package fixture

import (
	"context"
	"errors"

	"github.com/ppiankov/interpose/member"
)

var ErrMissing = errors.New("fixture: missing key")

type Store struct {
	_    member.Marker `intercept:"Get=cache"`
	data map[string]string
}

func NewStore() *Store {
	return &Store{data: make(map[string]string)}
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	v, ok := s.data[key]
	if !ok {
		return "", ErrMissing
	}
	return v, nil
}

func (s *Store) Put(key, value string) {
	s.data[key] = value
}
