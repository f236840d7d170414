package util

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"
	"time"
)

// Unambiguous alphabet: no 0/O or 1/I.
const orderNumberAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

const orderNumberSuffixLen = 6

// OrderNumberGenerator produces human readable order numbers such as ORD-20261014-7KQ2ZP.
type OrderNumberGenerator interface {
	Next(now time.Time) (string, error)
}

type RandomOrderNumbers struct{}

func (RandomOrderNumbers) Next(now time.Time) (string, error) {
	suffix := make([]byte, orderNumberSuffixLen)
	limit := big.NewInt(int64(len(orderNumberAlphabet)))
	for i := range suffix {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("failed to read random order number suffix: %w", err)
		}
		suffix[i] = orderNumberAlphabet[n.Int64()]
	}
	return formatOrderNumber(now, string(suffix)), nil
}

// SequentialOrderNumbers yields ORD-<date>-000001, ORD-<date>-000002, ... Useful where numbers
// must be predictable.
type SequentialOrderNumbers struct {
	mu   sync.Mutex
	next int
}

func (s *SequentialOrderNumbers) Next(now time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	return formatOrderNumber(now, fmt.Sprintf("%06d", s.next)), nil
}

func formatOrderNumber(now time.Time, suffix string) string {
	return fmt.Sprintf("ORD-%s-%s", now.UTC().Format("20060102"), suffix)
}
