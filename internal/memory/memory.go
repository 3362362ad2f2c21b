// Package memory is an in-process ledger store. It honours the same
// atomicity and version rules as the SQLite store.
package memory

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"conti/internal/core"
	"conti/internal/ledger"
)

var _ ledger.Store = (*Store)(nil)

type accountKey struct {
	kind core.AccountKind
	id   string
}

type Store struct {
	mu        sync.Mutex
	accounts  map[accountKey]core.AccountRef
	circles   map[string]core.Circle
	transfers []ledger.TransferRecord
	attempts  map[string]struct{}

	lastDailyReset   time.Time
	lastMonthlyReset time.Time
}

func New(accounts ...core.AccountRef) *Store {
	s := &Store{
		accounts: make(map[accountKey]core.AccountRef),
		circles:  make(map[string]core.Circle),
		attempts: make(map[string]struct{}),
	}
	for _, a := range accounts {
		a.Version = 1
		s.accounts[accountKey{a.Kind, a.ID}] = a
	}
	return s
}

// NewFromFiles seeds accounts from base/seed_accounts.txt, one
// "kind,id,balance" line per account. Missing or malformed lines are skipped.
func NewFromFiles(base string) *Store {
	var accounts []core.AccountRef
	for _, line := range readLines(filepath.Join(base, "seed_accounts.txt")) {
		fields := strings.Split(line, ",")
		if len(fields) != 3 {
			continue
		}
		bal, err := core.ParseSignedAmount(fields[2])
		if err != nil {
			continue
		}
		a := core.AccountRef{
			Kind:    core.AccountKind(strings.TrimSpace(fields[0])),
			ID:      strings.TrimSpace(fields[1]),
			Name:    strings.TrimSpace(fields[1]),
			Balance: bal,
			Status:  core.StatusActive,
		}
		if a.Validate() != nil {
			continue
		}
		accounts = append(accounts, a)
	}
	return New(accounts...)
}

func (s *Store) GetAccount(_ context.Context, kind core.AccountKind, id string) (core.AccountRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountKey{kind, id}]
	if !ok {
		return core.AccountRef{}, fmt.Errorf("%s/%s: %w", kind, id, core.ErrAccountNotFound)
	}
	return a, nil
}

func (s *Store) CreateAccount(_ context.Context, a core.AccountRef) (core.AccountRef, error) {
	if err := a.Validate(); err != nil {
		return core.AccountRef{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := accountKey{a.Kind, a.ID}
	if _, exists := s.accounts[k]; exists {
		return core.AccountRef{}, fmt.Errorf("account %s/%s already exists: %w", a.Kind, a.ID, core.ErrConflict)
	}
	a.Version = 1
	s.accounts[k] = a
	return a, nil
}

func (s *Store) ListAccounts(_ context.Context) ([]core.AccountRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.AccountRef, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) ApplyTransfer(_ context.Context, p ledger.Posting) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyLocked(p)
}

func (s *Store) AttemptApplied(_ context.Context, attemptID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.attempts[attemptID]
	return ok, nil
}

// applyLocked validates every precondition before touching any record.
func (s *Store) applyLocked(p ledger.Posting) error {
	if _, dup := s.attempts[p.AttemptID]; dup {
		return ledger.ErrAlreadyApplied
	}
	srcKey := accountKey{p.Source.Kind, p.Source.ID}
	dstKey := accountKey{p.Destination.Kind, p.Destination.ID}
	src, ok := s.accounts[srcKey]
	if !ok {
		return fmt.Errorf("source %s/%s: %w", p.Source.Kind, p.Source.ID, core.ErrAccountNotFound)
	}
	dst, ok := s.accounts[dstKey]
	if !ok {
		return fmt.Errorf("destination %s/%s: %w", p.Destination.Kind, p.Destination.ID, core.ErrAccountNotFound)
	}
	if src.Version != p.Source.Version || dst.Version != p.Destination.Version {
		return core.ErrConflict
	}

	src.Balance = src.Balance.Add(p.Result.SourceDelta)
	src.Limits = src.Limits.ConsumeLimits(p.Result.LimitConsumption)
	src.Version++
	dst.Balance = dst.Balance.Add(p.Result.DestinationDelta)
	dst.Version++

	s.accounts[srcKey] = src
	s.accounts[dstKey] = dst
	s.attempts[p.AttemptID] = struct{}{}
	s.transfers = append(s.transfers, p.Record())
	return nil
}

func (s *Store) ResetDailyUsage(_ context.Context, resetAt time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, a := range s.accounts {
		if a.Limits.DailyUsed.IsZero() {
			continue
		}
		a.Limits.DailyUsed = decimal.Zero
		a.Version++
		s.accounts[k] = a
		n++
	}
	s.lastDailyReset = resetAt
	return n, nil
}

func (s *Store) ResetMonthlyUsage(_ context.Context, resetAt time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, a := range s.accounts {
		if a.Limits.MonthlyUsed.IsZero() {
			continue
		}
		a.Limits.MonthlyUsed = decimal.Zero
		a.Version++
		s.accounts[k] = a
		n++
	}
	s.lastMonthlyReset = resetAt
	return n, nil
}

func (s *Store) LastLimitReset(_ context.Context) (time.Time, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastDailyReset, s.lastMonthlyReset, nil
}

func (s *Store) CreateCircle(_ context.Context, c core.Circle) (core.Circle, error) {
	if err := c.Validate(); err != nil {
		return core.Circle{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.circles[c.ID]; exists {
		return core.Circle{}, fmt.Errorf("circle %s already exists: %w", c.ID, core.ErrConflict)
	}
	c.Version = 1
	s.circles[c.ID] = c
	return c, nil
}

func (s *Store) LoadCircle(_ context.Context, id string) (core.Circle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.circles[id]
	if !ok {
		return core.Circle{}, fmt.Errorf("circle %s: %w", id, core.ErrCircleNotFound)
	}
	return c, nil
}

func (s *Store) SaveCircle(_ context.Context, c core.Circle) (core.Circle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkCircleLocked(c); err != nil {
		return core.Circle{}, err
	}
	c.Version++
	s.circles[c.ID] = c
	return c, nil
}

func (s *Store) SettleCircle(_ context.Context, c core.Circle, p ledger.Posting) (core.Circle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkCircleLocked(c); err != nil {
		return core.Circle{}, err
	}
	if err := s.applyLocked(p); err != nil {
		return core.Circle{}, err
	}
	c.Version++
	s.circles[c.ID] = c
	return c, nil
}

func (s *Store) checkCircleLocked(c core.Circle) error {
	stored, ok := s.circles[c.ID]
	if !ok {
		return fmt.Errorf("circle %s: %w", c.ID, core.ErrCircleNotFound)
	}
	if stored.Version != c.Version {
		return core.ErrConflict
	}
	return c.Validate()
}

func (s *Store) ListTransfers(_ context.Context, kind core.AccountKind, id string, limit int) ([]ledger.TransferRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ledger.TransferRecord
	for i := len(s.transfers) - 1; i >= 0; i-- {
		r := s.transfers[i]
		if (r.SourceKind == kind && r.SourceID == id) || (r.DestinationKind == kind && r.DestinationID == id) {
			out = append(out, r)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func readLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}
