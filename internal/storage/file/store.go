// Package file implements the storage contract over JSON documents on the
// local filesystem, one document per collection. There are no native atomic
// operations here: every read-modify-write runs under that collection's
// mutex. This backend is single-process by construction.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	catalog "github.com/sseMG/Food-Reservation-sub000/internal/catalog/domain"
	reservation "github.com/sseMG/Food-Reservation-sub000/internal/reservation/domain"
	"github.com/sseMG/Food-Reservation-sub000/internal/storage"
	wallet "github.com/sseMG/Food-Reservation-sub000/internal/wallet/domain"
)

const (
	itemsFile        = "items.json"
	usersFile        = "users.json"
	reservationsFile = "reservations.json"
	transactionsFile = "transactions.json"
)

type Store struct {
	log *slog.Logger
	dir string

	itemsMu sync.Mutex
	items   map[string]catalog.MenuItem

	usersMu sync.Mutex
	users   map[string]wallet.User

	resMu        sync.Mutex
	reservations map[string]reservation.Reservation

	txMu         sync.Mutex
	transactions []wallet.Transaction
}

func Open(log *slog.Logger, dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	s := &Store{
		log:          log,
		dir:          dir,
		items:        make(map[string]catalog.MenuItem),
		users:        make(map[string]wallet.User),
		reservations: make(map[string]reservation.Reservation),
	}
	if err := loadJSON(filepath.Join(dir, itemsFile), &s.items); err != nil {
		return nil, err
	}
	if err := loadJSON(filepath.Join(dir, usersFile), &s.users); err != nil {
		return nil, err
	}
	if err := loadJSON(filepath.Join(dir, reservationsFile), &s.reservations); err != nil {
		return nil, err
	}
	if err := loadJSON(filepath.Join(dir, transactionsFile), &s.transactions); err != nil {
		return nil, err
	}
	return s, nil
}

func loadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// writeJSON persists via temp file + rename so a crash mid-write never
// leaves a truncated document behind.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (s *Store) flushItems() error {
	return writeJSON(filepath.Join(s.dir, itemsFile), s.items)
}

func (s *Store) flushUsers() error {
	return writeJSON(filepath.Join(s.dir, usersFile), s.users)
}

func (s *Store) flushReservations() error {
	return writeJSON(filepath.Join(s.dir, reservationsFile), s.reservations)
}

func (s *Store) flushTransactions() error {
	return writeJSON(filepath.Join(s.dir, transactionsFile), s.transactions)
}

func (s *Store) GetItem(ctx context.Context, id string) (catalog.MenuItem, error) {
	s.itemsMu.Lock()
	defer s.itemsMu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return catalog.MenuItem{}, storage.ErrNotFound
	}
	return item, nil
}

func (s *Store) PutItem(ctx context.Context, item catalog.MenuItem) error {
	s.itemsMu.Lock()
	defer s.itemsMu.Unlock()
	if existing, ok := s.items[item.ID]; ok {
		// Catalog edits never overwrite the stock counter.
		item.Stock = existing.Stock
	}
	s.items[item.ID] = item
	return s.flushItems()
}

func (s *Store) DecrementStock(ctx context.Context, itemID string, qty int) error {
	s.itemsMu.Lock()
	defer s.itemsMu.Unlock()
	item, ok := s.items[itemID]
	if !ok {
		return storage.ErrNotFound
	}
	if item.Stock < qty {
		return storage.ErrInsufficientStock
	}
	item.Stock -= qty
	s.items[itemID] = item
	return s.flushItems()
}

func (s *Store) IncrementStock(ctx context.Context, itemID string, qty int) error {
	s.itemsMu.Lock()
	defer s.itemsMu.Unlock()
	item, ok := s.items[itemID]
	if !ok {
		return storage.ErrNotFound
	}
	item.Stock += qty
	s.items[itemID] = item
	return s.flushItems()
}

func (s *Store) GetWallet(ctx context.Context, userID string) (wallet.User, error) {
	s.usersMu.Lock()
	defer s.usersMu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return wallet.User{}, storage.ErrNotFound
	}
	return u, nil
}

func (s *Store) PutUser(ctx context.Context, u wallet.User) error {
	s.usersMu.Lock()
	defer s.usersMu.Unlock()
	if existing, ok := s.users[u.ID]; ok {
		// Balance moves only through the counter operations.
		u.BalanceCents = existing.BalanceCents
	}
	s.users[u.ID] = u
	return s.flushUsers()
}

func (s *Store) DebitWallet(ctx context.Context, userID string, amountCents int64) error {
	s.usersMu.Lock()
	defer s.usersMu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return storage.ErrNotFound
	}
	if u.BalanceCents < amountCents {
		return storage.ErrInsufficientBalance
	}
	u.BalanceCents -= amountCents
	s.users[userID] = u
	return s.flushUsers()
}

func (s *Store) CreditWallet(ctx context.Context, userID string, amountCents int64) error {
	s.usersMu.Lock()
	defer s.usersMu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return storage.ErrNotFound
	}
	u.BalanceCents += amountCents
	s.users[userID] = u
	return s.flushUsers()
}

func (s *Store) AppendTransaction(ctx context.Context, tx wallet.Transaction) (wallet.Transaction, bool, error) {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	if tx.Direction == wallet.DirectionCredit && tx.Ref != "" {
		for _, existing := range s.transactions {
			if existing.Direction == wallet.DirectionCredit && existing.Ref == tx.Ref {
				return existing, false, nil
			}
		}
	}
	s.transactions = append(s.transactions, tx)
	if err := s.flushTransactions(); err != nil {
		return wallet.Transaction{}, false, err
	}
	return tx, true, nil
}

func (s *Store) GetTransaction(ctx context.Context, id string) (wallet.Transaction, error) {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	for _, tx := range s.transactions {
		if tx.ID == id {
			return tx, nil
		}
	}
	return wallet.Transaction{}, storage.ErrNotFound
}

func (s *Store) UpdateTransactionStatus(ctx context.Context, id string, st wallet.TxStatus) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	for i, tx := range s.transactions {
		if tx.ID == id {
			s.transactions[i].Status = st
			return s.flushTransactions()
		}
	}
	return storage.ErrNotFound
}

func (s *Store) TransactionsByUser(ctx context.Context, userID string) ([]wallet.Transaction, error) {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	var out []wallet.Transaction
	for _, tx := range s.transactions {
		if tx.UserID == userID {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (s *Store) SaveReservation(ctx context.Context, r reservation.Reservation) error {
	s.resMu.Lock()
	defer s.resMu.Unlock()
	s.reservations[r.ID] = r
	return s.flushReservations()
}

func (s *Store) GetReservation(ctx context.Context, id string) (reservation.Reservation, error) {
	s.resMu.Lock()
	defer s.resMu.Unlock()
	r, ok := s.reservations[id]
	if !ok {
		return reservation.Reservation{}, storage.ErrNotFound
	}
	return r, nil
}

func (s *Store) UpdateReservationStatus(ctx context.Context, id string, from, to reservation.Status) error {
	s.resMu.Lock()
	defer s.resMu.Unlock()
	r, ok := s.reservations[id]
	if !ok {
		return storage.ErrNotFound
	}
	if r.Status != from {
		return storage.ErrStale
	}
	r.Status = to
	r.UpdatedAt = time.Now().UTC()
	s.reservations[id] = r
	return s.flushReservations()
}

func (s *Store) ClaimRefund(ctx context.Context, id, refundTxID string) (bool, error) {
	s.resMu.Lock()
	defer s.resMu.Unlock()
	r, ok := s.reservations[id]
	if !ok {
		return false, storage.ErrNotFound
	}
	if r.Refunded {
		return false, nil
	}
	if !reservation.CanTransition(r.Status, reservation.StatusRejected) {
		return false, storage.ErrStale
	}
	r.Refunded = true
	r.RefundTransactionID = refundTxID
	r.UpdatedAt = time.Now().UTC()
	s.reservations[id] = r
	if err := s.flushReservations(); err != nil {
		return false, err
	}
	return true, nil
}
