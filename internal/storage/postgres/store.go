// Package postgres implements the storage contract on an external document
// store with native atomic per-row operations. Floors are enforced by
// conditional single-statement updates (stock = stock - $n WHERE stock >= $n)
// detected through rows-affected, so no in-process lock is needed and
// different items or users never block each other.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	catalog "github.com/sseMG/Food-Reservation-sub000/internal/catalog/domain"
	reservation "github.com/sseMG/Food-Reservation-sub000/internal/reservation/domain"
	"github.com/sseMG/Food-Reservation-sub000/internal/storage"
	wallet "github.com/sseMG/Food-Reservation-sub000/internal/wallet/domain"
)

type Store struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func New(log *slog.Logger, pool *pgxpool.Pool) *Store {
	return &Store{log: log, pool: pool}
}

func (s *Store) GetItem(ctx context.Context, id string) (catalog.MenuItem, error) {
	var item catalog.MenuItem
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, category, price_cents, stock, visible, deleted
		FROM menu_items WHERE id = $1`, id).
		Scan(&item.ID, &item.Name, &item.Category, &item.PriceCents, &item.Stock, &item.Visible, &item.Deleted)
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.MenuItem{}, storage.ErrNotFound
	}
	if err != nil {
		return catalog.MenuItem{}, err
	}
	return item, nil
}

func (s *Store) PutItem(ctx context.Context, item catalog.MenuItem) error {
	// The conflict branch deliberately leaves stock alone: catalog edits
	// must not race the counter.
	_, err := s.pool.Exec(ctx, `
		INSERT INTO menu_items (id, name, category, price_cents, stock, visible, deleted)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (id) DO UPDATE SET name=$2, category=$3, price_cents=$4, visible=$6, deleted=$7`,
		item.ID, item.Name, item.Category, item.PriceCents, item.Stock, item.Visible, item.Deleted)
	return err
}

func (s *Store) DecrementStock(ctx context.Context, itemID string, qty int) error {
	ct, err := s.pool.Exec(ctx, `
		UPDATE menu_items SET stock = stock - $2
		WHERE id = $1 AND stock >= $2`, itemID, qty)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return s.stockMiss(ctx, itemID)
	}
	return nil
}

func (s *Store) stockMiss(ctx context.Context, itemID string) error {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM menu_items WHERE id = $1)`, itemID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return storage.ErrNotFound
	}
	return storage.ErrInsufficientStock
}

func (s *Store) IncrementStock(ctx context.Context, itemID string, qty int) error {
	ct, err := s.pool.Exec(ctx, `UPDATE menu_items SET stock = stock + $2 WHERE id = $1`, itemID, qty)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) GetWallet(ctx context.Context, userID string) (wallet.User, error) {
	var u wallet.User
	err := s.pool.QueryRow(ctx, `SELECT id, name, balance_cents FROM users WHERE id = $1`, userID).
		Scan(&u.ID, &u.Name, &u.BalanceCents)
	if errors.Is(err, pgx.ErrNoRows) {
		return wallet.User{}, storage.ErrNotFound
	}
	if err != nil {
		return wallet.User{}, err
	}
	return u, nil
}

func (s *Store) PutUser(ctx context.Context, u wallet.User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, name, balance_cents) VALUES ($1,$2,$3)
		ON CONFLICT (id) DO UPDATE SET name=$2`,
		u.ID, u.Name, u.BalanceCents)
	return err
}

func (s *Store) DebitWallet(ctx context.Context, userID string, amountCents int64) error {
	ct, err := s.pool.Exec(ctx, `
		UPDATE users SET balance_cents = balance_cents - $2
		WHERE id = $1 AND balance_cents >= $2`, userID, amountCents)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return storage.ErrNotFound
		}
		return storage.ErrInsufficientBalance
	}
	return nil
}

func (s *Store) CreditWallet(ctx context.Context, userID string, amountCents int64) error {
	ct, err := s.pool.Exec(ctx, `UPDATE users SET balance_cents = balance_cents + $2 WHERE id = $1`, userID, amountCents)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) AppendTransaction(ctx context.Context, tx wallet.Transaction) (wallet.Transaction, bool, error) {
	ct, err := s.pool.Exec(ctx, `
		INSERT INTO transactions (id, user_id, direction, amount_cents, status, ref, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT DO NOTHING`,
		tx.ID, tx.UserID, string(tx.Direction), tx.AmountCents, string(tx.Status), tx.Ref, tx.CreatedAt)
	if err != nil {
		return wallet.Transaction{}, false, err
	}
	if ct.RowsAffected() == 1 {
		return tx, true, nil
	}
	if tx.Direction != wallet.DirectionCredit || tx.Ref == "" {
		return wallet.Transaction{}, false, fmt.Errorf("duplicate transaction id %s", tx.ID)
	}
	existing, err := s.creditByRef(ctx, tx.Ref)
	if err != nil {
		return wallet.Transaction{}, false, err
	}
	return existing, false, nil
}

func (s *Store) creditByRef(ctx context.Context, ref string) (wallet.Transaction, error) {
	var tx wallet.Transaction
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, direction, amount_cents, status, ref, created_at
		FROM transactions WHERE ref = $1 AND direction = 'credit'`, ref).
		Scan(&tx.ID, &tx.UserID, &tx.Direction, &tx.AmountCents, &tx.Status, &tx.Ref, &tx.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return wallet.Transaction{}, storage.ErrNotFound
	}
	return tx, err
}

func (s *Store) GetTransaction(ctx context.Context, id string) (wallet.Transaction, error) {
	var tx wallet.Transaction
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, direction, amount_cents, status, ref, created_at
		FROM transactions WHERE id = $1`, id).
		Scan(&tx.ID, &tx.UserID, &tx.Direction, &tx.AmountCents, &tx.Status, &tx.Ref, &tx.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return wallet.Transaction{}, storage.ErrNotFound
	}
	return tx, err
}

func (s *Store) UpdateTransactionStatus(ctx context.Context, id string, st wallet.TxStatus) error {
	ct, err := s.pool.Exec(ctx, `UPDATE transactions SET status = $2 WHERE id = $1`, id, string(st))
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) TransactionsByUser(ctx context.Context, userID string) ([]wallet.Transaction, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, direction, amount_cents, status, ref, created_at
		FROM transactions WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []wallet.Transaction
	for rows.Next() {
		var tx wallet.Transaction
		if err := rows.Scan(&tx.ID, &tx.UserID, &tx.Direction, &tx.AmountCents, &tx.Status, &tx.Ref, &tx.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func (s *Store) SaveReservation(ctx context.Context, r reservation.Reservation) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var chargedAt *time.Time
	if !r.ChargedAt.IsZero() {
		chargedAt = &r.ChargedAt
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO reservations
			(id, user_id, total_cents, status, transaction_id, charged, charged_at,
			 stock_deducted, refunded, refund_transaction_id, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (id) DO UPDATE SET
			status=$4, transaction_id=$5, charged=$6, charged_at=$7,
			stock_deducted=$8, refunded=$9, refund_transaction_id=$10, updated_at=$12`,
		r.ID, r.UserID, r.TotalCents, string(r.Status), r.TransactionID, r.Charged, chargedAt,
		r.StockDeducted, r.Refunded, r.RefundTransactionID, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, ln := range r.Lines {
		batch.Queue(`
			INSERT INTO reservation_lines (reservation_id, item_id, name, price_cents, quantity)
			VALUES ($1,$2,$3,$4,$5)
			ON CONFLICT (reservation_id, item_id) DO UPDATE SET name=$3, price_cents=$4, quantity=$5`,
			r.ID, ln.ItemID, ln.Name, ln.PriceCents, ln.Quantity)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) GetReservation(ctx context.Context, id string) (reservation.Reservation, error) {
	var r reservation.Reservation
	var chargedAt *time.Time
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, total_cents, status, transaction_id, charged, charged_at,
		       stock_deducted, refunded, refund_transaction_id, created_at, updated_at
		FROM reservations WHERE id = $1`, id).
		Scan(&r.ID, &r.UserID, &r.TotalCents, &r.Status, &r.TransactionID, &r.Charged, &chargedAt,
			&r.StockDeducted, &r.Refunded, &r.RefundTransactionID, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return reservation.Reservation{}, storage.ErrNotFound
	}
	if err != nil {
		return reservation.Reservation{}, err
	}
	if chargedAt != nil {
		r.ChargedAt = *chargedAt
	}

	rows, err := s.pool.Query(ctx, `
		SELECT item_id, name, price_cents, quantity
		FROM reservation_lines WHERE reservation_id = $1`, id)
	if err != nil {
		return reservation.Reservation{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var ln reservation.Line
		if err := rows.Scan(&ln.ItemID, &ln.Name, &ln.PriceCents, &ln.Quantity); err != nil {
			return reservation.Reservation{}, err
		}
		r.Lines = append(r.Lines, ln)
	}
	return r, rows.Err()
}

func (s *Store) UpdateReservationStatus(ctx context.Context, id string, from, to reservation.Status) error {
	ct, err := s.pool.Exec(ctx, `
		UPDATE reservations SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2`, id, string(from), string(to))
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM reservations WHERE id = $1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return storage.ErrNotFound
		}
		return storage.ErrStale
	}
	return nil
}

func (s *Store) ClaimRefund(ctx context.Context, id, refundTxID string) (bool, error) {
	ct, err := s.pool.Exec(ctx, `
		UPDATE reservations
		SET refunded = TRUE, refund_transaction_id = $2, updated_at = now()
		WHERE id = $1 AND refunded = FALSE AND status IN ('Pending','Approved')`,
		id, refundTxID)
	if err != nil {
		return false, err
	}
	if ct.RowsAffected() == 1 {
		return true, nil
	}
	var refunded bool
	err = s.pool.QueryRow(ctx, `SELECT refunded FROM reservations WHERE id = $1`, id).Scan(&refunded)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, storage.ErrNotFound
	}
	if err != nil {
		return false, err
	}
	if refunded {
		return false, nil
	}
	return false, storage.ErrStale
}
