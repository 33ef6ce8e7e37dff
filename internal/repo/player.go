package repo

import (
	"context"
	"database/sql"

	"questpilot/internal/domain"
)

// PlayerRepo persists the single local player row.
type PlayerRepo struct {
	DB *sql.DB
}

func (r PlayerRepo) Get(ctx context.Context) (domain.Player, error) {
	var p domain.Player
	err := r.DB.QueryRowContext(ctx, `SELECT coins,xp,level FROM player WHERE id=1`).Scan(&p.Coins, &p.XP, &p.Level)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	return p, err
}

func (r PlayerRepo) GetTx(ctx context.Context, tx *sql.Tx) (domain.Player, error) {
	var p domain.Player
	err := tx.QueryRowContext(ctx, `SELECT coins,xp,level FROM player WHERE id=1`).Scan(&p.Coins, &p.XP, &p.Level)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	return p, err
}

func (r PlayerRepo) UpdateTx(ctx context.Context, tx *sql.Tx, p domain.Player) error {
	_, err := tx.ExecContext(ctx, `UPDATE player SET coins=?, xp=?, level=? WHERE id=1`, p.Coins, p.XP, p.Level)
	return err
}

// SpendCoins deducts coins if the balance allows it; reports whether the
// deduction happened.
func (r PlayerRepo) SpendCoins(ctx context.Context, amount int) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `UPDATE player SET coins = coins - ? WHERE id=1 AND coins >= ?`, amount, amount)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}
