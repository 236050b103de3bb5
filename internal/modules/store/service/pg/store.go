package pg

import (
	"context"
	"time"

	"spread_mirror/internal/models"
	"spread_mirror/pkg/db"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// Store — долговременная запись фолловеров и позиций.
// Фолловеры для движка read-only, позиции пишут Ladder и Monitor.
// Строки позиций ключуются (follower_id, trade_date).
type Store struct {
	db *db.PgTxManager
}

func NewStore(txm *db.PgTxManager) *Store {
	return &Store{db: txm}
}

// Followers отдаёт включённых фолловеров.
func (s *Store) Followers(ctx context.Context) ([]models.Follower, error) {
	const q = `
		SELECT id, username, secret_ref, enabled, max_open_spreads, max_qty_per_leg
		FROM followers
		WHERE enabled`

	rows, err := s.db.Conn().Query(ctx, q)
	if err != nil {
		return nil, errors.Wrap(err, "store: select followers")
	}
	defer rows.Close()

	var out []models.Follower
	for rows.Next() {
		var f models.Follower
		if err := rows.Scan(&f.ID, &f.Username, &f.SecretRef, &f.Enabled,
			&f.Limits.MaxOpenSpreads, &f.Limits.MaxQtyPerLeg); err != nil {
			return nil, errors.Wrap(err, "store: scan follower")
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

const positionColumns = `
	id, follower_id, symbol, strategy, long_qty, short_qty,
	long_strike, short_strike, expiry, state, assignment,
	entry_price, opened_at, closed_at`

func scanPosition(row pgx.Rows) (*models.Position, error) {
	var p models.Position
	err := row.Scan(&p.ID, &p.FollowerID, &p.Symbol, &p.Strategy, &p.LongQty, &p.ShortQty,
		&p.LongStrike, &p.ShortStrike, &p.Expiry, &p.State, &p.Assignment,
		&p.EntryPrice, &p.OpenedAt, &p.ClosedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// OpenPositions — незакрытые позиции фолловера (OPEN и CLOSING: по CLOSING
// мониторинг должен доводить ликвидацию до конца).
func (s *Store) OpenPositions(ctx context.Context, followerID string) ([]*models.Position, error) {
	q := `SELECT ` + positionColumns + `
		FROM positions
		WHERE follower_id = $1 AND state <> 'CLOSED'
		ORDER BY opened_at`

	rows, err := s.db.Conn().Query(ctx, q, followerID)
	if err != nil {
		return nil, errors.Wrap(err, "store: select open positions")
	}
	defer rows.Close()

	var out []*models.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, errors.Wrap(err, "store: scan position")
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetPosition — одна позиция по id.
func (s *Store) GetPosition(ctx context.Context, id string) (*models.Position, error) {
	q := `SELECT ` + positionColumns + ` FROM positions WHERE id = $1`

	rows, err := s.db.Conn().Query(ctx, q, id)
	if err != nil {
		return nil, errors.Wrap(err, "store: select position")
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, errors.Errorf("store: position %s not found", id)
	}
	p, err := scanPosition(rows)
	if err != nil {
		return nil, errors.Wrap(err, "store: scan position")
	}
	return p, rows.Err()
}

// SavePosition — upsert по id. trade_date вычисляется из opened_at.
func (s *Store) SavePosition(ctx context.Context, p *models.Position) error {
	const q = `
		INSERT INTO positions (` + positionColumns + `, trade_date)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$13::date)
		ON CONFLICT (id) DO UPDATE SET
			long_qty = EXCLUDED.long_qty,
			short_qty = EXCLUDED.short_qty,
			state = EXCLUDED.state,
			assignment = EXCLUDED.assignment,
			entry_price = EXCLUDED.entry_price,
			closed_at = EXCLUDED.closed_at`

	return s.db.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctxTx, q,
			p.ID, p.FollowerID, p.Symbol, p.Strategy, p.LongQty, p.ShortQty,
			p.LongStrike, p.ShortStrike, p.Expiry, p.State, p.Assignment,
			p.EntryPrice, p.OpenedAt, p.ClosedAt)
		return errors.Wrap(err, "store: upsert position")
	})
}

// UpdateState двигает позицию по OPEN→CLOSING→CLOSED. Переход назад
// (CLOSING→OPEN после неудачной ликвидации) разрешён отдельным кейсом:
// это не переоткрытие, позиция и не закрывалась.
func (s *Store) UpdateState(ctx context.Context, id string, state models.PositionState) error {
	var closedAt *time.Time
	if state == models.PositionClosed {
		now := time.Now().UTC()
		closedAt = &now
	}

	return s.db.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		tag, err := tx.Exec(ctxTx,
			`UPDATE positions SET state = $2, closed_at = COALESCE($3, closed_at) WHERE id = $1`,
			id, state, closedAt)
		if err != nil {
			return errors.Wrap(err, "store: update state")
		}
		if tag.RowsAffected() == 0 {
			return errors.Errorf("store: position %s not found", id)
		}
		return nil
	})
}

// MarkAssignment — NONE→ASSIGNED→COMPENSATED, только вперёд.
func (s *Store) MarkAssignment(ctx context.Context, id string, a models.AssignmentState) error {
	return s.db.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		tag, err := tx.Exec(ctxTx,
			`UPDATE positions SET assignment = $2 WHERE id = $1`, id, a)
		if err != nil {
			return errors.Wrap(err, "store: mark assignment")
		}
		if tag.RowsAffected() == 0 {
			return errors.Errorf("store: position %s not found", id)
		}
		return nil
	})
}
