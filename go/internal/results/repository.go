// Package results persists the immutable post-game snapshot. A result row
// is write-once: the first finisher inserts it and every later attempt is
// a no-op, which is what lets the win evaluation run redundantly on every
// client.
package results

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mcdev12/manhunt/go/internal/models"
	"github.com/mcdev12/manhunt/go/internal/sqlutil"
	"github.com/sqlc-dev/pqtype"
)

// ErrNotFound indicates no result row exists for the room.
var ErrNotFound = errors.New("game result not found")

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

type txQueries struct {
	tx *sql.Tx
}

func newTxQueries(tx *sql.Tx) *txQueries {
	return &txQueries{tx: tx}
}

// SaveResult inserts the result summary plus one row per elimination, all
// in one transaction. ON CONFLICT DO NOTHING makes the insert a no-op when
// a concurrent finisher already wrote the room's result.
func (r *Repository) SaveResult(ctx context.Context, result *models.GameResult) error {
	eliminations, err := json.Marshal(result.Eliminations)
	if err != nil {
		return fmt.Errorf("failed to marshal eliminations: %w", err)
	}

	players := pqtype.NullRawMessage{}
	if len(result.Players) > 0 {
		snapshot, err := json.Marshal(result.Players)
		if err != nil {
			return fmt.Errorf("failed to marshal player snapshot: %w", err)
		}
		players = pqtype.NullRawMessage{RawMessage: snapshot, Valid: true}
	}

	return sqlutil.Run(ctx, r.db, newTxQueries, func(q *txQueries) error {
		res, err := q.tx.ExecContext(ctx, `
			INSERT INTO game_results (room_id, winners, eliminations, players, started_at, ended_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (room_id) DO NOTHING`,
			result.RoomID,
			string(result.Winners),
			eliminations,
			players,
			sqlutil.ToSqlTime(nonZeroTime(result.StartedAt)),
			sqlutil.ToSqlTime(nonZeroTime(result.EndedAt)),
		)
		if err != nil {
			return fmt.Errorf("failed to insert game result: %w", err)
		}
		inserted, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read insert outcome: %w", err)
		}
		if inserted == 0 {
			// Another finisher won the race; theirs is the record.
			return nil
		}

		for _, e := range result.Eliminations {
			eliminatedBy := e.EliminatedBy
			_, err := q.tx.ExecContext(ctx, `
				INSERT INTO game_result_eliminations (room_id, ord, player_uid, display_name, eliminated_by, eliminated_at)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				result.RoomID,
				e.Order,
				e.PlayerUID,
				e.DisplayName,
				sqlutil.ToSqlString(nonEmpty(eliminatedBy)),
				e.EliminatedAt,
			)
			if err != nil {
				return fmt.Errorf("failed to insert elimination %d: %w", e.Order, err)
			}
		}
		return nil
	})
}

// GetResult loads a room's result, or ErrNotFound.
func (r *Repository) GetResult(ctx context.Context, roomID string) (*models.GameResult, error) {
	var (
		winners      string
		eliminations []byte
		players      pqtype.NullRawMessage
		startedAt    sql.NullTime
		endedAt      sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT winners, eliminations, players, started_at, ended_at
		FROM game_results WHERE room_id = $1`, roomID,
	).Scan(&winners, &eliminations, &players, &startedAt, &endedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get game result: %w", err)
	}

	result := &models.GameResult{
		RoomID:  roomID,
		Winners: models.Winner(winners),
	}
	if err := json.Unmarshal(eliminations, &result.Eliminations); err != nil {
		return nil, fmt.Errorf("failed to unmarshal eliminations: %w", err)
	}
	if players.Valid {
		if err := json.Unmarshal(players.RawMessage, &result.Players); err != nil {
			return nil, fmt.Errorf("failed to unmarshal player snapshot: %w", err)
		}
	}
	if t := sqlutil.FromSqlTime(startedAt); t != nil {
		result.StartedAt = *t
	}
	if t := sqlutil.FromSqlTime(endedAt); t != nil {
		result.EndedAt = *t
	}
	return result, nil
}

// PlayerElimination is one row of a player's elimination history across
// games, newest first.
type PlayerElimination struct {
	RoomID       string    `json:"room_id"`
	Order        int       `json:"order"`
	DisplayName  string    `json:"display_name"`
	EliminatedBy *string   `json:"eliminated_by,omitempty"`
	EliminatedAt time.Time `json:"eliminated_at"`
}

// ListEliminationsForPlayer returns a player's elimination history.
func (r *Repository) ListEliminationsForPlayer(ctx context.Context, playerUID string, limit int) ([]PlayerElimination, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT room_id, ord, display_name, eliminated_by, eliminated_at
		FROM game_result_eliminations
		WHERE player_uid = $1
		ORDER BY eliminated_at DESC
		LIMIT $2`, playerUID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list eliminations: %w", err)
	}
	defer rows.Close()

	var out []PlayerElimination
	for rows.Next() {
		var (
			e            PlayerElimination
			eliminatedBy sql.NullString
		)
		if err := rows.Scan(&e.RoomID, &e.Order, &e.DisplayName, &eliminatedBy, &e.EliminatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan elimination row: %w", err)
		}
		e.EliminatedBy = sqlutil.FromSqlString(eliminatedBy)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read elimination rows: %w", err)
	}
	return out, nil
}

func nonZeroTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
