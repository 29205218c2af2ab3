package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/ideaforge/internal/model"
)

// PostgresArtifactRepo はPostgreSQLを使用したアイデアリポジトリ。
type PostgresArtifactRepo struct {
	db *sql.DB
}

// NewPostgresArtifactRepo はPostgresArtifactRepoを生成する。
func NewPostgresArtifactRepo(db *sql.DB) *PostgresArtifactRepo {
	return &PostgresArtifactRepo{db: db}
}

const artifactColumns = `id, account_id, guest_session_token, title, body, purpose, source_session_id, created_at`

func scanArtifact(row interface{ Scan(dest ...any) error }) (*model.Artifact, error) {
	a := &model.Artifact{}
	var accountID sql.NullInt64
	var guestToken sql.NullString
	err := row.Scan(&a.ID, &accountID, &guestToken, &a.Title, &a.Body, &a.Purpose, &a.SourceSessionID, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	if accountID.Valid {
		a.AccountID = &accountID.Int64
	}
	if guestToken.Valid {
		a.GuestSessionToken = &guestToken.String
	}
	return a, nil
}

// Create はアイデアを作成する。CreatedAtがゼロ値の場合はDB側のnow()を使う。
func (r *PostgresArtifactRepo) Create(ctx context.Context, artifact *model.Artifact) error {
	var createdAt any
	if !artifact.CreatedAt.IsZero() {
		createdAt = artifact.CreatedAt
	}
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO artifacts (account_id, guest_session_token, title, body, purpose, source_session_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, now()))
		 RETURNING id, created_at`,
		artifact.AccountID, artifact.GuestSessionToken, artifact.Title, artifact.Body,
		artifact.Purpose, artifact.SourceSessionID, createdAt,
	).Scan(&artifact.ID, &artifact.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert artifact: %w", err)
	}
	return nil
}

// FindByID は指定IDのアイデアを取得する。見つからない場合はnilを返す。
func (r *PostgresArtifactRepo) FindByID(ctx context.Context, id int64) (*model.Artifact, error) {
	a, err := scanArtifact(r.db.QueryRowContext(ctx,
		`SELECT `+artifactColumns+` FROM artifacts WHERE id = $1`,
		id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find artifact by ID: %w", err)
	}
	return a, nil
}

// ListByAccountID は指定アカウントのアイデアを新しい順に返す。
func (r *PostgresArtifactRepo) ListByAccountID(ctx context.Context, accountID int64) ([]*model.Artifact, error) {
	return r.list(ctx,
		`SELECT `+artifactColumns+` FROM artifacts WHERE account_id = $1 ORDER BY created_at DESC, id DESC`,
		accountID,
	)
}

// ListByGuestToken は指定ゲストトークンのアイデアを新しい順に返す。
func (r *PostgresArtifactRepo) ListByGuestToken(ctx context.Context, guestToken string) ([]*model.Artifact, error) {
	return r.list(ctx,
		`SELECT `+artifactColumns+` FROM artifacts WHERE guest_session_token = $1 ORDER BY created_at DESC, id DESC`,
		guestToken,
	)
}

func (r *PostgresArtifactRepo) list(ctx context.Context, query string, arg any) ([]*model.Artifact, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	defer rows.Close()

	var artifacts []*model.Artifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}
		artifacts = append(artifacts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate artifacts: %w", err)
	}
	return artifacts, nil
}

// CountByAccountID は指定アカウントのアイデア件数を返す。
func (r *PostgresArtifactRepo) CountByAccountID(ctx context.Context, accountID int64) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM artifacts WHERE account_id = $1`,
		accountID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count artifacts by account: %w", err)
	}
	return count, nil
}

// CountByGuestToken は指定ゲストトークンのアイデア件数を返す。
func (r *PostgresArtifactRepo) CountByGuestToken(ctx context.Context, guestToken string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM artifacts WHERE guest_session_token = $1`,
		guestToken,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count artifacts by guest token: %w", err)
	}
	return count, nil
}

// DeleteByID は指定IDのアイデアを削除する。
func (r *PostgresArtifactRepo) DeleteByID(ctx context.Context, id int64) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM artifacts WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete artifact: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// ReassignGuestToAccount はゲスト所有のアイデアをアカウントに付け替える。
// 1文のUPDATEで実行するため、同じ引数で再実行すると0件になる。
func (r *PostgresArtifactRepo) ReassignGuestToAccount(ctx context.Context, guestToken string, accountID int64) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE artifacts
		 SET account_id = $2, guest_session_token = NULL
		 WHERE guest_session_token = $1`,
		guestToken, accountID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to reassign guest artifacts: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}

// DeleteGuestCreatedBefore は保持期間を過ぎたゲスト所有のアイデアを削除する。
func (r *PostgresArtifactRepo) DeleteGuestCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM artifacts
		 WHERE account_id IS NULL
		   AND guest_session_token IS NOT NULL
		   AND created_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired guest artifacts: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}

// compile-time interface check
var _ ArtifactRepository = (*PostgresArtifactRepo)(nil)
