package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dharsanguruparan/FolderDrop/internal/common"
	"github.com/dharsanguruparan/FolderDrop/internal/model"
)

const pgUniqueViolation = "23505"

// PostgresStore wraps all SQL used by the API, the worker and the CLI.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore constructs a repository over an open pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (r *PostgresStore) CreateFolder(ctx context.Context, f *model.Folder) error {
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO folders (id, name, created_at, is_auto_generated, zip_password, is_paused_upload, is_paused_download)
		VALUES ($1,$2,$3,$4,NULLIF($5,''),$6,$7)
	`, f.ID, f.Name, f.CreatedAt, f.AutoGenerated, f.ArchivePassword, f.UploadPaused, f.DownloadPaused)
	if err != nil {
		return wrapWriteErr("insert folder", err)
	}
	return nil
}

const folderColumns = `id, name, created_at, is_auto_generated, COALESCE(zip_password,''), is_paused_upload, is_paused_download`

func scanFolder(row pgx.Row) (*model.Folder, error) {
	var f model.Folder
	if err := row.Scan(&f.ID, &f.Name, &f.CreatedAt, &f.AutoGenerated, &f.ArchivePassword, &f.UploadPaused, &f.DownloadPaused); err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *PostgresStore) GetFolder(ctx context.Context, id string) (*model.Folder, error) {
	f, err := scanFolder(r.pool.QueryRow(ctx, `SELECT `+folderColumns+` FROM folders WHERE id=$1`, id))
	if err != nil {
		return nil, wrapReadErr("select folder", err)
	}
	return f, nil
}

func (r *PostgresStore) ListFolders(ctx context.Context) ([]model.Folder, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+folderColumns+` FROM folders ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("select folders: %w", err)
	}
	defer rows.Close()
	var out []model.Folder
	for rows.Next() {
		f, err := scanFolder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan folder: %w", err)
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

func (r *PostgresStore) SetFolderPause(ctx context.Context, id string, kind model.PauseKind, paused bool) error {
	var stmt string
	switch kind {
	case model.PauseUpload:
		stmt = `UPDATE folders SET is_paused_upload=$1 WHERE id=$2`
	case model.PauseDownload:
		stmt = `UPDATE folders SET is_paused_download=$1 WHERE id=$2`
	default:
		return fmt.Errorf("unknown pause kind %q", kind)
	}
	tag, err := r.pool.Exec(ctx, stmt, paused, id)
	if err != nil {
		return fmt.Errorf("update folder pause: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *PostgresStore) DeleteFolder(ctx context.Context, id string) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM folders WHERE id=$1`, id)
		if err != nil {
			return fmt.Errorf("delete folder: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return common.ErrNotFound
		}
		if _, err := tx.Exec(ctx, `DELETE FROM files WHERE folder_id=$1`, id); err != nil {
			return fmt.Errorf("delete folder files: %w", err)
		}
		return nil
	})
}

func (r *PostgresStore) CreateFile(ctx context.Context, f *model.FileRecord) error {
	if f.UploadedAt.IsZero() {
		f.UploadedAt = time.Now().UTC()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO files (id, folder_id, storage_path, original_name, title, size, content_type, kind, token_hash,
			uploader_name, purpose, ip_address, user_agent, download_limit, downloads_done, expires_at, uploaded_at)
		VALUES ($1,NULLIF($2,''),$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
	`, f.ID, f.FolderID, f.StoragePath, f.OriginalName, f.Title, f.Size, f.ContentType, f.Kind, f.TokenHash,
		f.UploaderName, f.Purpose, f.IPAddress, f.UserAgent, f.DownloadLimit, f.DownloadsDone, f.ExpiresAt, f.UploadedAt)
	if err != nil {
		return wrapWriteErr("insert file", err)
	}
	return nil
}

const fileColumns = `id, COALESCE(folder_id,''), storage_path, original_name, COALESCE(title,''), size, content_type, kind,
	token_hash, COALESCE(uploader_name,''), COALESCE(purpose,''), COALESCE(ip_address,''), COALESCE(user_agent,''),
	download_limit, downloads_done, expires_at, uploaded_at`

func scanFile(row pgx.Row) (*model.FileRecord, error) {
	var f model.FileRecord
	err := row.Scan(&f.ID, &f.FolderID, &f.StoragePath, &f.OriginalName, &f.Title, &f.Size, &f.ContentType, &f.Kind,
		&f.TokenHash, &f.UploaderName, &f.Purpose, &f.IPAddress, &f.UserAgent,
		&f.DownloadLimit, &f.DownloadsDone, &f.ExpiresAt, &f.UploadedAt)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *PostgresStore) GetFile(ctx context.Context, id string) (*model.FileRecord, error) {
	f, err := scanFile(r.pool.QueryRow(ctx, `SELECT `+fileColumns+` FROM files WHERE id=$1`, id))
	if err != nil {
		return nil, wrapReadErr("select file", err)
	}
	return f, nil
}

func (r *PostgresStore) ListFolderFiles(ctx context.Context, folderID string) ([]model.FileRecord, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+fileColumns+` FROM files WHERE folder_id=$1 ORDER BY uploaded_at, id`, folderID)
	if err != nil {
		return nil, fmt.Errorf("select folder files: %w", err)
	}
	defer rows.Close()
	var out []model.FileRecord
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

func (r *PostgresStore) DeleteFile(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM files WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrNotFound
	}
	return nil
}

// ConsumeDownload increments the counter in one statement so concurrent
// downloads cannot overshoot the limit.
func (r *PostgresStore) ConsumeDownload(ctx context.Context, fileID string, master bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE files SET downloads_done = downloads_done + 1
		WHERE id=$1 AND ($2 OR download_limit IS NULL OR downloads_done < download_limit)
	`, fileID, master)
	if err != nil {
		return fmt.Errorf("count download: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err := r.GetFile(ctx, fileID); err != nil {
		return err
	}
	return common.ErrDownloadLimitExceeded
}

func (r *PostgresStore) CreateToken(ctx context.Context, t *model.Token) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	folders := t.AllowedFolders
	if folders == nil {
		folders = []string{}
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO tokens (id, token_hash, name, purpose, created_at, expires_at, max_uses, uses, ip_address,
			permission, allowed_folders, max_upload_size)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, t.ID, t.Hash, t.Name, t.Purpose, t.CreatedAt, t.ExpiresAt, t.MaxUses, t.Uses, t.IPAddress,
		t.Permission, folders, t.MaxUploadSize)
	if err != nil {
		return wrapWriteErr("insert token", err)
	}
	return nil
}

const tokenColumns = `id, token_hash, name, COALESCE(purpose,''), created_at, expires_at, max_uses, uses,
	COALESCE(ip_address,''), permission, allowed_folders, max_upload_size`

func scanToken(row pgx.Row) (*model.Token, error) {
	var t model.Token
	if err := row.Scan(&t.ID, &t.Hash, &t.Name, &t.Purpose, &t.CreatedAt, &t.ExpiresAt, &t.MaxUses, &t.Uses,
		&t.IPAddress, &t.Permission, &t.AllowedFolders, &t.MaxUploadSize); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *PostgresStore) GetToken(ctx context.Context, id string) (*model.Token, error) {
	t, err := scanToken(r.pool.QueryRow(ctx, `SELECT `+tokenColumns+` FROM tokens WHERE id=$1`, id))
	if err != nil {
		return nil, wrapReadErr("select token", err)
	}
	return t, nil
}

func (r *PostgresStore) GetTokenByHash(ctx context.Context, hash string) (*model.Token, error) {
	t, err := scanToken(r.pool.QueryRow(ctx, `SELECT `+tokenColumns+` FROM tokens WHERE token_hash=$1`, hash))
	if err != nil {
		return nil, wrapReadErr("select token", err)
	}
	return t, nil
}

func (r *PostgresStore) ListTokens(ctx context.Context) ([]model.Token, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+tokenColumns+` FROM tokens ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("select tokens: %w", err)
	}
	defer rows.Close()
	var out []model.Token
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("scan token: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (r *PostgresStore) UpdateToken(ctx context.Context, t *model.Token) error {
	folders := t.AllowedFolders
	if folders == nil {
		folders = []string{}
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE tokens SET expires_at=$2, max_uses=$3, uses=$4, allowed_folders=$5 WHERE id=$1
	`, t.ID, t.ExpiresAt, t.MaxUses, t.Uses, folders)
	if err != nil {
		return fmt.Errorf("update token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *PostgresStore) IncrementTokenUses(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE tokens SET uses = uses + 1 WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("update token uses: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *PostgresStore) CountTokensSince(ctx context.Context, ip string, since time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tokens WHERE ip_address=$1 AND created_at > $2`, ip, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count tokens: %w", err)
	}
	return n, nil
}

func (r *PostgresStore) DeleteToken(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM tokens WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *PostgresStore) DeleteExpiredTokens(ctx context.Context, before time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM tokens WHERE expires_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("delete expired tokens: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func wrapReadErr(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, common.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func wrapWriteErr(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("%s: %w", op, common.ErrAlreadyExists)
	}
	return fmt.Errorf("%s: %w", op, err)
}
