package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/voyagen/vaulttv/internal/models"
	_ "modernc.org/sqlite"
)

// SQLite implements Store on a local SQLite file. Timestamps are stored as
// unix milliseconds.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens path with WAL journaling and foreign keys enabled.
// Migrations are not applied; call RunMigrations first.
func NewSQLite(ctx context.Context, path string) (*SQLite, error) {
	if path == "" {
		return nil, errors.New("sqlite: empty path")
	}
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "busy_timeout(5000)")
	dsn := "file:" + path + "?" + q.Encode()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	// One writer at a time; readers queue behind it instead of getting SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func toMillis(t time.Time) int64 { return t.UnixMilli() }

func toMillisPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func fromNullMillis(ms sql.NullInt64) *time.Time {
	if !ms.Valid {
		return nil
	}
	t := fromMillis(ms.Int64)
	return &t
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// --- providers ---

const sqliteProviderCols = `id, type, name, config, status, channel_count, last_sync, last_error, created_at`

func (s *SQLite) CreateProvider(ctx context.Context, p *models.Provider) error {
	cfg, err := models.EncodeConfig(p.Config)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO providers (`+sqliteProviderCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, string(p.Config.Type()), p.Name, string(cfg), string(p.Status), p.ChannelCount,
		toMillisPtr(p.LastSync), p.LastError, toMillis(p.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("CreateProvider: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteProvider(row rowScanner) (*models.Provider, error) {
	var (
		p         models.Provider
		typ, cfg  string
		status    string
		lastSync  sql.NullInt64
		lastError sql.NullString
		createdAt int64
	)
	if err := row.Scan(&p.ID, &typ, &p.Name, &cfg, &status, &p.ChannelCount, &lastSync, &lastError, &createdAt); err != nil {
		return nil, err
	}
	config, err := models.DecodeConfig([]byte(cfg))
	if err != nil {
		return nil, fmt.Errorf("provider %s: %w", p.ID, err)
	}
	p.Config = config
	p.Status = models.ProviderStatus(status)
	p.LastSync = fromNullMillis(lastSync)
	p.LastError = nullString(lastError)
	p.CreatedAt = fromMillis(createdAt)
	return &p, nil
}

func (s *SQLite) GetProvider(ctx context.Context, id string) (*models.Provider, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteProviderCols+` FROM providers WHERE id = ?`, id)
	p, err := scanSQLiteProvider(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetProvider: %w", err)
	}
	return p, nil
}

func (s *SQLite) ListProviders(ctx context.Context) ([]models.Provider, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sqliteProviderCols+` FROM providers ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("ListProviders: %w", err)
	}
	defer rows.Close()
	out := []models.Provider{}
	for rows.Next() {
		p, err := scanSQLiteProvider(rows)
		if err != nil {
			return nil, fmt.Errorf("ListProviders scan: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *SQLite) UpdateProviderStatus(ctx context.Context, id string, u StatusUpdate) error {
	sets := []string{"status = ?"}
	args := []any{string(u.Status)}
	if u.ChannelCount != nil {
		sets = append(sets, "channel_count = ?")
		args = append(args, *u.ChannelCount)
	}
	if u.LastSync != nil {
		sets = append(sets, "last_sync = ?")
		args = append(args, toMillis(*u.LastSync))
	}
	if u.LastError != nil || !u.KeepError {
		sets = append(sets, "last_error = ?")
		args = append(args, u.LastError)
	}
	args = append(args, id)
	res, err := s.db.ExecContext(ctx, `UPDATE providers SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("UpdateProviderStatus: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLite) DeleteProvider(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, q := range []string{
			`DELETE FROM programs WHERE provider_id = ?`,
			`DELETE FROM channels WHERE provider_id = ?`,
			`DELETE FROM categories WHERE provider_id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, q, id); err != nil {
				return fmt.Errorf("DeleteProvider: %w", err)
			}
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM providers WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("DeleteProvider: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// --- channels ---

const sqliteChannelCols = `id, provider_id, name, logo_url, group_title, stream_url, stream_type, epg_id, number, is_favorite, last_watched, added_at`

const sqliteUpsertChannel = `INSERT INTO channels (` + sqliteChannelCols + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET
		name = excluded.name, logo_url = excluded.logo_url, group_title = excluded.group_title,
		stream_url = excluded.stream_url, stream_type = excluded.stream_type,
		epg_id = excluded.epg_id, number = excluded.number`

func insertSQLiteChannels(ctx context.Context, tx *sql.Tx, channels []models.Channel) error {
	if len(channels) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, sqliteUpsertChannel)
	if err != nil {
		return fmt.Errorf("prepare channel insert: %w", err)
	}
	defer stmt.Close()
	for _, ch := range channels {
		if _, err := stmt.ExecContext(ctx,
			ch.ID, ch.ProviderID, ch.Name, ch.LogoURL, ch.GroupTitle, ch.StreamURL, string(ch.StreamType),
			ch.EPGID, ch.Number, ch.IsFavorite, toMillisPtr(ch.LastWatched), toMillis(ch.AddedAt),
		); err != nil {
			return fmt.Errorf("insert channel %s: %w", ch.ID, err)
		}
	}
	return nil
}

func scanSQLiteChannel(row rowScanner) (models.Channel, error) {
	var (
		ch          models.Channel
		logo, epg   sql.NullString
		number      sql.NullInt64
		streamType  string
		lastWatched sql.NullInt64
		addedAt     int64
	)
	err := row.Scan(&ch.ID, &ch.ProviderID, &ch.Name, &logo, &ch.GroupTitle, &ch.StreamURL, &streamType,
		&epg, &number, &ch.IsFavorite, &lastWatched, &addedAt)
	if err != nil {
		return ch, err
	}
	ch.LogoURL = nullString(logo)
	ch.EPGID = nullString(epg)
	if number.Valid {
		n := int(number.Int64)
		ch.Number = &n
	}
	ch.StreamType = models.StreamType(streamType)
	ch.LastWatched = fromNullMillis(lastWatched)
	ch.AddedAt = fromMillis(addedAt)
	return ch, nil
}

func collectSQLiteChannels(rows *sql.Rows) ([]models.Channel, error) {
	defer rows.Close()
	out := []models.Channel{}
	for rows.Next() {
		ch, err := scanSQLiteChannel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

func (s *SQLite) UpsertChannels(ctx context.Context, channels []models.Channel) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return insertSQLiteChannels(ctx, tx, channels)
	})
}

func (s *SQLite) DeleteChannelsByProvider(ctx context.Context, providerID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM channels WHERE provider_id = ?`, providerID); err != nil {
		return fmt.Errorf("DeleteChannelsByProvider: %w", err)
	}
	return nil
}

func insertSQLiteCategories(ctx context.Context, tx *sql.Tx, categories []models.Category) error {
	if len(categories) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO categories (id, provider_id, name, type, channel_count)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, type = excluded.type, channel_count = excluded.channel_count`)
	if err != nil {
		return fmt.Errorf("prepare category insert: %w", err)
	}
	defer stmt.Close()
	for _, c := range categories {
		if _, err := stmt.ExecContext(ctx, c.ID, c.ProviderID, c.Name, string(c.Type), c.ChannelCount); err != nil {
			return fmt.Errorf("insert category %s: %w", c.ID, err)
		}
	}
	return nil
}

func (s *SQLite) UpsertCategories(ctx context.Context, categories []models.Category) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return insertSQLiteCategories(ctx, tx, categories)
	})
}

func (s *SQLite) DeleteCategoriesByProvider(ctx context.Context, providerID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM categories WHERE provider_id = ?`, providerID); err != nil {
		return fmt.Errorf("DeleteCategoriesByProvider: %w", err)
	}
	return nil
}

func (s *SQLite) GetChannelsByProvider(ctx context.Context, providerID string) ([]models.Channel, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteChannelCols+` FROM channels WHERE provider_id = ? ORDER BY rowid`, providerID)
	if err != nil {
		return nil, fmt.Errorf("GetChannelsByProvider: %w", err)
	}
	return collectSQLiteChannels(rows)
}

func sqliteProviderExists(ctx context.Context, tx *sql.Tx, id string) error {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM providers WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (s *SQLite) ReplaceProviderData(ctx context.Context, providerID string, channels []models.Channel, categories []models.Category, syncedAt time.Time) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := sqliteProviderExists(ctx, tx, providerID); err != nil {
			return err
		}
		prev, err := sqliteUserData(ctx, tx, providerID)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM channels WHERE provider_id = ?`, providerID); err != nil {
			return fmt.Errorf("clear channels: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM categories WHERE provider_id = ?`, providerID); err != nil {
			return fmt.Errorf("clear categories: %w", err)
		}
		if err := insertSQLiteChannels(ctx, tx, carryUserData(channels, prev)); err != nil {
			return err
		}
		if err := insertSQLiteCategories(ctx, tx, categories); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE providers SET status = ?, channel_count = ?, last_sync = ?, last_error = NULL WHERE id = ?`,
			string(models.StatusActive), len(channels), toMillis(syncedAt), providerID)
		if err != nil {
			return fmt.Errorf("update provider: %w", err)
		}
		return nil
	})
}

func sqliteUserData(ctx context.Context, tx *sql.Tx, providerID string) (map[string]userData, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT id, is_favorite, last_watched FROM channels
		 WHERE provider_id = ? AND (is_favorite = 1 OR last_watched IS NOT NULL)`, providerID)
	if err != nil {
		return nil, fmt.Errorf("read user data: %w", err)
	}
	defer rows.Close()
	out := make(map[string]userData)
	for rows.Next() {
		var (
			id  string
			fav bool
			lw  sql.NullInt64
		)
		if err := rows.Scan(&id, &fav, &lw); err != nil {
			return nil, err
		}
		out[id] = userData{favorite: fav, lastWatched: fromNullMillis(lw)}
	}
	return out, rows.Err()
}

func (s *SQLite) ApplyDelta(ctx context.Context, providerID string, added []models.Channel, removedIDs []string, categories []models.Category, syncedAt time.Time) (int, error) {
	var count int
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := sqliteProviderExists(ctx, tx, providerID); err != nil {
			return err
		}
		if err := insertSQLiteChannels(ctx, tx, added); err != nil {
			return err
		}
		if len(removedIDs) > 0 {
			stmt, err := tx.PrepareContext(ctx, `DELETE FROM channels WHERE provider_id = ? AND id = ?`)
			if err != nil {
				return fmt.Errorf("prepare delete: %w", err)
			}
			defer stmt.Close()
			for _, id := range removedIDs {
				if _, err := stmt.ExecContext(ctx, providerID, id); err != nil {
					return fmt.Errorf("delete channel %s: %w", id, err)
				}
			}
		}
		if categories != nil {
			if _, err := tx.ExecContext(ctx, `DELETE FROM categories WHERE provider_id = ?`, providerID); err != nil {
				return fmt.Errorf("clear categories: %w", err)
			}
			if err := insertSQLiteCategories(ctx, tx, categories); err != nil {
				return err
			}
		}
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM channels WHERE provider_id = ?`, providerID).Scan(&count); err != nil {
			return fmt.Errorf("count channels: %w", err)
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE providers SET status = ?, channel_count = ?, last_sync = ?, last_error = NULL WHERE id = ?`,
			string(models.StatusActive), count, toMillis(syncedAt), providerID)
		if err != nil {
			return fmt.Errorf("update provider: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *SQLite) ListChannels(ctx context.Context, filter ChannelFilter) ([]models.Channel, int, error) {
	f := filter.Normalize()
	var where []string
	var args []any
	if f.ProviderID != "" {
		where = append(where, "provider_id = ?")
		args = append(args, f.ProviderID)
	}
	if f.GroupTitle != "" {
		where = append(where, "group_title = ?")
		args = append(args, f.GroupTitle)
	}
	if f.StreamType != nil {
		where = append(where, "stream_type = ?")
		args = append(args, string(*f.StreamType))
	}
	if f.Favorite != nil {
		where = append(where, "is_favorite = ?")
		args = append(args, *f.Favorite)
	}
	if f.Search != "" {
		where = append(where, `LOWER(name) LIKE ? ESCAPE '\'`)
		args = append(args, likePattern(f.Search))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM channels`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ListChannels count: %w", err)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteChannelCols+` FROM channels`+clause+` ORDER BY number IS NULL, number, name, id LIMIT ? OFFSET ?`,
		append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("ListChannels: %w", err)
	}
	channels, err := collectSQLiteChannels(rows)
	if err != nil {
		return nil, 0, fmt.Errorf("ListChannels scan: %w", err)
	}
	return channels, total, nil
}

func (s *SQLite) GetChannel(ctx context.Context, id string) (*models.Channel, error) {
	ch, err := scanSQLiteChannel(s.db.QueryRowContext(ctx, `SELECT `+sqliteChannelCols+` FROM channels WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetChannel: %w", err)
	}
	return &ch, nil
}

func (s *SQLite) execOne(ctx context.Context, op, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLite) SetFavorite(ctx context.Context, id string, favorite bool) error {
	return s.execOne(ctx, "SetFavorite", `UPDATE channels SET is_favorite = ? WHERE id = ?`, favorite, id)
}

func (s *SQLite) ToggleFavorite(ctx context.Context, id string) (bool, error) {
	var fav bool
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `UPDATE channels SET is_favorite = 1 - is_favorite WHERE id = ? RETURNING is_favorite`, id).Scan(&fav)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	})
	return fav, err
}

func (s *SQLite) TouchLastWatched(ctx context.Context, id string, at time.Time) error {
	return s.execOne(ctx, "TouchLastWatched", `UPDATE channels SET last_watched = ? WHERE id = ?`, toMillis(at), id)
}

func (s *SQLite) RecentlyWatched(ctx context.Context, limit int) ([]models.Channel, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteChannelCols+` FROM channels WHERE last_watched IS NOT NULL ORDER BY last_watched DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("RecentlyWatched: %w", err)
	}
	return collectSQLiteChannels(rows)
}

func (s *SQLite) ListCategories(ctx context.Context, providerID string, typ *models.StreamType) ([]models.Category, error) {
	query := `SELECT id, provider_id, name, type, channel_count FROM categories WHERE 1 = 1`
	var args []any
	if providerID != "" {
		query += ` AND provider_id = ?`
		args = append(args, providerID)
	}
	if typ != nil {
		query += ` AND type = ?`
		args = append(args, string(*typ))
	}
	rows, err := s.db.QueryContext(ctx, query+` ORDER BY provider_id, rowid`, args...)
	if err != nil {
		return nil, fmt.Errorf("ListCategories: %w", err)
	}
	defer rows.Close()
	out := []models.Category{}
	for rows.Next() {
		var c models.Category
		var t string
		if err := rows.Scan(&c.ID, &c.ProviderID, &c.Name, &t, &c.ChannelCount); err != nil {
			return nil, fmt.Errorf("ListCategories scan: %w", err)
		}
		c.Type = models.StreamType(t)
		out = append(out, c)
	}
	return out, rows.Err()
}

// --- programs ---

const sqliteProgramCols = `id, provider_id, channel_epg_id, title, description, category, start_time, end_time`

func (s *SQLite) UpsertPrograms(ctx context.Context, providerID string, programs []models.Program) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM programs WHERE provider_id = ?`, providerID); err != nil {
			return fmt.Errorf("clear programs: %w", err)
		}
		if len(programs) == 0 {
			return nil
		}
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO programs (`+sqliteProgramCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET title = excluded.title, description = excluded.description,
				category = excluded.category, end_time = excluded.end_time`)
		if err != nil {
			return fmt.Errorf("prepare program insert: %w", err)
		}
		defer stmt.Close()
		for _, p := range programs {
			if _, err := stmt.ExecContext(ctx, p.ID, providerID, p.ChannelEPG, p.Title, p.Description, p.Category,
				toMillis(p.Start), toMillis(p.End)); err != nil {
				return fmt.Errorf("insert program %s: %w", p.ID, err)
			}
		}
		return nil
	})
}

func scanSQLiteProgram(row rowScanner) (models.Program, error) {
	var (
		p          models.Program
		desc, cat  sql.NullString
		start, end int64
	)
	if err := row.Scan(&p.ID, &p.ProviderID, &p.ChannelEPG, &p.Title, &desc, &cat, &start, &end); err != nil {
		return p, err
	}
	p.Description = nullString(desc)
	p.Category = nullString(cat)
	p.Start = fromMillis(start)
	p.End = fromMillis(end)
	return p, nil
}

func (s *SQLite) CurrentProgram(ctx context.Context, epgID string, at time.Time) (*models.Program, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteProgramCols+` FROM programs
		WHERE channel_epg_id = ? AND start_time <= ? AND end_time > ? ORDER BY start_time DESC LIMIT 1`,
		epgID, toMillis(at), toMillis(at))
	p, err := scanSQLiteProgram(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("CurrentProgram: %w", err)
	}
	return &p, nil
}

func (s *SQLite) UpcomingPrograms(ctx context.Context, epgID string, from, to time.Time) ([]models.Program, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sqliteProgramCols+` FROM programs
		WHERE channel_epg_id = ? AND end_time > ? AND start_time < ? ORDER BY start_time`,
		epgID, toMillis(from), toMillis(to))
	if err != nil {
		return nil, fmt.Errorf("UpcomingPrograms: %w", err)
	}
	defer rows.Close()
	out := []models.Program{}
	for rows.Next() {
		p, err := scanSQLiteProgram(rows)
		if err != nil {
			return nil, fmt.Errorf("UpcomingPrograms scan: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLite) CleanExpiredPrograms(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM programs WHERE end_time < ?`, toMillis(before))
	if err != nil {
		return 0, fmt.Errorf("CleanExpiredPrograms: %w", err)
	}
	return res.RowsAffected()
}

// --- preferences & stats ---

func (s *SQLite) GetPreferences(ctx context.Context) (models.Preferences, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM preferences`)
	if err != nil {
		return models.Preferences{}, fmt.Errorf("GetPreferences: %w", err)
	}
	defer rows.Close()
	fields := map[string]json.RawMessage{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return models.Preferences{}, fmt.Errorf("GetPreferences scan: %w", err)
		}
		fields[k] = json.RawMessage(v)
	}
	if err := rows.Err(); err != nil {
		return models.Preferences{}, err
	}
	return decodePreferences(fields)
}

func (s *SQLite) SavePreferences(ctx context.Context, p models.Preferences) error {
	fields, err := encodePreferences(p)
	if err != nil {
		return err
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for k, v := range fields {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO preferences (key, value) VALUES (?, ?) ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
				k, string(v)); err != nil {
				return fmt.Errorf("SavePreferences %s: %w", k, err)
			}
		}
		return nil
	})
}

func (s *SQLite) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(*) FROM providers),
		(SELECT COUNT(*) FROM channels),
		(SELECT COUNT(*) FROM channels WHERE is_favorite = 1),
		(SELECT COUNT(*) FROM categories),
		(SELECT COUNT(*) FROM programs)`).Scan(&st.Providers, &st.Channels, &st.Favorites, &st.Categories, &st.Programs)
	if err != nil {
		return st, fmt.Errorf("Stats: %w", err)
	}
	return st, nil
}
