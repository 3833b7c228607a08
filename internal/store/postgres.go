package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voyagen/vaulttv/internal/models"
)

// Postgres implements Store using PostgreSQL.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a Postgres store from a DSN. Caller must call Close when done.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Close closes the connection pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

const pgProviderCols = `id, type, name, config, status, channel_count, last_sync, last_error, created_at`

func (p *Postgres) CreateProvider(ctx context.Context, pr *models.Provider) error {
	cfg, err := models.EncodeConfig(pr.Config)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx,
		`INSERT INTO providers (`+pgProviderCols+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		pr.ID, string(pr.Config.Type()), pr.Name, cfg, string(pr.Status), pr.ChannelCount,
		pr.LastSync, pr.LastError, pr.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("CreateProvider: %w", err)
	}
	return nil
}

func scanPgProvider(row pgx.Row) (*models.Provider, error) {
	var (
		pr          models.Provider
		typ, status string
		cfg         []byte
	)
	if err := row.Scan(&pr.ID, &typ, &pr.Name, &cfg, &status, &pr.ChannelCount, &pr.LastSync, &pr.LastError, &pr.CreatedAt); err != nil {
		return nil, err
	}
	config, err := models.DecodeConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("provider %s: %w", pr.ID, err)
	}
	pr.Config = config
	pr.Status = models.ProviderStatus(status)
	return &pr, nil
}

func (p *Postgres) GetProvider(ctx context.Context, id string) (*models.Provider, error) {
	pr, err := scanPgProvider(p.pool.QueryRow(ctx, `SELECT `+pgProviderCols+` FROM providers WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetProvider: %w", err)
	}
	return pr, nil
}

func (p *Postgres) ListProviders(ctx context.Context) ([]models.Provider, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+pgProviderCols+` FROM providers ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("ListProviders: %w", err)
	}
	defer rows.Close()
	out := []models.Provider{}
	for rows.Next() {
		pr, err := scanPgProvider(rows)
		if err != nil {
			return nil, fmt.Errorf("ListProviders scan: %w", err)
		}
		out = append(out, *pr)
	}
	return out, rows.Err()
}

func (p *Postgres) UpdateProviderStatus(ctx context.Context, id string, u StatusUpdate) error {
	sets := []string{"status = $1"}
	args := []any{string(u.Status)}
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, col+" = $"+strconv.Itoa(len(args)))
	}
	if u.ChannelCount != nil {
		add("channel_count", *u.ChannelCount)
	}
	if u.LastSync != nil {
		add("last_sync", *u.LastSync)
	}
	if u.LastError != nil || !u.KeepError {
		add("last_error", u.LastError)
	}
	args = append(args, id)
	tag, err := p.pool.Exec(ctx,
		`UPDATE providers SET `+strings.Join(sets, ", ")+` WHERE id = $`+strconv.Itoa(len(args)), args...)
	if err != nil {
		return fmt.Errorf("UpdateProviderStatus: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) DeleteProvider(ctx context.Context, id string) error {
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		for _, q := range []string{
			`DELETE FROM programs WHERE provider_id = $1`,
			`DELETE FROM channels WHERE provider_id = $1`,
			`DELETE FROM categories WHERE provider_id = $1`,
		} {
			if _, err := tx.Exec(ctx, q, id); err != nil {
				return fmt.Errorf("DeleteProvider: %w", err)
			}
		}
		tag, err := tx.Exec(ctx, `DELETE FROM providers WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("DeleteProvider: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

const pgChannelCols = `id, provider_id, name, logo_url, group_title, stream_url, stream_type, epg_id, number, is_favorite, last_watched, added_at`

const pgUpsertChannel = `INSERT INTO channels (` + pgChannelCols + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	ON CONFLICT (id) DO UPDATE SET
		name = EXCLUDED.name, logo_url = EXCLUDED.logo_url, group_title = EXCLUDED.group_title,
		stream_url = EXCLUDED.stream_url, stream_type = EXCLUDED.stream_type,
		epg_id = EXCLUDED.epg_id, number = EXCLUDED.number`

// pgxQuerier is satisfied by both *pgxpool.Pool and pgx.Tx.
type pgxQuerier interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

func insertPgChannels(ctx context.Context, q pgxQuerier, channels []models.Channel) error {
	if len(channels) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, ch := range channels {
		batch.Queue(pgUpsertChannel,
			ch.ID, ch.ProviderID, ch.Name, ch.LogoURL, ch.GroupTitle, ch.StreamURL, string(ch.StreamType),
			ch.EPGID, ch.Number, ch.IsFavorite, ch.LastWatched, ch.AddedAt)
	}
	if err := q.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert channels: %w", err)
	}
	return nil
}

func insertPgCategories(ctx context.Context, q pgxQuerier, categories []models.Category) error {
	if len(categories) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, c := range categories {
		batch.Queue(`INSERT INTO categories (id, provider_id, name, type, channel_count) VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, type = EXCLUDED.type, channel_count = EXCLUDED.channel_count`,
			c.ID, c.ProviderID, c.Name, string(c.Type), c.ChannelCount)
	}
	if err := q.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert categories: %w", err)
	}
	return nil
}

func scanPgChannel(row pgx.Row) (models.Channel, error) {
	var (
		ch         models.Channel
		streamType string
	)
	err := row.Scan(&ch.ID, &ch.ProviderID, &ch.Name, &ch.LogoURL, &ch.GroupTitle, &ch.StreamURL, &streamType,
		&ch.EPGID, &ch.Number, &ch.IsFavorite, &ch.LastWatched, &ch.AddedAt)
	ch.StreamType = models.StreamType(streamType)
	return ch, err
}

func collectPgChannels(rows pgx.Rows) ([]models.Channel, error) {
	defer rows.Close()
	out := []models.Channel{}
	for rows.Next() {
		ch, err := scanPgChannel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

func (p *Postgres) UpsertChannels(ctx context.Context, channels []models.Channel) error {
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		return insertPgChannels(ctx, tx, channels)
	})
}

func (p *Postgres) DeleteChannelsByProvider(ctx context.Context, providerID string) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM channels WHERE provider_id = $1`, providerID); err != nil {
		return fmt.Errorf("DeleteChannelsByProvider: %w", err)
	}
	return nil
}

func (p *Postgres) UpsertCategories(ctx context.Context, categories []models.Category) error {
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		return insertPgCategories(ctx, tx, categories)
	})
}

func (p *Postgres) DeleteCategoriesByProvider(ctx context.Context, providerID string) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM categories WHERE provider_id = $1`, providerID); err != nil {
		return fmt.Errorf("DeleteCategoriesByProvider: %w", err)
	}
	return nil
}

func (p *Postgres) GetChannelsByProvider(ctx context.Context, providerID string) ([]models.Channel, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+pgChannelCols+` FROM channels WHERE provider_id = $1 ORDER BY added_at, id`, providerID)
	if err != nil {
		return nil, fmt.Errorf("GetChannelsByProvider: %w", err)
	}
	return collectPgChannels(rows)
}

// lockPgProvider takes a row lock on the provider for the rest of tx, so a
// concurrent DeleteProvider cannot interleave with a sync commit.
func lockPgProvider(ctx context.Context, tx pgx.Tx, id string) error {
	var one int
	err := tx.QueryRow(ctx, `SELECT 1 FROM providers WHERE id = $1 FOR UPDATE`, id).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (p *Postgres) ReplaceProviderData(ctx context.Context, providerID string, channels []models.Channel, categories []models.Category, syncedAt time.Time) error {
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		if err := lockPgProvider(ctx, tx, providerID); err != nil {
			return err
		}
		prev := make(map[string]userData)
		rows, err := tx.Query(ctx, `SELECT id, is_favorite, last_watched FROM channels
			WHERE provider_id = $1 AND (is_favorite OR last_watched IS NOT NULL)`, providerID)
		if err != nil {
			return fmt.Errorf("read user data: %w", err)
		}
		for rows.Next() {
			var id string
			var u userData
			if err := rows.Scan(&id, &u.favorite, &u.lastWatched); err != nil {
				rows.Close()
				return err
			}
			prev[id] = u
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `DELETE FROM channels WHERE provider_id = $1`, providerID); err != nil {
			return fmt.Errorf("clear channels: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM categories WHERE provider_id = $1`, providerID); err != nil {
			return fmt.Errorf("clear categories: %w", err)
		}
		if err := insertPgChannels(ctx, tx, carryUserData(channels, prev)); err != nil {
			return err
		}
		if err := insertPgCategories(ctx, tx, categories); err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`UPDATE providers SET status = $1, channel_count = $2, last_sync = $3, last_error = NULL WHERE id = $4`,
			string(models.StatusActive), len(channels), syncedAt, providerID)
		if err != nil {
			return fmt.Errorf("update provider: %w", err)
		}
		return nil
	})
}

func (p *Postgres) ApplyDelta(ctx context.Context, providerID string, added []models.Channel, removedIDs []string, categories []models.Category, syncedAt time.Time) (int, error) {
	var count int
	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		if err := lockPgProvider(ctx, tx, providerID); err != nil {
			return err
		}
		if err := insertPgChannels(ctx, tx, added); err != nil {
			return err
		}
		if len(removedIDs) > 0 {
			if _, err := tx.Exec(ctx, `DELETE FROM channels WHERE provider_id = $1 AND id = ANY($2)`, providerID, removedIDs); err != nil {
				return fmt.Errorf("delete channels: %w", err)
			}
		}
		if categories != nil {
			if _, err := tx.Exec(ctx, `DELETE FROM categories WHERE provider_id = $1`, providerID); err != nil {
				return fmt.Errorf("clear categories: %w", err)
			}
			if err := insertPgCategories(ctx, tx, categories); err != nil {
				return err
			}
		}
		err := tx.QueryRow(ctx,
			`UPDATE providers SET status = $1, last_sync = $2, last_error = NULL,
				channel_count = (SELECT COUNT(*) FROM channels WHERE provider_id = $3)
			 WHERE id = $3 RETURNING channel_count`,
			string(models.StatusActive), syncedAt, providerID).Scan(&count)
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

func (p *Postgres) ListChannels(ctx context.Context, filter ChannelFilter) ([]models.Channel, int, error) {
	f := filter.Normalize()
	var where []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, strings.ReplaceAll(cond, "?", "$"+strconv.Itoa(len(args))))
	}
	if f.ProviderID != "" {
		add("provider_id = ?", f.ProviderID)
	}
	if f.GroupTitle != "" {
		add("group_title = ?", f.GroupTitle)
	}
	if f.StreamType != nil {
		add("stream_type = ?", string(*f.StreamType))
	}
	if f.Favorite != nil {
		add("is_favorite = ?", *f.Favorite)
	}
	if f.Search != "" {
		add(`LOWER(name) LIKE ?`, likePattern(f.Search))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM channels`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ListChannels count: %w", err)
	}
	n := len(args)
	rows, err := p.pool.Query(ctx,
		`SELECT `+pgChannelCols+` FROM channels`+clause+
			` ORDER BY number NULLS LAST, name, id LIMIT $`+strconv.Itoa(n+1)+` OFFSET $`+strconv.Itoa(n+2),
		append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("ListChannels: %w", err)
	}
	channels, err := collectPgChannels(rows)
	if err != nil {
		return nil, 0, fmt.Errorf("ListChannels scan: %w", err)
	}
	return channels, total, nil
}

func (p *Postgres) GetChannel(ctx context.Context, id string) (*models.Channel, error) {
	ch, err := scanPgChannel(p.pool.QueryRow(ctx, `SELECT `+pgChannelCols+` FROM channels WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetChannel: %w", err)
	}
	return &ch, nil
}

func (p *Postgres) execOne(ctx context.Context, op, query string, args ...any) error {
	tag, err := p.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) SetFavorite(ctx context.Context, id string, favorite bool) error {
	return p.execOne(ctx, "SetFavorite", `UPDATE channels SET is_favorite = $1 WHERE id = $2`, favorite, id)
}

func (p *Postgres) ToggleFavorite(ctx context.Context, id string) (bool, error) {
	var fav bool
	err := p.pool.QueryRow(ctx, `UPDATE channels SET is_favorite = NOT is_favorite WHERE id = $1 RETURNING is_favorite`, id).Scan(&fav)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("ToggleFavorite: %w", err)
	}
	return fav, nil
}

func (p *Postgres) TouchLastWatched(ctx context.Context, id string, at time.Time) error {
	return p.execOne(ctx, "TouchLastWatched", `UPDATE channels SET last_watched = $1 WHERE id = $2`, at, id)
}

func (p *Postgres) RecentlyWatched(ctx context.Context, limit int) ([]models.Channel, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := p.pool.Query(ctx,
		`SELECT `+pgChannelCols+` FROM channels WHERE last_watched IS NOT NULL ORDER BY last_watched DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("RecentlyWatched: %w", err)
	}
	return collectPgChannels(rows)
}

func (p *Postgres) ListCategories(ctx context.Context, providerID string, typ *models.StreamType) ([]models.Category, error) {
	query := `SELECT id, provider_id, name, type, channel_count FROM categories WHERE ($1 = '' OR provider_id = $1)`
	args := []any{providerID}
	if typ != nil {
		query += ` AND type = $2`
		args = append(args, string(*typ))
	}
	rows, err := p.pool.Query(ctx, query+` ORDER BY provider_id, name`, args...)
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

const pgProgramCols = `id, provider_id, channel_epg_id, title, description, category, start_time, end_time`

func (p *Postgres) UpsertPrograms(ctx context.Context, providerID string, programs []models.Program) error {
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM programs WHERE provider_id = $1`, providerID); err != nil {
			return fmt.Errorf("clear programs: %w", err)
		}
		if len(programs) == 0 {
			return nil
		}
		batch := &pgx.Batch{}
		for _, pr := range programs {
			batch.Queue(`INSERT INTO programs (`+pgProgramCols+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title, description = EXCLUDED.description,
					category = EXCLUDED.category, end_time = EXCLUDED.end_time`,
				pr.ID, providerID, pr.ChannelEPG, pr.Title, pr.Description, pr.Category, pr.Start, pr.End)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert programs: %w", err)
		}
		return nil
	})
}

func scanPgProgram(row pgx.Row) (models.Program, error) {
	var pr models.Program
	err := row.Scan(&pr.ID, &pr.ProviderID, &pr.ChannelEPG, &pr.Title, &pr.Description, &pr.Category, &pr.Start, &pr.End)
	pr.Start, pr.End = pr.Start.UTC(), pr.End.UTC()
	return pr, err
}

func (p *Postgres) CurrentProgram(ctx context.Context, epgID string, at time.Time) (*models.Program, error) {
	pr, err := scanPgProgram(p.pool.QueryRow(ctx, `SELECT `+pgProgramCols+` FROM programs
		WHERE channel_epg_id = $1 AND start_time <= $2 AND end_time > $2 ORDER BY start_time DESC LIMIT 1`, epgID, at))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("CurrentProgram: %w", err)
	}
	return &pr, nil
}

func (p *Postgres) UpcomingPrograms(ctx context.Context, epgID string, from, to time.Time) ([]models.Program, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+pgProgramCols+` FROM programs
		WHERE channel_epg_id = $1 AND end_time > $2 AND start_time < $3 ORDER BY start_time`, epgID, from, to)
	if err != nil {
		return nil, fmt.Errorf("UpcomingPrograms: %w", err)
	}
	defer rows.Close()
	out := []models.Program{}
	for rows.Next() {
		pr, err := scanPgProgram(rows)
		if err != nil {
			return nil, fmt.Errorf("UpcomingPrograms scan: %w", err)
		}
		out = append(out, pr)
	}
	return out, rows.Err()
}

func (p *Postgres) CleanExpiredPrograms(ctx context.Context, before time.Time) (int64, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM programs WHERE end_time < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("CleanExpiredPrograms: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (p *Postgres) GetPreferences(ctx context.Context) (models.Preferences, error) {
	rows, err := p.pool.Query(ctx, `SELECT key, value FROM preferences`)
	if err != nil {
		return models.Preferences{}, fmt.Errorf("GetPreferences: %w", err)
	}
	defer rows.Close()
	fields := map[string]json.RawMessage{}
	for rows.Next() {
		var k string
		var v []byte
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

func (p *Postgres) SavePreferences(ctx context.Context, prefs models.Preferences) error {
	fields, err := encodePreferences(prefs)
	if err != nil {
		return err
	}
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		for k, v := range fields {
			if _, err := tx.Exec(ctx,
				`INSERT INTO preferences (key, value) VALUES ($1, $2) ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
				k, []byte(v)); err != nil {
				return fmt.Errorf("SavePreferences %s: %w", k, err)
			}
		}
		return nil
	})
}

func (p *Postgres) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := p.pool.QueryRow(ctx, `SELECT
		(SELECT COUNT(*) FROM providers),
		(SELECT COUNT(*) FROM channels),
		(SELECT COUNT(*) FROM channels WHERE is_favorite),
		(SELECT COUNT(*) FROM categories),
		(SELECT COUNT(*) FROM programs)`).Scan(&st.Providers, &st.Channels, &st.Favorites, &st.Categories, &st.Programs)
	if err != nil {
		return st, fmt.Errorf("Stats: %w", err)
	}
	return st, nil
}
