// Package authority pushes reconciled workplace rows to the shared Postgres
// database that downstream consumers read from.
package authority

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/opendatakr/npscache/internal/workplace"
)

// ErrDSNRequired indicates Open was called without a connection string.
var ErrDSNRequired = errors.New("authority dsn is required")

// Client talks to the remote workplace tables over database/sql.
type Client struct {
	sqlDB *sql.DB
}

// Open prepares a connection pool for the remote database. The pool connects
// lazily, so Open succeeds even while the database is unreachable; callers
// probe liveness with Ping.
func Open(dsn string) (*Client, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, ErrDSNRequired
	}

	sqlDB, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open authority db: %w", err)
	}
	sqlDB.SetMaxOpenConns(4)
	sqlDB.SetMaxIdleConns(2)

	return &Client{sqlDB: sqlDB}, nil
}

// Ping reports whether the remote database currently answers.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.sqlDB == nil {
		return fmt.Errorf("authority is not configured")
	}
	return c.sqlDB.PingContext(ctx)
}

// Close releases the connection pool.
func (c *Client) Close() error {
	if c == nil || c.sqlDB == nil {
		return nil
	}
	return c.sqlDB.Close()
}

// UpsertBase writes the identifying columns for one workplace. Replaying a
// write converges on the newest values; the registration number is only
// written on first insert.
func (c *Client) UpsertBase(ctx context.Context, record workplace.Record) error {
	if c == nil || c.sqlDB == nil {
		return fmt.Errorf("authority is not configured")
	}
	_, err := c.sqlDB.ExecContext(ctx, `
	INSERT INTO workplace_base_info
		(wkpl_nm, bzowr_rgst_no, seq, data_crt_ym, wkpl_road_nm_dtl_addr)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (seq)
	DO UPDATE SET
		wkpl_nm = EXCLUDED.wkpl_nm,
		data_crt_ym = EXCLUDED.data_crt_ym,
		wkpl_road_nm_dtl_addr = EXCLUDED.wkpl_road_nm_dtl_addr,
		updated_at = CURRENT_TIMESTAMP
	`,
		record.Name,
		nullString(record.RegistrationNo),
		record.Seq,
		nullString(record.DataPeriod),
		nullString(record.Address),
	)
	if err != nil {
		return fmt.Errorf("upsert base info: %w", err)
	}
	return nil
}

// UpsertDetail writes the subscriber and premium columns for one workplace.
func (c *Client) UpsertDetail(ctx context.Context, record workplace.Record) error {
	if c == nil || c.sqlDB == nil {
		return fmt.Errorf("authority is not configured")
	}
	_, err := c.sqlDB.ExecContext(ctx, `
	INSERT INTO workplace_detail_info
		(seq, jnngp_cnt, crrmm_ntc_amt, avg_monthly_salary)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (seq)
	DO UPDATE SET
		jnngp_cnt = EXCLUDED.jnngp_cnt,
		crrmm_ntc_amt = EXCLUDED.crrmm_ntc_amt,
		avg_monthly_salary = EXCLUDED.avg_monthly_salary,
		updated_at = CURRENT_TIMESTAMP
	`,
		record.Seq,
		nullInt64(record.SubscriberCount),
		nullInt64(record.MonthlyNoticeAmount),
		nullFloat64(record.AvgMonthlySalary),
	)
	if err != nil {
		return fmt.Errorf("upsert detail info: %w", err)
	}
	return nil
}

// UpsertMonthly writes the joiner and leaver columns for one workplace.
func (c *Client) UpsertMonthly(ctx context.Context, record workplace.Record) error {
	if c == nil || c.sqlDB == nil {
		return fmt.Errorf("authority is not configured")
	}
	_, err := c.sqlDB.ExecContext(ctx, `
	INSERT INTO workplace_monthly_status
		(seq, nw_acqzr_cnt, lss_jnngp_cnt)
	VALUES ($1, $2, $3)
	ON CONFLICT (seq)
	DO UPDATE SET
		nw_acqzr_cnt = EXCLUDED.nw_acqzr_cnt,
		lss_jnngp_cnt = EXCLUDED.lss_jnngp_cnt,
		updated_at = CURRENT_TIMESTAMP
	`,
		record.Seq,
		nullInt64(record.NewHireCount),
		nullInt64(record.LeaverCount),
	)
	if err != nil {
		return fmt.Errorf("upsert monthly status: %w", err)
	}
	return nil
}

// DeleteAll removes every remote row for one workplace in a single
// transaction, children before the base row. Deleting a workplace that is
// already gone succeeds.
func (c *Client) DeleteAll(ctx context.Context, seq string) error {
	if c == nil || c.sqlDB == nil {
		return fmt.Errorf("authority is not configured")
	}
	seq = strings.TrimSpace(seq)
	if seq == "" {
		return fmt.Errorf("workplace seq is required")
	}

	tx, err := c.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	rollback := func(err error) error {
		_ = tx.Rollback()
		return err
	}

	for _, table := range []string{"workplace_monthly_status", "workplace_detail_info", "workplace_base_info"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE seq = $1`, seq); err != nil {
			return rollback(fmt.Errorf("delete from %s: %w", table, err))
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}
	return nil
}

// FindByName returns the remote rows matching a workplace name, joined with
// their detail and monthly figures. registrationNo narrows the match when
// present.
func (c *Client) FindByName(ctx context.Context, name, registrationNo string) ([]workplace.Record, error) {
	if c == nil || c.sqlDB == nil {
		return nil, fmt.Errorf("authority is not configured")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("workplace name is required")
	}

	query := `
	SELECT
		b.seq, b.wkpl_nm, b.bzowr_rgst_no, b.data_crt_ym, b.wkpl_road_nm_dtl_addr,
		d.jnngp_cnt, d.crrmm_ntc_amt, d.avg_monthly_salary,
		m.nw_acqzr_cnt, m.lss_jnngp_cnt
	FROM workplace_base_info b
	LEFT JOIN workplace_detail_info d ON b.seq = d.seq
	LEFT JOIN workplace_monthly_status m ON b.seq = m.seq
	WHERE b.wkpl_nm = $1`
	args := []any{name}
	if strings.TrimSpace(registrationNo) != "" {
		query += ` AND b.bzowr_rgst_no = $2`
		args = append(args, strings.TrimSpace(registrationNo))
	}
	query += `
	ORDER BY b.seq ASC`

	rows, err := c.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query workplaces: %w", err)
	}
	defer rows.Close()

	var records []workplace.Record
	for rows.Next() {
		record, err := scanRemoteRecord(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan workplace row: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workplaces: %w", err)
	}
	return records, nil
}

type scanner func(dest ...any) error

func scanRemoteRecord(scan scanner) (workplace.Record, error) {
	var (
		record         workplace.Record
		registrationNo sql.NullString
		dataPeriod     sql.NullString
		address        sql.NullString
		subscribers    sql.NullInt64
		noticeAmount   sql.NullInt64
		avgSalary      sql.NullFloat64
		newHires       sql.NullInt64
		leavers        sql.NullInt64
	)
	err := scan(
		&record.Seq, &record.Name, &registrationNo, &dataPeriod, &address,
		&subscribers, &noticeAmount, &avgSalary,
		&newHires, &leavers,
	)
	if err != nil {
		return workplace.Record{}, err
	}

	record.RegistrationNo = registrationNo.String
	record.DataPeriod = dataPeriod.String
	record.Address = address.String
	record.SubscriberCount = int64Ptr(subscribers)
	record.MonthlyNoticeAmount = int64Ptr(noticeAmount)
	record.AvgMonthlySalary = float64Ptr(avgSalary)
	record.NewHireCount = int64Ptr(newHires)
	record.LeaverCount = int64Ptr(leavers)
	record.SyncStatus = workplace.SyncStatusSynced
	return record, nil
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: strings.TrimSpace(value) != ""}
}

func nullInt64(value *int64) sql.NullInt64 {
	if value == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *value, Valid: true}
}

func nullFloat64(value *float64) sql.NullFloat64 {
	if value == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *value, Valid: true}
}

func int64Ptr(value sql.NullInt64) *int64 {
	if !value.Valid {
		return nil
	}
	parsed := value.Int64
	return &parsed
}

func float64Ptr(value sql.NullFloat64) *float64 {
	if !value.Valid {
		return nil
	}
	parsed := value.Float64
	return &parsed
}
