/*
Package sqlite provides the SQLite-backed implementation of the storage
contracts.

PURPOSE:
  Implements booking.TxStore and fees.ConfigStore using database/sql with
  mattn/go-sqlite3. The same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

KEY TABLES:
  bookings:         booking rows with the fee snapshot stored as JSON
  booking_guests:   named occupants per booking
  room_allocations: room/guest-count pairs for ROOM_SPECIFIC bookings
  booking_audit:    append-only trail; seq is an AUTOINCREMENT primary key,
                    so ordering never depends on timestamps
  fee_configs:      versioned rate tables; a partial unique index on
                    is_default makes the default-config install an upsert
  seasonal_rates:   month/day override windows per config

CONCURRENCY:
  The DSN sets _txlock=immediate, so WithTx opens BEGIN IMMEDIATE
  transactions: the overlap check and the write it guards hold the write
  lock together, which is the serializable guarantee the lifecycle service
  requires. WAL mode keeps readers unblocked meanwhile.

AUDIT:
  booking_audit has no UPDATE or DELETE path. Ever.

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper migration
  tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - booking/store.go:   interface contracts
  - booking/store:      in-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/booking-engine/booking"
	"github.com/warp/booking-engine/fees"
)

const dayFormat = "2006-01-02"

// Store implements booking.TxStore and fees.ConfigStore.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database at dbPath. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS bookings (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		scope TEXT NOT NULL,
		status TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		nights INTEGER NOT NULL,
		total_guests INTEGER NOT NULL,
		pet_count INTEGER NOT NULL DEFAULT 0,
		requested_by TEXT,
		lead_name TEXT,
		lead_email TEXT,
		lead_phone TEXT,
		approved_by TEXT,
		approved_at TEXT,
		rejection_reason TEXT,
		total_amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		fee_snapshot_json TEXT,
		counts_json TEXT,
		manage_token TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Hot path: the overlap query filters on status and date bounds.
	-- Dates are stored as YYYY-MM-DD, so lexicographic order is
	-- chronological order.
	CREATE INDEX IF NOT EXISTS idx_bookings_status_dates
		ON bookings(status, start_date, end_date);
	CREATE INDEX IF NOT EXISTS idx_bookings_created
		ON bookings(created_at DESC);

	CREATE TABLE IF NOT EXISTS booking_guests (
		booking_id TEXT NOT NULL REFERENCES bookings(id),
		position INTEGER NOT NULL,
		name TEXT NOT NULL,
		guest_type TEXT NOT NULL,
		PRIMARY KEY (booking_id, position)
	);

	CREATE TABLE IF NOT EXISTS room_allocations (
		booking_id TEXT NOT NULL REFERENCES bookings(id),
		position INTEGER NOT NULL,
		room_name TEXT NOT NULL,
		guest_count INTEGER NOT NULL,
		PRIMARY KEY (booking_id, position)
	);

	-- Append-only audit trail. seq is the only ordering signal.
	CREATE TABLE IF NOT EXISTS booking_audit (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		booking_id TEXT NOT NULL REFERENCES bookings(id),
		action TEXT NOT NULL,
		actor_id TEXT,
		actor_role TEXT,
		comment TEXT,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_audit_booking
		ON booking_audit(booking_id, seq);

	CREATE TABLE IF NOT EXISTS fee_configs (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 1,
		effective_from TEXT NOT NULL,
		effective_to TEXT,
		currency TEXT NOT NULL,
		nightly_rates_json TEXT NOT NULL,
		external_adult_rate TEXT NOT NULL,
		external_child_rate TEXT NOT NULL,
		monthly_subscription TEXT NOT NULL,
		whole_house_minimum TEXT,
		is_default INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	-- At most one default config row; EnsureDefaultConfig upserts on it.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_fee_configs_default
		ON fee_configs(is_default) WHERE is_default = 1;
	CREATE INDEX IF NOT EXISTS idx_fee_configs_effective
		ON fee_configs(is_active, effective_from DESC);

	CREATE TABLE IF NOT EXISTS seasonal_rates (
		id TEXT PRIMARY KEY,
		config_id TEXT NOT NULL REFERENCES fee_configs(id),
		name TEXT NOT NULL,
		enabled INTEGER NOT NULL DEFAULT 1,
		start_month INTEGER NOT NULL,
		start_day INTEGER NOT NULL,
		end_month INTEGER NOT NULL,
		end_day INTEGER NOT NULL,
		priority INTEGER NOT NULL DEFAULT 0,
		adult_rate TEXT NOT NULL,
		child_rate TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_seasonal_config
		ON seasonal_rates(config_id, enabled);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// RUNNER - Shared query surface for *sql.DB and *sql.Tx
// =============================================================================

type runner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn inside a single BEGIN IMMEDIATE transaction. The
// overlap check and the write it guards are serialized against other
// writers for the transaction's whole lifetime.
func (s *Store) WithTx(ctx context.Context, fn func(booking.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(&txStore{r: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	return tx.Commit()
}

// txStore routes booking.Store calls through the open transaction.
type txStore struct {
	r runner
}

func (t *txStore) CreateBooking(ctx context.Context, b *booking.Booking) error {
	return createBooking(ctx, t.r, b)
}
func (t *txStore) UpdateBooking(ctx context.Context, b *booking.Booking) error {
	return updateBooking(ctx, t.r, b)
}
func (t *txStore) GetBooking(ctx context.Context, id booking.BookingID) (*booking.Booking, error) {
	return getBooking(ctx, t.r, id)
}
func (t *txStore) ListBookings(ctx context.Context, f booking.Filter) ([]*booking.Booking, error) {
	return listBookings(ctx, t.r, f)
}
func (t *txStore) FindOverlapping(ctx context.Context, r booking.DateRange, exclude booking.BookingID) (*booking.Booking, error) {
	return findOverlapping(ctx, t.r, r, exclude)
}
func (t *txStore) AppendAudit(ctx context.Context, entry *booking.AuditEntry) error {
	return appendAudit(ctx, t.r, entry)
}
func (t *txStore) AuditTrail(ctx context.Context, id booking.BookingID) ([]booking.AuditEntry, error) {
	return auditTrail(ctx, t.r, id)
}

// =============================================================================
// BOOKING STORE (non-transactional surface)
// =============================================================================

func (s *Store) CreateBooking(ctx context.Context, b *booking.Booking) error {
	return createBooking(ctx, s.db, b)
}
func (s *Store) UpdateBooking(ctx context.Context, b *booking.Booking) error {
	return updateBooking(ctx, s.db, b)
}
func (s *Store) GetBooking(ctx context.Context, id booking.BookingID) (*booking.Booking, error) {
	return getBooking(ctx, s.db, id)
}
func (s *Store) ListBookings(ctx context.Context, f booking.Filter) ([]*booking.Booking, error) {
	return listBookings(ctx, s.db, f)
}
func (s *Store) FindOverlapping(ctx context.Context, r booking.DateRange, exclude booking.BookingID) (*booking.Booking, error) {
	return findOverlapping(ctx, s.db, r, exclude)
}
func (s *Store) AppendAudit(ctx context.Context, entry *booking.AuditEntry) error {
	return appendAudit(ctx, s.db, entry)
}
func (s *Store) AuditTrail(ctx context.Context, id booking.BookingID) ([]booking.AuditEntry, error) {
	return auditTrail(ctx, s.db, id)
}

// =============================================================================
// BOOKING QUERIES
// =============================================================================

const bookingColumns = `id, source, scope, status, start_date, end_date, nights,
	total_guests, pet_count, requested_by, lead_name, lead_email, lead_phone,
	approved_by, approved_at, rejection_reason, total_amount, currency,
	fee_snapshot_json, counts_json, manage_token, created_at, updated_at`

func createBooking(ctx context.Context, r runner, b *booking.Booking) error {
	snapshot, err := marshalSnapshot(b.FeeSnapshot)
	if err != nil {
		return err
	}
	counts, err := marshalCounts(b.Counts)
	if err != nil {
		return err
	}

	_, err = r.ExecContext(ctx, `
		INSERT INTO bookings (`+bookingColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		string(b.ID), string(b.Source), string(b.Scope), string(b.Status),
		b.Range.Start.String(), b.Range.End.String(), b.Nights,
		b.TotalGuests, b.PetCount,
		nullStr(string(b.RequestedBy)), nullStr(b.ExternalLeadName),
		nullStr(b.ExternalLeadEmail), nullStr(b.ExternalLeadPhone),
		nullStr(string(b.ApprovedBy)), nullTime(b.ApprovedAt),
		nullStr(b.RejectionReason),
		b.TotalAmount.String(), b.Currency,
		snapshot, counts, nullStr(b.ManageToken),
		b.CreatedAt.UTC().Format(time.RFC3339Nano),
		b.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}
	return saveOwned(ctx, r, b)
}

func updateBooking(ctx context.Context, r runner, b *booking.Booking) error {
	snapshot, err := marshalSnapshot(b.FeeSnapshot)
	if err != nil {
		return err
	}
	counts, err := marshalCounts(b.Counts)
	if err != nil {
		return err
	}

	res, err := r.ExecContext(ctx, `
		UPDATE bookings SET
			source = ?, scope = ?, status = ?,
			start_date = ?, end_date = ?, nights = ?,
			total_guests = ?, pet_count = ?,
			requested_by = ?, lead_name = ?, lead_email = ?, lead_phone = ?,
			approved_by = ?, approved_at = ?, rejection_reason = ?,
			total_amount = ?, currency = ?, fee_snapshot_json = ?,
			counts_json = ?, manage_token = ?, updated_at = ?
		WHERE id = ?`,
		string(b.Source), string(b.Scope), string(b.Status),
		b.Range.Start.String(), b.Range.End.String(), b.Nights,
		b.TotalGuests, b.PetCount,
		nullStr(string(b.RequestedBy)), nullStr(b.ExternalLeadName),
		nullStr(b.ExternalLeadEmail), nullStr(b.ExternalLeadPhone),
		nullStr(string(b.ApprovedBy)), nullTime(b.ApprovedAt),
		nullStr(b.RejectionReason),
		b.TotalAmount.String(), b.Currency, snapshot,
		counts, nullStr(b.ManageToken),
		b.UpdatedAt.UTC().Format(time.RFC3339Nano),
		string(b.ID),
	)
	if err != nil {
		return fmt.Errorf("update booking: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return booking.ErrNotFound
	}

	// Owned collections are replaced wholesale on update.
	if _, err := r.ExecContext(ctx, `DELETE FROM booking_guests WHERE booking_id = ?`, string(b.ID)); err != nil {
		return fmt.Errorf("clear guests: %w", err)
	}
	if _, err := r.ExecContext(ctx, `DELETE FROM room_allocations WHERE booking_id = ?`, string(b.ID)); err != nil {
		return fmt.Errorf("clear room allocations: %w", err)
	}
	return saveOwned(ctx, r, b)
}

func saveOwned(ctx context.Context, r runner, b *booking.Booking) error {
	for i, g := range b.Guests {
		if _, err := r.ExecContext(ctx, `
			INSERT INTO booking_guests (booking_id, position, name, guest_type)
			VALUES (?,?,?,?)`,
			string(b.ID), i, g.Name, string(g.GuestType)); err != nil {
			return fmt.Errorf("insert guest: %w", err)
		}
	}
	for i, ra := range b.RoomAllocations {
		if _, err := r.ExecContext(ctx, `
			INSERT INTO room_allocations (booking_id, position, room_name, guest_count)
			VALUES (?,?,?,?)`,
			string(b.ID), i, ra.RoomName, ra.GuestCount); err != nil {
			return fmt.Errorf("insert room allocation: %w", err)
		}
	}
	return nil
}

func getBooking(ctx context.Context, r runner, id booking.BookingID) (*booking.Booking, error) {
	bookings, err := queryBookings(ctx, r,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, string(id))
	if err != nil {
		return nil, err
	}
	if len(bookings) == 0 {
		return nil, booking.ErrNotFound
	}
	return bookings[0], nil
}

func listBookings(ctx context.Context, r runner, f booking.Filter) ([]*booking.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE 1=1`
	var args []any

	if len(f.Statuses) > 0 {
		query += ` AND status IN (`
		for i, s := range f.Statuses {
			if i > 0 {
				query += `,`
			}
			query += `?`
			args = append(args, string(s))
		}
		query += `)`
	}
	if f.From != nil {
		query += ` AND end_date > ?`
		args = append(args, f.From.String())
	}
	if f.To != nil {
		query += ` AND start_date < ?`
		args = append(args, f.To.String())
	}
	query += ` ORDER BY created_at DESC, id`

	return queryBookings(ctx, r, query, args...)
}

func findOverlapping(ctx context.Context, r runner, dr booking.DateRange, exclude booking.BookingID) (*booking.Booking, error) {
	bookings, err := queryBookings(ctx, r, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE status IN ('PENDING','APPROVED')
		  AND id != ?
		  AND start_date < ? AND ? < end_date
		ORDER BY id LIMIT 1`,
		string(exclude), dr.End.String(), dr.Start.String())
	if err != nil {
		return nil, err
	}
	if len(bookings) == 0 {
		return nil, nil
	}
	return bookings[0], nil
}

func queryBookings(ctx context.Context, r runner, query string, args ...any) ([]*booking.Booking, error) {
	rows, err := r.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query bookings: %w", err)
	}
	defer rows.Close()

	var result []*booking.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, b := range result {
		if err := loadOwned(ctx, r, b); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func scanBooking(rows *sql.Rows) (*booking.Booking, error) {
	var (
		b                                      booking.Booking
		id, source, scope, status              string
		startDate, endDate                     string
		requestedBy, leadName, leadEmail       sql.NullString
		leadPhone, approvedBy, approvedAt      sql.NullString
		rejectionReason, snapshot, manageToken sql.NullString
		countsJSON                             sql.NullString
		totalAmount, createdAt, updatedAt      string
	)

	err := rows.Scan(&id, &source, &scope, &status, &startDate, &endDate,
		&b.Nights, &b.TotalGuests, &b.PetCount,
		&requestedBy, &leadName, &leadEmail, &leadPhone,
		&approvedBy, &approvedAt, &rejectionReason,
		&totalAmount, &b.Currency, &snapshot, &countsJSON, &manageToken,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, fmt.Errorf("scan booking: %w", err)
	}

	b.ID = booking.BookingID(id)
	b.Source = booking.Source(source)
	b.Scope = booking.Scope(scope)
	b.Status = booking.Status(status)

	if b.Range.Start, err = booking.ParseDate(startDate); err != nil {
		return nil, err
	}
	if b.Range.End, err = booking.ParseDate(endDate); err != nil {
		return nil, err
	}

	b.RequestedBy = booking.UserID(requestedBy.String)
	b.ExternalLeadName = leadName.String
	b.ExternalLeadEmail = leadEmail.String
	b.ExternalLeadPhone = leadPhone.String
	b.ApprovedBy = booking.UserID(approvedBy.String)
	b.RejectionReason = rejectionReason.String
	b.ManageToken = manageToken.String

	if approvedAt.Valid {
		at, err := time.Parse(time.RFC3339Nano, approvedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse approved_at: %w", err)
		}
		b.ApprovedAt = &at
	}
	if b.TotalAmount, err = decimal.NewFromString(totalAmount); err != nil {
		return nil, fmt.Errorf("parse total_amount: %w", err)
	}
	if snapshot.Valid && snapshot.String != "" {
		var breakdown fees.Breakdown
		if err := json.Unmarshal([]byte(snapshot.String), &breakdown); err != nil {
			return nil, fmt.Errorf("parse fee snapshot: %w", err)
		}
		b.FeeSnapshot = &breakdown
	}
	if countsJSON.Valid && countsJSON.String != "" {
		if err := json.Unmarshal([]byte(countsJSON.String), &b.Counts); err != nil {
			return nil, fmt.Errorf("parse guest counts: %w", err)
		}
	}
	if b.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if b.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &b, nil
}

func loadOwned(ctx context.Context, r runner, b *booking.Booking) error {
	rows, err := r.QueryContext(ctx, `
		SELECT name, guest_type FROM booking_guests
		WHERE booking_id = ? ORDER BY position`, string(b.ID))
	if err != nil {
		return fmt.Errorf("load guests: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var g booking.Guest
		var gt string
		if err := rows.Scan(&g.Name, &gt); err != nil {
			return err
		}
		g.GuestType = fees.GuestType(gt)
		b.Guests = append(b.Guests, g)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	allocRows, err := r.QueryContext(ctx, `
		SELECT room_name, guest_count FROM room_allocations
		WHERE booking_id = ? ORDER BY position`, string(b.ID))
	if err != nil {
		return fmt.Errorf("load room allocations: %w", err)
	}
	defer allocRows.Close()
	for allocRows.Next() {
		var ra booking.RoomAllocation
		if err := allocRows.Scan(&ra.RoomName, &ra.GuestCount); err != nil {
			return err
		}
		b.RoomAllocations = append(b.RoomAllocations, ra)
	}
	return allocRows.Err()
}

// =============================================================================
// AUDIT
// =============================================================================

func appendAudit(ctx context.Context, r runner, entry *booking.AuditEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	res, err := r.ExecContext(ctx, `
		INSERT INTO booking_audit (booking_id, action, actor_id, actor_role, comment, created_at)
		VALUES (?,?,?,?,?,?)`,
		string(entry.BookingID), string(entry.Action),
		nullStr(string(entry.ActorID)), nullStr(entry.ActorRole),
		nullStr(entry.Comment),
		entry.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("append audit: %w", err)
	}
	entry.Seq, err = res.LastInsertId()
	return err
}

func auditTrail(ctx context.Context, r runner, id booking.BookingID) ([]booking.AuditEntry, error) {
	rows, err := r.QueryContext(ctx, `
		SELECT seq, action, actor_id, actor_role, comment, created_at
		FROM booking_audit WHERE booking_id = ? ORDER BY seq`, string(id))
	if err != nil {
		return nil, fmt.Errorf("load audit trail: %w", err)
	}
	defer rows.Close()

	var trail []booking.AuditEntry
	for rows.Next() {
		entry := booking.AuditEntry{BookingID: id}
		var action, createdAt string
		var actorID, actorRole, comment sql.NullString
		if err := rows.Scan(&entry.Seq, &action, &actorID, &actorRole, &comment, &createdAt); err != nil {
			return nil, err
		}
		entry.Action = booking.AuditAction(action)
		entry.ActorID = booking.UserID(actorID.String)
		entry.ActorRole = actorRole.String
		entry.Comment = comment.String
		if entry.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, err
		}
		trail = append(trail, entry)
	}
	return trail, rows.Err()
}

// =============================================================================
// FEE CONFIG STORE
// =============================================================================

const configColumns = `id, name, is_active, effective_from, effective_to, currency,
	nightly_rates_json, external_adult_rate, external_child_rate,
	monthly_subscription, whole_house_minimum, created_at`

func (s *Store) ActiveConfigs(ctx context.Context, date time.Time) ([]fees.FeeConfig, error) {
	day := date.UTC().Format(dayFormat)
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+configColumns+` FROM fee_configs
		WHERE is_active = 1
		  AND effective_from <= ?
		  AND (effective_to IS NULL OR effective_to >= ?)
		ORDER BY effective_from DESC`, day, day)
	if err != nil {
		return nil, fmt.Errorf("query fee configs: %w", err)
	}
	defer rows.Close()

	var configs []fees.FeeConfig
	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, *cfg)
	}
	return configs, rows.Err()
}

func (s *Store) SeasonalRates(ctx context.Context, configID string) ([]fees.SeasonalRate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, config_id, name, enabled, start_month, start_day,
		       end_month, end_day, priority, adult_rate, child_rate
		FROM seasonal_rates WHERE config_id = ? AND enabled = 1
		ORDER BY priority DESC, id`, configID)
	if err != nil {
		return nil, fmt.Errorf("query seasonal rates: %w", err)
	}
	defer rows.Close()

	var rates []fees.SeasonalRate
	for rows.Next() {
		var sr fees.SeasonalRate
		var adult, child string
		if err := rows.Scan(&sr.ID, &sr.ConfigID, &sr.Name, &sr.Enabled,
			&sr.StartMonth, &sr.StartDay, &sr.EndMonth, &sr.EndDay,
			&sr.Priority, &adult, &child); err != nil {
			return nil, err
		}
		if sr.AdultRate, err = decimal.NewFromString(adult); err != nil {
			return nil, fmt.Errorf("parse adult_rate: %w", err)
		}
		if sr.ChildRate, err = decimal.NewFromString(child); err != nil {
			return nil, fmt.Errorf("parse child_rate: %w", err)
		}
		rates = append(rates, sr)
	}
	return rates, rows.Err()
}

// EnsureDefaultConfig installs cfg as the single default row. The partial
// unique index on is_default makes this a conflict-do-nothing upsert, not a
// check-then-insert, so concurrent first-use cannot create duplicates.
func (s *Store) EnsureDefaultConfig(ctx context.Context, cfg fees.FeeConfig) (*fees.FeeConfig, error) {
	ratesJSON, err := marshalRates(cfg.NightlyRates)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO fee_configs (`+configColumns+`, is_default)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,1)
		ON CONFLICT DO NOTHING`,
		cfg.ID, cfg.Name, cfg.IsActive,
		cfg.EffectiveFrom.UTC().Format(dayFormat), nullDay(cfg.EffectiveTo),
		cfg.Currency, ratesJSON,
		cfg.ExternalAdultRate.String(), cfg.ExternalChildRate.String(),
		cfg.MonthlySubscription.String(), nullDec(cfg.WholeHouseMinimum),
		time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("ensure default config: %w", err)
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+configColumns+` FROM fee_configs WHERE is_default = 1`)
	installed, err := scanConfig(row)
	if err != nil {
		return nil, fmt.Errorf("load default config: %w", err)
	}
	return installed, nil
}

// SaveFeeConfig inserts or replaces a rate table.
func (s *Store) SaveFeeConfig(ctx context.Context, cfg fees.FeeConfig) error {
	ratesJSON, err := marshalRates(cfg.NightlyRates)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO fee_configs (`+configColumns+`, is_default)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,0)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			is_active = excluded.is_active,
			effective_from = excluded.effective_from,
			effective_to = excluded.effective_to,
			currency = excluded.currency,
			nightly_rates_json = excluded.nightly_rates_json,
			external_adult_rate = excluded.external_adult_rate,
			external_child_rate = excluded.external_child_rate,
			monthly_subscription = excluded.monthly_subscription,
			whole_house_minimum = excluded.whole_house_minimum`,
		cfg.ID, cfg.Name, cfg.IsActive,
		cfg.EffectiveFrom.UTC().Format(dayFormat), nullDay(cfg.EffectiveTo),
		cfg.Currency, ratesJSON,
		cfg.ExternalAdultRate.String(), cfg.ExternalChildRate.String(),
		cfg.MonthlySubscription.String(), nullDec(cfg.WholeHouseMinimum),
		time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save fee config: %w", err)
	}
	return nil
}

// SaveSeasonalRate inserts or replaces a seasonal window.
func (s *Store) SaveSeasonalRate(ctx context.Context, sr fees.SeasonalRate) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO seasonal_rates (id, config_id, name, enabled,
			start_month, start_day, end_month, end_day, priority,
			adult_rate, child_rate)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			enabled = excluded.enabled,
			start_month = excluded.start_month,
			start_day = excluded.start_day,
			end_month = excluded.end_month,
			end_day = excluded.end_day,
			priority = excluded.priority,
			adult_rate = excluded.adult_rate,
			child_rate = excluded.child_rate`,
		sr.ID, sr.ConfigID, sr.Name, sr.Enabled,
		sr.StartMonth, sr.StartDay, sr.EndMonth, sr.EndDay, sr.Priority,
		sr.AdultRate.String(), sr.ChildRate.String())
	if err != nil {
		return fmt.Errorf("save seasonal rate: %w", err)
	}
	return nil
}

// =============================================================================
// SCAN HELPERS
// =============================================================================

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConfig(row rowScanner) (*fees.FeeConfig, error) {
	var (
		cfg                      fees.FeeConfig
		effectiveFrom, createdAt string
		effectiveTo              sql.NullString
		ratesJSON                string
		adult, child, monthly    string
		minimum                  sql.NullString
	)
	err := row.Scan(&cfg.ID, &cfg.Name, &cfg.IsActive, &effectiveFrom,
		&effectiveTo, &cfg.Currency, &ratesJSON, &adult, &child,
		&monthly, &minimum, &createdAt)
	if err != nil {
		return nil, err
	}

	if cfg.EffectiveFrom, err = time.Parse(dayFormat, effectiveFrom); err != nil {
		return nil, fmt.Errorf("parse effective_from: %w", err)
	}
	if effectiveTo.Valid {
		to, err := time.Parse(dayFormat, effectiveTo.String)
		if err != nil {
			return nil, fmt.Errorf("parse effective_to: %w", err)
		}
		cfg.EffectiveTo = &to
	}

	var rawRates map[string]string
	if err := json.Unmarshal([]byte(ratesJSON), &rawRates); err != nil {
		return nil, fmt.Errorf("parse nightly rates: %w", err)
	}
	cfg.NightlyRates = make(map[fees.GuestType]decimal.Decimal, len(rawRates))
	for k, v := range rawRates {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return nil, fmt.Errorf("parse nightly rate %q: %w", k, err)
		}
		cfg.NightlyRates[fees.GuestType(k)] = d
	}

	if cfg.ExternalAdultRate, err = decimal.NewFromString(adult); err != nil {
		return nil, fmt.Errorf("parse external_adult_rate: %w", err)
	}
	if cfg.ExternalChildRate, err = decimal.NewFromString(child); err != nil {
		return nil, fmt.Errorf("parse external_child_rate: %w", err)
	}
	if cfg.MonthlySubscription, err = decimal.NewFromString(monthly); err != nil {
		return nil, fmt.Errorf("parse monthly_subscription: %w", err)
	}
	if minimum.Valid {
		min, err := decimal.NewFromString(minimum.String)
		if err != nil {
			return nil, fmt.Errorf("parse whole_house_minimum: %w", err)
		}
		cfg.WholeHouseMinimum = &min
	}
	if cfg.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	return &cfg, nil
}

func marshalSnapshot(b *fees.Breakdown) (any, error) {
	if b == nil {
		return nil, nil
	}
	raw, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("marshal fee snapshot: %w", err)
	}
	return string(raw), nil
}

func marshalCounts(c fees.GuestCounts) (any, error) {
	if len(c) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal guest counts: %w", err)
	}
	return string(raw), nil
}

func marshalRates(rates map[fees.GuestType]decimal.Decimal) (string, error) {
	raw := make(map[string]string, len(rates))
	for k, v := range rates {
		raw[string(k)] = v.String()
	}
	out, err := json.Marshal(raw)
	if err != nil {
		return "", fmt.Errorf("marshal nightly rates: %w", err)
	}
	return string(out), nil
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func nullDay(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(dayFormat)
}

func nullDec(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}
