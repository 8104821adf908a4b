package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS motors (
  id                TEXT PRIMARY KEY,
  model             TEXT NOT NULL,
  model_display     TEXT,
  family            TEXT,
  motor_type        TEXT,
  horsepower        DOUBLE PRECISION NOT NULL DEFAULT 0,
  base_price        DOUBLE PRECISION,
  sale_price        DOUBLE PRECISION,
  dealer_price      DOUBLE PRECISION,
  msrp              DOUBLE PRECISION,
  manual_base_price DOUBLE PRECISION,
  manual_sale_price DOUBLE PRECISION,
  in_stock          INTEGER NOT NULL DEFAULT 0 CHECK (in_stock IN (0,1))
);
CREATE TABLE IF NOT EXISTS promotions (
  id                    TEXT PRIMARY KEY,
  name                  TEXT NOT NULL,
  badge_text            TEXT,
  priority              INTEGER NOT NULL DEFAULT 0,
  is_active             INTEGER NOT NULL DEFAULT 0 CHECK (is_active IN (0,1)),
  start_date            TEXT,
  end_date              TEXT,
  discount_percentage   DOUBLE PRECISION,
  discount_fixed_amount DOUBLE PRECISION,
  warranty_extra_years  INTEGER,
  rebate_amount         DOUBLE PRECISION,
  financing_rate        DOUBLE PRECISION,
  financing_term        INTEGER,
  deferred_months       INTEGER
);
CREATE TABLE IF NOT EXISTS promotion_rules (
  id                    TEXT PRIMARY KEY,
  position              INTEGER NOT NULL,
  promotion_id          TEXT NOT NULL,
  rule_type             TEXT NOT NULL CHECK (rule_type IN ('all','model','motor_type','horsepower_range')),
  model                 TEXT,
  motor_type            TEXT,
  horsepower_min        DOUBLE PRECISION,
  horsepower_max        DOUBLE PRECISION,
  discount_percentage   DOUBLE PRECISION,
  discount_fixed_amount DOUBLE PRECISION,
  is_active             INTEGER NOT NULL DEFAULT 0 CHECK (is_active IN (0,1))
);
CREATE INDEX IF NOT EXISTS idx_rules_promotion ON promotion_rules(promotion_id);
CREATE INDEX IF NOT EXISTS idx_rules_position ON promotion_rules(position);
`

// SQLStore reads the catalog from a sqlite or postgres database.
type SQLStore struct {
	db     *sql.DB
	driver string
}

// OpenSQL opens the catalog database. driver is "sqlite" or "postgres". For
// sqlite a bare path is accepted and turned into a WAL-mode DSN.
func OpenSQL(driver, dsn string) (*SQLStore, error) {
	switch driver {
	case "sqlite":
		if !strings.HasPrefix(dsn, "file:") {
			dsn = "file:" + dsn + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
		}
	case "postgres":
	default:
		return nil, fmt.Errorf("unsupported catalog driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create catalog schema: %w", err)
	}
	return &SQLStore{db: db, driver: driver}, nil
}

func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *SQLStore) rebind(q string) string {
	if s.driver != "postgres" {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Load reads every motor, promotion and rule. Rules come back in import order.
func (s *SQLStore) Load(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	var err error
	if snap.Motors, err = s.motors(ctx); err != nil {
		return Snapshot{}, fmt.Errorf("load motors: %w", err)
	}
	if snap.Promotions, err = s.promotions(ctx); err != nil {
		return Snapshot{}, fmt.Errorf("load promotions: %w", err)
	}
	if snap.Rules, err = s.rules(ctx); err != nil {
		return Snapshot{}, fmt.Errorf("load promotion rules: %w", err)
	}
	return snap, nil
}

func (s *SQLStore) motors(ctx context.Context) ([]Motor, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, model, model_display, family, motor_type, horsepower,
  base_price, sale_price, dealer_price, msrp, manual_base_price, manual_sale_price, in_stock
FROM motors ORDER BY horsepower, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Motor
	for rows.Next() {
		var (
			m                                Motor
			display, family, motorType       sql.NullString
			base, sale, dealer, msrp, mb, ms sql.NullFloat64
			inStock                          int
		)
		if err := rows.Scan(&m.ID, &m.Model, &display, &family, &motorType, &m.Horsepower,
			&base, &sale, &dealer, &msrp, &mb, &ms, &inStock); err != nil {
			return nil, err
		}
		m.DisplayName, m.Family, m.MotorType = display.String, family.String, motorType.String
		m.BasePrice, m.SalePrice, m.DealerPrice, m.MSRP = base.Float64, sale.Float64, dealer.Float64, msrp.Float64
		m.Manual = Overrides{BasePrice: mb.Float64, SalePrice: ms.Float64}
		m.InStock = inStock == 1
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLStore) promotions(ctx context.Context) ([]Promotion, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, badge_text, priority, is_active, start_date, end_date,
  discount_percentage, discount_fixed_amount, warranty_extra_years, rebate_amount,
  financing_rate, financing_term, deferred_months
FROM promotions ORDER BY priority DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Promotion
	for rows.Next() {
		var (
			p                        Promotion
			badge, start, end        sql.NullString
			active                   int
			pct, fixed, rebate, rate sql.NullFloat64
			bonus, term, deferred    sql.NullInt64
		)
		if err := rows.Scan(&p.ID, &p.Name, &badge, &p.Priority, &active, &start, &end,
			&pct, &fixed, &bonus, &rebate, &rate, &term, &deferred); err != nil {
			return nil, err
		}
		p.BadgeText = badge.String
		p.IsActive = active == 1
		if p.StartDate, err = parseDate(start); err != nil {
			return nil, fmt.Errorf("promotion %s start_date: %w", p.ID, err)
		}
		if p.EndDate, err = parseDate(end); err != nil {
			return nil, fmt.Errorf("promotion %s end_date: %w", p.ID, err)
		}
		p.DiscountPercentage, p.DiscountFixedAmount = pct.Float64, fixed.Float64
		p.BonusWarrantyYears = int(bonus.Int64)
		p.RebateAmount, p.FinancingRate = rebate.Float64, rate.Float64
		p.FinancingTerm, p.DeferredMonths = int(term.Int64), int(deferred.Int64)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLStore) rules(ctx context.Context) ([]Rule, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, promotion_id, rule_type, model, motor_type,
  horsepower_min, horsepower_max, discount_percentage, discount_fixed_amount, is_active
FROM promotion_rules ORDER BY position, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Rule
	for rows.Next() {
		var (
			r                Rule
			model, motorType sql.NullString
			hpMin, hpMax     sql.NullFloat64
			pct, fixed       sql.NullFloat64
			active           int
		)
		if err := rows.Scan(&r.ID, &r.PromotionID, &r.RuleType, &model, &motorType,
			&hpMin, &hpMax, &pct, &fixed, &active); err != nil {
			return nil, err
		}
		r.Model, r.MotorType = model.String, motorType.String
		if hpMin.Valid {
			v := hpMin.Float64
			r.HorsepowerMin = &v
		}
		if hpMax.Valid {
			v := hpMax.Float64
			r.HorsepowerMax = &v
		}
		r.DiscountPercentage, r.DiscountFixedAmount = pct.Float64, fixed.Float64
		r.IsActive = active == 1
		out = append(out, r)
	}
	return out, rows.Err()
}

// Import upserts motors and promotions and replaces the rule table, keeping
// the snapshot's rule order.
func (s *SQLStore) Import(ctx context.Context, snap Snapshot) (err error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, m := range snap.Motors {
		_, err = tx.ExecContext(ctx, s.rebind(`INSERT INTO motors(id, model, model_display, family, motor_type, horsepower,
  base_price, sale_price, dealer_price, msrp, manual_base_price, manual_sale_price, in_stock)
VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET model = excluded.model, model_display = excluded.model_display,
  family = excluded.family, motor_type = excluded.motor_type, horsepower = excluded.horsepower,
  base_price = excluded.base_price, sale_price = excluded.sale_price, dealer_price = excluded.dealer_price,
  msrp = excluded.msrp, manual_base_price = excluded.manual_base_price,
  manual_sale_price = excluded.manual_sale_price, in_stock = excluded.in_stock`),
			m.ID, m.Model, nullIfEmpty(m.DisplayName), nullIfEmpty(m.Family), nullIfEmpty(m.MotorType), m.Horsepower,
			nullIfZero(m.BasePrice), nullIfZero(m.SalePrice), nullIfZero(m.DealerPrice), nullIfZero(m.MSRP),
			nullIfZero(m.Manual.BasePrice), nullIfZero(m.Manual.SalePrice), boolToInt(m.InStock))
		if err != nil {
			return fmt.Errorf("import motor %s: %w", m.ID, err)
		}
	}

	for _, p := range snap.Promotions {
		_, err = tx.ExecContext(ctx, s.rebind(`INSERT INTO promotions(id, name, badge_text, priority, is_active, start_date, end_date,
  discount_percentage, discount_fixed_amount, warranty_extra_years, rebate_amount,
  financing_rate, financing_term, deferred_months)
VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET name = excluded.name, badge_text = excluded.badge_text,
  priority = excluded.priority, is_active = excluded.is_active, start_date = excluded.start_date,
  end_date = excluded.end_date, discount_percentage = excluded.discount_percentage,
  discount_fixed_amount = excluded.discount_fixed_amount, warranty_extra_years = excluded.warranty_extra_years,
  rebate_amount = excluded.rebate_amount, financing_rate = excluded.financing_rate,
  financing_term = excluded.financing_term, deferred_months = excluded.deferred_months`),
			p.ID, p.Name, nullIfEmpty(p.BadgeText), p.Priority, boolToInt(p.IsActive), formatDate(p.StartDate), formatDate(p.EndDate),
			nullIfZero(p.DiscountPercentage), nullIfZero(p.DiscountFixedAmount), p.BonusWarrantyYears, nullIfZero(p.RebateAmount),
			nullIfZero(p.FinancingRate), p.FinancingTerm, p.DeferredMonths)
		if err != nil {
			return fmt.Errorf("import promotion %s: %w", p.ID, err)
		}
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM promotion_rules`); err != nil {
		return err
	}
	for i, r := range snap.Rules {
		_, err = tx.ExecContext(ctx, s.rebind(`INSERT INTO promotion_rules(id, position, promotion_id, rule_type, model, motor_type,
  horsepower_min, horsepower_max, discount_percentage, discount_fixed_amount, is_active)
VALUES(?,?,?,?,?,?,?,?,?,?,?)`),
			r.ID, i, r.PromotionID, string(r.RuleType), nullIfEmpty(r.Model), nullIfEmpty(r.MotorType),
			nullFloatPtr(r.HorsepowerMin), nullFloatPtr(r.HorsepowerMax),
			nullIfZero(r.DiscountPercentage), nullIfZero(r.DiscountFixedAmount), boolToInt(r.IsActive))
		if err != nil {
			return fmt.Errorf("import rule %s: %w", r.ID, err)
		}
	}

	return tx.Commit()
}

// Stats holds row counts per catalog table.
type Stats struct {
	Motors           int
	Promotions       int
	ActivePromotions int
	Rules            int
}

func (s *SQLStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx, `SELECT
  (SELECT COUNT(*) FROM motors),
  (SELECT COUNT(*) FROM promotions),
  (SELECT COUNT(*) FROM promotions WHERE is_active = 1),
  (SELECT COUNT(*) FROM promotion_rules)`).Scan(&st.Motors, &st.Promotions, &st.ActivePromotions, &st.Rules)
	return st, err
}

func parseDate(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, ns.String); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("unrecognised date %q", ns.String)
}

func formatDate(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullIfZero(f float64) interface{} {
	if f == 0 {
		return nil
	}
	return f
}

func nullFloatPtr(f *float64) interface{} {
	if f == nil {
		return nil
	}
	return *f
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
