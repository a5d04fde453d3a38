// Package db persists invoices and confirmed payment transactions in
// PostgreSQL. Invoice settlement is a single conditional update so two
// racing mark-paid calls cannot both win.
package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/payce-finance/payce/service/metrics"
)

var (
	ErrInvoiceNotFound     = errors.New("invoice not found")
	ErrInvoiceAlreadyPaid  = errors.New("invoice already paid")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrDuplicateID         = errors.New("transaction id already exists")
)

// Invoice statuses. Paid is terminal.
const (
	InvoiceStatusPending = "pending"
	InvoiceStatusPaid    = "paid"
)

// Store provides database operations for the service.
type Store struct {
	pool    *pgxpool.Pool
	metrics *metrics.Metrics
}

// NewStore creates a new Store with the given database connection pool.
// If m is nil, no metrics are recorded.
func NewStore(pool *pgxpool.Pool, m *metrics.Metrics) *Store {
	return &Store{pool: pool, metrics: m}
}

// Invoice is a payment request awaiting settlement. Amount is a base-unit
// integer string; AmountDisplay is the human-unit figure it was created from.
type Invoice struct {
	TransactionID string
	Status        string
	PayerAddress  string
	PayeeAddress  string
	Amount        string
	AmountDisplay string
	Currency      string
	Network       string
	Reason        *string
	DueDate       *time.Time
	BusinessEmail *string
	ClientEmail   *string
	ContentData   map[string]any
	PaymentURL    *string
	PaidAt        *time.Time
	ExplorerURL   *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CreateInvoiceParams contains the parameters for creating an invoice.
type CreateInvoiceParams struct {
	TransactionID string
	PayerAddress  string
	PayeeAddress  string
	Amount        string
	AmountDisplay string
	Currency      string
	Network       string
	Reason        *string
	DueDate       *time.Time
	BusinessEmail *string
	ClientEmail   *string
	ContentData   map[string]any
	PaymentURL    *string
}

// Transaction is a completed payment. The record is written only after
// on-chain confirmation, so existence implies completion.
type Transaction struct {
	TransactionID string
	Sender        string
	Recipient     string
	Amount        string
	AmountDisplay string
	Currency      string
	Network       string
	Reason        *string
	Signature     string
	ExplorerURL   *string
	CreatedAt     time.Time
}

// CreateTransactionParams contains the parameters for recording a
// confirmed transaction.
type CreateTransactionParams struct {
	TransactionID string
	Sender        string
	Recipient     string
	Amount        string
	AmountDisplay string
	Currency      string
	Network       string
	Reason        *string
	Signature     string
	ExplorerURL   *string
}

const invoiceColumns = `transaction_id, status, payer_address, payee_address,
	amount, amount_display, currency, network, reason, due_date,
	business_email, client_email, content_data, payment_url,
	paid_at, explorer_url, created_at, updated_at`

// CreateInvoice inserts a new invoice in pending state.
func (s *Store) CreateInvoice(ctx context.Context, params CreateInvoiceParams) (*Invoice, error) {
	start := time.Now()
	row := s.pool.QueryRow(ctx, `
INSERT INTO invoices (
	transaction_id, status, payer_address, payee_address,
	amount, amount_display, currency, network, reason, due_date,
	business_email, client_email, content_data, payment_url
)
VALUES ($1, 'pending', $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
RETURNING `+invoiceColumns,
		params.TransactionID, params.PayerAddress, params.PayeeAddress,
		params.Amount, params.AmountDisplay, params.Currency, params.Network,
		params.Reason, params.DueDate, params.BusinessEmail, params.ClientEmail,
		params.ContentData, params.PaymentURL,
	)
	inv, err := scanInvoice(row)
	s.record("insert", "invoices", start, err)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateID
		}
		return nil, fmt.Errorf("create invoice: %w", err)
	}
	return inv, nil
}

// GetInvoice fetches an invoice by its transaction id.
func (s *Store) GetInvoice(ctx context.Context, transactionID string) (*Invoice, error) {
	start := time.Now()
	row := s.pool.QueryRow(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE transaction_id = $1`,
		transactionID,
	)
	inv, err := scanInvoice(row)
	s.record("select", "invoices", start, err)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	return inv, nil
}

// ListInvoicesParams filters and paginates invoice listings. Address
// matches either side of the invoice.
type ListInvoicesParams struct {
	Address string
	Status  string
	Limit   int32
	Offset  int32
}

// ListInvoices returns invoices newest first.
func (s *Store) ListInvoices(ctx context.Context, params ListInvoicesParams) ([]*Invoice, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = 50
	}

	start := time.Now()
	rows, err := s.pool.Query(ctx, `
SELECT `+invoiceColumns+`
FROM invoices
WHERE ($1 = '' OR payer_address = $1 OR payee_address = $1)
  AND ($2 = '' OR status = $2)
ORDER BY created_at DESC
LIMIT $3 OFFSET $4`,
		params.Address, params.Status, limit, params.Offset,
	)
	if err != nil {
		s.record("select", "invoices", start, err)
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	defer rows.Close()

	var invoices []*Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			s.record("select", "invoices", start, err)
			return nil, fmt.Errorf("scan invoice: %w", err)
		}
		invoices = append(invoices, inv)
	}
	s.record("select", "invoices", start, rows.Err())
	return invoices, rows.Err()
}

// MarkInvoicePaid transitions a pending invoice to paid, stamping the
// settlement time and explorer link. The update is conditional on the
// current status, so a second call for the same invoice returns
// ErrInvoiceAlreadyPaid instead of overwriting settlement evidence.
func (s *Store) MarkInvoicePaid(ctx context.Context, transactionID string, paidAt time.Time, explorerURL string) (*Invoice, error) {
	start := time.Now()
	row := s.pool.QueryRow(ctx, `
UPDATE invoices
SET status = 'paid', paid_at = $2, explorer_url = $3, updated_at = now()
WHERE transaction_id = $1 AND status = 'pending'
RETURNING `+invoiceColumns,
		transactionID, paidAt, explorerURL,
	)
	inv, err := scanInvoice(row)
	s.record("update", "invoices", start, err)
	if err == nil {
		return inv, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("mark invoice paid: %w", err)
	}

	// Nothing matched: either the invoice is unknown or it is no
	// longer pending.
	if _, getErr := s.GetInvoice(ctx, transactionID); getErr != nil {
		return nil, getErr
	}
	return nil, ErrInvoiceAlreadyPaid
}

const transactionColumns = `transaction_id, sender, recipient, amount,
	amount_display, currency, network, reason, signature, explorer_url, created_at`

// CreateTransaction records a confirmed payment.
func (s *Store) CreateTransaction(ctx context.Context, params CreateTransactionParams) (*Transaction, error) {
	start := time.Now()
	row := s.pool.QueryRow(ctx, `
INSERT INTO transactions (
	transaction_id, sender, recipient, amount, amount_display,
	currency, network, reason, signature, explorer_url
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING `+transactionColumns,
		params.TransactionID, params.Sender, params.Recipient,
		params.Amount, params.AmountDisplay, params.Currency, params.Network,
		params.Reason, params.Signature, params.ExplorerURL,
	)
	txn, err := scanTransaction(row)
	s.record("insert", "transactions", start, err)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateID
		}
		return nil, fmt.Errorf("create transaction: %w", err)
	}
	return txn, nil
}

// GetTransaction fetches a transaction by its id.
func (s *Store) GetTransaction(ctx context.Context, transactionID string) (*Transaction, error) {
	start := time.Now()
	row := s.pool.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE transaction_id = $1`,
		transactionID,
	)
	txn, err := scanTransaction(row)
	s.record("select", "transactions", start, err)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return txn, nil
}

// ListTransactionsParams filters and paginates transaction listings.
// Address matches either sender or recipient.
type ListTransactionsParams struct {
	Address string
	Network string
	// Direction narrows address matches: "in" (recipient only),
	// "out" (sender only), or empty for both sides.
	Direction string
	StartTime *time.Time
	EndTime   *time.Time
	Limit     int32
	Offset    int32
}

// ListTransactions returns transactions newest first.
func (s *Store) ListTransactions(ctx context.Context, params ListTransactionsParams) ([]*Transaction, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = 50
	}

	start := time.Now()
	rows, err := s.pool.Query(ctx, `
SELECT `+transactionColumns+`
FROM transactions
WHERE ($1 = '' OR CASE $3
		WHEN 'in' THEN recipient = $1
		WHEN 'out' THEN sender = $1
		ELSE sender = $1 OR recipient = $1
	END)
  AND ($2 = '' OR network = $2)
  AND ($4::timestamptz IS NULL OR created_at >= $4)
  AND ($5::timestamptz IS NULL OR created_at <= $5)
ORDER BY created_at DESC
LIMIT $6 OFFSET $7`,
		params.Address, params.Network, params.Direction,
		params.StartTime, params.EndTime,
		limit, params.Offset,
	)
	if err != nil {
		s.record("select", "transactions", start, err)
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txns []*Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			s.record("select", "transactions", start, err)
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txns = append(txns, txn)
	}
	s.record("select", "transactions", start, rows.Err())
	return txns, rows.Err()
}

// DashboardStats aggregates platform-wide activity.
type DashboardStats struct {
	TotalInvoices     int64
	PendingInvoices   int64
	PaidInvoices      int64
	TotalTransactions int64
}

// GetDashboardStats computes the dashboard counters.
func (s *Store) GetDashboardStats(ctx context.Context) (*DashboardStats, error) {
	start := time.Now()
	var stats DashboardStats
	err := s.pool.QueryRow(ctx, `
SELECT
	(SELECT count(*) FROM invoices),
	(SELECT count(*) FROM invoices WHERE status = 'pending'),
	(SELECT count(*) FROM invoices WHERE status = 'paid'),
	(SELECT count(*) FROM transactions)
`).Scan(&stats.TotalInvoices, &stats.PendingInvoices, &stats.PaidInvoices, &stats.TotalTransactions)
	s.record("select", "dashboard", start, err)
	if err != nil {
		return nil, fmt.Errorf("dashboard stats: %w", err)
	}
	return &stats, nil
}

// InvoiceStats aggregates invoice state for one address. Totals are
// base-unit sums returned as decimal strings; overdue means pending
// with a due date in the past.
type InvoiceStats struct {
	Address      string
	Pending      int64
	Overdue      int64
	Paid         int64
	PendingTotal string
	PaidTotal    string
}

// GetInvoiceStats computes invoice counters for an address on either
// side of its invoices.
func (s *Store) GetInvoiceStats(ctx context.Context, address string) (*InvoiceStats, error) {
	start := time.Now()
	stats := InvoiceStats{Address: address}
	err := s.pool.QueryRow(ctx, `
SELECT
	count(*) FILTER (WHERE status = 'pending'),
	count(*) FILTER (WHERE status = 'pending' AND due_date IS NOT NULL AND due_date < now()),
	count(*) FILTER (WHERE status = 'paid'),
	COALESCE(sum(amount::numeric) FILTER (WHERE status = 'pending'), 0)::text,
	COALESCE(sum(amount::numeric) FILTER (WHERE status = 'paid'), 0)::text
FROM invoices
WHERE payer_address = $1 OR payee_address = $1
`, address).Scan(&stats.Pending, &stats.Overdue, &stats.Paid, &stats.PendingTotal, &stats.PaidTotal)
	s.record("select", "invoice_stats", start, err)
	if err != nil {
		return nil, fmt.Errorf("invoice stats: %w", err)
	}
	return &stats, nil
}

// AccountStats aggregates one address's activity across invoices and
// transactions. Totals are base-unit sums returned as decimal strings;
// NetFlow is inflow minus outflow.
type AccountStats struct {
	Address          string
	InvoicesIssued   int64
	InvoicesReceived int64
	PaymentsSent     int64
	PaymentsReceived int64
	InflowTotal      string
	OutflowTotal     string
	NetFlow          string
}

// GetAccountStats computes per-address counters and flow totals.
func (s *Store) GetAccountStats(ctx context.Context, address string) (*AccountStats, error) {
	start := time.Now()
	stats := AccountStats{Address: address}
	err := s.pool.QueryRow(ctx, `
WITH flows AS (
	SELECT
		COALESCE(sum(amount::numeric) FILTER (WHERE recipient = $1), 0) AS inflow,
		COALESCE(sum(amount::numeric) FILTER (WHERE sender = $1), 0) AS outflow
	FROM transactions
	WHERE sender = $1 OR recipient = $1
)
SELECT
	(SELECT count(*) FROM invoices WHERE payee_address = $1),
	(SELECT count(*) FROM invoices WHERE payer_address = $1),
	(SELECT count(*) FROM transactions WHERE sender = $1),
	(SELECT count(*) FROM transactions WHERE recipient = $1),
	flows.inflow::text,
	flows.outflow::text,
	(flows.inflow - flows.outflow)::text
FROM flows
`, address).Scan(
		&stats.InvoicesIssued, &stats.InvoicesReceived,
		&stats.PaymentsSent, &stats.PaymentsReceived,
		&stats.InflowTotal, &stats.OutflowTotal, &stats.NetFlow,
	)
	s.record("select", "account_stats", start, err)
	if err != nil {
		return nil, fmt.Errorf("account stats: %w", err)
	}
	return &stats, nil
}

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	err := row.Scan(
		&inv.TransactionID, &inv.Status, &inv.PayerAddress, &inv.PayeeAddress,
		&inv.Amount, &inv.AmountDisplay, &inv.Currency, &inv.Network,
		&inv.Reason, &inv.DueDate, &inv.BusinessEmail, &inv.ClientEmail,
		&inv.ContentData, &inv.PaymentURL, &inv.PaidAt, &inv.ExplorerURL,
		&inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func scanTransaction(row pgx.Row) (*Transaction, error) {
	var txn Transaction
	err := row.Scan(
		&txn.TransactionID, &txn.Sender, &txn.Recipient, &txn.Amount,
		&txn.AmountDisplay, &txn.Currency, &txn.Network, &txn.Reason,
		&txn.Signature, &txn.ExplorerURL, &txn.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

func isUniqueViolation(err error) bool {
	var pgErr interface{ SQLState() string }
	return errors.As(err, &pgErr) && pgErr.SQLState() == "23505"
}

func (s *Store) record(operation, table string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordDBQuery(operation, table, time.Since(start).Seconds(), err)
}
