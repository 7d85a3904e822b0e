package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/mock"

	"wayfarer/internal/types"
)

// --- Mock DBTX ---

type mockDBTX struct {
	mock.Mock
}

func (m *mockDBTX) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgconn.CommandTag), args.Error(1)
}

func (m *mockDBTX) Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error) {
	args := m.Called(ctx, sql, arguments)
	if r := args.Get(0); r != nil {
		return r.(pgx.Rows), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockDBTX) QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgx.Row)
}

// --- Mock Row ---

type mockRow struct {
	scanErr error
	scanFn  func(dest ...any) error
}

func (r *mockRow) Scan(dest ...any) error {
	if r.scanFn != nil {
		return r.scanFn(dest...)
	}
	return r.scanErr
}

// scanAccountRow builds a mockRow scan function producing the given account
// in accountColumns order.
func scanAccountRow(a types.Account) func(dest ...any) error {
	return func(dest ...any) error {
		*dest[0].(*string) = a.ID
		*dest[1].(*string) = a.Email
		if a.Name != "" {
			name := a.Name
			*dest[2].(**string) = &name
		}
		*dest[3].(*string) = a.CredentialHash
		*dest[4].(*types.PlanTier) = a.Tier
		if a.Status != types.SubStatusNone {
			s := string(a.Status)
			*dest[5].(**string) = &s
		}
		*dest[6].(**time.Time) = a.PeriodEnd
		if a.ProviderCustomerID != "" {
			cid := a.ProviderCustomerID
			*dest[7].(**string) = &cid
		}
		*dest[8].(**time.Time) = a.LastEventAt
		*dest[9].(*time.Time) = a.CreatedAt
		*dest[10].(*time.Time) = a.UpdatedAt
		return nil
	}
}

// --- Mock Rows for Query ---

type mockRows struct {
	data    [][]any
	idx     int
	closed  bool
	scanErr error
	errVal  error
}

func newMockRows(data [][]any) *mockRows {
	return &mockRows{data: data, idx: -1}
}

func (r *mockRows) Next() bool {
	if r.closed {
		return false
	}
	r.idx++
	return r.idx < len(r.data)
}

func (r *mockRows) Scan(dest ...any) error {
	if r.scanErr != nil {
		return r.scanErr
	}
	row := r.data[r.idx]
	for i, d := range dest {
		switch v := d.(type) {
		case *string:
			*v = row[i].(string)
		case *int64:
			*v = row[i].(int64)
		case *time.Time:
			*v = row[i].(time.Time)
		case *types.PlanTier:
			*v = row[i].(types.PlanTier)
		case *types.BillingPeriod:
			*v = row[i].(types.BillingPeriod)
		case *types.PaymentStatus:
			*v = row[i].(types.PaymentStatus)
		}
	}
	return nil
}

func (r *mockRows) Close()                                       { r.closed = true }
func (r *mockRows) Err() error                                   { return r.errVal }
func (r *mockRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *mockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *mockRows) RawValues() [][]byte                          { return nil }
func (r *mockRows) Values() ([]any, error)                       { return nil, nil }
func (r *mockRows) Conn() *pgx.Conn                              { return nil }
