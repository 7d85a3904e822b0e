package db

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"wayfarer/internal/types"
)

// AccountRepository provides data access for the accounts table.
//
// Key invariants enforced here, not just at creation:
//   - provider_customer_id is set at most once (AttachProviderCustomerID is a
//     compare-and-set on NULL).
//   - ApplySubscriptionSnapshot is a single guarded UPDATE: stale events
//     (event timestamp not newer than last_event_at) are silently discarded,
//     so out-of-order webhook deliveries cannot clobber newer state.
//   - tier = 'free' always stores NULL subscription_status and period_end.
type AccountRepository struct {
	db     DBTX
	logger *slog.Logger
}

// NewAccountRepository creates a new AccountRepository backed by the given
// database connection (pool or transaction).
func NewAccountRepository(db DBTX, logger *slog.Logger) *AccountRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccountRepository{db: db, logger: logger}
}

// accountColumns is the standard column set for account queries. Used
// consistently across all query methods to avoid column drift.
const accountColumns = `id, email, name, credential_hash, tier, subscription_status,
	period_end, provider_customer_id, last_event_at, created_at, updated_at`

// scanAccount scans a single account row. Columns must match accountColumns.
func scanAccount(row pgx.Row) (*types.Account, error) {
	var a types.Account
	var (
		name       *string
		status     *string
		customerID *string
	)
	err := row.Scan(
		&a.ID,
		&a.Email,
		&name,
		&a.CredentialHash,
		&a.Tier,
		&status,
		&a.PeriodEnd,
		&customerID,
		&a.LastEventAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if name != nil {
		a.Name = *name
	}
	if status != nil {
		a.Status = types.SubscriptionStatus(*status)
	}
	if customerID != nil {
		a.ProviderCustomerID = *customerID
	}
	return &a, nil
}

// Create inserts a new account with tier=free and no subscription snapshot.
// Returns conflict_email_exists if the email is already registered.
func (r *AccountRepository) Create(ctx context.Context, email, credentialHash, name string) (*types.Account, error) {
	id := uuid.NewString()
	row := r.db.QueryRow(ctx,
		`INSERT INTO accounts (id, email, name, credential_hash, tier)
		 VALUES ($1, $2, NULLIF($3, ''), $4, $5)
		 RETURNING `+accountColumns,
		id, email, name, credentialHash, types.PlanFree,
	)

	a, err := scanAccount(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, types.NewAppError(types.ErrCodeConflictEmail, "email is already registered", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to create account", err)
	}
	return a, nil
}

// GetByID retrieves an account by its ID. Returns not_found_account if absent.
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*types.Account, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`,
		id,
	)

	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundAccount, "account not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve account", err)
	}
	return a, nil
}

// GetByEmail retrieves an account by email. Returns not_found_account if
// absent; the auth layer maps that to an invalid-credentials response so the
// API does not reveal which emails exist.
func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*types.Account, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE email = $1`,
		email,
	)

	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundAccount, "account not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve account by email", err)
	}
	return a, nil
}

// GetByProviderCustomerID retrieves the account owning the given provider
// customer. Returns not_found_account when no local account matches (e.g.,
// a webhook referencing stale test data).
func (r *AccountRepository) GetByProviderCustomerID(ctx context.Context, customerID string) (*types.Account, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE provider_customer_id = $1`,
		customerID,
	)

	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundAccount, "no account for provider customer", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve account by customer id", err)
	}
	return a, nil
}

// AttachProviderCustomerID sets the provider customer ID only if it is
// currently NULL (compare-and-set). If the account already carries the same
// value the call is an idempotent no-op. A different stored value returns
// conflict_customer_id_mismatch; the checkout initiator resolves that by
// re-reading the authoritative id rather than failing the user request.
func (r *AccountRepository) AttachProviderCustomerID(ctx context.Context, accountID, customerID string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE accounts
		 SET provider_customer_id = $2,
		     updated_at = NOW()
		 WHERE id = $1
		   AND provider_customer_id IS NULL`,
		accountID, customerID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to attach provider customer id", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// CAS lost or account missing: read back to distinguish.
	var existing *string
	err = r.db.QueryRow(ctx,
		`SELECT provider_customer_id FROM accounts WHERE id = $1`,
		accountID,
	).Scan(&existing)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.NewAppError(types.ErrCodeNotFoundAccount, "account not found", nil)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to read provider customer id", err)
	}

	if existing != nil && *existing == customerID {
		return nil
	}

	details := map[string]any{}
	if existing != nil {
		details["existing_customer_id"] = *existing
	}
	return types.NewAppErrorWithDetails(
		types.ErrCodeConflictCustomer,
		"provider customer id already set to a different value",
		nil,
		details,
	)
}

// ApplySubscriptionSnapshot atomically applies a reconciled snapshot to the
// account row. This is the only mutation path the webhook reconciler uses.
//
// The update is last-write-wins ordered by the event's own timestamp: a
// snapshot whose EventTime is not newer than the stored last_event_at is
// discarded (returns applied=false, no error), so a delayed past_due event
// cannot clobber a newer active one. A missing account is likewise a no-op,
// not an error.
//
// A nil snapshot Tier leaves the stored tier unchanged. When the tier is
// free, status and period_end are forced to NULL regardless of input,
// preserving the tier/status invariant at the point of mutation.
//
// A tier-preserving snapshot never touches a free account: a free account has
// no subscription to refresh, and letting such an event advance last_event_at
// would make a checkout completion delivered afterwards with an older
// timestamp look stale and be discarded, losing the upgrade. Only a snapshot
// that carries a tier (checkout completion) can move an account off free.
func (r *AccountRepository) ApplySubscriptionSnapshot(ctx context.Context, accountID string, snap types.SubscriptionSnapshot) (bool, error) {
	var tier *string
	if snap.Tier != nil {
		s := string(*snap.Tier)
		tier = &s
	}

	var status *string
	if snap.Status != types.SubStatusNone {
		s := string(snap.Status)
		status = &s
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE accounts
		 SET tier = COALESCE($2, tier),
		     subscription_status = CASE WHEN COALESCE($2, tier) = 'free' THEN NULL ELSE $3 END,
		     period_end = CASE WHEN COALESCE($2, tier) = 'free' THEN NULL ELSE $4 END,
		     last_event_at = $5,
		     updated_at = NOW()
		 WHERE id = $1
		   AND (last_event_at IS NULL OR last_event_at < $5)
		   AND NOT (tier = 'free' AND $2 IS NULL)`,
		accountID, tier, status, snap.PeriodEnd, snap.EventTime,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to apply subscription snapshot", err)
	}

	if tag.RowsAffected() == 0 {
		r.logger.InfoContext(ctx, "subscription snapshot discarded (stale, unknown account, or tier-preserving on free)",
			slog.String("account_id", accountID),
			slog.Time("event_time", snap.EventTime),
		)
		return false, nil
	}
	return true, nil
}

// Downgrade resets an account to the free tier outside the webhook path
// (explicit self-service downgrade). It stamps last_event_at with the given
// time so delayed webhooks for the old subscription cannot resurrect it.
func (r *AccountRepository) Downgrade(ctx context.Context, accountID string, at time.Time) error {
	free := types.PlanFree
	applied, err := r.ApplySubscriptionSnapshot(ctx, accountID, types.SubscriptionSnapshot{
		Tier:      &free,
		EventTime: at,
	})
	if err != nil {
		return err
	}
	if !applied {
		return types.NewAppError(types.ErrCodeNotFoundAccount, "account not found or already downgraded", nil)
	}
	return nil
}
