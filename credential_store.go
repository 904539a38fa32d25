package talyn

import (
	"context"
	"database/sql"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

const credentialTokenKey = "bearer_token"

type credential struct {
	bun.BaseModel `bun:"table:credentials,alias:crd"`

	Key       string     `bun:"key,pk" json:"key"`
	Value     string     `bun:"value,notnull" json:"value"`
	UpdatedAt *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// CredentialStore persists the bearer token in a local SQLite file so the
// session survives process restarts. It holds a single key.
type CredentialStore struct {
	db *bun.DB
}

var _ TokenStore = (*CredentialStore)(nil)

// NewCredentialStore opens, creating if needed, the credential database at path.
func NewCredentialStore(path string) (*CredentialStore, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, path)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryOperation, "unable to open credential store")
	}

	store := &CredentialStore{db: bun.NewDB(sqldb, sqlitedialect.New())}
	if err := store.init(context.Background()); err != nil {
		return nil, err
	}

	return store, nil
}

func (s *CredentialStore) init(ctx context.Context) error {
	if _, err := s.db.NewCreateTable().
		Model((*credential)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return errors.Wrap(err, errors.CategoryOperation, "unable to initialize credential store")
	}
	return nil
}

func (s *CredentialStore) Get() (string, bool) {
	cred := new(credential)
	err := s.db.NewSelect().
		Model(cred).
		Where("key = ?", credentialTokenKey).
		Scan(context.Background())
	if err != nil {
		return "", false
	}
	return cred.Value, cred.Value != ""
}

func (s *CredentialStore) Set(token string) error {
	cred := &credential{Key: credentialTokenKey, Value: token}
	_, err := s.db.NewInsert().
		Model(cred).
		On("CONFLICT (key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Set("updated_at = CURRENT_TIMESTAMP").
		Exec(context.Background())
	if err != nil {
		return errors.Wrap(err, errors.CategoryOperation, "unable to persist bearer token")
	}
	return nil
}

func (s *CredentialStore) Clear() error {
	_, err := s.db.NewDelete().
		Model((*credential)(nil)).
		Where("key = ?", credentialTokenKey).
		Exec(context.Background())
	if err != nil {
		return errors.Wrap(err, errors.CategoryOperation, "unable to clear bearer token")
	}
	return nil
}

// Close releases the underlying database handle.
func (s *CredentialStore) Close() error {
	return s.db.Close()
}
