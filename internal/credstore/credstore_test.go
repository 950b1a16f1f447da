package credstore

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSealer(t *testing.T) *Sealer {
	t.Helper()
	s, err := NewSealer("correct horse", make([]byte, saltSize))
	require.NoError(t, err)
	return s
}

// exerciseStore runs the contract every Store implementation must satisfy.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Get(ctx, KeyAuthToken)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Set(ctx, KeyAuthToken, "tok-1"))
	require.NoError(t, s.Set(ctx, KeyBiometricToken, "bio-1"))
	require.NoError(t, s.Set(ctx, KeyAuthToken, "tok-2"))

	got, err := s.Get(ctx, KeyAuthToken)
	require.NoError(t, err)
	assert.Equal(t, "tok-2", got)

	got, err = s.Get(ctx, KeyBiometricToken)
	require.NoError(t, err)
	assert.Equal(t, "bio-1", got)

	require.NoError(t, s.Delete(ctx, KeyAuthToken))
	require.NoError(t, s.Delete(ctx, KeyAuthToken))
	_, err = s.Get(ctx, KeyAuthToken)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = s.Get(ctx, Key("sessionCookie"))
	require.ErrorIs(t, err, ErrInvalidKey)
	require.ErrorIs(t, s.Set(ctx, Key(""), "x"), ErrInvalidKey)
	require.ErrorIs(t, s.Delete(ctx, Key("other")), ErrInvalidKey)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "credentials.json")
	f, err := OpenFile(path, "correct horse")
	require.NoError(t, err)
	exerciseStore(t, f)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "bio-1", "values must be sealed at rest")
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "credentials.json")

	first, err := OpenFile(path, "correct horse")
	require.NoError(t, err)
	require.NoError(t, first.Set(ctx, KeyAuthToken, "durable"))

	second, err := OpenFile(path, "correct horse")
	require.NoError(t, err)
	got, err := second.Get(ctx, KeyAuthToken)
	require.NoError(t, err)
	assert.Equal(t, "durable", got)

	wrong, err := OpenFile(path, "battery staple")
	require.NoError(t, err)
	_, err = wrong.Get(ctx, KeyAuthToken)
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestFileStoreCorruptDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	f, err := OpenFile(path, "correct horse")
	require.NoError(t, err)
	_, err = f.Get(context.Background(), KeyAuthToken)
	require.ErrorIs(t, err, ErrUnavailable)
	require.ErrorIs(t, f.Set(context.Background(), KeyAuthToken, "x"), ErrUnavailable)
}

func TestOpenFileRequiresPassphrase(t *testing.T) {
	_, err := OpenFile(filepath.Join(t.TempDir(), "c.json"), "")
	require.ErrorIs(t, err, ErrNoPassphrase)
}

func TestSealerBindsKey(t *testing.T) {
	s := testSealer(t)
	sealed, err := s.Seal(KeyAuthToken, "secret")
	require.NoError(t, err)

	plain, err := s.Open(KeyAuthToken, sealed)
	require.NoError(t, err)
	assert.Equal(t, "secret", plain)

	_, err = s.Open(KeyBiometricToken, sealed)
	require.ErrorIs(t, err, ErrSealCorrupted)

	_, err = s.Open(KeyAuthToken, "!!not-base64")
	require.ErrorIs(t, err, ErrSealCorrupted)

	again, err := s.Seal(KeyAuthToken, "secret")
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again, "nonce must differ per seal")
}

func TestSQLStoreQueries(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	sealer := testSealer(t)
	store := NewSQL(db, sealer)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta("select value from credentials where name = $1")).
		WithArgs("authToken").
		WillReturnError(sql.ErrNoRows)
	_, err = store.Get(ctx, KeyAuthToken)
	require.ErrorIs(t, err, ErrNotFound)

	mock.ExpectExec("insert into credentials").
		WithArgs("biometricToken", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, store.Set(ctx, KeyBiometricToken, "bio-9"))

	sealed, err := sealer.Seal(KeyBiometricToken, "bio-9")
	require.NoError(t, err)
	mock.ExpectQuery(regexp.QuoteMeta("select value from credentials where name = $1")).
		WithArgs("biometricToken").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(sealed))
	got, err := store.Get(ctx, KeyBiometricToken)
	require.NoError(t, err)
	assert.Equal(t, "bio-9", got)

	mock.ExpectExec(regexp.QuoteMeta("delete from credentials where name = $1")).
		WithArgs("biometricToken").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, store.Delete(ctx, KeyBiometricToken))

	mock.ExpectExec(regexp.QuoteMeta("delete from credentials where name = $1")).
		WithArgs("authToken").
		WillReturnError(errors.New("connection reset"))
	require.ErrorIs(t, store.Delete(ctx, KeyAuthToken), ErrUnavailable)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadSaltCreatesOnce(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("select value from credential_meta").WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("insert into credential_meta").WithArgs(sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("select value from credential_meta").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow("AAAAAAAAAAAAAAAAAAAAAA=="))

	salt, err := loadSalt(context.Background(), db)
	require.NoError(t, err)
	assert.Len(t, salt, saltSize)
	require.NoError(t, mock.ExpectationsWereMet())
}
