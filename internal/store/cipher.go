package store

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	sqlite3 "github.com/mutecomm/go-sqlcipher/v4"
	"golang.org/x/crypto/hkdf"

	"github.com/roach88/healthstore/internal/keystore"
)

// ErrWrongKey is wrapped by the *keystore.SecurityError returned when the
// passphrase does not match the one the database was created with.
var ErrWrongKey = errors.New("passphrase does not match database")

const (
	keySize        = 32
	cipherPageSize = 4096

	databaseKeyInfo = "healthstore/database/v1"
)

// databaseKey derives the raw SQLCipher key from passphrase. The passphrase
// is a random per-device secret, so no salt or stretching is applied.
func databaseKey(passphrase keystore.Secret) ([]byte, error) {
	key := make([]byte, keySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, passphrase, nil, []byte(databaseKeyInfo)), key); err != nil {
		return nil, fmt.Errorf("derive database key: %w", err)
	}
	return key, nil
}

// dataSourceName returns the DSN opening path with the key derived from
// passphrase. Every page of the file, including the WAL, is encrypted.
func dataSourceName(path string, passphrase keystore.Secret) (string, error) {
	key, err := databaseKey(passphrase)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=%d",
		path, hex.EncodeToString(key), cipherPageSize), nil
}

// verifyKey reads the schema, which fails on the first page when the key
// is wrong.
func verifyKey(db *sql.DB) error {
	var n int
	if err := db.QueryRow(`SELECT count(*) FROM sqlite_master`).Scan(&n); err != nil {
		return keyError("verify database key", err)
	}
	return nil
}

// keyError reports "file is not a database" as ErrWrongKey. Without the
// right key SQLCipher cannot tell a foreign file from its own.
func keyError(op string, err error) error {
	var se sqlite3.Error
	if errors.As(err, &se) && se.Code == sqlite3.ErrNotADB {
		return &keystore.SecurityError{Op: op, Err: ErrWrongKey}
	}
	return fmt.Errorf("%s: %w", op, err)
}
