package credstore

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

const fileFormatVersion = 1

type fileDoc struct {
	Version int               `json:"version"`
	Salt    string            `json:"salt"`
	Entries map[string]string `json:"entries"`
}

// File keeps sealed secrets in a single JSON document. Writes replace the
// document atomically; the file is readable only by its owner.
type File struct {
	path       string
	passphrase string

	mu       sync.Mutex
	sealer   *Sealer
	sealSalt string
}

var _ Store = (*File)(nil)

// OpenFile prepares a file store at path. The file is created on first write.
func OpenFile(path, passphrase string) (*File, error) {
	if path == "" {
		return nil, errors.New("credstore: file path is required")
	}
	if passphrase == "" {
		return nil, ErrNoPassphrase
	}
	return &File{path: path, passphrase: passphrase}, nil
}

// Path returns the backing file location.
func (f *File) Path() string { return f.path }

func (f *File) Get(ctx context.Context, key Key) (string, error) {
	if err := checkKey(key); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.load()
	if err != nil {
		return "", unavailable("get", key, err)
	}
	sealed, ok := doc.Entries[string(key)]
	if !ok {
		return "", ErrNotFound
	}
	sealer, err := f.sealerFor(doc.Salt)
	if err != nil {
		return "", unavailable("get", key, err)
	}
	value, err := sealer.Open(key, sealed)
	if err != nil {
		return "", unavailable("get", key, err)
	}
	return value, nil
}

func (f *File) Set(ctx context.Context, key Key, value string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.load()
	if err != nil {
		return unavailable("set", key, err)
	}
	if doc.Salt == "" {
		salt, err := NewSalt()
		if err != nil {
			return unavailable("set", key, err)
		}
		doc.Salt = base64.StdEncoding.EncodeToString(salt)
	}
	sealer, err := f.sealerFor(doc.Salt)
	if err != nil {
		return unavailable("set", key, err)
	}
	sealed, err := sealer.Seal(key, value)
	if err != nil {
		return unavailable("set", key, err)
	}
	doc.Entries[string(key)] = sealed
	if err := f.save(doc); err != nil {
		return unavailable("set", key, err)
	}
	return nil
}

func (f *File) Delete(ctx context.Context, key Key) error {
	if err := checkKey(key); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.load()
	if err != nil {
		return unavailable("delete", key, err)
	}
	if _, ok := doc.Entries[string(key)]; !ok {
		return nil
	}
	delete(doc.Entries, string(key))
	if err := f.save(doc); err != nil {
		return unavailable("delete", key, err)
	}
	return nil
}

func (f *File) load() (*fileDoc, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return &fileDoc{Version: fileFormatVersion, Entries: map[string]string{}}, nil
	}
	if err != nil {
		return nil, err
	}
	var doc fileDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", f.path, err)
	}
	if doc.Version != fileFormatVersion {
		return nil, fmt.Errorf("unsupported credential file version %d", doc.Version)
	}
	if doc.Entries == nil {
		doc.Entries = map[string]string{}
	}
	return &doc, nil
}

func (f *File) save(doc *fileDoc) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".credentials-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, f.path)
}

// sealerFor returns the sealer for encodedSalt, deriving it at most once per salt.
func (f *File) sealerFor(encodedSalt string) (*Sealer, error) {
	if f.sealer != nil && f.sealSalt == encodedSalt {
		return f.sealer, nil
	}
	salt, err := base64.StdEncoding.DecodeString(encodedSalt)
	if err != nil {
		return nil, fmt.Errorf("decode salt: %w", err)
	}
	sealer, err := NewSealer(f.passphrase, salt)
	if err != nil {
		return nil, err
	}
	f.sealer = sealer
	f.sealSalt = encodedSalt
	return sealer, nil
}
