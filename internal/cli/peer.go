package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/roach88/storagepeer/internal/config"
	"github.com/roach88/storagepeer/internal/docstore"
	"github.com/roach88/storagepeer/internal/filestore"
	"github.com/roach88/storagepeer/internal/keyring"
	"github.com/roach88/storagepeer/internal/link"
	"github.com/roach88/storagepeer/internal/registry"
)

// Files kept in the data dir.
const (
	databaseFile = "storagepeer.db"
	filesDir     = "files"
	rootFile     = "root"
	keysFile     = "keys.json"
)

// peerState is everything a storage peer keeps in its data dir.
type peerState struct {
	store   *docstore.Store
	keyring *keyring.Keyring
	keys    keyring.KeyPair
	root    link.Link
	files   *filestore.LocalFS
}

// openPeerState opens the data dir in cfg, creating whatever is missing:
// the database, the encryption key pair and the registry document.
func openPeerState(ctx context.Context, cfg config.Config, logger *slog.Logger) (*peerState, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	store, err := docstore.Open(cfg.Path(databaseFile), docstore.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	st := &peerState{store: store, keyring: keyring.New(store)}

	if st.keys, err = loadOrCreateKeys(cfg.Path(keysFile)); err != nil {
		store.Close()
		return nil, err
	}

	rootURL, err := getOrCreateFromFile(cfg.Path(rootFile), func() (string, error) {
		l, err := registry.CreateRootDoc(ctx, store, st.keyring, st.keys.PublicKey)
		if err != nil {
			return "", err
		}
		logger.Info("created registry document", "registry_url", l.String())
		return l.String(), nil
	})
	if err != nil {
		store.Close()
		return nil, err
	}
	root, err := link.Parse(rootURL)
	if err != nil || root.Kind != link.KindDocument {
		store.Close()
		return nil, fmt.Errorf("%s does not hold a document URL: %q", cfg.Path(rootFile), rootURL)
	}
	st.root = root

	if st.files, err = filestore.NewLocalFS(cfg.Path(filesDir)); err != nil {
		store.Close()
		return nil, err
	}
	return st, nil
}

func (s *peerState) shareLink() string {
	share, _ := link.Wrap(registry.ShareContentType, s.root.String())
	return share
}

func (s *peerState) Close() error {
	return s.store.Close()
}

func loadOrCreateKeys(path string) (keyring.KeyPair, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		var kp keyring.KeyPair
		if err := json.Unmarshal(data, &kp); err != nil {
			return keyring.KeyPair{}, fmt.Errorf("parse %s: %w", path, err)
		}
		if kp.PublicKey == "" || kp.SecretKey == "" {
			return keyring.KeyPair{}, fmt.Errorf("%s: incomplete key pair", path)
		}
		return kp, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return keyring.KeyPair{}, fmt.Errorf("read %s: %w", path, err)
	}

	kp, err := keyring.GenerateKeyPair()
	if err != nil {
		return keyring.KeyPair{}, err
	}
	data, err = json.MarshalIndent(kp, "", "  ")
	if err != nil {
		return keyring.KeyPair{}, err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return keyring.KeyPair{}, fmt.Errorf("write %s: %w", path, err)
	}
	return kp, nil
}

// getOrCreateFromFile returns the trimmed contents of path, or writes and
// returns the result of create when path does not exist.
func getOrCreateFromFile(path string, create func() (string, error)) (string, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		return strings.TrimSpace(string(data)), nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("read %s: %w", path, err)
	}

	value, err := create()
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(value+"\n"), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return value, nil
}
