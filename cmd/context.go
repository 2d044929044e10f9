package cmd

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/tomas/secureface/internal/config"
	"github.com/tomas/secureface/internal/consent"
	"github.com/tomas/secureface/internal/detect"
	"github.com/tomas/secureface/internal/logging"
	"github.com/tomas/secureface/internal/match"
	"github.com/tomas/secureface/internal/store"
	"github.com/tomas/secureface/internal/vault"
)

// app bundles the wired components every subcommand needs.
type app struct {
	cfg    *config.Config
	log    *zap.Logger
	store  *store.Store
	engine *match.Engine
}

// setup loads config, the key and the store, and builds the matching engine.
func setup() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(cfg.Logging.Dir, cfg.Logging.Level)
	if err != nil {
		return nil, err
	}

	key, err := vault.GetOrCreateKey(cfg.Store.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare encryption key: %w", err)
	}

	s := store.New(cfg.Store.DataFile, cfg.Store.BackupDir, key, logger)
	s.Load()
	if cfg.Store.IndexFile != "" {
		if err := s.PersistIndex(cfg.Store.IndexFile); err != nil {
			logger.Warn("failed to persist template index", zap.Error(err))
		}
	}

	return &app{
		cfg:    cfg,
		log:    logger,
		store:  s,
		engine: match.NewEngine(s, cfg.Matching.Tolerance, logger),
	}, nil
}

func (a *app) detector() *detect.Client {
	return detect.NewClient(a.cfg.Detector.URL, a.cfg.Detector.Dim)
}

// consentPath keeps the consent record next to the store data.
func (a *app) consentPath() string {
	return filepath.Join(filepath.Dir(a.cfg.Store.DataFile), "user_consent.json")
}

// requireConsent refuses destructive biometric operations until the user has
// granted consent.
func (a *app) requireConsent() error {
	if !consent.Granted(a.consentPath()) {
		return fmt.Errorf("no consent on record; run 'secureface consent grant' first")
	}
	return nil
}

func isImageFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png", ".gif":
		return true
	}
	return false
}

// listImageFiles expands the arguments into a sorted list of image paths,
// descending one level into directories.
func listImageFiles(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}
		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if !e.IsDir() && isImageFile(e.Name()) {
				files = append(files, filepath.Join(arg, e.Name()))
			}
		}
	}
	sort.Strings(files)
	return files, nil
}

// decodeImage reads and decodes one image file. Returns nil on any failure so
// batch paths can count it as an error and continue.
func decodeImage(path string) image.Image {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil
	}
	return img
}
