package daemon

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// kvStore is the slice of state.Store the watcher needs.
type kvStore interface {
	GetKV(ctx context.Context, key string) (string, error)
	SetKV(ctx context.Context, key, value string) error
}

// WatchState tracks file modification times and hashes.
type WatchState struct {
	Path     string `json:"path"`
	ModTime  string `json:"mod_time"`
	Hash     string `json:"hash"`
	LastSeen string `json:"last_seen"`
}

// watchFile checks if a single file has changed since last check.
func watchFile(ctx context.Context, store kvStore, filePath, kvKey string) (bool, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			stateJSON, err := store.GetKV(ctx, kvKey)
			if err != nil {
				return false, fmt.Errorf("get watch state: %w", err)
			}
			if stateJSON == "" {
				return false, nil
			}
			// Deleted since last check.
			if err := store.SetKV(ctx, kvKey, ""); err != nil {
				return false, fmt.Errorf("save watch state: %w", err)
			}
			return true, nil
		}
		return false, err
	}

	hash, err := hashFile(filePath)
	if err != nil {
		return false, fmt.Errorf("hash file: %w", err)
	}

	stateJSON, err := store.GetKV(ctx, kvKey)
	if err != nil {
		return false, fmt.Errorf("get watch state: %w", err)
	}

	var prevState WatchState
	if stateJSON != "" {
		if err := json.Unmarshal([]byte(stateJSON), &prevState); err != nil {
			return false, fmt.Errorf("parse watch state: %w", err)
		}
	}
	changed := prevState.Hash != hash

	newState := WatchState{
		Path:     filePath,
		ModTime:  info.ModTime().UTC().Format(time.RFC3339),
		Hash:     hash,
		LastSeen: time.Now().UTC().Format(time.RFC3339),
	}
	newStateJSON, err := json.Marshal(newState)
	if err != nil {
		return false, fmt.Errorf("marshal watch state: %w", err)
	}
	if err := store.SetKV(ctx, kvKey, string(newStateJSON)); err != nil {
		return false, fmt.Errorf("save watch state: %w", err)
	}

	return changed, nil
}

// watchDirectory returns the entity files under dirPath that were added,
// modified or deleted since the last call with the same key prefix.
func watchDirectory(ctx context.Context, store kvStore, dirPath, kvKeyPrefix string) ([]string, error) {
	currentFiles := make(map[string]WatchState)
	err := filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return nil
		}

		ext := filepath.Ext(path)
		if ext != ".yml" && ext != ".yaml" && ext != ".json" {
			return nil
		}

		hash, err := hashFile(path)
		if err != nil {
			return fmt.Errorf("hash file %s: %w", path, err)
		}

		currentFiles[path] = WatchState{
			Path:     path,
			ModTime:  info.ModTime().UTC().Format(time.RFC3339),
			Hash:     hash,
			LastSeen: time.Now().UTC().Format(time.RFC3339),
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk directory: %w", err)
	}

	stateKey := kvKeyPrefix + "_state"
	stateJSON, err := store.GetKV(ctx, stateKey)
	if err != nil {
		return nil, fmt.Errorf("get watch state: %w", err)
	}

	prevFiles := make(map[string]WatchState)
	if stateJSON != "" {
		if err := json.Unmarshal([]byte(stateJSON), &prevFiles); err != nil {
			return nil, fmt.Errorf("parse watch state: %w", err)
		}
	}

	var changedFiles []string
	for path, currentState := range currentFiles {
		prevState, existed := prevFiles[path]
		if !existed || prevState.Hash != currentState.Hash {
			changedFiles = append(changedFiles, path)
		}
	}
	for path := range prevFiles {
		if _, exists := currentFiles[path]; !exists {
			changedFiles = append(changedFiles, path+" (deleted)")
		}
	}
	sort.Strings(changedFiles)

	newStateJSON, err := json.Marshal(currentFiles)
	if err != nil {
		return nil, fmt.Errorf("marshal watch state: %w", err)
	}
	if err := store.SetKV(ctx, stateKey, string(newStateJSON)); err != nil {
		return nil, fmt.Errorf("save watch state: %w", err)
	}

	return changedFiles, nil
}

// hashFile computes SHA256 hash of a file's contents.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
