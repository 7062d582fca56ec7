package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLocalStorage(t *testing.T) {
	t.Run("creates directory if not exists", func(t *testing.T) {
		outputDir := filepath.Join(t.TempDir(), "videos")

		storage, err := NewLocalStorage(outputDir)
		if err != nil {
			t.Fatalf("NewLocalStorage() error = %v", err)
		}

		if storage.OutputDir() != outputDir {
			t.Errorf("OutputDir() = %v, want %v", storage.OutputDir(), outputDir)
		}

		info, err := os.Stat(outputDir)
		if err != nil {
			t.Fatalf("directory not created: %v", err)
		}
		if !info.IsDir() {
			t.Error("expected directory, got file")
		}
	})

	t.Run("uses default directory when empty", func(t *testing.T) {
		storage, err := NewLocalStorage("")
		if err != nil {
			t.Fatalf("NewLocalStorage() error = %v", err)
		}

		expected := filepath.Join(os.TempDir(), "memory-images")
		if storage.OutputDir() != expected {
			t.Errorf("OutputDir() = %v, want %v", storage.OutputDir(), expected)
		}
	})
}

func TestLocalStorage_SaveVideo(t *testing.T) {
	storage := setupTestStorage(t)

	t.Run("saves video under job id", func(t *testing.T) {
		ctx := context.Background()

		path, err := storage.SaveVideo(ctx, "render-1-abc", bytes.NewReader([]byte("mp4 data")))
		if err != nil {
			t.Fatalf("SaveVideo() error = %v", err)
		}

		if filepath.Base(path) != "render-1-abc.mp4" {
			t.Errorf("unexpected file name %s", path)
		}

		content, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("failed to read saved file: %v", err)
		}
		if string(content) != "mp4 data" {
			t.Errorf("got %q, want %q", string(content), "mp4 data")
		}

		entries, err := os.ReadDir(storage.OutputDir())
		if err != nil {
			t.Fatalf("read dir: %v", err)
		}
		for _, e := range entries {
			if strings.HasSuffix(e.Name(), ".part") {
				t.Errorf("leftover partial file %s", e.Name())
			}
		}
	})

	t.Run("overwrites previous video", func(t *testing.T) {
		ctx := context.Background()
		if _, err := storage.SaveVideo(ctx, "again", bytes.NewReader([]byte("one"))); err != nil {
			t.Fatalf("SaveVideo() error = %v", err)
		}
		path, err := storage.SaveVideo(ctx, "again", bytes.NewReader([]byte("two")))
		if err != nil {
			t.Fatalf("SaveVideo() error = %v", err)
		}
		content, _ := os.ReadFile(path)
		if string(content) != "two" {
			t.Errorf("got %q, want %q", string(content), "two")
		}
	})

	t.Run("rejects unsafe job ids", func(t *testing.T) {
		for _, id := range []string{"", "..", "a/b", `a\b`} {
			_, err := storage.SaveVideo(context.Background(), id, bytes.NewReader(nil))
			if !errors.Is(err, ErrInvalidJobID) {
				t.Errorf("SaveVideo(%q) error = %v, want ErrInvalidJobID", id, err)
			}
		}
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := storage.SaveVideo(ctx, "job", bytes.NewReader([]byte("data")))
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

func TestLocalStorage_OpenVideo(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()

	t.Run("opens saved video", func(t *testing.T) {
		path, err := storage.SaveVideo(ctx, "open_test", bytes.NewReader([]byte("load data")))
		if err != nil {
			t.Fatalf("SaveVideo() error = %v", err)
		}

		reader, err := storage.OpenVideo(ctx, path)
		if err != nil {
			t.Fatalf("OpenVideo() error = %v", err)
		}
		defer func() { _ = reader.Close() }()

		content, err := io.ReadAll(reader)
		if err != nil {
			t.Fatalf("failed to read: %v", err)
		}
		if string(content) != "load data" {
			t.Errorf("got %q, want %q", string(content), "load data")
		}
	})

	t.Run("returns error for non-existent file", func(t *testing.T) {
		_, err := storage.OpenVideo(ctx, filepath.Join(storage.OutputDir(), "missing.mp4"))
		if err == nil {
			t.Error("expected error for non-existent file")
		}
	})

	t.Run("rejects paths outside the output directory", func(t *testing.T) {
		_, err := storage.OpenVideo(ctx, "/etc/passwd")
		if !errors.Is(err, ErrOutsideStorage) {
			t.Errorf("expected ErrOutsideStorage, got %v", err)
		}
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := storage.OpenVideo(ctx, "/some/path")
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

func TestLocalStorage_RemoveVideo(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()

	t.Run("removes file", func(t *testing.T) {
		path, err := storage.SaveVideo(ctx, "remove", bytes.NewReader([]byte("data")))
		if err != nil {
			t.Fatalf("SaveVideo() error = %v", err)
		}

		if err := storage.RemoveVideo(ctx, path); err != nil {
			t.Fatalf("RemoveVideo() error = %v", err)
		}
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Errorf("file %s still exists", path)
		}
	})

	t.Run("ignores non-existent files", func(t *testing.T) {
		err := storage.RemoveVideo(ctx, filepath.Join(storage.OutputDir(), "gone.mp4"))
		if err != nil {
			t.Errorf("RemoveVideo() should ignore non-existent files, got %v", err)
		}
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := storage.RemoveVideo(ctx, "/some/path")
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

func TestLocalStorage_Publish(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()

	_, err := storage.Publish(ctx, "key", bytes.NewReader([]byte("data")))
	if !errors.Is(err, ErrS3NotConfigured) {
		t.Errorf("expected ErrS3NotConfigured, got %v", err)
	}
}

func setupTestStorage(t *testing.T) *LocalStorage {
	t.Helper()

	storage, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	return storage
}
