// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"io"
	"os"
	"testing"

	"github.com/desertthunder/katelyatv/internal/models"
)

// ErrBackendDown is returned by [FailingStorage].
var ErrBackendDown = errors.New("backend down")

// FailingStorage is a test double for [models.Storage] whose reads and writes fail with Err
// (default [ErrBackendDown]). Methods it does not override go to the embedded Storage, which
// may be nil when the test never reaches them.
type FailingStorage struct {
	models.Storage
	Err error
}

func (f *FailingStorage) err() error {
	if f.Err == nil {
		return ErrBackendDown
	}
	return f.Err
}

func (f *FailingStorage) GetPlayRecord(context.Context, string, string) (*models.PlayRecord, error) {
	return nil, f.err()
}

func (f *FailingStorage) SetPlayRecord(context.Context, string, string, *models.PlayRecord) error {
	return f.err()
}

func (f *FailingStorage) GetAllPlayRecords(context.Context, string) (map[string]*models.PlayRecord, error) {
	return nil, f.err()
}

func (f *FailingStorage) GetAllFavorites(context.Context, string) (map[string]*models.Favorite, error) {
	return nil, f.err()
}

func (f *FailingStorage) GetSearchHistory(context.Context, string) ([]string, error) {
	return nil, f.err()
}

func (f *FailingStorage) VerifyUser(context.Context, string, string) (bool, error) {
	return false, f.err()
}

func (f *FailingStorage) CheckUserExist(context.Context, string) (bool, error) {
	return false, f.err()
}

func (f *FailingStorage) RegisterUser(context.Context, string, string) error {
	return f.err()
}

func (f *FailingStorage) GetAllUsers(context.Context) ([]models.UserInfo, error) {
	return nil, f.err()
}

func (f *FailingStorage) GetAdminConfig(context.Context) (*models.AdminConfig, error) {
	return nil, f.err()
}

func (f *FailingStorage) GetUserSettings(context.Context, string) (models.UserSettings, error) {
	return models.UserSettings{}, f.err()
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// FReader always returns an error on Read
type FReader struct{}

func (f *FReader) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
