package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/fsnotify/fsnotify"

	"tradeScope/internal/model"
)

// Source loads the current wallet list.
type Source interface {
	Load(ctx context.Context) ([]model.Wallet, error)
}

// Watcher is implemented by sources that can signal changes themselves.
type Watcher interface {
	Watch(ctx context.Context, changed func()) error
}

// FileSource reads wallets from a local file.
type FileSource struct {
	Path string
}

func (s FileSource) Load(ctx context.Context) ([]model.Wallet, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("read wallets file: %w", err)
	}
	return ParseWallets(data), nil
}

// Watch reports writes, creates and renames of the file. The parent
// directory is watched so editors that replace the file are still seen.
func (s FileSource) Watch(ctx context.Context, changed func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	target := filepath.Clean(s.Path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(target), err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
				changed()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch wallets file: %w", err)
		}
	}
}

// WalletLister is the storage behind PostgresSource.
type WalletLister interface {
	ListWallets(ctx context.Context) ([]model.Wallet, error)
}

// PostgresSource reads wallets from the watched_wallets table.
type PostgresSource struct {
	Store WalletLister
}

func (s PostgresSource) Load(ctx context.Context) ([]model.Wallet, error) {
	return s.Store.ListWallets(ctx)
}

var utf8BOM = []byte{0xef, 0xbb, 0xbf}

// ParseWallets accepts a JSON array of addresses or {address, label}
// objects, a JSON object mapping address to label, or plain addresses
// separated by whitespace or commas. Entries are not validated here.
func ParseWallets(data []byte) []model.Wallet {
	data = bytes.TrimSpace(bytes.TrimPrefix(data, utf8BOM))

	var doc interface{}
	if err := json.Unmarshal(data, &doc); err == nil {
		switch v := doc.(type) {
		case []interface{}:
			return walletsFromArray(v)
		case map[string]interface{}:
			out := make([]model.Wallet, 0, len(v))
			for addr, label := range v {
				out = append(out, model.Wallet{Address: addr, Label: stringValue(label)})
			}
			return out
		}
	}

	fields := strings.FieldsFunc(string(data), func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
	out := make([]model.Wallet, 0, len(fields))
	for _, field := range fields {
		out = append(out, model.Wallet{Address: field})
	}
	return out
}

func walletsFromArray(items []interface{}) []model.Wallet {
	out := make([]model.Wallet, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case string:
			out = append(out, model.Wallet{Address: v})
		case map[string]interface{}:
			addr := stringValue(v["address"])
			if addr == "" {
				continue
			}
			out = append(out, model.Wallet{Address: addr, Label: stringValue(v["label"])})
		}
	}
	return out
}

func stringValue(v interface{}) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case float64, bool:
		return fmt.Sprint(s)
	default:
		return ""
	}
}
