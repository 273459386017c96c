package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/Anshjain123/Code-N-Collab/state"
)

var (
	prefsBucket   = []byte("prefs")
	buffersBucket = []byte("buffers")
)

// Prefs persists toolbar choices and the last buffer seen in each room.
type Prefs struct {
	db *bolt.DB
}

// DefaultPrefsPath is ~/.codencollab/agent.db.
func DefaultPrefsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "codencollab.db"
	}
	return filepath.Join(home, ".codencollab", "agent.db")
}

func OpenPrefs(path string) (*Prefs, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open prefs %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{prefsBucket, buffersBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Prefs{db: db}, nil
}

func (p *Prefs) Close() error {
	return p.db.Close()
}

// Apply dispatches the saved language, theme and font size to s. Values the
// reducer would reject are ignored.
func (p *Prefs) Apply(s *state.Store) error {
	return p.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(prefsBucket)
		if v := b.Get([]byte("language")); v != nil {
			s.Dispatch(state.Action{Kind: state.SetLanguage, Value: string(v)})
		}
		if v := b.Get([]byte("theme")); v != nil {
			s.Dispatch(state.Action{Kind: state.SetTheme, Value: string(v)})
		}
		if v := b.Get([]byte("fontSize")); v != nil {
			if n, err := strconv.Atoi(string(v)); err == nil {
				s.Dispatch(state.Action{Kind: state.SetFontSize, Size: n})
			}
		}
		return nil
	})
}

// Save records the toolbar choices in t.
func (p *Prefs) Save(t state.Tools) error {
	return p.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(prefsBucket)
		if err := b.Put([]byte("language"), []byte(t.Language)); err != nil {
			return err
		}
		if err := b.Put([]byte("theme"), []byte(t.Theme)); err != nil {
			return err
		}
		return b.Put([]byte("fontSize"), []byte(strconv.Itoa(t.FontSize)))
	})
}

// LastBuffer returns the text last saved for room, or "".
func (p *Prefs) LastBuffer(room string) string {
	var text string
	p.db.View(func(tx *bolt.Tx) error {
		text = string(tx.Bucket(buffersBucket).Get([]byte(room)))
		return nil
	})
	return text
}

func (p *Prefs) SaveBuffer(room, text string) error {
	return p.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(buffersBucket).Put([]byte(room), []byte(text))
	})
}
