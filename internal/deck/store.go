// internal/deck/store.go
package deck

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// DefaultBaseURL is the crcast deck API.
const DefaultBaseURL = "https://api.crcast.cc"

// refreshConcurrency bounds parallel upstream fetches during RefreshAll.
const refreshConcurrency = 4

// UpstreamError reports a failed request to the deck API.
type UpstreamError struct {
	Deckcode   string
	StatusCode int // 0 when the request never completed
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("deck api returned %d for %q", e.StatusCode, e.Deckcode)
	}
	return fmt.Sprintf("deck api request for %q failed: %v", e.Deckcode, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// CacheError reports a failed deck cache file operation.
type CacheError struct {
	Op   string
	Path string
	Err  error
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("deck cache %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *CacheError) Unwrap() error { return e.Err }

// DecodeError reports malformed deck JSON, either from the API or the cache.
type DecodeError struct {
	Source string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode deck from %s: %v", e.Source, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Store manages the on-disk deck cache and the upstream deck API client.
// The cache is a flat directory of {deckcode}.json files; it is the only
// state the server persists.
type Store struct {
	Dir     string
	BaseURL string
	Client  *http.Client

	log logrus.FieldLogger
}

// NewStore creates a Store over dir, creating the directory if needed.
func NewStore(dir string, logger logrus.FieldLogger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &CacheError{Op: "mkdir", Path: dir, Err: err}
	}
	return &Store{
		Dir:     dir,
		BaseURL: DefaultBaseURL,
		Client:  &http.Client{Timeout: 15 * time.Second},
		log:     logger.WithField("component", "deckstore"),
	}, nil
}

// Path returns the cache file path for a deck code.
func (s *Store) Path(code string) string {
	return filepath.Join(s.Dir, code+".json")
}

// Load reads a cached deck from disk.
func (s *Store) Load(code string) (*Deck, error) {
	path := s.Path(code)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &CacheError{Op: "read", Path: path, Err: err}
	}
	var d Deck
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, &DecodeError{Source: path, Err: err}
	}
	return &d, nil
}

// Save writes a deck to its cache file, pretty-printed so cached decks stay
// inspectable by hand.
func (s *Store) Save(d *Deck) error {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return &DecodeError{Source: "deck " + d.Deckcode, Err: err}
	}
	path := s.Path(d.Deckcode)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return &CacheError{Op: "write", Path: path, Err: err}
	}
	return nil
}

// Fetch downloads a deck from the upstream API and converts it.
func (s *Store) Fetch(ctx context.Context, code string) (*Deck, error) {
	url := fmt.Sprintf("%s/v1/cc/decks/%s/all", s.BaseURL, code)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &UpstreamError{Deckcode: code, Err: err}
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, &UpstreamError{Deckcode: code, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UpstreamError{Deckcode: code, StatusCode: resp.StatusCode}
	}

	var raw crCastResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, &DecodeError{Source: url, Err: err}
	}

	d := raw.toDeck()
	s.log.WithFields(logrus.Fields{
		"deckcode": d.Deckcode,
		"blacks":   len(d.Blacks),
		"whites":   len(d.Whites),
	}).Info("Fetched deck")
	return d, nil
}

// cachedCodes lists the deck codes present in the cache directory.
func (s *Store) cachedCodes() ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, &CacheError{Op: "list", Path: s.Dir, Err: err}
	}
	var codes []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		codes = append(codes, strings.TrimSuffix(e.Name(), ".json"))
	}
	sort.Strings(codes)
	return codes, nil
}

// ListInfo returns metadata for every cached deck. Enabled flags are carried
// over from prior by deck code; decks not present in prior start disabled.
// Unreadable cache files are skipped.
func (s *Store) ListInfo(prior []Info) ([]Info, error) {
	codes, err := s.cachedCodes()
	if err != nil {
		return nil, err
	}

	infos := make([]Info, 0, len(codes))
	for _, code := range codes {
		d, err := s.Load(code)
		if err != nil {
			s.log.WithField("deckcode", code).Warnf("Skipping unreadable cached deck: %v", err)
			continue
		}
		infos = append(infos, d.Info())
	}

	for _, before := range prior {
		for i := range infos {
			if infos[i].Deckcode == before.Deckcode {
				infos[i].Enabled = before.Enabled
			}
		}
	}
	return infos, nil
}

// RefreshAll re-downloads every cached deck from the upstream API, rewrites
// the cache, and returns the refreshed metadata with prior enabled flags
// preserved. The first failure aborts the refresh.
func (s *Store) RefreshAll(ctx context.Context, prior []Info) ([]Info, error) {
	codes, err := s.cachedCodes()
	if err != nil {
		return nil, err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(refreshConcurrency)
	for _, code := range codes {
		code := code
		g.Go(func() error {
			d, err := s.Fetch(ctx, code)
			if err != nil {
				return err
			}
			return s.Save(d)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return s.ListInfo(prior)
}

// LoadEnabled loads the full decks for every enabled entry, skipping decks
// whose cache files have gone missing or unreadable.
func (s *Store) LoadEnabled(infos []Info) []*Deck {
	var decks []*Deck
	for _, info := range infos {
		if !info.Enabled {
			continue
		}
		d, err := s.Load(info.Deckcode)
		if err != nil {
			s.log.WithField("deckcode", info.Deckcode).Warnf("Skipping enabled deck: %v", err)
			continue
		}
		decks = append(decks, d)
	}
	return decks
}
