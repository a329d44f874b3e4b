// Package session holds the CLI's persisted application state: the bearer
// token of the logged-in user, calendar notes and sleep role selections.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"studydash/internal/analytics"
	"studydash/internal/models"
)

const (
	// HomeEnv overrides the state directory
	HomeEnv = "STUDYDASH_HOME"

	stateFile = "session.json"
)

// ErrNotLoggedIn is returned when a command needs a token and there is none
var ErrNotLoggedIn = errors.New("not logged in: run studydash login")

// Dir returns $STUDYDASH_HOME, or ~/.studydash when unset
func Dir() (string, error) {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".studydash"), nil
}

// noteKey identifies one calendar note
type noteKey struct {
	study int64
	date  string
	user  string
}

// State is the persisted session. Accessors are safe for concurrent use.
type State struct {
	path string

	mu      sync.Mutex
	data    stateData
	touched map[noteKey]struct{}
}

// stateData is the on-disk form. Notes are keyed by study, date, then user.
type stateData struct {
	Server     string                                  `json:"server,omitempty"`
	Token      string                                  `json:"token,omitempty"`
	User       *models.User                            `json:"user,omitempty"`
	Notes      map[string]map[string]map[string]string `json:"notes,omitempty"`
	SleepRoles map[string]analytics.SleepRoles         `json:"sleep_roles,omitempty"`
}

// Load reads the session in dir. A missing file gives an empty session.
func Load(dir string) (*State, error) {
	s := &State{
		path:    filepath.Join(dir, stateFile),
		touched: make(map[noteKey]struct{}),
	}
	data, err := readState(s.path)
	if err != nil {
		return nil, err
	}
	s.data = data
	return s, nil
}

func readState(path string) (stateData, error) {
	var data stateData
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return data, nil
	}
	if err != nil {
		return data, fmt.Errorf("failed to read session: %w", err)
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return data, fmt.Errorf("failed to parse session %s: %w", path, err)
	}
	return data, nil
}

// Path is the session file location
func (s *State) Path() string {
	return s.path
}

// SetLogin records the server, token and user of a successful login
func (s *State) SetLogin(server, token string, user *models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Server = server
	s.data.Token = token
	s.data.User = user
}

// Clear forgets the login. Notes and sleep roles stay.
func (s *State) Clear() {
	s.SetLogin("", "", nil)
}

// Server is the API base URL of the current login
func (s *State) Server() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.Server
}

// Token returns the bearer token, or ErrNotLoggedIn
func (s *State) Token() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data.Token == "" {
		return "", ErrNotLoggedIn
	}
	return s.data.Token, nil
}

// User is the logged-in user, or nil
func (s *State) User() *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.User
}

// SetNote stores a note for a user on a date. An empty text deletes it.
func (s *State) SetNote(studyID int64, date, userID, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	setNote(&s.data, studyID, date, userID, text)
	s.touched[noteKey{studyID, date, userID}] = struct{}{}
}

func setNote(data *stateData, studyID int64, date, userID, text string) {
	study := strconv.FormatInt(studyID, 10)
	if text == "" {
		if days := data.Notes[study]; days != nil {
			delete(days[date], userID)
			if len(days[date]) == 0 {
				delete(days, date)
			}
			if len(days) == 0 {
				delete(data.Notes, study)
			}
		}
		return
	}
	if data.Notes == nil {
		data.Notes = make(map[string]map[string]map[string]string)
	}
	if data.Notes[study] == nil {
		data.Notes[study] = make(map[string]map[string]string)
	}
	if data.Notes[study][date] == nil {
		data.Notes[study][date] = make(map[string]string)
	}
	data.Notes[study][date][userID] = text
}

// Notes returns a copy of a study's notes keyed by date, then user
func (s *State) Notes(studyID int64) map[string]map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]map[string]string)
	for date, users := range s.data.Notes[strconv.FormatInt(studyID, 10)] {
		out[date] = make(map[string]string, len(users))
		for user, text := range users {
			out[date][user] = text
		}
	}
	return out
}

// SleepRoles returns the role selection saved for a study
func (s *State) SleepRoles(studyID int64) (analytics.SleepRoles, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.data.SleepRoles[strconv.FormatInt(studyID, 10)]
	return r, ok
}

// SetSleepRoles saves a study's sleep role selection
func (s *State) SetSleepRoles(studyID int64, roles analytics.SleepRoles) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data.SleepRoles == nil {
		s.data.SleepRoles = make(map[string]analytics.SleepRoles)
	}
	s.data.SleepRoles[strconv.FormatInt(studyID, 10)] = roles
}

// Save writes the session. The file is re-read first and notes are merged
// per (study, date, user): keys set here win, all other keys keep what is
// on disk. The write goes through a temp file and rename.
func (s *State) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	onDisk, err := readState(s.path)
	if err != nil {
		return err
	}
	for key := range s.touched {
		text := s.data.Notes[strconv.FormatInt(key.study, 10)][key.date][key.user]
		setNote(&onDisk, key.study, key.date, key.user, text)
	}
	s.data.Notes = onDisk.Notes

	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := writeAtomic(s.path, raw); err != nil {
		return err
	}
	s.touched = make(map[noteKey]struct{})
	return nil
}

func writeAtomic(path string, raw []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".session-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write session: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set session permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace session: %w", err)
	}
	return nil
}
