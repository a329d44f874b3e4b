package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"studydash/internal/client"
	"studydash/internal/dashboard"
	"studydash/internal/logging"
	"studydash/internal/session"
)

// app is the state shared by every command of one invocation
type app struct {
	out io.Writer
	in  *bufio.Reader

	dir     string
	server  string
	study   int64
	verbose bool
	timeout time.Duration
	// httpClient overrides the transport, nil uses the client default
	httpClient *http.Client

	log     *zap.Logger
	profile *session.Profile
	state   *session.State
}

func newApp(out io.Writer, in io.Reader) *app {
	return &app{out: out, in: bufio.NewReader(in), log: zap.NewNop()}
}

// setup loads the profile, session and logger before any command runs
func (a *app) setup(cmd *cobra.Command, args []string) error {
	level := "warn"
	if a.verbose {
		level = "debug"
	}
	log, err := logging.New(level)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.log = log

	if a.dir == "" {
		if a.dir, err = session.Dir(); err != nil {
			return err
		}
	}
	if a.profile, err = session.LoadProfile(a.dir); err != nil {
		return err
	}
	if a.state, err = session.Load(a.dir); err != nil {
		return err
	}
	a.log.Debug("session loaded", zap.String("path", a.state.Path()))
	return nil
}

func (a *app) teardown(cmd *cobra.Command, args []string) error {
	_ = a.log.Sync()
	return nil
}

// serverURL picks the --server flag, then the logged-in server, then the profile
func (a *app) serverURL() string {
	if a.server != "" {
		return a.server
	}
	if s := a.state.Server(); s != "" {
		return s
	}
	return a.profile.Server
}

// anonClient is a client without credentials, used to log in
func (a *app) anonClient() (*client.Client, error) {
	return client.New(a.serverURL(), a.options()...)
}

// authedClient carries the saved bearer token
func (a *app) authedClient() (*client.Client, error) {
	token, err := a.state.Token()
	if err != nil {
		return nil, err
	}
	return client.New(a.serverURL(), append(a.options(), client.WithToken(token))...)
}

func (a *app) options() []client.Option {
	if a.httpClient == nil {
		return nil
	}
	return []client.Option{client.WithHTTPClient(a.httpClient)}
}

func (a *app) loader(api dashboard.API) *dashboard.Loader {
	return dashboard.NewLoader(api, dashboard.DefaultConcurrency, a.log)
}

// studyID resolves --study, falling back to the profile default
func (a *app) studyID() (int64, error) {
	if a.study > 0 {
		return a.study, nil
	}
	if a.profile.Study > 0 {
		return a.profile.Study, nil
	}
	return 0, errors.New("no study selected: pass --study or set study in config.yaml")
}

func (a *app) context(parent context.Context) (context.Context, context.CancelFunc) {
	if a.timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, a.timeout)
}

// prompt reads one line, used for passwords when no flag is given
func (a *app) prompt(label string) (string, error) {
	fmt.Fprint(a.out, label)
	line, err := a.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// explain turns API failures into a single actionable line
func explain(err error) error {
	var apiErr *client.APIError
	switch {
	case errors.Is(err, session.ErrNotLoggedIn):
		return err
	case errors.Is(err, client.ErrUnauthorized):
		return errors.New("session expired or invalid: run studydash login")
	case errors.Is(err, dashboard.ErrSuperseded):
		return errors.New("load cancelled")
	case errors.As(err, &apiErr):
		return apiErr
	}
	return err
}
