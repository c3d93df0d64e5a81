// Package chronodtest boots an in-process chronod for tests: in-memory
// store, in-memory pubsub, an httptest server and pre-authenticated
// clients.
package chronodtest

import (
	"context"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"

	"cdr.dev/slog"
	"cdr.dev/slog/sloggers/slogtest"
	"github.com/coder/quartz"

	"github.com/chronohq/chrono/chronod"
	"github.com/chronohq/chrono/chronod/database"
	"github.com/chronohq/chrono/chronod/database/dbmem"
	"github.com/chronohq/chrono/chronod/database/pubsub"
	"github.com/chronohq/chrono/chronod/httpmw"
	"github.com/chronohq/chrono/chronosdk"
)

type Options struct {
	Database database.Store
	Pubsub   pubsub.Pubsub
	Clock    quartz.Clock
}

// Deployment is a running in-process server plus everything a test needs
// to poke at it.
type Deployment struct {
	Client      *chronosdk.Client
	AdminClient *chronosdk.Client
	API         *chronod.API
	DB          database.Store
	Pubsub      pubsub.Pubsub
	UserID      uuid.UUID
	AdminID     uuid.UUID

	mu       sync.Mutex
	sessions map[string]httpmw.Session
	server   *httptest.Server
}

// New starts a server backed by opts (in-memory store and pubsub by
// default) and returns a deployment with a member client and an admin
// client already authenticated.
func New(t testing.TB, opts *Options) *Deployment {
	t.Helper()
	if opts == nil {
		opts = &Options{}
	}
	if opts.Database == nil {
		opts.Database = dbmem.New()
	}
	if opts.Pubsub == nil {
		opts.Pubsub = pubsub.NewInMemory()
	}

	d := &Deployment{
		DB:       opts.Database,
		Pubsub:   opts.Pubsub,
		UserID:   uuid.New(),
		AdminID:  uuid.New(),
		sessions: map[string]httpmw.Session{},
	}

	logger := slogtest.Make(t, &slogtest.Options{IgnoreErrors: true}).Leveled(slog.LevelDebug)
	d.API = chronod.New(&chronod.Options{
		Logger:             logger,
		Database:           opts.Database,
		Pubsub:             opts.Pubsub,
		SessionLookup:      d.lookup,
		Clock:              opts.Clock,
		PrometheusRegistry: prometheus.NewRegistry(),
	})

	d.server = httptest.NewServer(d.API.Handler())
	t.Cleanup(d.server.Close)

	d.Client = d.NewClient(t, d.UserID, false)
	d.AdminClient = d.NewClient(t, d.AdminID, true)
	return d
}

// NewClient mints a session for userID and returns a client carrying it.
func (d *Deployment) NewClient(t testing.TB, userID uuid.UUID, admin bool) *chronosdk.Client {
	t.Helper()
	serverURL, err := url.Parse(d.server.URL)
	require.NoError(t, err)
	client := chronosdk.New(serverURL)
	client.SetSessionToken(d.IssueSession(userID, admin))
	return client
}

// IssueSession registers a token for userID.
func (d *Deployment) IssueSession(userID uuid.UUID, admin bool) string {
	token := uuid.NewString()
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sessions[token] = httpmw.Session{UserID: userID, Admin: admin}
	return token
}

// RevokeSession invalidates a token, turning subsequent requests carrying
// it into 401s.
func (d *Deployment) RevokeSession(token string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.sessions, token)
}

func (d *Deployment) lookup(_ context.Context, token string) (httpmw.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	session, ok := d.sessions[token]
	if !ok {
		return httpmw.Session{}, xerrors.New("session not found")
	}
	return session, nil
}
