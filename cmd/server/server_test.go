package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/canvas-presence/internal/adapters/identity"
	"github.com/dkeye/canvas-presence/internal/adapters/store"
	"github.com/dkeye/canvas-presence/internal/config"
)

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func TestVersionCommand(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, Version+"\n", out.String())
}

func TestServeRejectsMissingConfigFile(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"serve", "--config", t.TempDir() + "/missing.yaml"})
	cmd.SetErr(io.Discard)
	assert.Error(t, cmd.Execute())
}

func TestCloseAllJoinsErrors(t *testing.T) {
	var order []string
	a := closerFunc(func() error { order = append(order, "a"); return errors.New("a failed") })
	b := closerFunc(func() error { order = append(order, "b"); return nil })
	c := closerFunc(func() error { order = append(order, "c"); return errors.New("c failed") })

	err := closeAll([]io.Closer{a, b, c})
	require.Error(t, err)
	assert.Equal(t, []string{"c", "b", "a"}, order)
	assert.Contains(t, err.Error(), "a failed")
	assert.Contains(t, err.Error(), "c failed")
}

func TestOpenStoreDefaultsToMemory(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	st, db, err := openStore(ctx, &config.Config{})
	require.NoError(t, err)
	assert.Nil(t, db)
	assert.IsType(t, &store.MemoryStore{}, st)
}

func TestOpenIdentity(t *testing.T) {
	cfg := &config.Config{Secret: "a-secret-a-secret", Identity: config.IdentityConfig{Backend: config.IdentityCookie}}
	resolver, sessions, rdb, err := openIdentity(cfg)
	require.NoError(t, err)
	assert.Nil(t, rdb)
	assert.NotNil(t, sessions)
	assert.IsType(t, &identity.CookieResolver{}, resolver)

	cfg.Identity = config.IdentityConfig{Backend: config.IdentityRedis, CookieName: "session_token"}
	cfg.Redis = config.RedisConfig{URL: "redis://localhost:6379/0", SessionPrefix: "session:"}
	resolver, _, rdb, err = openIdentity(cfg)
	require.NoError(t, err)
	require.NotNil(t, rdb)
	assert.IsType(t, &identity.RedisResolver{}, resolver)
	assert.NoError(t, rdb.Close())

	cfg.Redis.URL = "://bad"
	_, _, _, err = openIdentity(cfg)
	assert.Error(t, err)
}
