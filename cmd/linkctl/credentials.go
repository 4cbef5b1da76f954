package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"linkpage/api/internal/client"
)

const credentialsFile = "credentials.yaml"

var errNotLoggedIn = errors.New("not logged in: run `linkctl login` first")

type credentials struct {
	Server string        `yaml:"server"`
	Email  string        `yaml:"email"`
	Tokens client.Tokens `yaml:"tokens"`
}

func (o *options) credentialsPath() (string, error) {
	dir := o.home
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("locate home directory: %w", err)
		}
		dir = filepath.Join(home, ".linkctl")
	}
	return filepath.Join(dir, credentialsFile), nil
}

func (o *options) loadCredentials() (credentials, error) {
	path, err := o.credentialsPath()
	if err != nil {
		return credentials{}, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return credentials{}, errNotLoggedIn
	}
	if err != nil {
		return credentials{}, fmt.Errorf("read credentials: %w", err)
	}
	var creds credentials
	if err := yaml.Unmarshal(data, &creds); err != nil {
		return credentials{}, fmt.Errorf("parse credentials: %w", err)
	}
	if creds.Tokens.AccessToken == "" {
		return credentials{}, errNotLoggedIn
	}
	return creds, nil
}

func (o *options) saveCredentials(creds credentials) error {
	path, err := o.credentialsPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create credentials dir: %w", err)
	}
	data, err := yaml.Marshal(creds)
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	return nil
}

// authedClient returns a client carrying a live access token, refreshing and
// persisting the session when the stored token is about to expire.
func (o *options) authedClient(ctx context.Context) (*client.Client, error) {
	return o.connect(ctx, false)
}

// connect builds a client from the stored credentials. With forceRefresh the
// session is rotated even if the stored expiry looks fine, which is how a
// 401 on a token the server already considers expired is recovered.
// An explicit --server or LINKCTL_SERVER wins over the server saved at login.
func (o *options) connect(ctx context.Context, forceRefresh bool) (*client.Client, error) {
	creds, err := o.loadCredentials()
	if err != nil {
		return nil, err
	}
	server := creds.Server
	if o.serverSet || server == "" {
		server = o.server
	}
	c := client.New(server, nil)
	c.SetToken(creds.Tokens.AccessToken)

	if !forceRefresh && time.Until(time.Unix(creds.Tokens.ExpiresAt, 0)) > 30*time.Second {
		return c, nil
	}
	slog.Debug("refreshing access token", "server", server, "forced", forceRefresh)
	tokens, err := c.Refresh(ctx, creds.Tokens.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("refresh session: %w", err)
	}
	creds.Tokens = tokens
	if err := o.saveCredentials(creds); err != nil {
		return nil, err
	}
	return c, nil
}
