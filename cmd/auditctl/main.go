// Package main provides auditctl, a command-line client for onboarding companies,
// uploading evidence and following compliance audits.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"auditflow/internal/activeaudit"
	"auditflow/internal/adapters/httpclient"
	"auditflow/internal/adapters/objectstore"
	"auditflow/internal/auditpoll"
	"auditflow/internal/config"
	"auditflow/internal/ports"
	"auditflow/internal/session"
	"auditflow/internal/upload"
)

var rootCmd = &cobra.Command{
	Use:           "auditctl",
	Short:         "Compliance audit workflow client",
	Long:          "auditctl onboards companies, uploads their documents and runs compliance audits against an auditflow server.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	apiURL       string
	stateFile    string
	serverState  bool
	pollInterval time.Duration
	concurrency  int
)

func init() {
	config.LoadDotEnv()
	cfg, _ := config.Load()
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", cfg.APIURL, "auditflow server base URL (AUDITFLOW_API_URL)")
	rootCmd.PersistentFlags().StringVar(&stateFile, "state-file", cfg.StateFile, "file remembering in-flight audits (AUDITFLOW_STATE_FILE)")
	rootCmd.PersistentFlags().BoolVar(&serverState, "server-state", false, "remember in-flight audits on the server instead of a local file")
	rootCmd.PersistentFlags().DurationVar(&pollInterval, "poll-interval", auditpoll.DefaultInterval, "audit status polling interval")
	rootCmd.PersistentFlags().IntVar(&concurrency, "concurrency", 4, "parallel uploads")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newClient() *httpclient.Client { return httpclient.New(apiURL, nil) }

func stateStore(client *httpclient.Client) (ports.KeyValueStore, error) {
	if serverState {
		return client.StateStore(), nil
	}
	path := stateFile
	if path == "" {
		p, err := activeaudit.DefaultPath()
		if err != nil {
			return nil, fmt.Errorf("cannot locate state file (use --state-file): %w", err)
		}
		path = p
	}
	return activeaudit.NewFileStore(path), nil
}

func newSession() (*session.Session, error) {
	client := newClient()
	store, err := stateStore(client)
	if err != nil {
		return nil, err
	}
	uploads := upload.New(client, objectstore.HTTPTransfer{}, upload.WithConcurrency(concurrency))
	return session.New(client, uploads, store, auditpoll.WithInterval(pollInterval)), nil
}
