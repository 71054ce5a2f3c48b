// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Command warden is the operator CLI for a warden cluster. It talks to
// a node's HTTP API: graph mutations, access checks, content
// read/write, snapshot management, and cluster membership.
//
// The node to talk to comes from --server or the WARDEN_SERVER
// environment variable. Mutations issued against a follower chase the
// leader hint automatically unless --follow-leader=false.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/warden-foundation/warden/cmd/warden/cli"
	"github.com/warden-foundation/warden/lib/apiclient"
	"github.com/warden-foundation/warden/lib/version"
)

func main() {
	err := run()
	if err == nil {
		return
	}

	// Commands that already produced their output (like "check")
	// return an ExitError with the desired code; don't print a
	// redundant "error:" line for those.
	var exit *cli.ExitError
	if errors.As(err, &exit) {
		os.Exit(exit.Code)
	}

	fmt.Fprintf(os.Stderr, "error: %v\n", err)

	var usage *cli.UsageError
	if errors.As(err, &usage) {
		os.Exit(2)
	}
	os.Exit(1)
}

func run() error {
	return rootCommand().Execute(os.Args[1:])
}

func rootCommand() *cli.Command {
	return &cli.Command{
		Name: "warden",
		Description: `Warden: replicated access-control graph.

Subjects hold rights over objects; grant and take edges delegate
rights between subjects. Every mutation is a command in a replicated
log, so all nodes converge on the same graph.`,
		Subcommands: []*cli.Command{
			subjectCommand(),
			objectCommand(),
			assignCommand(),
			grantCommand(),
			takeCommand(),
			revokeCommand(),
			checkCommand(),
			reachableCommand(),
			graphCommand(),
			readCommand(),
			writeCommand(),
			statusCommand(),
			snapshotCommand(),
			clusterCommand(),
			commandsCommand(),
			watchCommand(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(args []string) error {
					fmt.Printf("warden %s\n", version.Full())
					return nil
				},
			},
		},
		Examples: []cli.Example{
			{
				Description: "Create a subject and an object",
				Command:     "warden subject create alice && warden object create doc",
			},
			{
				Description: "Give alice ownership plus read/write on doc",
				Command:     "warden assign alice doc own,read,write",
			},
			{
				Description: "Delegate: alice grants bob read on doc",
				Command:     "warden grant alice bob doc read",
			},
			{
				Description: "Check whether bob can read doc (exit 1 if not)",
				Command:     "warden check bob doc read",
			},
			{
				Description: "Watch the cluster converge",
				Command:     "warden watch --server 10.0.0.5:7420",
			},
		},
	}
}

// connection carries the flags every network-touching command shares.
type connection struct {
	server       string
	followLeader bool
}

// addFlags registers --server and --follow-leader on the flag set.
func (c *connection) addFlags(flags *pflag.FlagSet) {
	flags.StringVar(&c.server, "server", defaultServer(),
		"node API address (host:port or URL; default from WARDEN_SERVER)")
	flags.BoolVar(&c.followLeader, "follow-leader", true,
		"chase leader hints when the addressed node is a follower")
}

// flagSet builds a flag set pre-populated with the connection flags.
func (c *connection) flagSet(name string) *pflag.FlagSet {
	flags := pflag.NewFlagSet(name, pflag.ContinueOnError)
	c.addFlags(flags)
	return flags
}

// client opens an API client for the configured server.
func (c *connection) client() (*apiclient.Client, error) {
	return apiclient.New(apiclient.Config{
		Server:       c.server,
		FollowLeader: c.followLeader,
	})
}

// defaultServer resolves the node address from the environment.
func defaultServer() string {
	if server := os.Getenv("WARDEN_SERVER"); server != "" {
		return server
	}
	return "127.0.0.1:7420"
}

// commandContext bounds a single CLI operation.
func commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}
