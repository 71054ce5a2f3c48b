// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"

	"github.com/warden-foundation/warden/cluster"
	"github.com/warden-foundation/warden/cmd/warden/cli"
	"github.com/warden-foundation/warden/lib/apiclient"
	"github.com/warden-foundation/warden/lib/rights"
)

func subjectCommand() *cli.Command {
	return &cli.Command{
		Name:    "subject",
		Summary: "Create or delete subjects",
		Subcommands: []*cli.Command{
			createIdentifierCommand("subject", "warden subject create alice",
				func(conn *connection, id string) (*cluster.Outcome, error) {
					client, err := conn.client()
					if err != nil {
						return nil, err
					}
					ctx, cancel := commandContext()
					defer cancel()
					return client.CreateSubject(ctx, id)
				}),
			deleteIdentifierCommand("subject", "warden subject delete alice",
				func(conn *connection, id string) (*cluster.Outcome, error) {
					client, err := conn.client()
					if err != nil {
						return nil, err
					}
					ctx, cancel := commandContext()
					defer cancel()
					return client.DeleteSubject(ctx, id)
				}),
		},
	}
}

func objectCommand() *cli.Command {
	return &cli.Command{
		Name:    "object",
		Summary: "Create or delete objects",
		Subcommands: []*cli.Command{
			createIdentifierCommand("object", "warden object create doc",
				func(conn *connection, id string) (*cluster.Outcome, error) {
					client, err := conn.client()
					if err != nil {
						return nil, err
					}
					ctx, cancel := commandContext()
					defer cancel()
					return client.CreateObject(ctx, id)
				}),
			deleteIdentifierCommand("object", "warden object delete doc",
				func(conn *connection, id string) (*cluster.Outcome, error) {
					client, err := conn.client()
					if err != nil {
						return nil, err
					}
					ctx, cancel := commandContext()
					defer cancel()
					return client.DeleteObject(ctx, id)
				}),
		},
	}
}

// createIdentifierCommand builds "create <id>" for subjects and
// objects, which differ only in the endpoint they hit.
func createIdentifierCommand(kind, example string, issue func(*connection, string) (*cluster.Outcome, error)) *cli.Command {
	var conn connection
	return &cli.Command{
		Name:    "create",
		Summary: "Create a " + kind,
		Usage:   fmt.Sprintf("warden %s create <id>", kind),
		Examples: []cli.Example{
			{Command: example},
		},
		Flags: func() *pflag.FlagSet { return conn.flagSet("create") },
		Run: func(args []string) error {
			if len(args) != 1 {
				return cli.Usagef("expected exactly one %s id, got %d args", kind, len(args))
			}
			outcome, err := issue(&conn, args[0])
			if err != nil {
				return err
			}
			printOutcome(outcome)
			return nil
		},
	}
}

// deleteIdentifierCommand mirrors createIdentifierCommand for deletes.
func deleteIdentifierCommand(kind, example string, issue func(*connection, string) (*cluster.Outcome, error)) *cli.Command {
	var conn connection
	return &cli.Command{
		Name:    "delete",
		Summary: "Delete a " + kind + " and its edges",
		Usage:   fmt.Sprintf("warden %s delete <id>", kind),
		Examples: []cli.Example{
			{Command: example},
		},
		Flags: func() *pflag.FlagSet { return conn.flagSet("delete") },
		Run: func(args []string) error {
			if len(args) != 1 {
				return cli.Usagef("expected exactly one %s id, got %d args", kind, len(args))
			}
			outcome, err := issue(&conn, args[0])
			if err != nil {
				return err
			}
			printOutcome(outcome)
			return nil
		},
	}
}

func assignCommand() *cli.Command {
	var conn connection
	return &cli.Command{
		Name:    "assign",
		Summary: "Administratively set rights on an edge",
		Description: `Assign rights from one node to another without delegation
preconditions. This is the bootstrap operation: ownership and initial
delegation edges start here, before any subject can grant or take.

Rights may be a single name or a comma-separated list; each right in
the list is issued as its own command.`,
		Usage: "warden assign <source> <target> <right>[,<right>...]",
		Examples: []cli.Example{
			{
				Description: "Make alice the owner of doc with full access",
				Command:     "warden assign alice doc own,read,write",
			},
			{
				Description: "Let alice extend her rights to bob",
				Command:     "warden assign alice bob grant",
			},
		},
		Flags: func() *pflag.FlagSet { return conn.flagSet("assign") },
		Run: func(args []string) error {
			if len(args) != 3 {
				return cli.Usagef("expected <source> <target> <rights>, got %d args", len(args))
			}
			set, err := parseRightList(args[2])
			if err != nil {
				return err
			}

			client, err := conn.client()
			if err != nil {
				return err
			}
			ctx, cancel := commandContext()
			defer cancel()

			for _, right := range set.List() {
				outcome, err := client.Assign(ctx, args[0], args[1], right)
				if err != nil {
					return err
				}
				printOutcome(outcome)
			}
			return nil
		},
	}
}

func grantCommand() *cli.Command {
	var conn connection
	return &cli.Command{
		Name:    "grant",
		Summary: "Grant a right you hold to another subject",
		Description: `Extend one of the granter's rights over an object to another
subject. Requires the granter to hold the right on the object and a
grant edge toward the grantee.`,
		Usage: "warden grant <granter> <grantee> <object> <right>",
		Examples: []cli.Example{
			{Command: "warden grant alice bob doc read"},
		},
		Flags: func() *pflag.FlagSet { return conn.flagSet("grant") },
		Run: func(args []string) error {
			return runEdgeMutation(args, &conn,
				func(client *apiclient.Client, granter, grantee, object string, right rights.Right) (*cluster.Outcome, error) {
					ctx, cancel := commandContext()
					defer cancel()
					return client.Grant(ctx, granter, grantee, object, right)
				})
		},
	}
}

func takeCommand() *cli.Command {
	var conn connection
	return &cli.Command{
		Name:    "take",
		Summary: "Take a right from another subject",
		Description: `Pull one of the source subject's rights over an object to the
taker. Requires the taker to hold a take edge toward the source and
the source to hold the right on the object.`,
		Usage: "warden take <taker> <source> <object> <right>",
		Examples: []cli.Example{
			{Command: "warden take bob alice doc read"},
		},
		Flags: func() *pflag.FlagSet { return conn.flagSet("take") },
		Run: func(args []string) error {
			return runEdgeMutation(args, &conn,
				func(client *apiclient.Client, taker, source, object string, right rights.Right) (*cluster.Outcome, error) {
					ctx, cancel := commandContext()
					defer cancel()
					return client.Take(ctx, taker, source, object, right)
				})
		},
	}
}

func revokeCommand() *cli.Command {
	var conn connection
	return &cli.Command{
		Name:    "revoke",
		Summary: "Revoke a right another subject holds",
		Description: `Remove a right from the holder's edge to the object. Requires
the revoker to own the object. Revoking a right the holder does not
have is a no-op success.`,
		Usage: "warden revoke <revoker> <holder> <object> <right>",
		Examples: []cli.Example{
			{Command: "warden revoke alice bob doc read"},
		},
		Flags: func() *pflag.FlagSet { return conn.flagSet("revoke") },
		Run: func(args []string) error {
			return runEdgeMutation(args, &conn,
				func(client *apiclient.Client, revoker, holder, object string, right rights.Right) (*cluster.Outcome, error) {
					ctx, cancel := commandContext()
					defer cancel()
					return client.Revoke(ctx, revoker, holder, object, right)
				})
		},
	}
}

// runEdgeMutation handles the shared shape of grant/take/revoke: four
// positional args ending in a right name.
func runEdgeMutation(args []string, conn *connection, issue func(*apiclient.Client, string, string, string, rights.Right) (*cluster.Outcome, error)) error {
	if len(args) != 4 {
		return cli.Usagef("expected 4 args (<actor> <peer> <object> <right>), got %d", len(args))
	}
	right, err := rights.ParseRight(args[3])
	if err != nil {
		return cli.Usagef("%v", err)
	}
	client, err := conn.client()
	if err != nil {
		return err
	}
	outcome, err := issue(client, args[0], args[1], args[2], right)
	if err != nil {
		return err
	}
	printOutcome(outcome)
	return nil
}

// parseRightList parses a comma-separated right list into a set.
func parseRightList(list string) (rights.RightSet, error) {
	set, err := rights.ParseRights(strings.Split(list, ","))
	if err != nil {
		return 0, cli.Usagef("%v", err)
	}
	return set, nil
}

// printOutcome reports a committed command to the operator.
func printOutcome(outcome *cluster.Outcome) {
	fmt.Printf("ok: %s applied at index %d (request %s)\n",
		outcome.Kind, outcome.Index, outcome.RequestID)
}
