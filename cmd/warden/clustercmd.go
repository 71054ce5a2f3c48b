// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/warden-foundation/warden/cmd/warden/cli"
)

func clusterCommand() *cli.Command {
	return &cli.Command{
		Name:    "cluster",
		Summary: "Manage cluster membership",
		Subcommands: []*cli.Command{
			clusterJoinCommand(),
			clusterLeaveCommand(),
			clusterMembersCommand(),
		},
	}
}

func clusterJoinCommand() *cli.Command {
	var conn connection
	var raftAddress, apiAddress string
	return &cli.Command{
		Name:    "join",
		Summary: "Add a node as a voter",
		Description: `Register a new node in the member book and add it to the raft
configuration as a voter. Run against any reachable node; the request
is forwarded to the leader. The joining node must already be running
(started with an empty cluster.join list) and reachable at the given
raft address.`,
		Usage: "warden cluster join <node-id> --raft-address <host:port> --api-address <host:port>",
		Examples: []cli.Example{
			{Command: "warden cluster join node-2 --raft-address 10.0.0.6:7421 --api-address 10.0.0.6:7420"},
		},
		Flags: func() *pflag.FlagSet {
			flags := conn.flagSet("join")
			flags.StringVar(&raftAddress, "raft-address", "", "the joining node's raft address (required)")
			flags.StringVar(&apiAddress, "api-address", "", "the joining node's API address")
			return flags
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return cli.Usagef("expected exactly one node id, got %d args", len(args))
			}
			if raftAddress == "" {
				return cli.Usagef("--raft-address is required")
			}
			client, err := conn.client()
			if err != nil {
				return err
			}
			ctx, cancel := commandContext()
			defer cancel()

			if err := client.Join(ctx, args[0], raftAddress, apiAddress); err != nil {
				return err
			}
			fmt.Printf("node %s joined as voter\n", args[0])
			return nil
		},
	}
}

func clusterLeaveCommand() *cli.Command {
	var conn connection
	return &cli.Command{
		Name:    "leave",
		Summary: "Remove a node from the cluster",
		Description: `Remove a node from the raft configuration and deregister it from
the member book. The node's local stores are untouched; wipe its data
directory before rejoining it under the same id.`,
		Usage: "warden cluster leave <node-id>",
		Examples: []cli.Example{
			{Command: "warden cluster leave node-2"},
		},
		Flags: func() *pflag.FlagSet { return conn.flagSet("leave") },
		Run: func(args []string) error {
			if len(args) != 1 {
				return cli.Usagef("expected exactly one node id, got %d args", len(args))
			}
			client, err := conn.client()
			if err != nil {
				return err
			}
			ctx, cancel := commandContext()
			defer cancel()

			if err := client.Leave(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("node %s removed\n", args[0])
			return nil
		},
	}
}

func clusterMembersCommand() *cli.Command {
	var conn connection
	var asJSON bool
	return &cli.Command{
		Name:    "members",
		Summary: "List cluster members",
		Usage:   "warden cluster members [--json]",
		Examples: []cli.Example{
			{Command: "warden cluster members"},
		},
		Flags: func() *pflag.FlagSet {
			flags := conn.flagSet("members")
			flags.BoolVar(&asJSON, "json", false, "emit members as JSON")
			return flags
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return cli.Usagef("unexpected argument: %s", args[0])
			}
			client, err := conn.client()
			if err != nil {
				return err
			}
			ctx, cancel := commandContext()
			defer cancel()

			members, err := client.Members(ctx)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(members)
			}

			writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(writer, "ID\tRAFT ADDRESS\tAPI ADDRESS\tSUFFRAGE\tLEADER")
			for _, member := range members {
				leader := ""
				if member.Leader {
					leader = "*"
				}
				apiAddress := member.APIAddress
				if apiAddress == "" {
					apiAddress = "-"
				}
				fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\n",
					member.ID, member.RaftAddress, apiAddress, member.Suffrage, leader)
			}
			writer.Flush()
			return nil
		},
	}
}
