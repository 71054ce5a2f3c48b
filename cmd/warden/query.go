// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/warden-foundation/warden/cmd/warden/cli"
	"github.com/warden-foundation/warden/lib/rights"
)

func checkCommand() *cli.Command {
	var conn connection
	var linearized bool
	return &cli.Command{
		Name:    "check",
		Summary: "Check whether a subject holds a right",
		Description: `Check whether a subject holds a right over an object on the
addressed node's current graph. Exits 0 when the right is held, 1 when
it is not.

By default the answer reflects the node's applied prefix of the log,
which may trail the leader. --linearized waits for the node to catch
up to the cluster's commit point first (followers redirect to the
leader).`,
		Usage: "warden check <subject> <object> <right>",
		Examples: []cli.Example{
			{Command: "warden check bob doc read"},
			{
				Description: "Linearized check against the leader",
				Command:     "warden check bob doc read --linearized",
			},
		},
		Flags: func() *pflag.FlagSet {
			flags := conn.flagSet("check")
			flags.BoolVar(&linearized, "linearized", false,
				"observe all commands committed before this check")
			return flags
		},
		Run: func(args []string) error {
			if len(args) != 3 {
				return cli.Usagef("expected <subject> <object> <right>, got %d args", len(args))
			}
			right, err := rights.ParseRight(args[2])
			if err != nil {
				return cli.Usagef("%v", err)
			}
			client, err := conn.client()
			if err != nil {
				return err
			}
			ctx, cancel := commandContext()
			defer cancel()

			held, err := client.Check(ctx, args[0], args[1], right, linearized)
			if err != nil {
				return err
			}
			if !held {
				fmt.Printf("denied: %s does not hold %s over %s\n", args[0], right, args[1])
				return &cli.ExitError{Code: 1}
			}
			fmt.Printf("held: %s holds %s over %s\n", args[0], right, args[1])
			return nil
		},
	}
}

func reachableCommand() *cli.Command {
	var conn connection
	return &cli.Command{
		Name:    "reachable",
		Summary: "Rights a subject could obtain via delegation",
		Description: `Compute the rights a subject holds or could come to hold over an
object through any sequence of grant and take operations, without
changing the graph.`,
		Usage: "warden reachable <subject> <object>",
		Examples: []cli.Example{
			{Command: "warden reachable bob doc"},
		},
		Flags: func() *pflag.FlagSet { return conn.flagSet("reachable") },
		Run: func(args []string) error {
			if len(args) != 2 {
				return cli.Usagef("expected <subject> <object>, got %d args", len(args))
			}
			client, err := conn.client()
			if err != nil {
				return err
			}
			ctx, cancel := commandContext()
			defer cancel()

			names, err := client.Reachable(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			if len(names) == 0 {
				fmt.Println("none")
				return nil
			}
			for _, name := range names {
				fmt.Println(name)
			}
			return nil
		},
	}
}

func graphCommand() *cli.Command {
	var conn connection
	var asJSON bool
	return &cli.Command{
		Name:    "graph",
		Summary: "Dump the full rights graph",
		Usage:   "warden graph [--json]",
		Examples: []cli.Example{
			{Command: "warden graph"},
			{
				Description: "Machine-readable dump",
				Command:     "warden graph --json",
			},
		},
		Flags: func() *pflag.FlagSet {
			flags := conn.flagSet("graph")
			flags.BoolVar(&asJSON, "json", false, "emit the dump as JSON")
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

			dump, err := client.Graph(ctx)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(dump)
			}

			writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(writer, "KIND\tID")
			for _, node := range dump.Nodes {
				fmt.Fprintf(writer, "%s\t%s\n", node.Kind, node.ID)
			}
			writer.Flush()

			if len(dump.Edges) == 0 {
				return nil
			}
			fmt.Println()
			writer = tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(writer, "SOURCE\tTARGET\tRIGHTS")
			for _, edge := range dump.Edges {
				fmt.Fprintf(writer, "%s\t%s\t%s\n", edge.Source, edge.Target, joinRights(edge.Rights))
			}
			writer.Flush()
			return nil
		},
	}
}

func readCommand() *cli.Command {
	var conn connection
	var subject string
	return &cli.Command{
		Name:    "read",
		Summary: "Read an object's content as a subject",
		Description: `Read the stored content of an object, enforced against the rights
graph: the subject must hold read over the object. The content is
written to stdout.`,
		Usage: "warden read --subject <subject> <object>",
		Examples: []cli.Example{
			{Command: "warden read --subject bob doc > doc.txt"},
		},
		Flags: func() *pflag.FlagSet {
			flags := conn.flagSet("read")
			flags.StringVar(&subject, "subject", "", "subject to read as (required)")
			return flags
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return cli.Usagef("expected exactly one object id, got %d args", len(args))
			}
			if subject == "" {
				return cli.Usagef("--subject is required")
			}
			client, err := conn.client()
			if err != nil {
				return err
			}
			ctx, cancel := commandContext()
			defer cancel()

			contents, err := client.ReadContent(ctx, subject, args[0])
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(contents)
			return err
		},
	}
}

func writeCommand() *cli.Command {
	var conn connection
	var subject string
	return &cli.Command{
		Name:    "write",
		Summary: "Write an object's content as a subject",
		Description: `Replace the stored content of an object, enforced against the
rights graph: the subject must hold write over the object. Content
comes from the second argument, or from stdin when omitted.`,
		Usage: "warden write --subject <subject> <object> [<content>]",
		Examples: []cli.Example{
			{Command: "warden write --subject alice doc 'hello'"},
			{
				Description: "Write stdin",
				Command:     "cat doc.txt | warden write --subject alice doc",
			},
		},
		Flags: func() *pflag.FlagSet {
			flags := conn.flagSet("write")
			flags.StringVar(&subject, "subject", "", "subject to write as (required)")
			return flags
		},
		Run: func(args []string) error {
			if len(args) < 1 || len(args) > 2 {
				return cli.Usagef("expected <object> [<content>], got %d args", len(args))
			}
			if subject == "" {
				return cli.Usagef("--subject is required")
			}

			var contents []byte
			if len(args) == 2 {
				contents = []byte(args[1])
			} else {
				var err error
				contents, err = io.ReadAll(os.Stdin)
				if err != nil {
					return fmt.Errorf("reading stdin: %w", err)
				}
			}

			client, err := conn.client()
			if err != nil {
				return err
			}
			ctx, cancel := commandContext()
			defer cancel()

			outcome, err := client.WriteContent(ctx, subject, args[0], contents)
			if err != nil {
				return err
			}
			printOutcome(outcome)
			return nil
		},
	}
}

func statusCommand() *cli.Command {
	var conn connection
	var asJSON bool
	return &cli.Command{
		Name:    "status",
		Summary: "Show the node's consensus and graph state",
		Usage:   "warden status [--json]",
		Examples: []cli.Example{
			{Command: "warden status --server 10.0.0.5:7420"},
		},
		Flags: func() *pflag.FlagSet {
			flags := conn.flagSet("status")
			flags.BoolVar(&asJSON, "json", false, "emit status as JSON")
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

			status, err := client.Status(ctx)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(status)
			}

			writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintf(writer, "node\t%s\n", status.NodeID)
			fmt.Fprintf(writer, "raft state\t%s\n", status.RaftState)
			fmt.Fprintf(writer, "recovery\t%s\n", status.RecoveryState)
			leader := status.LeaderID
			if leader == "" {
				leader = "(none)"
			}
			fmt.Fprintf(writer, "leader\t%s\n", leader)
			fmt.Fprintf(writer, "applied index\t%d\n", status.AppliedIndex)
			fmt.Fprintf(writer, "last index\t%d\n", status.LastIndex)
			fmt.Fprintf(writer, "subjects\t%d\n", status.Graph.Subjects)
			fmt.Fprintf(writer, "objects\t%d\n", status.Graph.Objects)
			fmt.Fprintf(writer, "edges\t%d\n", status.Graph.Edges)
			fmt.Fprintf(writer, "content objects\t%d\n", status.ContentObjects)
			fmt.Fprintf(writer, "graph digest\t%s\n", status.GraphDigest)
			writer.Flush()
			return nil
		},
	}
}

func commandsCommand() *cli.Command {
	var conn connection
	return &cli.Command{
		Name:    "commands",
		Summary: "Inspect applied command outcomes",
		Subcommands: []*cli.Command{
			{
				Name:    "get",
				Summary: "Look up a command outcome by request ID",
				Description: `Resolve what happened to a proposed command. The main use is a
timed-out propose: the command may still have committed, and the
request ID is the durable handle to find out.`,
				Usage: "warden commands get <request-id>",
				Examples: []cli.Example{
					{Command: "warden commands get 01J9ZK3V8Q3T5Y0B3C8R2M4N6P"},
				},
				Flags: func() *pflag.FlagSet { return conn.flagSet("get") },
				Run: func(args []string) error {
					if len(args) != 1 {
						return cli.Usagef("expected exactly one request id, got %d args", len(args))
					}
					client, err := conn.client()
					if err != nil {
						return err
					}
					ctx, cancel := commandContext()
					defer cancel()

					entry, found, err := client.CommandOutcome(ctx, args[0])
					if err != nil {
						return err
					}
					if !found {
						fmt.Printf("request %s: not applied on this node\n", args[0])
						return &cli.ExitError{Code: 1}
					}
					fmt.Printf("request %s: %s at index %d -> %s",
						entry.RequestID, entry.Kind, entry.LogIndex, entry.OutcomeCode)
					if entry.OutcomeDetail != "" {
						fmt.Printf(" (%s)", entry.OutcomeDetail)
					}
					fmt.Println()
					return nil
				},
			},
		},
	}
}

// printJSON writes v to stdout with stable indentation.
func printJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// joinRights renders a right-name list for table output.
func joinRights(names []string) string {
	if len(names) == 0 {
		return "none"
	}
	out := names[0]
	for _, name := range names[1:] {
		out += "+" + name
	}
	return out
}
