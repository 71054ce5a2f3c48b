// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/warden-foundation/warden/cmd/warden/cli"
	"github.com/warden-foundation/warden/lib/sealed"
	"github.com/warden-foundation/warden/lib/secret"
)

func snapshotCommand() *cli.Command {
	return &cli.Command{
		Name:    "snapshot",
		Summary: "Trigger, export, and import snapshots",
		Subcommands: []*cli.Command{
			snapshotTriggerCommand(),
			snapshotExportCommand(),
			snapshotImportCommand(),
		},
	}
}

func snapshotTriggerCommand() *cli.Command {
	var conn connection
	return &cli.Command{
		Name:    "trigger",
		Summary: "Ask the node to cut a snapshot now",
		Description: `Request an immediate raft snapshot on the addressed node. The
snapshot is cut asynchronously; "warden status" shows the applied
index it will cover.`,
		Usage: "warden snapshot trigger",
		Examples: []cli.Example{
			{Command: "warden snapshot trigger --server 10.0.0.5:7420"},
		},
		Flags: func() *pflag.FlagSet { return conn.flagSet("trigger") },
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

			if err := client.TriggerSnapshot(ctx); err != nil {
				return err
			}
			fmt.Println("snapshot requested")
			return nil
		},
	}
}

func snapshotExportCommand() *cli.Command {
	var conn connection
	var out string
	var sealTo []string
	return &cli.Command{
		Name:    "export",
		Summary: "Download the node's latest snapshot",
		Description: `Download the latest snapshot payload for offline archival or
seeding a new cluster. With --seal-to, the payload is additionally
encrypted to the given age recipients; without it, the payload is
written as the node produced it (already sealed with the cluster
snapshot key when one is configured).`,
		Usage: "warden snapshot export [--out <file>] [--seal-to <age1...>]...",
		Examples: []cli.Example{
			{Command: "warden snapshot export --out warden.snap"},
			{
				Description: "Seal the export to an archival key",
				Command:     "warden snapshot export --out warden.snap.age --seal-to age1qxy...",
			},
		},
		Flags: func() *pflag.FlagSet {
			flags := conn.flagSet("export")
			flags.StringVar(&out, "out", "", "output file (default: stdout)")
			flags.StringArrayVar(&sealTo, "seal-to", nil,
				"age recipient to encrypt the export to (repeatable)")
			return flags
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return cli.Usagef("unexpected argument: %s", args[0])
			}
			for _, recipient := range sealTo {
				if err := sealed.ParsePublicKey(recipient); err != nil {
					return cli.Usagef("--seal-to: %v", err)
				}
			}

			destination := io.Writer(os.Stdout)
			if out != "" {
				file, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("creating %s: %w", out, err)
				}
				defer file.Close()
				destination = file
			}

			client, err := conn.client()
			if err != nil {
				return err
			}
			ctx, cancel := commandContext()
			defer cancel()

			if len(sealTo) == 0 {
				return client.DownloadSnapshot(ctx, destination)
			}

			// Stream download -> age encryption without buffering the
			// whole payload.
			reader, writer := io.Pipe()
			downloadErr := make(chan error, 1)
			go func() {
				err := client.DownloadSnapshot(ctx, writer)
				writer.CloseWithError(err)
				downloadErr <- err
			}()

			sealErr := sealed.EncryptStream(destination, reader, sealTo)
			if err := <-downloadErr; err != nil {
				return err
			}
			return sealErr
		},
	}
}

func snapshotImportCommand() *cli.Command {
	var conn connection
	var identity string
	return &cli.Command{
		Name:    "import",
		Summary: "Restore a node from an exported snapshot",
		Description: `Replace the cluster state with an exported snapshot payload. The
import is itself a replicated command, so every node restores the same
state. With --identity, the payload is first decrypted with the given
age private key file (the inverse of export --seal-to).`,
		Usage: "warden snapshot import <file> [--identity <keyfile>]",
		Examples: []cli.Example{
			{Command: "warden snapshot import warden.snap"},
			{
				Description: "Import a sealed export",
				Command:     "warden snapshot import warden.snap.age --identity ./archive.key",
			},
		},
		Flags: func() *pflag.FlagSet {
			flags := conn.flagSet("import")
			flags.StringVar(&identity, "identity", "",
				"age private key file to decrypt the payload with")
			return flags
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return cli.Usagef("expected exactly one snapshot file, got %d args", len(args))
			}

			payload, err := readSnapshotPayload(args[0], identity)
			if err != nil {
				return err
			}

			client, err := conn.client()
			if err != nil {
				return err
			}
			ctx, cancel := commandContext()
			defer cancel()

			outcome, err := client.ImportSnapshot(ctx, payload)
			if err != nil {
				return err
			}
			printOutcome(outcome)
			return nil
		},
	}
}

// readSnapshotPayload loads an exported snapshot, decrypting it first
// when an age identity file is given.
func readSnapshotPayload(path, identity string) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer file.Close()

	if identity == "" {
		payload, err := io.ReadAll(file)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		return payload, nil
	}

	key, err := secret.ReadFromPath(identity)
	if err != nil {
		return nil, fmt.Errorf("reading identity file: %w", err)
	}
	defer key.Close()

	var decrypted bytes.Buffer
	if err := sealed.DecryptStream(&decrypted, file, key); err != nil {
		return nil, err
	}
	return decrypted.Bytes(), nil
}
