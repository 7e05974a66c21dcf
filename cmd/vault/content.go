package main

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"go.dedis.ch/vault/cli"
	"go.dedis.ch/vault/content"
	"go.dedis.ch/vault/feed"
	"go.dedis.ch/vault/fetch"
	"go.dedis.ch/vault/publish"
	"go.dedis.ch/vault/watch"
	"golang.org/x/xerrors"
)

const (
	policyFlag = "policy"
	outFlag    = "out"
)

// contentCommands defines the commands that publish and read content.
//
// - implements cli.Initializer
type contentCommands struct {
	*action
}

// SetCommands implements cli.Initializer.
func (c contentCommands) SetCommands(builder cli.Builder) {
	cmd := builder.SetCommand("publish")
	cmd.SetDescription("encrypt a file and publish it under a policy")
	cmd.SetFlags(
		cli.StringFlag{Name: policyFlag, Usage: "identifier of the allowlist or the service", Required: true},
		cli.PathFlag{Name: "file", Usage: "file to publish", Required: true},
		cli.StringFlag{Name: capFlag, Usage: "capability over the policy, found in the wallet when empty"},
		cli.StringFlag{Name: "type", Usage: "media type of the file, detected when empty"},
		cli.StringFlag{Name: "backend", Usage: "name of the storage backend, the first one when empty"},
	)
	cmd.SetAction(c.publishAction)

	cmd = builder.SetCommand("view")
	cmd.SetDescription("decrypt the content of a policy")
	cmd.SetFlags(
		cli.StringFlag{Name: policyFlag, Usage: "identifier of the allowlist or the service", Required: true},
		cli.PathFlag{Name: outFlag, Usage: "folder where the files are written"},
	)
	cmd.SetAction(c.viewAction)

	cmd = builder.SetCommand("watch")
	cmd.SetDescription("print the changes of a policy until interrupted")
	cmd.SetFlags(
		cli.StringFlag{Name: policyFlag, Usage: "identifier of the allowlist or the service", Required: true},
		cli.DurationFlag{Name: "interval", Usage: "time between two polls", Value: watch.DefaultInterval},
	)
	cmd.SetAction(c.watchAction)
}

func (c contentCommands) publishAction(flags cli.Flags) error {
	path := flags.Path("file")

	data, err := c.readFile(path)
	if err != nil {
		return xerrors.Errorf("failed to read file: %v", err)
	}

	payload := content.Payload{Type: flags.String("type"), Data: data}
	if payload.Type == "" {
		payload.Type = content.Detect(path, data)
	}

	// Checked before the configuration is even loaded.
	err = content.Validate(payload, content.MediaPolicy)
	if err != nil {
		return xerrors.Errorf("invalid file: %w", err)
	}

	ctx := context.Background()

	v, err := c.vault(ctx, flags)
	if err != nil {
		return err
	}

	defer v.Close()

	p, err := c.policy(ctx, v, flags.String(policyFlag))
	if err != nil {
		return err
	}

	capID, err := c.capability(ctx, v, p, flags.String(capFlag))
	if err != nil {
		return err
	}

	backend := flags.String("backend")
	if backend == "" {
		backend = v.Storage.Backends()[0].Name
	}

	pub, err := v.Publisher.Publish(ctx, publish.Upload{
		PolicyID: p.ID,
		CapID:    capID,
		Kind:     p.Kind,
		Backend:  backend,
		Payload:  payload,
	})
	if err != nil {
		if pub.Receipt != nil {
			fmt.Fprintf(c.printer, "blob %s is stored but not registered\n", pub.Receipt.GetBlobID())
		}

		return err
	}

	fmt.Fprintf(c.printer, "blob: %s\nend epoch: %d\ndigest: %s\n",
		pub.Receipt.GetBlobID(), pub.Receipt.GetEndEpoch(), pub.Tx.Digest)

	return nil
}

func (c contentCommands) viewAction(flags cli.Flags) error {
	ctx := context.Background()

	v, err := c.vault(ctx, flags)
	if err != nil {
		return err
	}

	defer v.Close()

	p, err := c.policy(ctx, v, flags.String(policyFlag))
	if err != nil {
		return err
	}

	f, err := v.Feeds.Load(ctx, p.ID, v.Address())
	if err != nil {
		return xerrors.Errorf("failed to load feed: %v", err)
	}

	res, err := v.Viewer.View(ctx, f)
	if err != nil {
		return err
	}

	out := flags.Path(outFlag)
	if out != "" {
		err = os.MkdirAll(out, 0700)
		if err != nil {
			return xerrors.Errorf("failed to create folder: %v", err)
		}
	}

	for _, item := range res.Items {
		fmt.Fprintf(c.printer, "%s\t%s\t%d bytes\n", item.BlobID, item.Payload.Type, len(item.Payload.Data))

		if out != "" {
			err = writeItem(out, item)
			if err != nil {
				return err
			}
		}
	}

	if res.Missing > 0 {
		fmt.Fprintf(c.printer, "%d blobs could not be retrieved\n", res.Missing)
	}

	return nil
}

func (c contentCommands) watchAction(flags cli.Flags) error {
	ctx, cancel := c.notify(context.Background())
	defer cancel()

	v, err := c.vault(ctx, flags)
	if err != nil {
		return err
	}

	defer v.Close()

	p, err := c.policy(ctx, v, flags.String(policyFlag))
	if err != nil {
		return err
	}

	w := watch.NewWatcher(v.Feeds, p.ID, v.Address(), watch.WithInterval(flags.Duration("interval")))
	w.AddFunc(func(f feed.Feed) {
		access := "denied"
		if f.Decision.Authorized {
			access = "granted"
		}

		fmt.Fprintf(c.printer, "%s: %d blobs, access %s\n", f.Policy.Name, len(f.BlobIDs), access)
	})

	err = w.Run(ctx)
	if err != nil && ctx.Err() == nil {
		return err
	}

	return nil
}

// writeItem writes the payload in the folder, named after the blob with the
// extension of its media type.
func writeItem(dir string, item fetch.Item) error {
	name := item.BlobID

	exts, err := mime.ExtensionsByType(item.Payload.Type)
	if err == nil && len(exts) > 0 {
		name += exts[0]
	}

	err = os.WriteFile(filepath.Join(dir, name), item.Payload.Data, 0600)
	if err != nil {
		return xerrors.Errorf("failed to write '%s': %v", name, err)
	}

	return nil
}
