package doc

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/ValentinKolb/dDoc/cmd/util"
	"github.com/ValentinKolb/dDoc/lib/document"
	"github.com/ValentinKolb/dDoc/lib/session"
	"github.com/spf13/cobra"
	"maps"
	"strings"
)

// cliDocument is a document with free-form string fields
type cliDocument struct {
	document.Base
	Fields map[string]string `json:"fields,omitempty"`
}

func newCliDocument() *cliDocument {
	return &cliDocument{}
}

// apply sets the given fields, an empty value removes the field
func (d *cliDocument) apply(fields map[string]string) {
	if d.Fields == nil {
		d.Fields = make(map[string]string, len(fields))
	}
	for k, v := range fields {
		if v == "" {
			delete(d.Fields, k)
		} else {
			d.Fields[k] = v
		}
	}
}

// clone returns a deep copy, documents from the memory cache are shared
func (d *cliDocument) clone() *cliDocument {
	return &cliDocument{Base: d.Base, Fields: maps.Clone(d.Fields)}
}

// parseFields parses arguments in the format field=value
func parseFields(args []string) (map[string]string, error) {
	fields := make(map[string]string, len(args))
	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid field %q (expected field=value)", arg)
		}
		fields[k] = v
	}
	return fields, nil
}

func printDocument(d *cliDocument) error {
	out, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

var (
	getCmd = &cobra.Command{
		Use:   "get [cache-key]",
		Short: "Print a document (it is created if it does not exist)",
		Args:  cobra.ExactArgs(1),
		RunE:  runGet,
	}

	updateCmd = &cobra.Command{
		Use:   "update [cache-key] [field=value]...",
		Short: "Set fields of a document",
		Long:  util.WrapString("Set fields of a document. An empty value (field=) removes the field. Volatile documents are updated atomically under the document lock, durable documents are committed to the store shard."),
		Args:  cobra.MinimumNArgs(2),
		RunE:  runUpdate,
	}
)

func runGet(cmd *cobra.Command, args []string) error {
	opts, err := util.GetDocumentOptions(args[0])
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var d *cliDocument
	if opts.Volatile {
		m, err := newVolatileManager(opts, newCliDocument)
		if err != nil {
			return err
		}
		d, err = m.GetOrCreateImmutable(ctx)
		if err != nil {
			return err
		}
	} else {
		m, err := newDurableManager(opts, newCliDocument, session.NewReader(rpcStore))
		if err != nil {
			return err
		}
		d, err = m.GetOrCreateImmutable(ctx)
		if err != nil {
			return err
		}
	}

	return printDocument(d)
}

func runUpdate(cmd *cobra.Command, args []string) error {
	opts, err := util.GetDocumentOptions(args[0])
	if err != nil {
		return err
	}
	fields, err := parseFields(args[1:])
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var updated *cliDocument
	after := func(_ context.Context, d *cliDocument) error {
		updated = d
		return nil
	}

	uow := newUnitOfWork()
	if opts.Volatile {
		err = updateVolatile(ctx, uow, opts, fields, after)
	} else {
		err = updateDurable(ctx, uow, opts, fields, after)
	}
	if err != nil {
		_ = uow.Rollback()
		return err
	}

	if err := uow.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	if updated == nil {
		// the document lock was not acquired within the lock timeout
		return fmt.Errorf("document %s was not updated", opts.CacheKey)
	}
	return printDocument(updated)
}

func updateVolatile(ctx context.Context, uow *session.Session, opts document.Options, fields map[string]string, after document.AfterUpdateFunc[*cliDocument]) error {
	m, err := newVolatileManager(opts, newCliDocument)
	if err != nil {
		return err
	}
	return m.UpdateAtomic(ctx, uow, func(_ context.Context, current *cliDocument) (*cliDocument, error) {
		d := current.clone()
		d.apply(fields)
		return d, nil
	}, after)
}

func updateDurable(ctx context.Context, uow *session.Session, opts document.Options, fields map[string]string, after document.AfterUpdateFunc[*cliDocument]) error {
	m, err := newDurableManager(opts, newCliDocument, uow)
	if err != nil {
		return err
	}
	d, err := m.GetOrCreateMutable(ctx)
	if err != nil {
		return err
	}
	d.apply(fields)
	return m.Update(ctx, uow, d, after)
}
