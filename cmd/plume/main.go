// Package main implements the plume command line tool: applying feature
// definitions to a repository, serving ad-hoc feature lookups, and tearing a
// repository down.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/plumedb/plume/internal/app"
	"github.com/plumedb/plume/internal/config"
	"github.com/plumedb/plume/internal/registry"
	"github.com/plumedb/plume/pkg/types"
)

var (
	version = "dev"
	commit  = "unknown"
)

func usage() {
	fmt.Fprintf(os.Stderr, "Plume - online feature store\n\n")
	fmt.Fprintf(os.Stderr, "Usage: plume <command> [options]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  apply      Reconcile the online store with a feature definitions file\n")
	fmt.Fprintf(os.Stderr, "  get        Read feature values for one entity key\n")
	fmt.Fprintf(os.Stderr, "  teardown   Destroy the online store and registry\n")
	fmt.Fprintf(os.Stderr, "  version    Show version information\n\n")
	fmt.Fprintf(os.Stderr, "Examples:\n")
	fmt.Fprintf(os.Stderr, "  plume apply -config plume.yaml -definitions features.yaml\n")
	fmt.Fprintf(os.Stderr, "  plume get -config plume.yaml -table driver_hourly driver_id=1001\n")
	fmt.Fprintf(os.Stderr, "  plume teardown -config plume.yaml\n\n")
	fmt.Fprintf(os.Stderr, "Environment Variables:\n")
	fmt.Fprintf(os.Stderr, "  PLUME_PROJECT             Project namespace\n")
	fmt.Fprintf(os.Stderr, "  PLUME_REPO_PATH           Repository root for relative paths\n")
	fmt.Fprintf(os.Stderr, "  PLUME_ONLINE_STORE_TYPE   Backend: sqlite, bolt, memory\n")
	fmt.Fprintf(os.Stderr, "  PLUME_REGISTRY_S3_BUCKET  Store the registry in S3\n")
}

func main() {
	log.SetFlags(0)

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch cmd := os.Args[1]; cmd {
	case "apply":
		err = runApply(os.Args[2:])
	case "get":
		err = runGet(os.Args[2:])
	case "teardown":
		err = runTeardown(os.Args[2:])
	case "version":
		fmt.Printf("plume %s (%s)\n", version, commit)
	case "help", "-h", "--help":
		usage()
	default:
		usage()
		log.Fatalf("\nplume: unknown command %q", cmd)
	}
	if err != nil {
		log.Fatalf("plume: %v", err)
	}
}

func runApply(args []string) error {
	fs := flag.NewFlagSet("apply", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file (YAML or JSON)")
	defsPath := fs.String("definitions", "features.yaml", "Path to the feature definitions file")
	fs.Parse(args)

	ctx := context.Background()
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	path := *defsPath
	if !filepath.IsAbs(path) {
		path = filepath.Join(cfg.RepoPath, path)
	}
	desired, err := registry.LoadDefinitions(path)
	if err != nil {
		return err
	}
	if desired.Project == "" {
		desired.Project = cfg.Project
	}

	reg, err := app.OpenRegistry(ctx, cfg)
	if err != nil {
		return err
	}

	prev, err := reg.GetSnapshot(ctx)
	if err != nil && !errors.Is(err, types.ErrStoreNotFound) {
		return err
	}

	store, err := app.OpenOnlineStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	keep, del := registry.Diff(prev, desired)
	if err := store.Reconcile(ctx, del, keep, nil, nil, false); err != nil {
		return err
	}
	if err := reg.UpdateSnapshot(ctx, desired); err != nil {
		return err
	}

	log.Printf("applied %d table(s), removed %d, registry version %s", len(keep), len(del), desired.VersionID)
	return nil
}

func runGet(args []string) error {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file (YAML or JSON)")
	table := fs.String("table", "", "Feature table to read from")
	features := fs.String("features", "", "Comma-separated feature subset (default: all)")
	fs.Parse(args)

	if *table == "" {
		return fmt.Errorf("get: -table is required")
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("get: at least one field=value argument is required")
	}

	ctx := context.Background()
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	reg, err := app.OpenRegistry(ctx, cfg)
	if err != nil {
		return err
	}
	snap, err := reg.GetSnapshot(ctx)
	if err != nil {
		return err
	}
	schema := snap.Table(*table)
	if schema == nil {
		return fmt.Errorf("get: table %q is not in the registry", *table)
	}

	key, err := parseEntityKey(schema, fs.Args())
	if err != nil {
		return err
	}

	var requested []string
	if *features != "" {
		requested = strings.Split(*features, ",")
	}

	store, err := app.OpenOnlineStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	results, err := store.ReadBatch(ctx, *table, []types.EntityKey{key}, requested)
	if err != nil {
		return err
	}

	result := results[0]
	if result.Features == nil {
		log.Printf("no row for the given entity key")
		return nil
	}

	fmt.Printf("event_ts: %s\n", result.EventTS.Format("2006-01-02T15:04:05Z07:00"))
	names := make([]string, 0, len(result.Features))
	for name := range result.Features {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("%s: %v\n", name, result.Features[name].Native())
	}
	return nil
}

func runTeardown(args []string) error {
	fs := flag.NewFlagSet("teardown", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file (YAML or JSON)")
	fs.Parse(args)

	ctx := context.Background()
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	reg, err := app.OpenRegistry(ctx, cfg)
	if err != nil {
		return err
	}

	var tables []string
	if snap, err := reg.GetSnapshot(ctx); err == nil {
		tables = snap.TableNames()
	} else if !errors.Is(err, types.ErrStoreNotFound) {
		return err
	}

	store, err := app.OpenOnlineStore(cfg)
	if err != nil {
		return err
	}
	if err := store.Teardown(ctx, tables, nil); err != nil {
		return err
	}
	if err := reg.Teardown(ctx); err != nil {
		return err
	}

	log.Printf("repository destroyed")
	return nil
}

// parseEntityKey builds an entity key from field=value arguments, typed per
// the table's entity field schemas.
func parseEntityKey(schema *registry.TableSchema, args []string) (types.EntityKey, error) {
	fields := make(map[string]registry.FieldSchema, len(schema.EntityFields))
	for _, f := range schema.EntityFields {
		fields[f.Name] = f
	}

	key := make(types.EntityKey, len(args))
	for _, arg := range args {
		name, raw, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("get: argument %q is not field=value", arg)
		}
		field, ok := fields[name]
		if !ok {
			return nil, fmt.Errorf("get: %q is not an entity field of table %q", name, schema.Name)
		}

		vt, err := field.ValueType()
		if err != nil {
			return nil, err
		}
		switch vt {
		case types.TypeInt32:
			v, err := strconv.ParseInt(raw, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("get: field %q: %w", name, err)
			}
			key[name] = types.Int32Value(int32(v))
		case types.TypeInt64:
			v, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("get: field %q: %w", name, err)
			}
			key[name] = types.Int64Value(v)
		case types.TypeString:
			key[name] = types.StringValue(raw)
		case types.TypeBytes:
			key[name] = types.BytesValue([]byte(raw))
		default:
			return nil, fmt.Errorf("get: field %q: type %s cannot be an entity key field", name, vt)
		}
	}
	return key, nil
}
