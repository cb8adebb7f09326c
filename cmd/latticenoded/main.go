// Command latticenoded mounts a chunk-store filesystem at a given
// mount point, backed by one or more chunk roots and a manifest root.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/latticefs/node/internal/chunkstore"
	"github.com/latticefs/node/internal/fsadapter"
	"github.com/latticefs/node/internal/mesh"
)

// rootList collects repeated -root flags into an ordered slice.
type rootList []string

func (r *rootList) String() string { return strings.Join(*r, ",") }

func (r *rootList) Set(v string) error {
	*r = append(*r, v)
	return nil
}

type config struct {
	mountPoint   string
	chunkRoots   rootList
	quotaBytes   int64
	manifestRoot string
	logLevel     string
}

func parseFlags() config {
	var cfg config
	flag.StringVar(&cfg.mountPoint, "mount", "", "directory to mount the filesystem at (required)")
	flag.Var(&cfg.chunkRoots, "root", "chunk storage root (repeatable; at least one required)")
	flag.Int64Var(&cfg.quotaBytes, "quota-bytes", 0, "byte quota across all chunk roots (0 = unbounded)")
	flag.StringVar(&cfg.manifestRoot, "manifest-root", "", "backing directory for manifests and real subdirectories (required)")
	flag.StringVar(&cfg.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()
	return cfg
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func main() {
	cfg := parseFlags()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(cfg.logLevel)}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("latticenoded exiting", "error", err)
		os.Exit(1)
	}
}

func run(cfg config, logger *slog.Logger) error {
	if cfg.mountPoint == "" {
		return fmt.Errorf("latticenoded: -mount is required")
	}
	if cfg.manifestRoot == "" {
		return fmt.Errorf("latticenoded: -manifest-root is required")
	}
	if len(cfg.chunkRoots) == 0 {
		return fmt.Errorf("latticenoded: at least one -root is required")
	}

	collab := mesh.Logging{Next: mesh.NullCollaborator{}, Logger: logger}
	store, err := chunkstore.New(cfg.chunkRoots, cfg.quotaBytes, collab)
	if err != nil {
		return fmt.Errorf("latticenoded: open chunk store: %w", err)
	}

	if err := os.MkdirAll(cfg.manifestRoot, 0o755); err != nil {
		return fmt.Errorf("latticenoded: prepare manifest root: %w", err)
	}

	adapter := &fsadapter.Adapter{BackingRoot: cfg.manifestRoot, Store: store}

	logger.Info("mounting",
		"mount", cfg.mountPoint,
		"roots", []string(cfg.chunkRoots),
		"manifest_root", cfg.manifestRoot,
		"quota_bytes", cfg.quotaBytes,
	)

	server, err := fs.Mount(cfg.mountPoint, adapter.Root(), &fs.Options{
		MountOptions: fuse.MountOptions{
			FsName:  "latticefs",
			Name:    "latticefs",
			Options: []string{"default_permissions"},
		},
	})
	if err != nil {
		return fmt.Errorf("latticenoded: mount %s: %w", cfg.mountPoint, err)
	}

	server.Wait()
	return nil
}
