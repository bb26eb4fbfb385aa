// Package main provides the Freeform CLI entry point.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/madmoo-Pi/Freeform-ai/pkg/config"
	"github.com/madmoo-Pi/Freeform-ai/pkg/embed"
	"github.com/madmoo-Pi/Freeform-ai/pkg/freeform"
	"github.com/madmoo-Pi/Freeform-ai/pkg/snapshot"
	"github.com/madmoo-Pi/Freeform-ai/pkg/store"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	// .env is optional; FREEFORM_* variables override file config either way.
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "freeform",
		Short: "Freeform - Associative Memory Engine",
		Long: `Freeform is an associative memory engine: concepts are stored as
embedded vectors, linked to their nearest neighbors by cosine
similarity, and recalled by spreading activation across the
association graph.

Features:
  • Automatic similarity linking on insert
  • Spreading-activation recall with per-hop decay
  • Importance-scored eviction under a capacity bound
  • Checksummed snapshots with optional at-rest encryption
  • Ollama / OpenAI-compatible embedding providers`,
	}
	rootCmd.PersistentFlags().String("config", "", "Path to YAML config file")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Freeform v%s (%s)\n", version, commit)
		},
	})

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a Freeform data directory",
		RunE:  runInit,
	}
	initCmd.Flags().String("data-dir", "./data", "Data directory")
	rootCmd.AddCommand(initCmd)

	shellCmd := &cobra.Command{
		Use:   "shell",
		Short: "Interactive memory shell",
		Long:  "Start an interactive shell against an in-process engine. State loads from and saves to the snapshot archive.",
		RunE:  runShell,
	}
	rootCmd.AddCommand(shellCmd)

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the engine with periodic snapshots",
		Long:  "Load the latest snapshot, then snapshot on the configured cron schedule until interrupted.",
		RunE:  runDaemon,
	}
	rootCmd.AddCommand(runCmd)

	snapshotCmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Snapshot archive operations",
	}
	snapshotCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List archived snapshots",
		RunE:  runSnapshotList,
	})
	rootCmd.AddCommand(snapshotCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.FromEnvOrFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newProvider builds the embedding provider the config asks for, wrapped
// in the LRU cache so repeated payloads embed once.
func newProvider(cfg *config.Config) embed.Provider {
	var base embed.Provider
	if cfg.Embedding.Provider == "hash" {
		base = embed.NewHash(cfg.Engine.Dimension)
	} else {
		base = embed.NewHTTP(&cfg.Embedding)
	}
	return embed.NewCached(base, 0)
}

func openArchive(cfg *config.Config) (*snapshot.Archive, error) {
	return snapshot.OpenArchive(snapshot.ArchiveOptions{
		Dir:        cfg.Snapshot.Dir,
		SyncWrites: cfg.Snapshot.SyncWrites,
		Encryptor:  snapshot.NewEncryptor(cfg.Snapshot.Passphrase),
	})
}

// openEngine builds the engine and restores the newest archived snapshot
// when one exists.
func openEngine(cfg *config.Config) (*freeform.Engine, *snapshot.Archive, error) {
	eng, err := freeform.New(cfg, newProvider(cfg))
	if err != nil {
		return nil, nil, err
	}

	archive, err := openArchive(cfg)
	if err != nil {
		return nil, nil, err
	}

	blob, meta, err := archive.Latest()
	switch {
	case errors.Is(err, snapshot.ErrNoSnapshots):
		// Fresh start.
	case err != nil:
		archive.Close()
		return nil, nil, err
	default:
		if err := eng.Restore(blob); err != nil {
			archive.Close()
			return nil, nil, fmt.Errorf("restoring snapshot %s: %w", meta.ID, err)
		}
		fmt.Printf("📂 Restored snapshot %s (%s, %d entries)\n",
			meta.ID, meta.CreatedAt.Format(time.RFC3339), eng.Len())
	}
	return eng, archive, nil
}

func saveSnapshot(eng *freeform.Engine, archive *snapshot.Archive) (*snapshot.Meta, error) {
	blob, err := eng.Save()
	if err != nil {
		return nil, err
	}
	return archive.Put(blob)
}

func runInit(cmd *cobra.Command, args []string) error {
	dataDir, _ := cmd.Flags().GetString("data-dir")

	fmt.Printf("📂 Initializing Freeform data directory in %s\n", dataDir)

	for _, dir := range []string{dataDir, filepath.Join(dataDir, "snapshots")} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	configPath := filepath.Join(dataDir, "freeform.yaml")
	configContent := `# Freeform Configuration
engine:
  dimension: 1024
  capacity: 10000

linker:
  top_k: 5
  threshold: 0.3

recall:
  decay: 0.8
  threshold: 0.2

embedding:
  provider: ollama
  api_url: http://localhost:11434
  model: mxbai-embed-large
  dimensions: 1024

snapshot:
  dir: ` + filepath.Join(dataDir, "snapshots") + `
  # interval: "@every 10m"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Println("✅ Data directory initialized")
	fmt.Printf("   Config: %s\n", configPath)
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  1. Start the shell:   freeform shell --config", configPath)
	fmt.Println("  2. Or run the engine: freeform run --config", configPath)
	return nil
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	fmt.Printf("🚀 Starting Freeform v%s\n", version)
	fmt.Printf("   %s\n", cfg)

	eng, archive, err := openEngine(cfg)
	if err != nil {
		return err
	}
	defer archive.Close()
	defer eng.Close()

	scheduler := cron.New()
	if cfg.Snapshot.Interval != "" {
		_, err := scheduler.AddFunc(cfg.Snapshot.Interval, func() {
			meta, err := saveSnapshot(eng, archive)
			if err != nil {
				fmt.Fprintf(os.Stderr, "snapshot failed: %v\n", err)
				return
			}
			fmt.Printf("💾 Snapshot %s (%d bytes)\n", meta.ID, meta.Size)
		})
		if err != nil {
			return fmt.Errorf("invalid snapshot interval %q: %w", cfg.Snapshot.Interval, err)
		}
		scheduler.Start()
		defer scheduler.Stop()
		fmt.Printf("   Snapshots:  %s\n", cfg.Snapshot.Interval)
	}

	fmt.Println()
	fmt.Println("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	fmt.Println("\n🛑 Shutting down...")
	if meta, err := saveSnapshot(eng, archive); err != nil {
		fmt.Fprintf(os.Stderr, "final snapshot failed: %v\n", err)
	} else {
		fmt.Printf("💾 Final snapshot %s\n", meta.ID)
	}
	fmt.Println("✅ Stopped")
	return nil
}

func runSnapshotList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	archive, err := openArchive(cfg)
	if err != nil {
		return err
	}
	defer archive.Close()

	metas, err := archive.List()
	if err != nil {
		return err
	}
	if len(metas) == 0 {
		fmt.Println("No snapshots in archive")
		return nil
	}
	for _, m := range metas {
		enc := ""
		if m.Encrypted {
			enc = " 🔒"
		}
		fmt.Printf("%s  %s  %d bytes%s\n", m.ID, m.CreatedAt.Format(time.RFC3339), m.Size, enc)
	}
	return nil
}

func runShell(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	eng, archive, err := openEngine(cfg)
	if err != nil {
		return err
	}
	defer archive.Close()
	defer eng.Close()

	fmt.Printf("Freeform v%s interactive shell\n", version)
	fmt.Println("Type 'help' for commands, 'exit' or Ctrl+D to quit")
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Print("freeform> ")
		if !scanner.Scan() {
			fmt.Println()
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}
		if err := dispatch(eng, archive, line); err != nil {
			fmt.Printf("error: %v\n", err)
		}
	}
	return scanner.Err()
}

func dispatch(eng *freeform.Engine, archive *snapshot.Archive, line string) error {
	fields := strings.Fields(line)
	command, rest := fields[0], fields[1:]

	switch command {
	case "help":
		fmt.Println("Commands:")
		fmt.Println("  insert <payload...>       store a concept")
		fmt.Println("  get <id>                  show a concept")
		fmt.Println("  recall <id> <depth>       spread activation from a concept")
		fmt.Println("  neighbors <id>            list direct associations")
		fmt.Println("  link <a> <b> <weight>     associate two concepts")
		fmt.Println("  touch <id>                record an access")
		fmt.Println("  remove <id>               delete a concept and its edges")
		fmt.Println("  save                      snapshot to the archive")
		fmt.Println("  snapshots                 list archived snapshots")
		fmt.Println("  stats                     engine counters")
		return nil

	case "insert":
		if len(rest) == 0 {
			return errors.New("usage: insert <payload...>")
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		id, err := eng.Insert(ctx, strings.Join(rest, " "), nil)
		if err != nil {
			return err
		}
		fmt.Printf("stored as id %d\n", id)
		return nil

	case "get":
		id, err := parseID(rest, 1)
		if err != nil {
			return err
		}
		entry, err := eng.Get(id)
		if err != nil {
			return err
		}
		out, _ := json.MarshalIndent(map[string]any{
			"id":            entry.ID,
			"payload":       entry.Payload,
			"access_count":  entry.AccessCount,
			"strength":      entry.Strength,
			"created_at":    entry.CreatedAt.Format(time.RFC3339),
			"last_accessed": entry.LastAccessed.Format(time.RFC3339),
		}, "", "  ")
		fmt.Println(string(out))
		return nil

	case "recall":
		if len(rest) != 2 {
			return errors.New("usage: recall <id> <depth>")
		}
		id, err := parseID(rest, 1)
		if err != nil {
			return err
		}
		depth, err := strconv.Atoi(rest[1])
		if err != nil {
			return fmt.Errorf("invalid depth %q", rest[1])
		}
		results, err := eng.Recall(id, depth)
		if err != nil {
			return err
		}
		if len(results) == 0 {
			fmt.Println("no associations surfaced")
			return nil
		}
		for _, r := range results {
			entry, err := eng.Get(r.ID)
			if err != nil {
				continue
			}
			fmt.Printf("  %.4f  [%d] %s\n", r.Activation, r.ID, entry.Payload)
		}
		return nil

	case "neighbors":
		id, err := parseID(rest, 1)
		if err != nil {
			return err
		}
		neighbors, err := eng.Neighbors(id)
		if err != nil {
			return err
		}
		if len(neighbors) == 0 {
			fmt.Println("no associations")
			return nil
		}
		ids := make([]store.ID, 0, len(neighbors))
		for nb := range neighbors {
			ids = append(ids, nb)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, nb := range ids {
			fmt.Printf("  [%d] weight %.4f\n", nb, neighbors[nb])
		}
		return nil

	case "link":
		if len(rest) != 3 {
			return errors.New("usage: link <a> <b> <weight>")
		}
		a, err := parseID(rest, 3)
		if err != nil {
			return err
		}
		b, err := parseID(rest[1:], 2)
		if err != nil {
			return err
		}
		weight, err := strconv.ParseFloat(rest[2], 64)
		if err != nil {
			return fmt.Errorf("invalid weight %q", rest[2])
		}
		return eng.Link(a, b, weight)

	case "touch":
		id, err := parseID(rest, 1)
		if err != nil {
			return err
		}
		return eng.Touch(id)

	case "remove":
		id, err := parseID(rest, 1)
		if err != nil {
			return err
		}
		return eng.Remove(id)

	case "save":
		meta, err := saveSnapshot(eng, archive)
		if err != nil {
			return err
		}
		fmt.Printf("💾 Snapshot %s (%d bytes)\n", meta.ID, meta.Size)
		return nil

	case "snapshots":
		metas, err := archive.List()
		if err != nil {
			return err
		}
		for _, m := range metas {
			fmt.Printf("  %s  %s  %d bytes\n", m.ID, m.CreatedAt.Format(time.RFC3339), m.Size)
		}
		return nil

	case "stats":
		out, _ := json.MarshalIndent(eng.Stats(), "", "  ")
		fmt.Println(string(out))
		return nil

	default:
		return fmt.Errorf("unknown command %q (try 'help')", command)
	}
}

func parseID(fields []string, want int) (store.ID, error) {
	if len(fields) < 1 {
		return 0, fmt.Errorf("expected %d argument(s)", want)
	}
	raw, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q", fields[0])
	}
	return store.ID(raw), nil
}
