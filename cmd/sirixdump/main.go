// sirixdump prints the metadata of a resource: uber page state and the
// commit metadata of the latest revision root. Earlier revisions are not
// listed.
package main

import (
	"flag"
	"log/slog"
	"os"
	"time"

	sirix "github.com/sirixdb/sirix-go"
	"github.com/sirixdb/sirix-go/internal/resource"
)

func main() {
	dir := flag.String("dir", ".", "resource directory")
	config := flag.String("config", "", "optional resource config file (yaml)")
	flag.Parse()

	cfg := resource.Default(*dir)
	if *config != "" {
		loaded, err := resource.Load(*config)
		if err != nil {
			slog.Error("load config", "err", err)
			os.Exit(1)
		}
		cfg = loaded
		if cfg.Resource.Dir == "" {
			cfg.Resource.Dir = *dir
		}
	}

	rt, err := sirix.OpenWithConfig(cfg, latestRevision(cfg))
	if err != nil {
		slog.Error("open resource", "dir", cfg.Resource.Dir, "err", err)
		os.Exit(1)
	}
	defer rt.Close()

	uber, err := rt.UberPage()
	if err != nil {
		slog.Error("read uber page", "err", err)
		os.Exit(1)
	}
	slog.Info("resource", "dir", cfg.Resource.Dir, "latest_revision", uber.LatestRevision())

	root, err := rt.RevisionRoot()
	if err != nil {
		slog.Error("read revision root", "err", err)
		os.Exit(1)
	}
	slog.Info("revision",
		"number", root.Revision(),
		"committed", time.UnixMilli(root.Timestamp()).UTC().Format(time.RFC3339),
		"author", root.Author(),
		"message", root.Message(),
		"commit_id", root.CommitID().String(),
		"max_node_key", root.MaxNodeKey())
}

func latestRevision(cfg resource.Config) int32 {
	// Bind to revision 0 first just to learn the latest, then reopen.
	probe, err := sirix.OpenWithConfig(cfg, 0)
	if err != nil {
		return 0
	}
	defer probe.Close()
	uber, err := probe.UberPage()
	if err != nil {
		return 0
	}
	return uber.LatestRevision()
}
