package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nadmax/nightlies/internal/api"
	"github.com/nadmax/nightlies/internal/config"
)

func runSnapshot(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.cfg.CheckToken(); err != nil {
		return fmt.Errorf("%w: set GITHUB_TOKEN", config.ErrMissingToken)
	}

	guides, err := a.aggregator.Aggregate(ctx)
	if err != nil {
		return err
	}

	resp := api.StatusResponse{
		Guides:   guides,
		CachedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}

	if saveResult {
		entry, handle := a.snapshots.Save(ctx, guides)
		if err := handle.Wait(a.cfg.Cache.WriteTimeout + time.Second); err != nil {
			return fmt.Errorf("failed to save snapshot: %w", err)
		}
		resp.CachedAt = entry.CachedAt
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}
