package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/randalmurphal/tasksync/internal/plugin"
)

// maxConcurrentSyncs bounds the sync fan-out so a many-source setup does not
// open every remote connection at once.
const maxConcurrentSyncs = 4

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync [source-id...]",
		Short: "Import tasks from configured sources",
		Long: `Sync runs each source's import: a first sync fetches the open workload,
subsequent syncs fetch everything modified in the lookback window. Sources
sync concurrently; per-record failures are reported but never abort a run.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			ids := args
			if len(ids) == 0 {
				for _, sc := range a.cfg.Sources {
					ids = append(ids, sc.ID)
				}
			}
			if len(ids) == 0 {
				return fmt.Errorf("no sources configured")
			}

			type outcome struct {
				id     string
				result *plugin.SyncResult
				err    error
			}
			outcomes := make([]outcome, len(ids))

			g, gctx := errgroup.WithContext(ctx)
			g.SetLimit(maxConcurrentSyncs)
			for i, id := range ids {
				g.Go(func() error {
					result, err := a.syncOne(gctx, id)
					outcomes[i] = outcome{id: id, result: result, err: err}
					// A failed source does not cancel its siblings.
					return nil
				})
			}
			_ = g.Wait()

			failed := 0
			for _, o := range outcomes {
				if o.err != nil {
					failed++
					fmt.Printf("%-20s FAILED: %v\n", o.id, o.err)
					continue
				}
				fmt.Printf("%-20s imported %d, updated %d, errors %d\n",
					o.id, o.result.Imported, o.result.Updated, len(o.result.Errors))
				if verbose {
					for _, msg := range o.result.Errors {
						fmt.Printf("  - %s\n", msg)
					}
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d sources failed", failed, len(ids))
			}
			return nil
		},
	}
	return cmd
}

// syncOne validates and imports a single source.
func (a *app) syncOne(ctx context.Context, id string) (*plugin.SyncResult, error) {
	src, err := a.store.GetTaskSource(ctx, id)
	if err != nil {
		return nil, err
	}
	p, err := newPlugin(src)
	if err != nil {
		return nil, err
	}
	if err := p.ValidateConfig(src.Config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return p.ImportTasks(ctx, src.ID, src.Config, a.env)
}
