package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pxh52013145/ragvideo/internal/config"
	syncpkg "github.com/pxh52013145/ragvideo/internal/sync"
)

func newScanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Reconcile local, object store, and RAG into a classified item list",
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps, err := buildDeps()
			if err != nil {
				return err
			}

			snapshot, err := syncpkg.OpenSnapshot(cmd.Context(),
				filepath.Join(config.DefaultConfigDir(), "sync.db"), deps.logger)
			if err != nil {
				return err
			}
			defer snapshot.Close()

			result, err := deps.buildEngine(snapshot).Scan(cmd.Context())
			if err != nil {
				return err
			}

			if flagJSON {
				return printResult(result)
			}

			printScanTable(result)

			return nil
		},
	}
}

// printScanTable renders the human-readable listing.
func printScanTable(result *syncpkg.ScanResult) {
	fmt.Printf("profile: %s   bucket: %s   items: %d\n\n",
		result.Profile, result.Bucket, len(result.Items))

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STATUS\tTITLE\tPLATFORM\tVIDEO\tSOURCE KEY")

	for _, item := range result.Items {
		title := item.Title
		if len(title) > 40 {
			title = title[:37] + "..."
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			item.Status, title, item.Platform, item.VideoID, item.SourceKey)
	}

	w.Flush()
}
