package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dchud/unalog2/internal/importer"
)

var (
	importDir    string
	importBucket string
	importPrefix string
	importReset  bool
	importIndex  bool
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load a legacy JSON dump from a directory or a bucket",
	Long: `Load a legacy JSON dump: group.json plus users/<name>.json.

Users keep their legacy password hashes and are upgraded to bcrypt on
their next sign-in. Entries keep their original dates.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if (importDir == "") == (importBucket == "") {
			return errors.New("exactly one of --dir or --bucket is required")
		}
		e, err := openEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		var src importer.Source = importer.DirSource{Root: importDir}
		if importBucket != "" {
			src, err = importer.NewBucketSource(importer.BucketConfig{
				Endpoint:  e.cfg.DumpEndpoint,
				AccessKey: e.cfg.DumpAccessKey,
				SecretKey: e.cfg.DumpSecretKey,
				UseSSL:    e.cfg.DumpUseSSL,
				Bucket:    importBucket,
				Prefix:    importPrefix,
			})
			if err != nil {
				return err
			}
		}

		report, err := importer.New(e.store, e.log).Run(cmd.Context(), src, importer.Options{Reset: importReset})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d groups (%d duplicate), %d users (%d skipped), %d filters, %d entries (%d skipped)\n",
			report.Groups, report.DuplicateGroups, report.Users, report.SkippedUsers,
			report.Filters, report.Entries, report.SkippedEntries)

		if importIndex {
			if importReset {
				if err := e.mirror.Zap(0); err != nil {
					return err
				}
			}
			indexReport, err := e.mirror.Reindex(cmd.Context(), 0)
			if err != nil {
				return err
			}
			printReport(cmd, indexReport)
		}
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importDir, "dir", "", "dump directory")
	importCmd.Flags().StringVar(&importBucket, "bucket", "", "dump bucket on DUMP_S3_ENDPOINT")
	importCmd.Flags().StringVar(&importPrefix, "prefix", "", "key prefix of the dump inside the bucket")
	importCmd.Flags().BoolVar(&importReset, "reset", false, "empty all tables before importing")
	importCmd.Flags().BoolVar(&importIndex, "index", false, "reindex everything after importing")
	rootCmd.AddCommand(importCmd)
}
