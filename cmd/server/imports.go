package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/rpattn/drillops/internal/ingestion"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newUploadCmd(a *app) *cobra.Command {
	var commit bool

	cmd := &cobra.Command{
		Use:   "upload FILE",
		Short: "Stage a CSV or XLSX report and print its validation report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer file.Close()

			svc, err := a.connect(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer svc.Close()

			result, err := svc.ingestion.Upload(cmd.Context(), ingestion.UploadRequest{
				FileName: filepath.Base(args[0]),
				Data:     file,
			})
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), result); err != nil {
				return err
			}
			if !commit {
				return nil
			}

			committed, err := svc.ingestion.Commit(cmd.Context(), result.BatchID)
			if err != nil {
				return err
			}
			return printCommit(cmd.OutOrStdout(), committed)
		},
	}
	cmd.Flags().BoolVar(&commit, "commit", false, "commit the batch right after staging")
	return cmd
}

func newValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate BATCH_ID",
		Short: "Re-validate a staged batch against current reference data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			batchID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid batch id: %w", err)
			}
			svc, err := a.connect(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer svc.Close()

			report, err := svc.ingestion.Validate(cmd.Context(), batchID)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}
}

func newCommitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "commit BATCH_ID",
		Short: "Promote the valid rows of a batch into drilling records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			batchID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid batch id: %w", err)
			}
			svc, err := a.connect(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer svc.Close()

			result, err := svc.ingestion.Commit(cmd.Context(), batchID)
			if err != nil {
				return err
			}
			return printCommit(cmd.OutOrStdout(), result)
		},
	}
}

func newBatchesCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "batches",
		Short: "List staged batches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.connect(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer svc.Close()

			batches, err := svc.ingestion.ListBatches(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), batches)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "BATCH\tFILE\tSTATUS\tTOTAL\tPENDING\tIMPORTED\tCREATED")
			for _, b := range batches {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
					b.BatchID, b.FileName, b.Status, b.TotalRows, b.Pending, b.Imported, b.CreatedAt.Format("2006-01-02 15:04"))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func newDiscardCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "discard BATCH_ID",
		Short: "Delete the pending rows of a batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			batchID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid batch id: %w", err)
			}
			svc, err := a.connect(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer svc.Close()

			removed, err := svc.ingestion.Discard(cmd.Context(), batchID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "discarded %d pending rows from %s\n", removed, batchID)
			return nil
		},
	}
}

func printCommit(w io.Writer, result ingestion.CommitResult) error {
	if err := printJSON(w, result); err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("commit refused: %s", result.Message)
	}
	return nil
}

func printJSON(w io.Writer, payload any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}
