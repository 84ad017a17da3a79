package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"spotshare/internal/audit"
	"spotshare/internal/model"
)

func newExportCmd(configPath *string) *cobra.Command {
	var (
		out         string
		resourceID  string
		requesterID string
		status      string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export spots and reservations to an XLSX workbook",
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := model.ReservationFilter{
				ResourceID:  resourceID,
				RequesterID: requesterID,
				Status:      model.Status(status),
			}
			if filter.Status != "" && !filter.Status.Valid() {
				return fmt.Errorf("invalid --status %q", status)
			}

			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			if out == "" {
				out = audit.Filename(time.Now().In(a.loc))
			}
			f, err := os.Create(out)
			if err != nil {
				return err
			}

			exporter := audit.NewExporter(a.store, a.loc, a.logger)
			if err := exporter.Export(context.Background(), f, filter); err != nil {
				_ = f.Close()
				_ = os.Remove(out)
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}

	cmd.Flags().StringVar(&out, "out", "", "output file (default reservations_YYYY-MM.xlsx)")
	cmd.Flags().StringVar(&resourceID, "resource", "", "only reservations of this spot")
	cmd.Flags().StringVar(&requesterID, "requester", "", "only reservations of this requester")
	cmd.Flags().StringVar(&status, "status", "", "only reservations with this status")
	return cmd
}
