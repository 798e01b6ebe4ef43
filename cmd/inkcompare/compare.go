package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/adverant/nexus/inkcompare/internal/processor"
)

func newCompareCmd(a *app) *cobra.Command {
	var (
		weightText float64
		output     string
	)

	cmd := &cobra.Command{
		Use:   "compare <file1.pdf> <file2.pdf>",
		Short: "Compare two local PDFs and print the result as JSON",
		Args:  cobra.ExactArgs(2),
		Example: `  inkcompare compare homework_a.pdf homework_b.pdf
  inkcompare compare a.pdf b.pdf --weight-text 0.7 -o result.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			file1, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}
			file2, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[1], err)
			}

			rt, err := a.newServices(ctx)
			if err != nil {
				return err
			}
			defer rt.Close(a.logger)

			req := &processor.CompareRequest{
				File1:     file1,
				File2:     file2,
				Filename1: filepath.Base(args[0]),
				Filename2: filepath.Base(args[1]),
			}
			if cmd.Flags().Changed("weight-text") {
				req.WeightText = &weightText
			}

			resp, err := rt.processor.Compare(ctx, req)
			if err != nil {
				return err
			}

			data, err := json.MarshalIndent(resp.Result, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode result: %w", err)
			}
			data = append(data, '\n')

			if output == "" || output == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			return os.WriteFile(output, data, 0o644)
		},
	}

	cmd.Flags().Float64Var(&weightText, "weight-text", 0.5, "weight of text similarity in the similarity index (overrides WEIGHT_TEXT)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the JSON result to a file instead of stdout")

	return cmd
}
