package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"
)

// errValuesLabels is returned when the values command lacks a label.
var errValuesLabels = errors.New("values requires -device and -var")

// runValues prints the latest readings of one device/variable label pair.
func (a *app) runValues(ctx context.Context, deviceLabel, variableLabel string, limit int) error {
	if deviceLabel == "" || variableLabel == "" {
		return errValuesLabels
	}

	client, err := a.connect(ctx)
	if err != nil {
		return err
	}

	readings, err := client.ValuesCSV(ctx, deviceLabel, variableLabel, limit)
	if err != nil {
		return fmt.Errorf("reading %s/%s: %w", deviceLabel, variableLabel, err)
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tCREATED\tVALUE")
	for _, r := range readings {
		fmt.Fprintf(tw, "%s\t%s\t%s\n",
			r.Time().Format(time.RFC3339), r.CreatedAt, strconv.FormatFloat(r.Value, 'f', -1, 64))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%d values of %s/%s\n", len(readings), deviceLabel, variableLabel)
	return nil
}
