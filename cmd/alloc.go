package cmd

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"mu-scheduler/internal/allocation"
	"mu-scheduler/internal/wifi"

	"github.com/spf13/cobra"
)

func newAllocCmd() *cobra.Command {
	var (
		width     int
		policy    string
		demands   string
		maxRUs    int
		central26 bool
	)
	cmd := &cobra.Command{
		Use:   "alloc",
		Short: "Evaluate the RU allocator for a set of demands",
		Long:  "Runs one allocation for the given channel width, policy and comma-separated per-station demands (bytes) and prints the plan",
		RunE: func(cmd *cobra.Command, args []string) error {
			weights, err := parseDemands(demands)
			if err != nil {
				return err
			}
			w, err := wifi.ParseChannelWidth(width)
			if err != nil {
				return err
			}
			p, err := allocation.ParsePolicy(policy)
			if err != nil {
				return err
			}
			plan, err := evaluateAllocation(p, allocation.Request{
				Width:        w,
				Weights:      weights,
				MaxRUs:       maxRUs,
				UseCentral26: central26,
			})
			if err != nil {
				return err
			}
			printPlan(cmd.OutOrStdout(), plan, weights)
			return nil
		},
	}
	cmd.Flags().IntVar(&width, "width", 20, "Channel width in MHz (20, 40, 80, 160)")
	cmd.Flags().StringVar(&policy, "policy", "equal-split", "Allocation policy (equal-split, proportional)")
	cmd.Flags().StringVar(&demands, "demands", "", "Comma-separated per-station demands in bytes")
	cmd.Flags().IntVar(&maxRUs, "max-rus", 0, "Cap on the number of RUs (0 = width maximum)")
	cmd.Flags().BoolVar(&central26, "central26", false, "Hand leftover central 26-tone RUs to unserved stations")
	cmd.MarkFlagRequired("demands")
	return cmd
}

func parseDemands(s string) ([]uint64, error) {
	var out []uint64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid demand %q: %w", part, err)
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no demands given")
	}
	return out, nil
}

func evaluateAllocation(p allocation.Policy, req allocation.Request) (*allocation.Plan, error) {
	allocator, err := allocation.NewAllocator(p)
	if err != nil {
		return nil, err
	}
	return allocator.Allocate(req)
}

func printPlan(out io.Writer, plan *allocation.Plan, weights []uint64) {
	fmt.Fprintf(out, "width=%s policy=%s units=%d/%d bandwidth=%dMHz truncated=%t\n",
		plan.Width, plan.Policy, plan.UnitsUsed, plan.UnitsTotal, plan.BandwidthMHz(), plan.Truncated())

	var capacity []string
	for _, c := range allocation.ToneClasses {
		if n, err := allocation.Capacity(plan.Width, c); err == nil && n > 0 {
			capacity = append(capacity, fmt.Sprintf("%s=%d", c, n))
		}
	}
	fmt.Fprintf(out, "capacity: %s\n", strings.Join(capacity, " "))

	for i, demand := range weights {
		ru, ok := plan.RUFor(i)
		if !ok {
			fmt.Fprintf(out, "  station %d demand=%d unserved\n", i+1, demand)
			continue
		}
		first, last, err := allocation.Coverage(plan.Width, ru)
		if err != nil {
			fmt.Fprintf(out, "  station %d demand=%d ru=%s\n", i+1, demand, ru)
			continue
		}
		fmt.Fprintf(out, "  station %d demand=%d ru=%s tones=%d-%d\n", i+1, demand, ru, first, last)
	}
}
