// Command agentctl is the operator CLI for driving a running agentd's
// HTTP API, wired with github.com/spf13/cobra per SPEC_FULL.md §11 —
// the teacher's go.mod already pulls cobra in; this promotes it from an
// indirect dependency to one this repo's own code exercises.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var agentAddr string

func main() {
	root := &cobra.Command{
		Use:   "agentctl",
		Short: "Operator CLI for the Liquity V2 interest-rate agent",
	}
	root.PersistentFlags().StringVar(&agentAddr, "addr", "http://127.0.0.1:8090", "agentd HTTP API base URL")

	root.AddCommand(
		startCmd(),
		assignKeysCmd(),
		mintStrategyCmd(),
		setBatchManagerCmd(),
		startTimersCmd(),
		swapCkETHCmd(),
		haltStatusCmd(),
		logsCmd(),
		rankedProvidersCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func startCmd() *cobra.Command {
	var count uint32
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Set the fleet's strategy count (start(n))",
		RunE: func(cmd *cobra.Command, args []string) error {
			return postJSON("/api/start", map[string]uint32{"count": count}, os.Stdout)
		},
	}
	cmd.Flags().Uint32Var(&count, "count", 0, "number of strategies to manage")
	cmd.MarkFlagRequired("count")
	return cmd
}

func assignKeysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "assign-keys",
		Short: "Derive EOAs for every unassigned strategy key",
		RunE: func(cmd *cobra.Command, args []string) error {
			return postJSON("/api/assign_keys", nil, os.Stdout)
		},
	}
}

func mintStrategyCmd() *cobra.Command {
	var key uint32
	var manager, hintHelper, multiTroveGetter, sortedTroves, collRegistry string
	var collIndex uint32
	var upfrontFeePeriod int64
	var targetMinDebtFraction string
	cmd := &cobra.Command{
		Use:   "mint-strategy",
		Short: "Bind a strategy key's immutable on-chain addresses and policy settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]interface{}{
				"key":                          key,
				"manager_address":              manager,
				"hint_helper_address":          hintHelper,
				"multi_trove_getter_address":   multiTroveGetter,
				"sorted_troves_address":        sortedTroves,
				"collateral_registry_address":  collRegistry,
				"collateral_index":             collIndex,
				"upfront_fee_period_seconds":   upfrontFeePeriod,
				"target_min_debt_fraction":     targetMinDebtFraction,
			}
			return postJSON("/api/mint_strategy", body, os.Stdout)
		},
	}
	cmd.Flags().Uint32Var(&key, "key", 0, "strategy key")
	cmd.Flags().StringVar(&manager, "manager", "", "trove manager address")
	cmd.Flags().StringVar(&hintHelper, "hint-helper", "", "hint helpers address")
	cmd.Flags().StringVar(&multiTroveGetter, "multi-trove-getter", "", "multi trove getter address")
	cmd.Flags().StringVar(&sortedTroves, "sorted-troves", "", "sorted troves address")
	cmd.Flags().StringVar(&collRegistry, "collateral-registry", "", "collateral registry address")
	cmd.Flags().Uint32Var(&collIndex, "collateral-index", 0, "collateral branch index")
	cmd.Flags().Int64Var(&upfrontFeePeriod, "upfront-fee-period-seconds", 0, "upfront fee period, seconds")
	cmd.Flags().StringVar(&targetMinDebtFraction, "target-min-debt-fraction", "", "D_min, e18 decimal string")
	return cmd
}

func setBatchManagerCmd() *cobra.Command {
	var key uint32
	var address, initialRate string
	cmd := &cobra.Command{
		Use:   "set-batch-manager",
		Short: "Bind a strategy's deployed batch manager contract and starting rate",
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]interface{}{"key": key, "address": address, "initial_rate": initialRate}
			return postJSON("/api/set_batch_manager", body, os.Stdout)
		},
	}
	cmd.Flags().Uint32Var(&key, "key", 0, "strategy key")
	cmd.Flags().StringVar(&address, "address", "", "batch manager contract address")
	cmd.Flags().StringVar(&initialRate, "initial-rate", "", "starting annual interest rate, e18 decimal string")
	return cmd
}

func startTimersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start-timers",
		Short: "Launch the hourly strategy, 24h mint, and weekly halting timers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return postJSON("/api/start_timers", nil, os.Stdout)
		},
	}
}

func swapCkETHCmd() *cobra.Command {
	var recipient string
	var attachedCycles uint64
	cmd := &cobra.Command{
		Use:   "swap-cketh",
		Short: "Exchange cycles for discounted ckETH (swap_cketh)",
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]interface{}{"recipient": recipient, "attached_cycles": attachedCycles}
			return postJSON("/api/swap_cketh", body, os.Stdout)
		},
	}
	cmd.Flags().StringVar(&recipient, "recipient", "", "recipient ckETH address")
	cmd.Flags().Uint64Var(&attachedCycles, "attached-cycles", 0, "cycles offered for the swap")
	return cmd
}

func haltStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "halt-status",
		Short: "Print the fleet's current halting phase",
		RunE: func(cmd *cobra.Command, args []string) error {
			return getJSON("/api/halt_status", os.Stdout)
		},
	}
}

func logsCmd() *cobra.Command {
	var offset uint64
	var strategyKey uint32
	var rechargeOnly bool
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Fetch a page of journal entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := fmt.Sprintf("/api/logs?offset=%d", offset)
			if cmd.Flags().Changed("strategy-key") {
				path = fmt.Sprintf("/api/strategy_logs?offset=%d&key=%d", offset, strategyKey)
			} else if rechargeOnly {
				path = fmt.Sprintf("/api/recharge_logs?offset=%d", offset)
			}
			return getJSON(path, os.Stdout)
		},
	}
	cmd.Flags().Uint64Var(&offset, "offset", 0, "pagination offset")
	cmd.Flags().Uint32Var(&strategyKey, "strategy-key", 0, "restrict to one strategy's entries")
	cmd.Flags().BoolVar(&rechargeOnly, "recharge", false, "restrict to recharge entries")
	return cmd
}

func rankedProvidersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ranked-providers",
		Short: "List RPC providers ordered by current reputation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return getJSON("/api/ranked_providers", os.Stdout)
		},
	}
}

var httpClient = &http.Client{Timeout: 2 * time.Minute}

func postJSON(path string, body interface{}, out io.Writer) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	resp, err := httpClient.Post(agentAddr+path, "application/json", reader)
	if err != nil {
		return fmt.Errorf("calling %s: %w", path, err)
	}
	defer resp.Body.Close()
	return printResponse(resp, out)
}

func getJSON(path string, out io.Writer) error {
	resp, err := httpClient.Get(agentAddr + path)
	if err != nil {
		return fmt.Errorf("calling %s: %w", path, err)
	}
	defer resp.Body.Close()
	return printResponse(resp, out)
}

func printResponse(resp *http.Response, out io.Writer) error {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, mustReadAll(resp.Body), "", "  "); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	fmt.Fprintln(out, pretty.String())
	if resp.StatusCode >= 400 {
		return fmt.Errorf("agentd returned status %d", resp.StatusCode)
	}
	return nil
}

func mustReadAll(r io.Reader) []byte {
	b, _ := io.ReadAll(r)
	return b
}
