package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/benaskins/joule/internal/api"
	"github.com/benaskins/joule/internal/config"
	"github.com/benaskins/joule/internal/energy"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// errInsufficient makes `joule take` exit non-zero when the debit is refused.
var errInsufficient = errors.New("insufficient balance")

var clientAddr string

func apiBase() string {
	addr := clientAddr
	if addr == "" {
		cfg, err := config.Load(resolvedConfigPath())
		if err != nil {
			addr = config.DefaultAPIAddr
		} else {
			addr = cfg.APIAddr
		}
	}
	return "http://" + addr
}

func apiClient() *http.Client {
	return &http.Client{Timeout: 5 * time.Second}
}

func apiGet(path string, v any) error {
	resp, err := apiClient().Get(apiBase() + path)
	if err != nil {
		return fmt.Errorf("connecting to agent: %w (is joule agent running?)", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return fmt.Errorf("API error %d: %s", resp.StatusCode, body)
	}

	return json.NewDecoder(resp.Body).Decode(v)
}

func apiPost(path string, in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	resp, err := apiClient().Post(apiBase()+path, "application/json", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("connecting to agent: %w (is joule agent running?)", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return fmt.Errorf("API error %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// sample command
var sampleCmd = &cobra.Command{
	Use:   "sample",
	Short: "Show the latest published sample",
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOut, _ := cmd.Flags().GetBool("json")

		var s api.SampleResponse
		if err := apiGet("/v1/sample", &s); err != nil {
			return err
		}

		if jsonOut || !term.IsTerminal(int(os.Stdout.Fd())) {
			return printJSON(s)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "Time:\t%s\n", s.Time().Format(time.RFC3339Nano))
		fmt.Fprintf(w, "CPU:\t%.2f W\t(idle %.2f W)\n", s.CPUW, s.IdleCPUW)
		fmt.Fprintf(w, "GPU:\t%.2f W\t(idle %.2f W)\n", s.GPUW, s.IdleGPUW)
		fmt.Fprintf(w, "Net:\t%.2f W\n", s.NetW)
		fmt.Fprintf(w, "Bucket:\t%.3f J\n", s.BucketJ)
		fmt.Fprintf(w, "Hash:\t%s\n", s.Hash)
		return w.Flush()
	},
}

// take command
var takeCmd = &cobra.Command{
	Use:   "take <joules>",
	Short: "Debit joules from the agent's ledger",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		joules, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("invalid joules %q: %w", args[0], err)
		}

		var res energy.TakeResult
		if err := apiPost("/v1/take", api.TakeRequest{Joules: joules}, &res); err != nil {
			return err
		}

		if !res.OK {
			return fmt.Errorf("%w: requested %.3f J, remaining %.3f J", errInsufficient, joules, res.RemainingJ)
		}
		fmt.Printf("granted %.3f J, remaining %.3f J\n", joules, res.RemainingJ)
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recently published samples",
	RunE: func(cmd *cobra.Command, args []string) error {
		n, _ := cmd.Flags().GetInt("count")

		var samples []energy.Sample
		if err := apiGet("/v1/samples?n="+strconv.Itoa(n), &samples); err != nil {
			return err
		}

		if !term.IsTerminal(int(os.Stdout.Fd())) {
			return printJSON(samples)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tCPU_W\tGPU_W\tIDLE_CPU_W\tIDLE_GPU_W\tNET_W\tBUCKET_J")
		for _, s := range samples {
			fmt.Fprintf(w, "%s\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t%.3f\n",
				s.Time().Format(time.TimeOnly), s.CPUW, s.GPUW, s.IdleCPUW, s.IdleGPUW, s.NetW, s.BucketJ)
		}
		return w.Flush()
	},
}

func init() {
	for _, c := range []*cobra.Command{sampleCmd, takeCmd, historyCmd} {
		c.Flags().StringVar(&clientAddr, "addr", "", "Agent API address (default from config)")
		rootCmd.AddCommand(c)
	}
	sampleCmd.Flags().Bool("json", false, "Print raw JSON")
	historyCmd.Flags().IntP("count", "n", 20, "number of samples to show")
}
