package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/netip"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/target/domain-enricher/internal/core"
	"github.com/target/domain-enricher/internal/data"
	"github.com/target/domain-enricher/internal/domain/model"
	"github.com/target/domain-enricher/internal/enrich/ipinfo"
)

func runWorkerStats(cmdCtx *commandContext, _ []string) error {
	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	db, closeDB, err := openDB(cmdCtx)
	if err != nil {
		return err
	}
	defer closeDB()

	stats, err := data.NewWorkerStatsRepo(db, data.RepoConfig{Logger: cmdCtx.Logger}).List(ctx)
	if err != nil {
		return fmt.Errorf("list worker stats: %w", err)
	}
	return printWorkerStats(os.Stdout, stats, time.Now())
}

func printWorkerStats(w io.Writer, stats []model.WorkerStats, now time.Time) error {
	if len(stats) == 0 {
		return writeln(w, "No workers have reported yet.")
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if err := writeln(tw, "WORKER\tSTAGE\tCLAIMS\tPROCESSED\tERRORS\tAVG_SECONDS\tLAST_SEEN"); err != nil {
		return err
	}
	for _, s := range stats {
		lastSeen := "never"
		if s.LastHeartbeat != nil {
			lastSeen = now.Sub(*s.LastHeartbeat).Truncate(time.Second).String() + " ago"
		}
		if err := writef(tw, "%s\t%s\t%d\t%d\t%d\t%.2f\t%s\n",
			s.WorkerID, s.Stage, s.Claims, s.Processed, s.Errors, s.AverageProcessingSeconds(), lastSeen); err != nil {
			return err
		}
	}
	return tw.Flush()
}

type pruneWorkersOptions struct {
	OlderThan time.Duration
	Timeout   time.Duration
}

func parsePruneWorkersFlags(args []string, defaultAge time.Duration) (pruneWorkersOptions, error) {
	fs := flag.NewFlagSet("prune-workers", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := pruneWorkersOptions{OlderThan: defaultAge, Timeout: defaultCommandTimeout}
	fs.DurationVar(&opts.OlderThan, "older-than", defaultAge, "Delete workers whose last heartbeat is older than this")
	fs.DurationVar(&opts.Timeout, "timeout", defaultCommandTimeout, "Maximum duration for the delete")

	if err := fs.Parse(args); err != nil {
		return pruneWorkersOptions{}, err
	}
	if opts.OlderThan <= 0 {
		return pruneWorkersOptions{}, errors.New("--older-than must be greater than zero")
	}
	if opts.Timeout <= 0 {
		return pruneWorkersOptions{}, errors.New("--timeout must be greater than zero")
	}
	return opts, nil
}

func runPruneWorkers(cmdCtx *commandContext, args []string) error {
	opts, err := parsePruneWorkersFlags(args, cmdCtx.Config.Reaper.WorkerStatsMaxAge)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, opts.Timeout)
	defer cancel()

	db, closeDB, err := openDB(cmdCtx)
	if err != nil {
		return err
	}
	defer closeDB()

	return pruneWorkers(ctx, data.NewWorkerStatsRepo(db, data.RepoConfig{Logger: cmdCtx.Logger}), opts.OlderThan, os.Stdout)
}

func pruneWorkers(ctx context.Context, pruner core.WorkerStatsPruner, olderThan time.Duration, w io.Writer) error {
	n, err := pruner.DeleteStale(ctx, olderThan)
	if err != nil {
		return fmt.Errorf("prune worker stats: %w", err)
	}
	return writef(w, "pruned_workers=%d older_than=%s\n", n, olderThan)
}

func parseEvictASNFlags(args []string) (netip.Addr, error) {
	fs := flag.NewFlagSet("evict-asn", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	ip := fs.String("ip", "", "IP address whose cached ASN answer should be dropped")
	if err := fs.Parse(args); err != nil {
		return netip.Addr{}, err
	}
	raw := strings.TrimSpace(*ip)
	if raw == "" {
		return netip.Addr{}, errors.New("--ip is required")
	}
	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("--ip: %w", err)
	}
	return addr.Unmap(), nil
}

func runEvictASN(cmdCtx *commandContext, args []string) error {
	addr, err := parseEvictASNFlags(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	client, closeRedis, err := openRedis(cmdCtx)
	if err != nil {
		return err
	}
	defer closeRedis()

	cache := data.NewRedisCacheRepo(client, cmdCtx.Config.Cache.KeyPrefix)
	deleted, err := cache.Delete(ctx, ipinfo.SharedASNKey(addr))
	if err != nil {
		return fmt.Errorf("evict %s: %w", addr, err)
	}
	if deleted {
		return writef(os.Stdout, "evicted cached ASN for %s\n", addr)
	}
	return writef(os.Stdout, "no cached ASN for %s\n", addr)
}
