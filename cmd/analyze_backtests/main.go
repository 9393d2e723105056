package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"sort"
	"text/tabwriter"

	"smcPaperBot/config"
	"smcPaperBot/internal/adapters/logger"
	"smcPaperBot/internal/adapters/sqlite"
	"smcPaperBot/internal/analytics"
	"smcPaperBot/internal/domain"
	"smcPaperBot/internal/utils"
)

func main() {
	csvFile := flag.String("csv", "", "read trades from a CSV export instead of the database")
	limit := flag.Int("limit", 0, "max trades to load from the database (0 = all)")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}
	appLogger := logger.NewConsole(cfg.LogLevel)
	ctx := context.Background()

	trades, err := loadTrades(ctx, cfg, appLogger, *csvFile, *limit)
	if err != nil {
		log.Fatalf("FATAL: Failed to load trades: %v", err)
	}
	if len(trades) == 0 {
		log.Println("No trades found. Run the paper engine or the backtest runner first.")
		return
	}

	overall := analytics.Calculate(trades)
	fmt.Printf("Loaded %d trades (%d with terminal outcomes)\n\n", len(trades), overall.TotalTrades)

	// Per-symbol and per-timeframe breakdown in a single table.
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight|tabwriter.Debug)
	fmt.Fprintln(w, "Group\tTrades\tWinRate\tTotalR\tAvgR\tPF\tMaxDD(R)\tBest\tWorst\t")
	printRow(w, "ALL", overall)

	bySymbol := analytics.BySymbol(trades)
	for _, sym := range sortedKeys(bySymbol) {
		printRow(w, sym, bySymbol[sym])
	}
	byTF := analytics.ByTimeframe(trades)
	for _, tf := range sortedKeys(byTF) {
		printRow(w, "tf:"+tf, byTF[tf])
	}
	w.Flush()

	// Outcome distribution.
	fmt.Println("\n## Outcomes")
	outcomes := make([]string, 0, len(overall.Outcomes))
	for o := range overall.Outcomes {
		outcomes = append(outcomes, string(o))
	}
	sort.Strings(outcomes)
	for _, o := range outcomes {
		fmt.Printf("%-24s %d\n", o, overall.Outcomes[domain.Outcome(o)])
	}

	// Loss analysis.
	failures := analytics.AnalyzeFailures(trades)
	if failures.LosingTrades == 0 {
		fmt.Println("\nNo losing trades to analyze.")
		return
	}
	fmt.Println("\n## Loss Analysis")
	fmt.Printf("losing trades: %d, avg loss %.2fR\n", failures.LosingTrades, failures.AverageLossR)
	fmt.Printf("near misses (reached %.1fR+ before losing): %d\n", 1.0, failures.NearMisses)
	fmt.Printf("fast losses (never above 0.25R): %d\n", failures.FastLosses)
	fmt.Printf("avg favorable excursion on losers: %.2fR over %.1f bars\n",
		failures.AverageFavorableR, failures.AverageBarsInTrade)

	if len(failures.ByPattern) > 0 {
		fmt.Println("\nLosses by pattern:")
		for _, p := range failures.ByPattern {
			fmt.Printf("  %-24s %d losses, avg %.2fR\n", p.Pattern, p.Count, p.AverageR())
		}
	}
	if len(failures.ByDirection) > 0 {
		fmt.Println("\nLosses by direction:")
		dirs := make([]string, 0, len(failures.ByDirection))
		for dir := range failures.ByDirection {
			dirs = append(dirs, string(dir))
		}
		sort.Strings(dirs)
		for _, dir := range dirs {
			fmt.Printf("  %-8s %d\n", dir, failures.ByDirection[domain.Direction(dir)])
		}
	}
}

func loadTrades(ctx context.Context, cfg *config.Config, appLogger *logger.ZerologAdapter, csvFile string, limit int) ([]*domain.Trade, error) {
	if csvFile != "" {
		return utils.ReadTradesFromCSV(csvFile)
	}

	repo, err := sqlite.NewRepository(sqlite.Config{DBPath: cfg.DBPath, Logger: appLogger})
	if err != nil {
		return nil, err
	}
	defer repo.Close()
	return repo.FindTrades(ctx, limit)
}

func printRow(w *tabwriter.Writer, name string, r *analytics.Report) {
	if r == nil || r.TotalTrades == 0 {
		fmt.Fprintf(w, "%s\t0\t-\t-\t-\t-\t-\t-\t-\t\n", name)
		return
	}
	pf := fmt.Sprintf("%.2f", r.ProfitFactor)
	if math.IsInf(r.ProfitFactor, 1) {
		pf = "inf"
	}
	fmt.Fprintf(w, "%s\t%d\t%.1f%%\t%.2f\t%.2f\t%s\t%.2f\t%+.2f\t%+.2f\t\n",
		name, r.TotalTrades, r.WinRate*100, r.TotalR, r.AverageR, pf, r.MaxDrawdownR, r.BestTrade, r.WorstTrade)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
