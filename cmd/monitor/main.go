package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/stemsi/cbt-backend/internal/config"
	"github.com/stemsi/cbt-backend/internal/database"
	"github.com/stemsi/cbt-backend/internal/logger"
	"github.com/stemsi/cbt-backend/internal/model"
	"github.com/stemsi/cbt-backend/internal/remote"
	"github.com/stemsi/cbt-backend/internal/service"
	"github.com/stemsi/cbt-backend/internal/store"
)

var statusColor = map[model.StudentStatusValue]func(a ...interface{}) string{
	model.StatusNotLoggedIn: color.New(color.FgHiBlack).SprintFunc(),
	model.StatusLogin:       color.New(color.FgCyan).SprintFunc(),
	model.StatusWorking:     color.New(color.FgYellow).SprintFunc(),
	model.StatusFinished:    color.New(color.FgGreen).SprintFunc(),
	model.StatusViolation:   color.New(color.FgRed, color.Bold).SprintFunc(),
}

var statusOrder = []model.StudentStatusValue{
	model.StatusNotLoggedIn,
	model.StatusLogin,
	model.StatusWorking,
	model.StatusFinished,
	model.StatusViolation,
}

func main() {
	cfg := config.Load()

	var interval time.Duration
	flag.DurationVar(&interval, "interval", cfg.MonitorInterval, "Refresh interval")
	flag.Parse()

	// Keep logs out of the way of the table.
	log := logger.SetupTo(os.Stderr, "warn", cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var dataStore store.DataStore
	switch cfg.StoreDriver {
	case config.StoreDriverRemote:
		dataStore = remote.New(cfg.RemoteStoreURL, cfg.RemoteTimeout, cfg.BcryptCost, log)
	default:
		pool, err := database.NewPostgresPool(ctx, cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
		}
		defer pool.Close()
		rdb, err := database.NewRedisClient(ctx, cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer rdb.Close()
		dataStore = store.NewPostgresStore(pool, rdb, log)
	}

	catalog := service.NewCatalogService(dataStore, log)
	if err := catalog.Refresh(ctx); err != nil {
		color.Red("Failed to load roster: %v", err)
		os.Exit(1)
	}

	monitor := service.NewMonitorService(dataStore, catalog, log)
	monitor.Poll(ctx, interval, func(snap *model.MonitorSnapshot) {
		render(snap, interval)
	})

	color.Green("\nMonitor stopped.")
}

func render(snap *model.MonitorSnapshot, interval time.Duration) {
	// Clear the screen and home the cursor.
	fmt.Print("\033[H\033[2J")

	if !snap.Exam.IsActive() {
		color.Yellow("No active exam. Refreshing every %s...", interval)
		return
	}

	color.Cyan("=== %s (%s) | token %s ===", snap.Exam.SubjectName, snap.Exam.SubjectClass, snap.Exam.Token)
	fmt.Printf("Window %s - %s | updated %s\n\n",
		snap.Exam.StartTime.Local().Format("15:04"),
		snap.Exam.EndTime.Local().Format("15:04"),
		snap.Timestamp.Local().Format("15:04:05"),
	)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"No", "NIS", "Name", "Status", "Updated"})
	for i, row := range snap.Rows {
		updated := "-"
		if row.UpdatedAt != nil {
			updated = row.UpdatedAt.Local().Format("15:04:05")
		}
		table.Append([]string{
			strconv.Itoa(i + 1),
			row.NIS,
			row.Name,
			paint(row.Status),
			updated,
		})
	}
	table.Render()

	summary := tablewriter.NewWriter(os.Stdout)
	summary.SetHeader([]string{"Status", "Count"})
	for _, st := range statusOrder {
		summary.Append([]string{paint(st), strconv.Itoa(snap.Counts[st])})
	}
	summary.Render()
}

func paint(st model.StudentStatusValue) string {
	if fn, ok := statusColor[st]; ok {
		return fn(string(st))
	}
	return string(st)
}
