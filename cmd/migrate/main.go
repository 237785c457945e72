package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"screener.dev/internal/migrate"
	"screener.dev/internal/store/pg"
)

func main() {
	var (
		dsn = flag.String("dsn", os.Getenv("SCREENER_PG_DSN"), "postgres connection string")
		cmd = flag.String("cmd", "up", "up | status")
	)
	flag.Parse()

	if *dsn == "" {
		fmt.Fprintln(os.Stderr, "migrate: -dsn or SCREENER_PG_DSN is required")
		os.Exit(2)
	}

	store, err := pg.Open(*dsn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "migrate: open database: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	runner := migrate.NewRunner(store.DB())
	switch *cmd {
	case "up":
		if err := runner.Up(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("migrations applied")
	case "status":
		applied, err := runner.Status(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
			os.Exit(1)
		}
		if len(applied) == 0 {
			fmt.Println("no migrations applied")
			return
		}
		for _, name := range applied {
			fmt.Println(name)
		}
	default:
		fmt.Fprintf(os.Stderr, "migrate: unknown command %q\n", *cmd)
		os.Exit(2)
	}
}
