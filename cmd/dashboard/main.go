package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/restboard/restboard/internal/client"
	"github.com/restboard/restboard/internal/config"
	"github.com/restboard/restboard/internal/ledger"
	"github.com/restboard/restboard/internal/service/models/order"
)

func main() {
	config.MustInit()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("Dashboard exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	baseURL := viper.GetString("dashboard.server_url")
	wsURL := viper.GetString("dashboard.ws_url")
	restaurantID := viper.GetInt64("dashboard.restaurant_id")
	stateDir := viper.GetString("dashboard.state_dir")

	pollInterval := viper.GetDuration("dashboard.poll_interval")
	if pollInterval == 0 {
		pollInterval = 10 * time.Second
	}

	api := client.NewAPIClient(baseURL, restaurantID, 10*time.Second)

	led, err := ledger.New(
		ledger.WithStatusUpdater(api),
		ledger.WithBoundaryStore(ledger.NewFileBoundaryStore(stateDir)),
		ledger.WithNotify(func(o order.Order) {
			// Terminal bell stands in for the new-order chime.
			fmt.Printf("\a>> new order #%d from %s\n", o.ID, o.CustomerName)
		}),
	)
	if err != nil {
		return err
	}

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return client.NewPoller(api, led, pollInterval).Run(ctx)
	})
	group.Go(func() error {
		return client.NewFeed(wsURL, led).Run(ctx)
	})
	group.Go(func() error {
		return commandLoop(ctx, led)
	})

	return group.Wait()
}

// commandLoop reads dashboard commands from stdin:
//
//	s          print the current board
//	c <id>     mark an order completed
//	r          reset the revenue counters
//	q          quit
func commandLoop(ctx context.Context, led *ledger.Ledger) error {
	scanner := bufio.NewScanner(os.Stdin)

	lines := make(chan string)
	go func() {
		defer close(lines)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	printBoard(led)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				<-ctx.Done()
				return ctx.Err()
			}
			if err := handleCommand(ctx, led, strings.TrimSpace(line)); err != nil {
				if errors.Is(err, errQuit) {
					return nil
				}
				fmt.Printf("error: %v\n", err)
			}
		}
	}
}

var errQuit = errors.New("quit")

func handleCommand(ctx context.Context, led *ledger.Ledger, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		printBoard(led)
		return nil
	}

	switch fields[0] {
	case "s":
		printBoard(led)
	case "c":
		if len(fields) < 2 {
			return errors.New("usage: c <order id>")
		}
		id, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid order id %q", fields[1])
		}
		confirmed, err := led.MarkCompleted(ctx, id)
		if err != nil {
			return err
		}
		fmt.Printf("order #%d completed (%s)\n", confirmed.ID, confirmed.Amount().StringFixed(2))
		printBoard(led)
	case "r":
		if err := led.Reset(); err != nil {
			return err
		}
		fmt.Println("counters reset")
		printBoard(led)
	case "q":
		return errQuit
	default:
		return fmt.Errorf("unknown command %q", fields[0])
	}
	return nil
}

func printBoard(led *ledger.Ledger) {
	pending := led.Pending()
	completed := led.Completed()
	revenue := led.Revenue()

	fmt.Println("---- orders ----")
	for _, o := range pending {
		marker := "  "
		if led.Highlighted(o.ID) {
			marker = "* "
		}
		fmt.Printf("%s#%-5d %-20s table %-4s %8s  pending\n",
			marker, o.ID, o.CustomerName, o.TableNumber, o.Amount().StringFixed(2))
	}
	for _, o := range completed {
		fmt.Printf("  #%-5d %-20s table %-4s %8s  completed\n",
			o.ID, o.CustomerName, o.TableNumber, o.Amount().StringFixed(2))
	}
	fmt.Printf("revenue: %s over %d orders (avg %s)\n",
		revenue.TotalRevenue.StringFixed(2),
		revenue.CompletedCount,
		revenue.AverageOrderValue.StringFixed(2),
	)
}
