package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var (
	// Listen command flags
	listenDataset string
	listenEvents  []string
	listenSeconds int
)

// defaultEvents are printed when no --event is given.
var defaultEvents = []string{
	"dataset:creation_succeeded",
	"dataset:creation_failed",
	"dataset:import_succeeded",
	"dataset:import_failed",
	"project:creation_succeeded",
	"project:creation_failed",
	"realtime",
}

var listenCmd = &cobra.Command{
	Use:   "listen [flags]",
	Short: "Print user or dataset events as they happen",
	Long: `Open the AmigoCloud event socket and print events for the logged in user, or for
one dataset with --dataset OWNER/PROJECT/DATASET.

Examples:
  amigo listen
  amigo listen --event dataset:creation_succeeded --seconds 120
  amigo listen --event 'dataset:*' --event realtime
  amigo listen --dataset 1234/5678/91011 -j`,
	Args: cobra.NoArgs,
	RunE: runListen,
}

func runListen(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	if !cfg.UseWebsockets {
		return fmt.Errorf("websockets are disabled, enable them with \"amigo config --websockets on\"")
	}
	if cfg.Token == "" {
		return fmt.Errorf("not logged in. Run \"amigo login --token <token>\" first")
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := client.Authenticate(ctx, cfg.Token); err != nil {
		return err
	}

	printer := newEventPrinter(cmd.OutOrStdout())
	events := listenEvents
	if len(events) == 0 {
		events = defaultEvents
	}
	var wg sync.WaitGroup
	defer wg.Wait()
	for _, pattern := range events {
		ch, unsubscribe, err := client.Subscribe(pattern, 64)
		if err != nil {
			return err
		}
		defer unsubscribe()
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ev := range ch {
				printer.Print(ev.Name, ev.Args)
			}
		}()
	}

	if listenDataset != "" {
		parts := strings.Split(listenDataset, "/")
		if len(parts) != 3 {
			return fmt.Errorf("invalid dataset %q. Expected OWNER/PROJECT/DATASET", listenDataset)
		}
		err = client.ListenDatasetEvents(ctx, parts[0], parts[1], parts[2])
	} else {
		err = client.ListenUserEvents(ctx)
	}
	if err != nil {
		return err
	}

	if !jsonOutput {
		infoLabel.Fprintf(cmd.ErrOrStderr(), "Listening for %s (Ctrl-C to stop)\n", strings.Join(events, ", "))
	}
	err = client.StartListening(ctx, time.Duration(listenSeconds)*time.Second)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func init() {
	rootCmd.AddCommand(listenCmd)

	listenCmd.Flags().StringVar(&listenDataset, "dataset", "", "Listen to one dataset, as OWNER/PROJECT/DATASET")
	listenCmd.Flags().StringSliceVar(&listenEvents, "event", nil, "Event names or patterns such as dataset:* to print (repeatable)")
	listenCmd.Flags().IntVar(&listenSeconds, "seconds", 0, "Stop after this many seconds (0 to run until interrupted)")
}
