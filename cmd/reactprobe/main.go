// reactprobe connects to the realtime relay and streams reaction activity
// to the console. With --send it publishes a reaction or comment first,
// which is handy for smoke-testing a relay deployment end to end.
//
// Usage:
//
//	go run ./cmd/reactprobe --url wss://relay.example.com/socket --tenant t1
//	go run ./cmd/reactprobe --url ... --tenant t1 --send fire
//	go run ./cmd/reactprobe --url ... --tenant t1 --send comment --text "great set"
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/karaqr/realtime/internal/reactions"
	"github.com/karaqr/realtime/internal/realtime"
)

func main() {
	url := flag.String("url", "", "relay websocket URL")
	apiKey := flag.String("api-key", os.Getenv("KARAQR_RELAY_KEY"), "relay API key")
	tenant := flag.String("tenant", "", "tenant id to watch")
	name := flag.String("name", "probe", "display name for sent activity")
	send := flag.String("send", "", "publish before watching: a reaction kind or \"comment\"")
	text := flag.String("text", "", "comment text for --send comment")
	verbose := flag.Bool("verbose", false, "log at debug level")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))

	if *url == "" || *tenant == "" {
		fmt.Fprintln(os.Stderr, "usage: reactprobe --url wss://... --tenant <id> [--send <kind>|comment]")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	relayCfg := realtime.DefaultClientConfig()
	relayCfg.URL = *url
	relayCfg.APIKey = *apiKey

	relay := realtime.NewClient(relayCfg, logger)
	defer relay.Close()

	manager := reactions.NewManager(reactions.DefaultManagerConfig(), relay, logger, reactions.Hooks{})

	// Print every feed entry as it lands.
	cancelFeed := manager.FeedSignal().Subscribe(func(feed []reactions.FeedEntry) {
		if len(feed) == 0 {
			return
		}
		e := feed[0]
		switch e.Kind {
		case "reaction":
			fmt.Printf("%s  %s %s reacted %s\n",
				e.Timestamp.Format(time.TimeOnly), e.Emoji, e.UserName, e.Reaction)
		case "comment":
			fmt.Printf("%s  💬 %s: %s\n",
				e.Timestamp.Format(time.TimeOnly), e.UserName, e.Text)
		}
	})
	defer cancelFeed()

	logger.Info("connecting", "url", *url, "tenant", *tenant)
	result, err := manager.Connect(ctx, *tenant)
	if err != nil {
		logger.Error("connect failed", "error", err, "message", result.Message)
		os.Exit(1)
	}
	logger.Info("subscribed", "topic", reactions.TopicForTenant(*tenant))

	if *send != "" {
		sendCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		switch *send {
		case "comment":
			if *text == "" {
				logger.Error("--send comment requires --text")
				os.Exit(2)
			}
			err = manager.SendComment(sendCtx, *text, *name)
		default:
			err = manager.SendReaction(sendCtx, *send, *name)
		}
		if err != nil {
			logger.Error("send failed", "error", err)
			os.Exit(1)
		}
		logger.Info("published", "what", *send)
	}

	<-ctx.Done()

	stats := manager.Stats()
	fmt.Printf("\nsession totals: %d comments", stats.TotalComments)
	for kind, n := range stats.Reactions {
		fmt.Printf(", %d %s", n, kind)
	}
	fmt.Println()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	manager.Disconnect(shutdownCtx)
}
