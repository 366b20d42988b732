// Command simtest plays one simulated customer conversation for a template
// against the configured LLM provider, with the real playback delays.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/wolfman30/funcionariopro/internal/app/bootstrap"
	"github.com/wolfman30/funcionariopro/internal/bus"
	"github.com/wolfman30/funcionariopro/internal/catalog"
	appconfig "github.com/wolfman30/funcionariopro/internal/config"
	"github.com/wolfman30/funcionariopro/internal/profile"
	"github.com/wolfman30/funcionariopro/internal/simulation"
	"github.com/wolfman30/funcionariopro/pkg/logging"
)

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, using environment variables")
	}

	template := flag.String("template", "restaurante", "catalog template key")
	name := flag.String("name", "Cantina da Nona", "business name")
	description := flag.String("description", "", "business description")
	question := flag.String("ask", "", "follow-up question sent after playback")
	timeout := flag.Duration("timeout", 3*time.Minute, "overall time limit")
	flag.Parse()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	if err := run(ctx, cfg, logger, *template, *name, *description, *question); err != nil {
		fmt.Fprintf(os.Stderr, "simtest: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, template, name, description, question string) error {
	cat := catalog.Default()
	if !cat.Has(template) {
		return fmt.Errorf("unknown template %q (known: %s)", template, strings.Join(cat.Keys(), ", "))
	}
	bp := cat.Prefill(template)
	bp = profile.Patch{Name: &name, Description: &description}.ApplyTo(bp)
	if bp.Personality == "" {
		bp.Personality = profile.DefaultPersonality
	}
	if !bp.IsConfigured() {
		return fmt.Errorf("profile needs a name plus a description or services")
	}

	client, err := bootstrap.BuildLLMClient(ctx, cfg, nil, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	events := bus.New(32, logger)
	engine := simulation.NewEngine(bootstrap.BuildJSONCaller(client, cfg, logger), simulation.Options{
		MaxAttempts: cfg.SimMaxAttempts,
		RetryDelay:  cfg.SimRetryDelay,
		SettleDelay: cfg.SimSettleDelay,
		Publisher:   events,
		Logger:      logger,
	})
	defer engine.Close()

	const sessionID = "simtest"
	msgs, unsubscribe := events.Subscribe(sessionID)
	defer unsubscribe()

	fmt.Printf("Simulating %q (%s) with provider %s\n\n", bp.Name, bp.Category, client.Provider)
	sess := engine.Session(sessionID)
	sess.Start(bp)

	go printTurns(msgs)
	if err := sess.Wait(ctx); err != nil {
		return err
	}
	snap := sess.Snapshot()
	fmt.Printf("\nstatus=%s attempts=%d turns=%d\n", snap.Status, snap.Attempts, len(snap.Transcript))

	if strings.TrimSpace(question) == "" || !snap.Complete {
		return nil
	}
	res, err := sess.Ask(ctx, question)
	if err != nil {
		return err
	}
	if res.Answer == nil {
		fmt.Println("no answer for the follow-up question")
		return nil
	}
	fmt.Printf("\n%s: %s\n%s: %s\n", res.Question.Speaker, res.Question.Text, res.Answer.Speaker, res.Answer.Text)
	return nil
}

func printTurns(msgs <-chan bus.Message) {
	for msg := range msgs {
		switch msg.Kind {
		case bus.KindTurnAppended:
			if entry, ok := msg.Payload.(simulation.TranscriptEntry); ok {
				fmt.Printf("[%s] %s: %s\n", entry.At.Format("15:04:05"), entry.Speaker, entry.Text)
			}
		case bus.KindSimulationExhausted:
			fmt.Println("generation exhausted every attempt")
		}
	}
}
