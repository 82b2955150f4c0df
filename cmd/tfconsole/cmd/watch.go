package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/telcoflow/console/internal/api"
	"github.com/telcoflow/console/internal/events"
	"github.com/telcoflow/console/internal/health"
	"github.com/telcoflow/console/internal/stream"
	"github.com/telcoflow/console/internal/tui"
)

// closeTimeout bounds the streaming channel teardown after the UI exits.
const closeTimeout = 5 * time.Second

var (
	watchTopic  string
	watchBuffer int
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Tail the live change pipeline for a topic",
	Long: "Open the live watch view for one pipeline topic. The view shows change\n" +
		"events as they arrive; while the platform is unavailable or throttling,\n" +
		"a blocking status screen is shown instead.",
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchTopic, "topic", "", "pipeline topic to watch (overrides config)")
	watchCmd.Flags().IntVar(&watchBuffer, "buffer", 0, "number of events kept on screen (overrides config)")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("tfconsole watch: %w", err)
	}
	if watchTopic != "" {
		cfg.Watch.Topic = watchTopic
	}
	if watchBuffer != 0 {
		cfg.Watch.BufferCapacity = watchBuffer
	}
	if cfg.Watch.Topic == "" {
		return fmt.Errorf("tfconsole watch: no topic (use --topic or the config file)")
	}
	topic := cfg.Watch.Topic

	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting watch", "version", buildVersion, "topic", topic)

	gateway, err := api.NewGateway(cfg.API, buildVersion, cfg.TokenSource(), logger)
	if err != nil {
		return fmt.Errorf("tfconsole watch: %w", err)
	}
	monitor := health.NewMonitor(gateway, logger)
	gateway.SetHealthSink(monitor)

	buffer, err := events.NewBuffer(cfg.Watch.BufferCapacity)
	if err != nil {
		return fmt.Errorf("tfconsole watch: %w", err)
	}

	manager, err := stream.NewManager(gateway, cfg.Stream, logger)
	if err != nil {
		return fmt.Errorf("tfconsole watch: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	countdown := health.NewCountdown()
	defer countdown.Stop()

	model := tui.NewModel(topic, buffer, tui.Hooks{
		Retry: func() {
			go func() { _ = monitor.Retry(ctx) }()
		},
	})
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	// Health transitions drive both the UI gate and the countdown.
	monitor.Subscribe(func(st health.State) {
		program.Send(tui.HealthMsg{State: st})
		if st.Phase == health.PhaseRateLimited {
			countdown.Start(int(st.RetryAfter.Seconds()))
		} else {
			countdown.Stop()
		}
	})
	countdown.SetOnTick(func(remaining int) {
		program.Send(tui.TickMsg{Remaining: remaining})
	})
	countdown.SetOnReady(func() {
		program.Send(tui.ReadyMsg{})
	})

	manager.SetOnEvent(func(topic string, payload json.RawMessage) {
		ev, err := events.FromEnvelope(topic, payload)
		if err != nil {
			logger.Warn("discarding malformed event", "topic", topic, "error", err)
			return
		}
		buffer.Insert(ev)
		program.Send(tui.EventMsg{Event: ev})
	})
	manager.SetOnConnect(func() {
		program.Send(tui.ConnectMsg{})
		// Registrations do not survive a reconnect; re-issue ours.
		if err := manager.Subscribe(topic); err != nil {
			logger.Warn("subscribe failed", "topic", topic, "error", err)
		}
	})
	manager.SetOnDrop(func(err error) {
		program.Send(tui.DropMsg{Err: err})
	})
	manager.SetPollFunc(func(ctx context.Context) error {
		resp, err := gateway.RecentChanges(ctx, topic, cfg.Watch.BufferCapacity)
		if err != nil {
			return err
		}
		// Records arrive newest first; insert oldest first so the buffer
		// order holds.
		for i := len(resp.Records) - 1; i >= 0; i-- {
			buffer.Insert(events.FromRecord(topic, resp.Records[i]))
		}
		program.Send(tui.EventMsg{})
		return nil
	})

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = monitor.Start(ctx)
	}()

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := manager.Run(runCtx); err != nil {
			logger.Error("streaming channel stopped", "error", err)
		}
	}()

	_, uiErr := program.Run()

	// Ordered teardown: withdraw the registration, close the channel and
	// wait for it, then stop the reconnect loop.
	closeCtx, cancelClose := context.WithTimeout(context.Background(), closeTimeout)
	defer cancelClose()
	if err := manager.Unsubscribe(topic); err != nil {
		logger.Warn("unsubscribe on shutdown failed", "topic", topic, "error", err)
	}
	if err := manager.Close(closeCtx); err != nil {
		logger.Warn("channel close incomplete", "error", err)
	}
	cancelRun()
	wg.Wait()

	logger.Info("watch stopped")
	if uiErr != nil && ctx.Err() == nil {
		return fmt.Errorf("tfconsole watch: %w", uiErr)
	}
	return nil
}
