// ABOUTME: Entry point for the askdeck terminal chat client
// ABOUTME: Interactive loop over the conversation core with slash commands

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/askdeck/askdeck/internal/backend"
	"github.com/askdeck/askdeck/internal/chat"
	"github.com/askdeck/askdeck/internal/config"
	"github.com/askdeck/askdeck/internal/export"
	"github.com/askdeck/askdeck/internal/jobs"
	"github.com/askdeck/askdeck/internal/kv"
	"github.com/askdeck/askdeck/internal/notify"
	"github.com/askdeck/askdeck/internal/session"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
            _       _           _
  __ _ ___| | ____| | ___  ___| | __
 / _' / __| |/ / _' |/ _ \/ __| |/ /
| (_| \__ \   < (_| |  __/ (__|   <
 \__,_|___/_|\_\__,_|\___|\___|_|\_\
`

// getConfigPath returns the path to the askdeck config file.
// Priority: ASKDECK_CONFIG env var > XDG_CONFIG_HOME/askdeck/askdeck.yaml > ~/.config/askdeck/askdeck.yaml
func getConfigPath() string {
	if envPath := os.Getenv("ASKDECK_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "askdeck.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "askdeck", "askdeck.yaml")
}

// getDataPath returns the default path for the local database.
// Priority: XDG_DATA_HOME/askdeck > ~/.local/share/askdeck
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "askdeck")
}

func main() {
	// Optional .env for local development; absence is fine
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\nGoodbye!")
}

func run(ctx context.Context) error {
	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	green := color.New(color.FgGreen)

	cyan.Print(banner)
	gray.Printf("    version: %s\n\n", version)

	// Load configuration, falling back to defaults when no file exists
	cfg, err := config.Load(configPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("loading config: %w", err)
		}
		cfg = config.Default()
		configPath = "(defaults)"
	}

	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	green.Print("    ▶ ")
	fmt.Printf("Config:  %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Backend: %s\n", cfg.Backend.BaseURL)

	// Open the local store; fall back to in-memory when unavailable so
	// the conversation still works, just without surviving a restart.
	dbPath := cfg.Session.DatabasePath
	if dbPath == "" {
		dbPath = filepath.Join(getDataPath(), "askdeck.db")
	}
	var store kv.KV
	sqliteKV, err := kv.NewSQLite(dbPath)
	if err != nil {
		logger.Warn("local store unavailable, history will not persist",
			"path", dbPath, "error", err)
		store = kv.NewMemory()
	} else {
		store = sqliteKV
		green.Print("    ▶ ")
		fmt.Printf("Store:   %s\n", dbPath)
	}
	defer store.Close()
	fmt.Println()

	var clientOpts []backend.Option
	if cfg.Backend.AskTimeout > 0 {
		clientOpts = append(clientOpts, backend.WithTimeout(cfg.Backend.AskTimeout))
	}
	client := backend.New(cfg.Backend.BaseURL, cfg.Backend.StatusPath, logger, clientOpts...)

	sessions := session.NewStore(store, cfg.Session.MaxTurns, logger)
	queue := notify.NewQueue(cfg.Notifications.TTL, logger)
	defer queue.Close()

	tracker := jobs.NewTracker(store, logger)
	poller := jobs.NewPoller(tracker, client, cfg.Polling.Interval, logger)
	poller.Start(ctx)
	defer poller.Stop()

	controller := chat.New(sessions, client, queue, logger)

	app := &app{
		cfg:        cfg,
		sessions:   sessions,
		controller: controller,
		queue:      queue,
		tracker:    tracker,
		poller:     poller,
	}
	return app.loop(ctx)
}

// app holds the interactive loop's state.
type app struct {
	cfg        *config.Config
	sessions   *session.Store
	controller *chat.Controller
	queue      *notify.Queue
	tracker    *jobs.Tracker
	poller     *jobs.Poller

	agent *config.AgentConfig
	sess  *session.Session
}

// selectAgent switches the active agent, opening (or reopening) its session.
func (a *app) selectAgent(agent *config.AgentConfig) {
	a.agent = agent

	var seed *session.Turn
	if agent.Greeting != "" {
		seed = &session.Turn{Role: session.RoleAgent, Text: agent.Greeting}
	}
	a.sess = a.sessions.Open(agent.Name, seed)
}

func (a *app) loop(ctx context.Context) error {
	a.selectAgent(&a.cfg.Agents[0])
	a.printHistory()

	fmt.Println("Type a question and press Enter. /help for commands. Ctrl+C to quit.")
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		if a.queue.HasUnread() {
			color.New(color.FgYellow).Printf("[%s]! > ", a.agent.Name)
		} else {
			fmt.Printf("[%s]> ", a.agent.Name)
		}

		// Read input with context awareness
		inputCh := make(chan string, 1)
		errCh := make(chan error, 1)
		go func() {
			if scanner.Scan() {
				inputCh <- scanner.Text()
			} else {
				if err := scanner.Err(); err != nil {
					errCh <- err
				} else {
					errCh <- io.EOF
				}
			}
		}()

		var input string
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		case input = <-inputCh:
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			quit, err := a.command(ctx, input)
			if err != nil {
				color.New(color.FgRed).Printf("[error] %v\n", err)
			}
			if quit {
				return nil
			}
			fmt.Println()
			continue
		}

		a.submit(ctx, input)
		fmt.Println()
	}
}

// command dispatches one slash command. Returns quit=true to exit.
func (a *app) command(ctx context.Context, input string) (bool, error) {
	cmd, args, _ := strings.Cut(input, " ")
	args = strings.TrimSpace(args)

	switch cmd {
	case "/quit", "/exit", "/q":
		return true, nil

	case "/help":
		printHelp()

	case "/agents":
		fmt.Println("Configured agents:")
		for _, agent := range a.cfg.Agents {
			marker := "  "
			if agent.Name == a.agent.Name {
				marker = "* "
			}
			fmt.Printf("  %s%s  (%s)\n", marker, agent.Name, agent.AskPath)
		}

	case "/use":
		if args == "" {
			return false, fmt.Errorf("usage: /use <agent>")
		}
		agent := a.cfg.Agent(args)
		if agent == nil {
			return false, fmt.Errorf("unknown agent %q (see /agents)", args)
		}
		a.selectAgent(agent)
		fmt.Printf("Now talking to %s\n", agent.Name)
		a.printHistory()

	case "/history":
		a.printHistory()

	case "/reset":
		a.sessions.Reset(a.sess)
		fmt.Println("Conversation reset.")
		a.printHistory()

	case "/track":
		if args == "" {
			return false, fmt.Errorf("usage: /track <job-id>")
		}
		a.tracker.Track(args)
		a.poller.Start(ctx)
		fmt.Printf("Tracking job %s\n", args)

	case "/jobs":
		statuses := a.tracker.Snapshot()
		if len(statuses) == 0 {
			fmt.Println("No tracked jobs.")
			break
		}
		for _, st := range statuses {
			line := fmt.Sprintf("  %s  %s", st.JobID, st.State)
			if st.Detail != "" {
				line += "  " + st.Detail
			}
			switch st.State {
			case jobs.StateSucceeded:
				color.Green(line)
			case jobs.StateFailed:
				color.Red(line)
			default:
				fmt.Println(line)
			}
			for _, w := range st.Warnings {
				color.Yellow("      warning: %s", w)
			}
		}

	case "/notifications":
		events := a.queue.List()
		if len(events) == 0 {
			fmt.Println("No notifications.")
		}
		for _, e := range events {
			stamp := e.CreatedAt.Format("15:04:05")
			switch e.Kind {
			case notify.KindError:
				color.Red("  %s  [%s] %s — %s", stamp, e.Kind, e.Title, e.Message)
			case notify.KindSuccess:
				color.Green("  %s  [%s] %s — %s", stamp, e.Kind, e.Title, e.Message)
			default:
				fmt.Printf("  %s  [%s] %s — %s\n", stamp, e.Kind, e.Title, e.Message)
			}
		}
		a.queue.MarkAllRead()

	case "/export":
		if args == "" {
			return false, fmt.Errorf("usage: /export <file.html>")
		}
		if err := a.exportTranscript(args); err != nil {
			return false, err
		}
		fmt.Printf("Transcript written to %s\n", args)

	default:
		return false, fmt.Errorf("unknown command %s (see /help)", cmd)
	}

	return false, nil
}

// submit sends one question and prints the resulting agent turn.
func (a *app) submit(ctx context.Context, input string) {
	result, err := a.controller.Submit(ctx, a.sess, a.agent.AskPath, input)
	if err != nil {
		if !errors.Is(err, chat.ErrEmptyQuestion) {
			color.New(color.FgRed).Printf("[error] %v\n", err)
		}
		return
	}

	if result.Failed {
		color.New(color.FgRed).Println(result.AgentTurn.Text)
		return
	}

	color.New(color.FgGreen).Println(result.AgentTurn.Text)
	if result.Answer != nil && len(result.Answer.FilesConsulted) > 0 {
		color.New(color.FgHiBlack).Printf("(consulted: %s)\n",
			strings.Join(result.Answer.FilesConsulted, ", "))
	}
}

// printHistory renders the active session's turns.
func (a *app) printHistory() {
	turns := a.sessions.Turns(a.sess)
	if len(turns) == 0 {
		return
	}

	fmt.Println(strings.Repeat("-", 60))
	for _, turn := range turns {
		if turn.Role == session.RoleUser {
			color.New(color.FgBlue).Printf("you> ")
		} else {
			color.New(color.FgGreen).Printf("%s> ", a.agent.Name)
		}
		fmt.Println(turn.Text)
	}
	fmt.Println(strings.Repeat("-", 60))
}

// exportTranscript writes the active session as standalone HTML.
func (a *app) exportTranscript(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating export file: %w", err)
	}
	defer f.Close()

	if err := export.WriteHTML(f, a.sess.Key(), a.sessions.Turns(a.sess)); err != nil {
		return fmt.Errorf("writing transcript: %w", err)
	}
	return nil
}

// printHelp displays available commands.
func printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  /agents              List configured agents")
	fmt.Println("  /use <name>          Switch to another agent")
	fmt.Println("  /history             Show the current conversation")
	fmt.Println("  /reset               Clear the current conversation")
	fmt.Println("  /track <job-id>      Track an async backend job")
	fmt.Println("  /jobs                Show tracked job statuses")
	fmt.Println("  /notifications       Show notifications, mark them read")
	fmt.Println("  /export <file.html>  Export the transcript as HTML")
	fmt.Println("  /help                Show this help")
	fmt.Println("  /quit                Exit")
}
