package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/loqalabs/synapse-audio/internal/bus"
	"github.com/loqalabs/synapse-audio/internal/client"
	"github.com/loqalabs/synapse-audio/internal/config"
	"github.com/loqalabs/synapse-audio/internal/playback"
	"github.com/loqalabs/synapse-audio/internal/speaker"
)

func main() {
	_ = godotenv.Load()

	fmt.Println(BulletStyle.Render("┌") + TitleStyle.Render("synapse-player"))

	var serverURL, busURL, summary, summaryFile, notebookID string
	flag.StringVar(&serverURL, "server", envOr("SYNAPSE_SERVER_URL", "http://localhost:8080"), "synapsed base URL")
	flag.StringVar(&busURL, "bus", os.Getenv("SYNAPSE_BUS_URL"), "NATS URL; when set, requests go over the bus instead of HTTP")
	flag.StringVar(&summary, "summary", "", "Summary text to turn into an audio overview")
	flag.StringVar(&summaryFile, "summary-file", "", "Read the summary from a file, or '-' for stdin")
	flag.StringVar(&notebookID, "notebook", "", "Optional notebook id used to reject duplicate generations")
	flag.Parse()

	if summaryFile != "" {
		text, err := readSummary(summaryFile)
		if err != nil {
			fmt.Fprintln(os.Stderr, BulletStyle.Render("└")+ErrorStyle.Render("read summary: "+err.Error()))
			os.Exit(1)
		}
		summary = text
	}
	if strings.TrimSpace(summary) == "" {
		fmt.Println(BulletStyle.Render("└") + TextStyle.Render("Usage: synapse-player -summary <text> | -summary-file <path>"))
		os.Exit(2)
	}

	element, err := speaker.New(0)
	if err != nil {
		fmt.Fprintln(os.Stderr, BulletStyle.Render("└")+ErrorStyle.Render(err.Error()))
		os.Exit(1)
	}
	defer element.Close()

	var api overviewAPI = client.New(serverURL, nil)
	if busURL != "" {
		busClient, err := connectBus(busURL)
		if err != nil {
			fmt.Fprintln(os.Stderr, BulletStyle.Render("└")+ErrorStyle.Render(err.Error()))
			os.Exit(1)
		}
		defer busClient.Close()
		api = client.NewBus(busClient)
	}

	m := newModel(api, playback.NewController(element), element.Ended(), notebookID, summary)
	if _, err := tea.NewProgram(m).Run(); err != nil {
		fmt.Fprintln(os.Stderr, BulletStyle.Render("└")+ErrorStyle.Render(err.Error()))
		os.Exit(1)
	}
}

// connectBus dials NATS quietly; the TUI owns the terminal.
func connectBus(url string) (*bus.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return bus.Connect(ctx, config.BusConfig{Servers: []string{url}, ConnectTimeout: 5000}, logger)
}

func readSummary(path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		return string(data), err
	}
	data, err := os.ReadFile(path)
	return string(data), err
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
