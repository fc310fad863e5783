// heistwatch - live robbery tracker engine and tools
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/ernie/heistwatch/internal/api"
	"github.com/ernie/heistwatch/internal/config"
	"github.com/ernie/heistwatch/internal/domain"
	"github.com/ernie/heistwatch/internal/tracker"
	"github.com/ernie/heistwatch/internal/transport"
	flag "github.com/spf13/pflag"
)

var version = "dev"

const defaultConfigPath = "/etc/heistwatch/config.yml"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "init":
		cmdInit(os.Args[2:])
	case "serve":
		cmdServe(os.Args[2:])
	case "activate":
		cmdActivate(os.Args[2:])
	case "status":
		cmdStatus(os.Args[2:])
	case "events":
		cmdEvents(os.Args[2:])
	case "combos":
		cmdCombos(os.Args[2:])
	case "stats":
		cmdStats(os.Args[2:])
	case "presets":
		cmdPresets(os.Args[2:])
	case "version":
		fmt.Printf("heistwatch %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: heistwatch <command> [options] [args]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  init                        Write a default config file")
	fmt.Println("  serve                       Start the tracking engine and API server")
	fmt.Println("  activate <feed>             Switch the active feed (robbery, mansion, airdrop)")
	fmt.Println("  status                      Show feed and connection status")
	fmt.Println("  events [--search S] [--size all|big|small] [--types a,b] [--sort name|time]")
	fmt.Println("                              Show the active feed's filtered events")
	fmt.Println("  combos [--presets a,b] [--search S] [--size all|big|small]")
	fmt.Println("                              Show current power combos (robbery feed)")
	fmt.Println("  stats                       Show aggregate counts for the active feed")
	fmt.Println("  presets                     Show the combo preset catalog")
	fmt.Println("  version                     Show version")
	fmt.Println("  help                        Show this help")
	fmt.Println()
	fmt.Println("Global Options:")
	fmt.Println("  --config <path>    Path to configuration file (default /etc/heistwatch/config.yml)")
	fmt.Println("  --url <url>        Base URL of the heistwatch server (default: derived from config)")
}

// cmdServe starts the tracking engine and the HTTP API
func cmdServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	feedFlag := fs.String("feed", string(domain.FeedRobbery), "feed to activate at startup")
	fs.Parse(args)

	cfgPath := *configPath
	if cfgPath == "" {
		if _, err := os.Stat(defaultConfigPath); err == nil {
			cfgPath = defaultConfigPath
		} else {
			log.Fatalf("No config file found at %s. Use --config to specify a config file.", defaultConfigPath)
		}
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if !domain.ValidFeed(*feedFlag) {
		log.Fatalf("Unknown feed %q", *feedFlag)
	}

	log.Printf("Heistwatch %s starting...", version)
	log.Printf("Upstream: %s (%d combo presets)", cfg.Upstream.URL, len(cfg.Combos))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Transport factory: one fresh upstream subscription per activation
	factory := func(feed domain.Feed) (tracker.Transport, error) {
		return transport.Dial(feed, cfg.Upstream.URL, cfg.Upstream.StatusURL, cfg.Upstream.DialTimeout)
	}

	engine := tracker.NewEngine(factory, cfg.Combos, cfg.IdleWindows())
	if err := engine.Activate(ctx, domain.Feed(*feedFlag)); err != nil {
		log.Fatalf("Failed to activate %s feed: %v", *feedFlag, err)
	}

	router := api.NewRouter(ctx, engine, cfg.Server.StaticDir)
	router.StartWebSocketHub()
	if cfg.Server.StaticDir != "" {
		log.Printf("Serving static files from %s", cfg.Server.StaticDir)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.ListenAddr, cfg.Server.HTTPPort)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		log.Printf("HTTP server listening on %s", addr)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case sig := <-sigCh:
		log.Printf("Received signal %v, shutting down...", sig)
	case err := <-serverErr:
		log.Fatalf("HTTP server error: %v", err)
	}

	log.Println("Shutting down HTTP server...")
	httpCtx, httpCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer httpCancel()
	if err := server.Shutdown(httpCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	log.Println("Stopping tracking engine...")
	engine.Stop()

	cancel()
	log.Println("Shutdown complete")
}

// cmdInit writes a default config file
func cmdInit(args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to configuration file")
	fs.Parse(args)

	if _, err := os.Stat(*configPath); err == nil {
		fmt.Printf("Heistwatch is already initialized (%s exists).\n", *configPath)
		fmt.Println("To re-initialize, remove the config file first.")
		return
	}

	cfg := &config.Config{
		Server: config.ServerConfig{
			ListenAddr: "127.0.0.1",
			HTTPPort:   8080,
		},
		Upstream: config.UpstreamConfig{
			URL:       "wss://live.example.com/feeds",
			StatusURL: "https://live.example.com/api/ban-status",
		},
		Combos: config.DefaultPresets(),
	}
	if err := config.Save(*configPath, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing config: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Config: %s\n", *configPath)
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Printf("  1. Edit %s with the upstream feed URLs\n", *configPath)
	fmt.Println("  2. Start the engine: heistwatch serve")
}

// CLI helper variable
var baseURL = "http://localhost:8080"

// loadCLIConfigFromFlags derives the server URL from config and flags
func loadCLIConfigFromFlags(configPath, url string) {
	cfg, err := config.Load(configPath)
	if err != nil {
		if url != "" {
			baseURL = url
		}
		return
	}
	if url != "" {
		baseURL = url
	} else {
		baseURL = fmt.Sprintf("http://%s:%d", cfg.Server.ListenAddr, cfg.Server.HTTPPort)
	}
}

// cliFlags registers the global --config/--url flags on a flag set
func cliFlags(fs *flag.FlagSet) (configPath, url *string) {
	configPath = fs.String("config", defaultConfigPath, "path to configuration file")
	url = fs.String("url", "", "base URL of the heistwatch server")
	return
}

type feedInfo struct {
	Feed   domain.Feed `json:"feed"`
	Active bool        `json:"active"`
}

type eventsResponse struct {
	Events     []domain.Event          `json:"events"`
	Total      int                     `json:"total"`
	Stats      domain.Stats            `json:"stats"`
	Connection domain.ConnectionStatus `json:"connection"`
}

type combosResponse struct {
	Combos     []domain.ComboResult    `json:"combos"`
	Total      int                     `json:"total"`
	Stats      domain.Stats            `json:"stats"`
	Connection domain.ConnectionStatus `json:"connection"`
}

func cmdActivate(args []string) {
	fs := flag.NewFlagSet("activate", flag.ExitOnError)
	configPath, url := cliFlags(fs)
	fs.Parse(args)
	loadCLIConfigFromFlags(*configPath, *url)

	remaining := fs.Args()
	if len(remaining) < 1 || !domain.ValidFeed(remaining[0]) {
		fmt.Fprintf(os.Stderr, "Usage: heistwatch activate <robbery|mansion|airdrop>\n")
		os.Exit(1)
	}

	var resp map[string]string
	if err := postJSON(fmt.Sprintf("/api/feeds/%s/activate", remaining[0]), &resp); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Active feed: %s\n", resp["active"])
}

func cmdStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath, url := cliFlags(fs)
	fs.Parse(args)
	loadCLIConfigFromFlags(*configPath, *url)

	var feeds []feedInfo
	if err := getJSON("/api/feeds", &feeds); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FEED\tACTIVE\tSTATE\tBAN\tDATA\tERROR")
	fmt.Fprintln(w, "----\t------\t-----\t---\t----\t-----")

	for _, f := range feeds {
		if !f.Active {
			fmt.Fprintf(w, "%s\tno\t-\t-\t-\t-\n", f.Feed)
			continue
		}

		var conn domain.ConnectionStatus
		if err := getJSON(fmt.Sprintf("/api/feeds/%s/connection", f.Feed), &conn); err != nil {
			fmt.Fprintf(w, "%s\tyes\tUNREACHABLE\t-\t-\t%v\n", f.Feed, err)
			continue
		}

		ban := "-"
		if conn.Countdown != nil {
			c := conn.Countdown
			ban = fmt.Sprintf("%dd%02dh%02dm%02ds", c.Days, c.Hours, c.Minutes, c.Seconds)
		}
		data := "none"
		if conn.HasData {
			data = "yes"
		}
		errText := conn.LastError
		if errText == "" {
			errText = "-"
		}
		fmt.Fprintf(w, "%s\tyes\t%s\t%s\t%s\t%s\n", f.Feed, conn.State, ban, data, errText)
	}

	w.Flush()
}

func cmdEvents(args []string) {
	fs := flag.NewFlagSet("events", flag.ExitOnError)
	configPath, url := cliFlags(fs)
	feed := fs.String("feed", string(domain.FeedRobbery), "feed to query")
	search := fs.String("search", "", "search term")
	size := fs.String("size", "all", "server size bucket: all, big, small")
	types := fs.String("types", "", "comma-separated marker names")
	sortBy := fs.String("sort", "time", "secondary sort key: name, time")
	fs.Parse(args)
	loadCLIConfigFromFlags(*configPath, *url)

	path := fmt.Sprintf("/api/feeds/%s/events?search=%s&size=%s&types=%s&sort=%s",
		*feed, *search, *size, *types, *sortBy)

	var resp eventsResponse
	if err := getJSON(path, &resp); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if resp.Total == 0 {
		if !resp.Connection.HasData {
			fmt.Println("No data received yet")
		} else {
			fmt.Println("No events match the current filters")
		}
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TYPE\tNAME\tSTATUS\tSERVER\tPLAYERS\tAGE")
	fmt.Fprintln(w, "----\t----\t------\t------\t-------\t---")
	for _, e := range resp.Events {
		server := e.ServerID()
		if server == "" {
			server = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			e.MarkerName, e.Name, statusLabel(e.Status), server, e.PlayerCount(), age(e.Timestamp))
	}
	w.Flush()
}

func cmdCombos(args []string) {
	fs := flag.NewFlagSet("combos", flag.ExitOnError)
	configPath, url := cliFlags(fs)
	presets := fs.String("presets", "", "comma-separated preset ids (default: all)")
	search := fs.String("search", "", "search term")
	size := fs.String("size", "all", "server size bucket: all, big, small")
	fs.Parse(args)
	loadCLIConfigFromFlags(*configPath, *url)

	path := fmt.Sprintf("/api/feeds/robbery/combos?presets=%s&search=%s&size=%s", *presets, *search, *size)

	var resp combosResponse
	if err := getJSON(path, &resp); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if resp.Total == 0 {
		fmt.Println("No power combos currently open")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "COMBO\tSERVER\tROBBERIES\tLATEST")
	fmt.Fprintln(w, "-----\t------\t---------\t------")
	for _, c := range resp.Combos {
		names := make([]string, 0, len(c.Robberies))
		for _, e := range c.Robberies {
			names = append(names, e.MarkerName)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.ComboID, c.ServerID, strings.Join(names, "+"), age(c.LatestTimestamp))
	}
	w.Flush()
}

func cmdStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	configPath, url := cliFlags(fs)
	feed := fs.String("feed", string(domain.FeedRobbery), "feed to query")
	fs.Parse(args)
	loadCLIConfigFromFlags(*configPath, *url)

	var stats domain.Stats
	if err := getJSON(fmt.Sprintf("/api/feeds/%s/stats", *feed), &stats); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Total: %d  Open: %d  In progress: %d\n", stats.Total, stats.Open, stats.InProgress)
	if *feed == string(domain.FeedAirdrop) {
		fmt.Printf("Easy: %d  Medium: %d  Hard: %d\n", stats.Easy, stats.Medium, stats.Hard)
	}
}

func cmdPresets(args []string) {
	fs := flag.NewFlagSet("presets", flag.ExitOnError)
	configPath, url := cliFlags(fs)
	fs.Parse(args)
	loadCLIConfigFromFlags(*configPath, *url)

	var presets []domain.ComboPreset
	if err := getJSON("/api/presets", &presets); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tLABEL\tTYPES")
	fmt.Fprintln(w, "--\t-----\t-----")
	for _, p := range presets {
		fmt.Fprintf(w, "%s\t%s\t%s\n", p.ID, p.Label, strings.Join(p.Types, ", "))
	}
	w.Flush()
}

// statusLabel renders the feed-specific status code
func statusLabel(status int) string {
	switch status {
	case domain.StatusOpen:
		return "open"
	case domain.StatusInProgress:
		return "in progress"
	default:
		return fmt.Sprintf("closed(%d)", status)
	}
}

// age formats how long ago a unix timestamp was
func age(ts int64) string {
	if ts == 0 {
		return "-"
	}
	d := time.Since(time.Unix(ts, 0)).Truncate(time.Second)
	if d < 0 {
		d = 0
	}
	return d.String()
}

func getJSON(path string, target interface{}) error {
	url := baseURL + path
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
	}

	return json.NewDecoder(resp.Body).Decode(target)
}

func postJSON(path string, target interface{}) error {
	url := baseURL + path
	resp, err := http.Post(url, "application/json", bytes.NewReader(nil))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
	}

	return json.NewDecoder(resp.Body).Decode(target)
}
