package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/pouriya/toolbelt/internal/booking"
	"github.com/pouriya/toolbelt/internal/config"
	"github.com/pouriya/toolbelt/internal/db"
	"github.com/pouriya/toolbelt/internal/fetch"
	"github.com/pouriya/toolbelt/internal/geocode"
	"github.com/pouriya/toolbelt/internal/location"
	"github.com/pouriya/toolbelt/internal/mcp"
	"github.com/pouriya/toolbelt/internal/music"
	"github.com/pouriya/toolbelt/internal/tools"
	"github.com/pouriya/toolbelt/internal/trending"
	"github.com/pouriya/toolbelt/internal/weather"
)

const nominatimHost = "nominatim.openstreetmap.org"

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		fatal("%v", err)
	}
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	switch os.Args[1] {
	case "init":
		cmdInit(os.Args[2:])
	case "serve":
		cmdServe(os.Args[2:])
	case "call":
		cmdCall(os.Args[2:])
	case "city":
		cmdCity(os.Args[2:])
	case "cities":
		cmdCities(os.Args[2:])
	case "prefs":
		cmdPrefs(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `toolbelt - everyday lookup tools (weather, music, movies, news) via MCP

Usage:
  toolbelt <command> [flags]

Commands:
  init     Create and initialize the preference database
  serve    Start the MCP HTTP server
  call     Run one tool locally: toolbelt call <tool> ['{"arg":"value"}']
  city     Manage the preferred city: city set <name> | city get | city clear
  cities   List supported cities
  prefs    List stored preferences

Environment variables (a .env file in the working directory is loaded first):
  TOOLBELT_DB            Database path (default: %s)
  TOOLBELT_ADDR          Server address (default: %s)
  TOOLBELT_TOKEN         Bearer token for auth
  TOOLBELT_DEBUG         Enable debug logging (any non-empty value)
  TOOLBELT_CITIES        City set TOML file (default: built-in)
  TOOLBELT_OWNER         Value returned by the validate tool (required by serve)
  TOOLBELT_HTTP_TIMEOUT  Outbound request timeout (default: %s)
  SPOTIFY_CLIENT_ID      Spotify client credentials for music
  SPOTIFY_CLIENT_SECRET
  AFFILIATE_PREFIX       Wrap booking links as PREFIX + url + SUFFIX
  AFFILIATE_SUFFIX

Run 'toolbelt <command> --help' for more information.
`, config.DefaultDB, config.DefaultAddr, config.DefaultHTTPTimeout)
}

// --- init ---

func cmdInit(args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	dbPath := fs.String("db", "", "Database path")
	fs.Parse(args)

	path := resolve(*dbPath, "TOOLBELT_DB", config.DefaultDB)

	d, err := db.Open(path)
	if err != nil {
		fatal("init: %v", err)
	}
	d.Close()
	fmt.Printf("Database initialized at %s\n", path)
}

// --- serve ---

func cmdServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	dbPath := fs.String("db", "", "Database path")
	addr := fs.String("addr", "", "Listen address")
	token := fs.String("token", "", "Bearer token for auth (empty = no auth)")
	cities := fs.String("cities", "", "City set TOML file")
	debug := fs.Bool("debug", false, "Enable debug logging")
	fs.Parse(args)

	path := resolve(*dbPath, "TOOLBELT_DB", config.DefaultDB)
	listenAddr := resolve(*addr, "TOOLBELT_ADDR", config.DefaultAddr)
	authToken := resolve(*token, "TOOLBELT_TOKEN", "")

	if !*debug && os.Getenv("TOOLBELT_DEBUG") != "" {
		*debug = true
	}
	setupLogging(*debug)

	cfg := config.FromEnv()
	cfg.CitiesPath = resolve(*cities, "TOOLBELT_CITIES", "")
	if cfg.Owner == "" {
		fatal("serve: TOOLBELT_OWNER is required (returned by the validate tool)")
	}

	d, err := db.Open(path)
	if err != nil {
		fatal("serve: %v", err)
	}
	defer d.Close()

	disp, err := newDispatcher(cfg, d)
	if err != nil {
		fatal("serve: %v", err)
	}
	server := &mcp.Server{Tools: disp, Token: authToken}

	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           mcp.Routes(server, d.Ping),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("server starting",
		"addr", listenAddr,
		"db", path,
		"auth", authToken != "",
		"debug", *debug,
		"cities", disp.Resolver.Cities().Len(),
		"spotify", cfg.SpotifyClientID != "",
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdown)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		fatal("serve: %v", err)
	}
	slog.Info("server stopped")
}

// --- call ---

func cmdCall(args []string) {
	fs := flag.NewFlagSet("call", flag.ExitOnError)
	dbPath := fs.String("db", "", "Database path")
	asJSON := fs.Bool("json", false, "Print the structured result")
	debug := fs.Bool("debug", false, "Enable debug logging")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: tool name is required")
		fs.Usage()
		os.Exit(1)
	}
	setupLogging(*debug || os.Getenv("TOOLBELT_DEBUG") != "")

	var toolArgs map[string]any
	if fs.NArg() > 1 {
		if err := json.Unmarshal([]byte(fs.Arg(1)), &toolArgs); err != nil {
			fatal("arguments must be a JSON object: %v", err)
		}
	}

	d, err := db.Open(resolve(*dbPath, "TOOLBELT_DB", config.DefaultDB))
	if err != nil {
		fatal("open db: %v", err)
	}
	defer d.Close()

	disp, err := newDispatcher(config.FromEnv(), d)
	if err != nil {
		fatal("%v", err)
	}
	res, err := disp.Call(context.Background(), fs.Arg(0), toolArgs)
	if err != nil {
		fatal("%v", err)
	}
	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(res)
	} else {
		fmt.Println(res.Render())
	}
	if res.IsError() {
		os.Exit(2)
	}
}

// --- city ---

func cmdCity(args []string) {
	fs := flag.NewFlagSet("city", flag.ExitOnError)
	dbPath := fs.String("db", "", "Database path")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: expected set <name>, get or clear")
		os.Exit(1)
	}

	d, err := db.Open(resolve(*dbPath, "TOOLBELT_DB", config.DefaultDB))
	if err != nil {
		fatal("open db: %v", err)
	}
	defer d.Close()
	disp, err := newDispatcher(config.FromEnv(), d)
	if err != nil {
		fatal("%v", err)
	}

	var (
		name     string
		toolArgs map[string]any
	)
	switch fs.Arg(0) {
	case "set":
		if fs.NArg() < 2 {
			fatal("city set: name is required")
		}
		name, toolArgs = "set_preferred_city", map[string]any{"city": fs.Arg(1)}
	case "get":
		name = "get_preferred_city"
	case "clear":
		name = "clear_preferred_city"
	default:
		fatal("unknown city subcommand: %s", fs.Arg(0))
	}
	res, err := disp.Call(context.Background(), name, toolArgs)
	if err != nil {
		fatal("city %s: %v", fs.Arg(0), err)
	}
	fmt.Println(res.Render())
}

// --- cities ---

func cmdCities(args []string) {
	fs := flag.NewFlagSet("cities", flag.ExitOnError)
	cities := fs.String("cities", "", "City set TOML file")
	fs.Parse(args)

	c, err := config.LoadCities(resolve(*cities, "TOOLBELT_CITIES", ""))
	if err != nil {
		fatal("%v", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SLUG\tNAME\tLAT\tLON\tALIASES")
	for _, city := range c.Set.Cities() {
		fmt.Fprintf(w, "%s\t%s\t%.4f\t%.4f\t%v\n", city.Slug, city.Name, city.Lat, city.Lon, city.Aliases)
	}
	w.Flush()
	fmt.Printf("\n%d cities, nearest-city cutoff %.0f km\n", c.Set.Len(), c.MaxDistanceKm)
}

// --- prefs ---

func cmdPrefs(args []string) {
	fs := flag.NewFlagSet("prefs", flag.ExitOnError)
	dbPath := fs.String("db", "", "Database path")
	fs.Parse(args)

	d, err := db.Open(resolve(*dbPath, "TOOLBELT_DB", config.DefaultDB))
	if err != nil {
		fatal("open db: %v", err)
	}
	defer d.Close()

	prefs, err := d.All(context.Background())
	if err != nil {
		fatal("prefs: %v", err)
	}
	if len(prefs) == 0 {
		fmt.Println("No preferences stored.")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tVALUE\tUPDATED")
	for _, p := range prefs {
		fmt.Fprintf(w, "%s\t%s\t%s\n", p.Key, p.Value, p.UpdatedAt)
	}
	w.Flush()
}

// --- wiring ---

func newDispatcher(cfg *config.Config, d *db.DB) (*tools.Dispatcher, error) {
	cities, err := config.LoadCities(cfg.CitiesPath)
	if err != nil {
		return nil, err
	}
	fc := fetch.New(
		fetch.WithTimeout(cfg.HTTPTimeout),
		fetch.WithHostLimit(nominatimHost, time.Second, 1),
	)
	geo := geocode.New(fc, "")
	return &tools.Dispatcher{
		Owner:    cfg.Owner,
		Resolver: location.New(cities.Set, cities.MaxDistanceKm, d, geo),
		Prefs:    d,
		Weather:  weather.New(fc, geo, ""),
		Music:    music.New(music.NewSpotify(fc, cfg.SpotifyClientID, cfg.SpotifyClientSecret, "", "")),
		Trending: trending.New(fc, ""),
		Booking: booking.New(cities.Set.Popular(), booking.Affiliate{
			Prefix: cfg.AffiliatePrefix,
			Suffix: cfg.AffiliateSuffix,
		}),
	}, nil
}

// --- helpers ---

// resolve returns the flag value if non-empty, otherwise the env var, otherwise the default.
func resolve(flagVal, envKey, def string) string {
	if flagVal != "" {
		return flagVal
	}
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	return def
}

func setupLogging(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
