package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"corsair/internal/cache"
	"corsair/internal/catalog"
	"corsair/internal/config"
	"corsair/internal/db"
	"corsair/internal/domain"
	"corsair/internal/migrate"
	"corsair/internal/notify"
	"corsair/internal/reconcile"
	"corsair/internal/session"
	"corsair/internal/views"
	"corsair/internal/worker"

	corsairsdk "corsair/sdk/go"
)

var rootCmd = &cobra.Command{
	Use:   "csr",
	Short: "Corsair CLI",
	Long: `Corsair is a client for the pirate-game worker API.
It stages missions with your captains, dispatches them in batches, listens
for completion pushes, and reconciles results against the job ids it
submitted. Run 'csr serve' for a local worker to sail against.`,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("CORSAIR")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("realm", "", "realm (game domain) override")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("realm", rootCmd.PersistentFlags().Lookup("realm"))
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(loginCmd())
	rootCmd.AddCommand(logoutCmd())
	rootCmd.AddCommand(layersCmd())
	rootCmd.AddCommand(missionsCmd())
	rootCmd.AddCommand(fleetCmd())
	rootCmd.AddCommand(meCmd())
	rootCmd.AddCommand(leaderboardCmd())
	rootCmd.AddCommand(dispatchCmd())
	rootCmd.AddCommand(arenaCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage client config"}
	cfg.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a default corsair.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			return os.WriteFile(path, []byte(config.GenerateDefault()), 0o644)
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return printJSON(cfg)
		},
	})
	return cfg
}

func loginCmd() *cobra.Command {
	var wallet string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Exchange a wallet address for a session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if wallet == "" {
				return fmt.Errorf("--wallet required")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			client := newClient(cfg, "")
			token, err := client.Login(cmd.Context(), wallet)
			if err != nil {
				return err
			}
			s := session.Session{Token: token, Wallet: wallet, Realm: viper.GetString("realm")}
			if err := session.Save(viper.GetString("workspace"), s); err != nil {
				return err
			}
			fmt.Printf("Logged in as %s\n", wallet)
			return nil
		},
	}
	cmd.Flags().StringVar(&wallet, "wallet", "", "wallet address")
	_ = cmd.MarkFlagRequired("wallet")
	return cmd
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Drop the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return session.Clear(viper.GetString("workspace"))
		},
	}
}

func layersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "layers",
		Short: "Show the world map layers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := loadCatalog(cmd.Context())
			if err != nil {
				return err
			}
			layers := cat.Layers()
			if viper.GetBool("json") {
				return printJSON(layers)
			}
			rows := make([]table.Row, 0, len(layers))
			for _, l := range layers {
				rows = append(rows, table.Row{l.ID, l.Name, len(l.Missions), strings.Join(kindNames(l), ", ")})
			}
			renderTable(table.Row{"ID", "Layer", "Missions", "Fetched kinds"}, rows)
			return nil
		},
	}
}

func kindNames(l domain.Layer) []string {
	kinds := catalog.KindsForLayer(l.ID)
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = string(k)
	}
	return out
}

func missionsCmd() *cobra.Command {
	var layerID int
	cmd := &cobra.Command{
		Use:   "missions",
		Short: "List a layer's missions with live stats",
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := loadCatalog(cmd.Context())
			if err != nil {
				return err
			}
			layer, ok := cat.Layer(layerID)
			if !ok {
				return fmt.Errorf("unknown layer %d", layerID)
			}
			if viper.GetBool("json") {
				return printJSON(layer.Missions)
			}
			rows := make([]table.Row, 0, len(layer.Missions))
			for _, m := range layer.Missions {
				yield, risk, duration := "-", "-", "-"
				if m.Stats != nil {
					yield = m.Stats.Yield
					risk = m.Stats.Risk
					duration = fmt.Sprintf("%.0fh", m.Stats.DurationHours)
				}
				rows = append(rows, table.Row{m.ID, m.Name, string(m.Kind), m.Path, yield, risk, duration})
			}
			renderTable(table.Row{"ID", "Mission", "Kind", "Path", "Yield", "Risk", "Duration"}, rows)
			return nil
		},
	}
	cmd.Flags().IntVar(&layerID, "layer", 1, "layer id")
	return cmd
}

func fleetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fleet",
		Short: "List your captains",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, _ *config.Config, _ *corsairsdk.Client, v views.Views) error {
				nfts, err := v.Fleet(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(nfts)
				}
				rows := make([]table.Row, 0, len(nfts))
				for _, n := range nfts {
					state := "idle"
					if n.OnMission {
						state = "on mission"
					}
					rows = append(rows, table.Row{n.ID, n.Name, state})
				}
				renderTable(table.Row{"ID", "Captain", "State"}, rows)
				return nil
			})
		},
	}
}

func meCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "me",
		Short: "Show balances",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, _ *config.Config, _ *corsairsdk.Client, v views.Views) error {
				p, err := v.Profile(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(p)
				}
				fmt.Printf("Wallet: %s\nGems: %.0f\nTreasure: %.0f\n", p.Wallet, p.Gems, p.Treasure)
				return nil
			})
		},
	}
}

func leaderboardCmd() *cobra.Command {
	var arena bool
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Show the leaderboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, _ *config.Config, _ *corsairsdk.Client, v views.Views) error {
				entries, err := v.Leaderboard(ctx, arena)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(entries)
				}
				rows := make([]table.Row, 0, len(entries))
				for _, e := range entries {
					rows = append(rows, table.Row{e.Rank, e.Wallet, fmt.Sprintf("%.0f", e.Score)})
				}
				renderTable(table.Row{"Rank", "Wallet", "Score"}, rows)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&arena, "arena", false, "arena leaderboard")
	return cmd
}

func dispatchCmd() *cobra.Command {
	var missionRef string
	var nftIDs []string
	var groups []string
	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Dispatch staged missions and await their results",
		Long: `Dispatch one or more mission groups. A single group uses --mission and
repeated --nft flags; multiple groups use repeated --group flags of the
form <mission-id-or-path>:<nft>,<nft>. The command blocks until every
submitted job id has a matching push notification or the batch window
elapses, then prints the aggregated results.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, cfg *config.Config, client *corsairsdk.Client, v views.Views) error {
				cat, err := enrichedCatalog(ctx, cfg, client)
				if err != nil {
					return err
				}
				batch, err := buildBatch(cat, missionRef, nftIDs, groups)
				if err != nil {
					return err
				}
				return runBatch(ctx, cfg, client, v, client, domain.NotifyInitiate, cache.MissionKeys, batch)
			})
		},
	}
	cmd.Flags().StringVar(&missionRef, "mission", "", "mission id or path")
	cmd.Flags().StringArrayVar(&nftIDs, "nft", nil, "captain id (repeatable)")
	cmd.Flags().StringArrayVar(&groups, "group", nil, "mission group <mission>:<nft>,<nft> (repeatable)")
	return cmd
}

func arenaCmd() *cobra.Command {
	var nftIDs []string
	cmd := &cobra.Command{
		Use:   "arena",
		Short: "Enter the arena and await the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, cfg *config.Config, client *corsairsdk.Client, v views.Views) error {
				batch := []domain.ActiveMission{{MissionPath: "arena", MissionName: "Arena", NFTIDs: nftIDs}}
				gw := arenaGateway{client: client}
				return runBatch(ctx, cfg, client, v, gw, domain.NotifyArena, cache.ArenaKeys, batch)
			})
		},
	}
	cmd.Flags().StringArrayVar(&nftIDs, "nft", nil, "captain id (repeatable)")
	return cmd
}

// arenaGateway adapts the arena endpoint to the reconciler's contract.
type arenaGateway struct {
	client *corsairsdk.Client
}

func (g arenaGateway) InitiateMission(ctx context.Context, am domain.ActiveMission) (domain.Job, error) {
	return g.client.InitiateArena(ctx, am.NFTIDs)
}

func buildBatch(cat *catalog.Catalog, missionRef string, nftIDs, groups []string) ([]domain.ActiveMission, error) {
	var batch []domain.ActiveMission
	if missionRef != "" {
		am, err := stageGroup(cat, missionRef, nftIDs)
		if err != nil {
			return nil, err
		}
		batch = append(batch, am)
	}
	for _, g := range groups {
		ref, list, ok := strings.Cut(g, ":")
		if !ok {
			return nil, fmt.Errorf("invalid --group %q, want <mission>:<nft>,<nft>", g)
		}
		am, err := stageGroup(cat, ref, strings.Split(list, ","))
		if err != nil {
			return nil, err
		}
		batch = append(batch, am)
	}
	if len(batch) == 0 {
		return nil, fmt.Errorf("nothing staged; use --mission/--nft or --group")
	}
	return batch, nil
}

func stageGroup(cat *catalog.Catalog, missionRef string, nftIDs []string) (domain.ActiveMission, error) {
	m, ok := cat.Mission(missionRef)
	if !ok {
		m, ok = cat.MissionByPath(missionRef)
	}
	if !ok {
		return domain.ActiveMission{}, fmt.Errorf("unknown mission %q", missionRef)
	}
	return domain.ActiveMission{MissionPath: m.Path, MissionName: m.Name, NFTIDs: nftIDs}, nil
}

// runBatch wires the feed, listener, and reconciler together, runs the
// dispatch lifecycle, and prints the grouped results. The reconciler
// flushes the views' store, so the balance read at the end goes back to
// the worker.
func runBatch(ctx context.Context, cfg *config.Config, client *corsairsdk.Client, v views.Views, gw reconcile.Gateway, typ string, keys []string, batch []domain.ActiveMission) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	feed := notify.NewFeed(0)
	listener := &notify.Listener{
		URL:   cfg.Worker.RealtimeURL,
		Token: client.BearerToken,
		Feed:  feed,
	}
	go func() { _ = listener.Run(ctx) }()

	// Warm the snapshots the cycle will invalidate.
	if _, err := v.Profile(ctx); err != nil {
		fmt.Printf("warning: balances unavailable: %v\n", err)
	}

	rec := reconcile.New(gw, feed, v.Store)
	rec.Type = typ
	rec.Keys = keys
	rec.Timeout = time.Duration(cfg.Dispatch.TimeoutSeconds) * time.Second

	res, err := rec.Run(ctx, batch)
	if err != nil {
		if errors.Is(err, reconcile.ErrEmptyGroup) {
			return fmt.Errorf("An error occurred, try again later")
		}
		return err
	}

	fmt.Println(res.Summary())
	if len(res.Unresolved) > 0 {
		fmt.Printf("%d job(s) unresolved at timeout\n", len(res.Unresolved))
	}
	groups := reconcile.Group(reconcile.Claimed(res))
	if viper.GetBool("json") {
		return printJSON(groups)
	}
	rows := make([]table.Row, 0, len(groups))
	for _, g := range groups {
		rows = append(rows, table.Row{
			g.MissionName, g.Attempts, strings.Join(g.NFTIDs, ","),
			fmt.Sprintf("%.0f", g.Gems), fmt.Sprintf("%.0f", g.Treasure), g.OutcomeMultiplier,
		})
	}
	renderTable(table.Row{"Mission", "Attempts", "Captains", "Gems", "Treasure", "Best multiplier"}, rows)
	if p, err := v.Profile(ctx); err == nil {
		fmt.Printf("Balances: %.0f gems, %.0f treasure\n", p.Gems, p.Treasure)
	}
	return nil
}

func logCmd() *cobra.Command {
	logc := &cobra.Command{Use: "log", Short: "Activity feed"}
	var n int
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Tail recent events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, _ *config.Config, client *corsairsdk.Client, _ views.Views) error {
				events, err := client.Events(ctx, n)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				rows := make([]table.Row, 0, len(events))
				for _, e := range events {
					rows = append(rows, table.Row{e.ID, e.TS, e.Type, e.Wallet, e.JobID})
				}
				renderTable(table.Row{"ID", "TS", "Type", "Wallet", "Job"}, rows)
				return nil
			})
		},
	}
	tail.Flags().IntVar(&n, "n", 20, "number of events")
	logc.AddCommand(tail)
	return logc
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a local worker simulator",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			secret := os.Getenv("CORSAIR_JWT_SECRET")
			if secret == "" {
				return fmt.Errorf("CORSAIR_JWT_SECRET is required")
			}
			engine := worker.New(conn, cfg, secret)
			handler, err := worker.NewHandler(worker.Config{Engine: engine, BasePath: basePath})
			if err != nil {
				return err
			}
			go func() { _ = engine.Run(cmd.Context()) }()
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving worker API on http://%s%s (push channel at /ws)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- helpers ---

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOptional(viper.GetString("workspace"))
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default()
	}
	return cfg, nil
}

func newClient(cfg *config.Config, token string) *corsairsdk.Client {
	client := corsairsdk.New(cfg.Worker.BaseURL)
	client.BearerToken = token
	client.RetryAttempts = cfg.Reads.RetryAttempts
	client.RetryDelay = time.Duration(cfg.Reads.RetryDelayMS) * time.Millisecond
	return client
}

func withClient(fn func(context.Context, *config.Config, *corsairsdk.Client, views.Views) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	s, err := session.Load(viper.GetString("workspace"))
	if err != nil {
		return err
	}
	client := newClient(cfg, s.Token)
	return fn(context.Background(), cfg, client, views.New(client, cache.NewStore()))
}

func loadCatalog(ctx context.Context) (*catalog.Catalog, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	s, err := session.Load(viper.GetString("workspace"))
	if err != nil {
		return nil, err
	}
	return enrichedCatalog(ctx, cfg, newClient(cfg, s.Token))
}

func enrichedCatalog(ctx context.Context, cfg *config.Config, client *corsairsdk.Client) (*catalog.Catalog, error) {
	cat := catalog.New(client, cfg.World.Layers)
	if err := cat.Load(ctx); err != nil {
		// Stats stay not-yet-loaded; the static catalog is still usable.
		fmt.Printf("warning: mission stats unavailable: %v\n", err)
	}
	return cat, nil
}

func renderTable(header table.Row, rows []table.Row) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(header)
	t.AppendRows(rows)
	t.Render()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
