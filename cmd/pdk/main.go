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

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"packdesk/internal/access"
	"packdesk/internal/app"
	"packdesk/internal/catalog"
	"packdesk/internal/db"
	"packdesk/internal/domain"
	"packdesk/internal/engine"
	"packdesk/internal/migrate"
	"packdesk/internal/repo"
	"packdesk/internal/sequence"
	"packdesk/internal/server"
	"packdesk/internal/session"
	"packdesk/internal/tracking"
	packdesksdk "packdesk/sdk/go"
)

var rootCmd = &cobra.Command{
	Use:   "pdk",
	Short: "Packdesk CLI",
	Long: `Packdesk runs a partner marketing console backend: tenant-scoped
campaign catalogs, role-gated navigation, and drip-sequence progression.
Key ideas:
- Workspace: the .packdesk directory holding the database; policy lives
  in packdesk.yml next to it.
- Tenant: one partner account; every campaign and participation is
  scoped to it.
- Roles: anonymous, partner_admin, analyst, agq_admin. Resource groups
  in packdesk.yml say which roles enter which surfaces; everyone else
  is redirected to their landing page.
- Sequence campaigns: day-by-day content drips. The server unlocks one
  day per elapsed calendar day and writes a delivery receipt per
  selected channel; the console only renders what has receipts.
- Engagements: view/click events deduplicated per participation, day,
  and type.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
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
	viper.SetEnvPrefix("PACKDESK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("tenant", "", "tenant id (defaults to the workspace's single tenant)")
	rootCmd.PersistentFlags().String("persona", "local-admin", "acting persona id")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("tenant", rootCmd.PersistentFlags().Lookup("tenant"))
	_ = viper.BindPFlag("persona", rootCmd.PersistentFlags().Lookup("persona"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(campaignCmd())
	rootCmd.AddCommand(participationCmd())
	rootCmd.AddCommand(trackCmd())
	rootCmd.AddCommand(advanceCmd())
	rootCmd.AddCommand(accessCmd())
	rootCmd.AddCommand(sessionCmd())
	rootCmd.AddCommand(simulateCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(serveCmd())
}

func initCmd() *cobra.Command {
	var tenantID string
	var seed bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			if tenantID == "" {
				return fmt.Errorf("--tenant required")
			}
			workspace := viper.GetString("workspace")
			if path, err := app.WriteDefaultConfig(workspace, tenantID); err != nil {
				fmt.Printf("keeping %s\n", path)
			} else {
				fmt.Printf("wrote %s\n", path)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if seed {
					if err := e.SeedDemo(ctx, tenantID, viper.GetString("persona")); err != nil {
						return err
					}
					fmt.Printf("seeded demo data for tenant %s\n", tenantID)
					return nil
				}
				t, err := e.InitTenant(ctx, tenantID, "", viper.GetString("persona"))
				if err != nil {
					return err
				}
				return printJSONOrPlain(t)
			})
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", "", "tenant id")
	cmd.Flags().BoolVar(&seed, "seed", false, "seed demo campaigns")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Workspace config"}
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the resolved workspace config",
		RunE: func(cmd *cobra.Command, args []string) error {
			resolved, err := app.ResolveConfig(viper.GetString("workspace"), "packdesk")
			if err != nil {
				return err
			}
			return printJSONOrPlain(resolved)
		},
	})
	return cfg
}

func campaignCmd() *cobra.Command {
	c := &cobra.Command{Use: "campaign", Short: "Manage campaigns"}
	c.AddCommand(campaignListCmd())
	c.AddCommand(campaignShowCmd())
	c.AddCommand(campaignCreateCmd())
	c.AddCommand(campaignJoinCmd())
	return c
}

func campaignListCmd() *cobra.Command {
	var filter string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the tenant's campaigns",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := app.EnsureTenant(ctx, e, viper.GetString("tenant"), viper.GetString("persona"))
				if err != nil {
					return err
				}
				items, err := e.Repo.ListCampaigns(ctx, t.ID)
				if err != nil {
					return err
				}
				switch filter {
				case "available":
					items = catalog.Available(items)
				case "active":
					items = catalog.Active(items)
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Type", "Status", "Channels", "Joined"})
				for _, c := range items {
					tw.AppendRow(table.Row{c.ID, c.Name, c.Type, c.Status, strings.Join(c.Channels, ","), c.IsJoined})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&filter, "filter", "all", "all, available, or active")
	return cmd
}

func campaignShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <campaign-id>",
		Short: "Show a campaign with its sequence days",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := app.EnsureTenant(ctx, e, viper.GetString("tenant"), viper.GetString("persona"))
				if err != nil {
					return err
				}
				view, err := e.GetSequenceView(ctx, args[0], t.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(view)
				}
				fmt.Printf("%s (%s, %s)\n", view.Campaign.Name, view.Campaign.Type, view.Campaign.Status)
				items := view.Items
				if view.Participation != nil {
					items = sequence.ApplyReceipts(items, view.Participation.Receipts)
					pct := sequence.ProgressPercent(view.Participation.CurrentDay, view.Participation.TotalDays)
					fmt.Printf("participation %s: day %d/%d (%d%%), %s\n",
						view.Participation.ID, view.Participation.CurrentDay, view.Participation.TotalDays, pct, view.Participation.Status)
				}
				explainer, regular := sequence.Partition(items)
				printDays("explainer", explainer)
				printDays("days", regular)
				return nil
			})
		},
	}
	return cmd
}

func printDays(label string, items []domain.SequenceItem) {
	if len(items) == 0 {
		return
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetTitle(label)
	tw.AppendHeader(table.Row{"Day", "Title", "Delivery"})
	for _, it := range items {
		tw.AppendRow(table.Row{it.DayNumber, it.Title, it.DeliveryStatus})
	}
	tw.Render()
}

func campaignCreateCmd() *cobra.Command {
	var name, cType, status string
	var channels []string
	var duration int
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a campaign",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := app.EnsureTenant(ctx, e, viper.GetString("tenant"), viper.GetString("persona"))
				if err != nil {
					return err
				}
				c, err := e.CreateCampaign(ctx, engine.CampaignCreateOptions{
					TenantID:     t.ID,
					Name:         name,
					Type:         cType,
					Status:       status,
					Channels:     channels,
					DurationDays: duration,
					ActorID:      viper.GetString("persona"),
				})
				if err != nil {
					return err
				}
				return printJSONOrPlain(c)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "campaign name")
	cmd.Flags().StringVar(&cType, "type", "standalone", "standalone or sequence")
	cmd.Flags().StringVar(&status, "status", "available", "available, active, or closed")
	cmd.Flags().StringSliceVar(&channels, "channels", []string{"email"}, "channels")
	cmd.Flags().IntVar(&duration, "duration", 0, "duration in days (sequence only)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func campaignJoinCmd() *cobra.Command {
	var channels []string
	cmd := &cobra.Command{
		Use:   "join <campaign-id>",
		Short: "Join a sequence campaign",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := app.EnsureTenant(ctx, e, viper.GetString("tenant"), viper.GetString("persona"))
				if err != nil {
					return err
				}
				p, err := e.Join(ctx, engine.JoinOptions{
					CampaignID: args[0],
					TenantID:   t.ID,
					Channels:   channels,
					ActorID:    viper.GetString("persona"),
				})
				var dup engine.AlreadyJoinedError
				if errors.As(err, &dup) {
					fmt.Printf("already joined (participation %s)\n", dup.ParticipationID)
					return nil
				}
				if err != nil {
					return err
				}
				return printJSONOrPlain(p)
			})
		},
	}
	cmd.Flags().StringSliceVar(&channels, "channels", []string{"email"}, "delivery channels")
	return cmd
}

func participationCmd() *cobra.Command {
	c := &cobra.Command{Use: "participation", Short: "Manage participations"}
	c.AddCommand(participationShowCmd())
	c.AddCommand(participationStatusCmd("pause", "Pause a participation", func(e engine.Engine) func(context.Context, string, string) (domain.Participation, error) {
		return e.Pause
	}))
	c.AddCommand(participationStatusCmd("resume", "Resume a participation", func(e engine.Engine) func(context.Context, string, string) (domain.Participation, error) {
		return e.Resume
	}))
	return c
}

func participationShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <participation-id>",
		Short: "Show a participation with receipts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				p, err := r.GetParticipation(ctx, args[0])
				if err != nil {
					return err
				}
				receipts, err := r.ListReceipts(ctx, p.ID)
				if err != nil {
					return err
				}
				p.Receipts = receipts
				return printJSONOrPlain(p)
			})
		},
	}
	return cmd
}

func participationStatusCmd(use, short string, pick func(engine.Engine) func(context.Context, string, string) (domain.Participation, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <participation-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := pick(e)(ctx, args[0], viper.GetString("persona"))
				if err != nil {
					return err
				}
				return printJSONOrPlain(p)
			})
		},
	}
}

func trackCmd() *cobra.Command {
	var participationID, eventType, assetRef string
	var day int
	cmd := &cobra.Command{
		Use:   "track",
		Short: "Record an engagement event",
		RunE: func(cmd *cobra.Command, args []string) error {
			if participationID == "" {
				return fmt.Errorf("--participation required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				recorded, err := e.RecordEngagement(ctx, domain.TrackingEvent{
					ParticipationID: participationID,
					DayNumber:       day,
					AssetRef:        assetRef,
					EventType:       eventType,
				}, viper.GetString("persona"))
				if err != nil {
					return err
				}
				return printJSONOrPlain(map[string]bool{"recorded": recorded})
			})
		},
	}
	cmd.Flags().StringVar(&participationID, "participation", "", "participation id")
	cmd.Flags().IntVar(&day, "day", 0, "day number")
	cmd.Flags().StringVar(&eventType, "event", "view", "view, asset_click, or cta_click")
	cmd.Flags().StringVar(&assetRef, "asset", "", "asset reference")
	_ = cmd.MarkFlagRequired("participation")
	return cmd
}

func advanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "advance",
		Short: "Run one progression tick now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				advanced, err := e.Advance(ctx, viper.GetString("persona"))
				if err != nil {
					return err
				}
				fmt.Printf("advanced %d participations\n", advanced)
				return nil
			})
		},
	}
}

func accessCmd() *cobra.Command {
	var role, group string
	check := &cobra.Command{
		Use:   "check",
		Short: "Gate a role against a resource group",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.ResolveConfig(viper.GetString("workspace"), "packdesk")
			if err != nil {
				return err
			}
			gate := access.NewGate(cfg)
			d := gate.CheckGroup(domain.Role(role), group)
			return printJSONOrPlain(d)
		},
	}
	check.Flags().StringVar(&role, "role", "anonymous", "role to test")
	check.Flags().StringVar(&group, "group", "unrestricted", "resource group")
	c := &cobra.Command{Use: "access", Short: "Access policy"}
	c.AddCommand(check)
	return c
}

func sessionCmd() *cobra.Command {
	var url, tenant, persona string
	show := &cobra.Command{
		Use:   "show",
		Short: "Resolve a session config from a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := packdesksdk.New(url)
			client.TenantID = tenant
			client.PersonaID = persona
			resolver := session.NewResolver(session.Context{TenantID: tenant, PersonaID: persona},
				func(ctx context.Context, sc session.Context) (domain.TenantConfig, error) {
					cfg, err := client.ResolveConfig(ctx)
					if err != nil {
						return domain.TenantConfig{}, err
					}
					return domain.TenantConfig{
						TenantID:     cfg.TenantID,
						PersonaID:    cfg.PersonaID,
						Role:         domain.Role(cfg.Role),
						PartnerName:  cfg.PartnerName,
						FeatureFlags: cfg.FeatureFlags,
					}, nil
				})
			cfg, err := resolver.Load(cmd.Context())
			if err != nil {
				return err
			}
			return printJSONOrPlain(cfg)
		},
	}
	show.Flags().StringVar(&url, "url", "http://127.0.0.1:8080", "server base URL")
	show.Flags().StringVar(&tenant, "tenant", "", "tenant id")
	show.Flags().StringVar(&persona, "persona", "", "persona id")
	c := &cobra.Command{Use: "session", Short: "Session tools"}
	c.AddCommand(show)
	return c
}

func simulateCmd() *cobra.Command {
	var url, tenant, persona, campaignID string
	var channels []string
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Replay one partner console session against a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if tenant == "" || campaignID == "" {
				return fmt.Errorf("--tenant and --campaign required")
			}
			ctx := cmd.Context()
			client := packdesksdk.New(url)
			client.TenantID = tenant
			client.PersonaID = persona

			resolver := session.NewResolver(session.Context{TenantID: tenant, PersonaID: persona},
				func(ctx context.Context, sc session.Context) (domain.TenantConfig, error) {
					cfg, err := client.ResolveConfig(ctx)
					if err != nil {
						return domain.TenantConfig{}, err
					}
					return domain.TenantConfig{
						TenantID:     cfg.TenantID,
						PersonaID:    cfg.PersonaID,
						Role:         domain.Role(cfg.Role),
						PartnerName:  cfg.PartnerName,
						FeatureFlags: cfg.FeatureFlags,
					}, nil
				})
			cfg, err := resolver.Load(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("session: role=%s tenant=%s\n", cfg.Role, cfg.TenantID)
			if !resolver.HasFeature("sequence_campaigns") {
				return fmt.Errorf("sequence_campaigns is disabled for this session")
			}

			part, err := client.Join(ctx, campaignID, channels)
			if errors.Is(err, packdesksdk.ErrAlreadyJoined) {
				fmt.Println("already joined; reusing existing participation")
				detail, derr := client.GetCampaign(ctx, campaignID)
				if derr != nil {
					return derr
				}
				if detail.Participation == nil {
					return fmt.Errorf("campaign %s has no participation for this tenant", campaignID)
				}
				part = *detail.Participation
			} else if err != nil {
				return err
			}
			fmt.Printf("participation %s: day %d/%d\n", part.ID, part.CurrentDay, part.TotalDays)

			detail, err := client.GetCampaign(ctx, campaignID)
			if err != nil {
				return err
			}
			tracker := tracking.New(part.ID, func(ctx context.Context, evt domain.TrackingEvent) error {
				_, err := client.Track(ctx, evt.ParticipationID, evt.DayNumber, evt.EventType, evt.AssetRef)
				return err
			})
			// view every unlocked day; repeat views are deduped locally
			for _, day := range append(detail.ExplainerItems, detail.RegularItems...) {
				if !day.Enabled {
					continue
				}
				tracker.Track(ctx, day.DayNumber, day.AssetRef, "view")
				tracker.Track(ctx, day.DayNumber, day.AssetRef, "view")
			}
			fmt.Println("session replay complete")
			return nil
		},
	}
	cmd.Flags().StringVar(&url, "url", "http://127.0.0.1:8080", "server base URL")
	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant id")
	cmd.Flags().StringVar(&persona, "persona", "", "persona id")
	cmd.Flags().StringVar(&campaignID, "campaign", "", "sequence campaign id")
	cmd.Flags().StringSliceVar(&channels, "channels", []string{"email"}, "delivery channels")
	return cmd
}

func logCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Tail ledger events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := app.EnsureTenant(ctx, e, viper.GetString("tenant"), viper.GetString("persona"))
				if err != nil {
					return err
				}
				events, err := e.Repo.LatestEvents(ctx, n, t.ID, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrPlain(events)
			})
		},
	}
	tail.Flags().IntVar(&n, "n", 20, "number of events")
	tail.Flags().StringVar(&evtType, "type", "", "event type filter")
	tail.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	tail.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	c := &cobra.Command{Use: "log", Short: "Event ledger"}
	c.AddCommand(tail)
	return c
}

func apikeyCmd() *cobra.Command {
	c := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	c.AddCommand(apikeyCreateCmd())
	c.AddCommand(apikeyListCmd())
	c.AddCommand(apikeyDeleteCmd())
	return c
}

func apikeyCreateCmd() *cobra.Command {
	var personaID, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key for a persona",
		RunE: func(cmd *cobra.Command, args []string) error {
			if personaID == "" {
				return fmt.Errorf("--persona-id required")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if _, _, err := r.GetPersona(ctx, personaID); err != nil {
					return err
				}
				raw := newAPIKeySecret()
				key := domain.APIKey{
					ID:        newID(),
					PersonaID: personaID,
					Name:      name,
					KeyHash:   repo.HashAPIKey(raw),
				}
				if err := r.InsertAPIKey(ctx, nil, key); err != nil {
					return err
				}
				fmt.Printf("API key %s created. Store the secret now; it is not retrievable later:\n%s\n", key.ID, raw)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&personaID, "persona-id", "", "persona id")
	cmd.Flags().StringVar(&name, "name", "", "key label")
	_ = cmd.MarkFlagRequired("persona-id")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	var personaID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				keys, err := r.ListAPIKeys(ctx, personaID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					for i := range keys {
						keys[i].KeyHash = ""
					}
					return printJSON(keys)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Persona", "Name", "Created"})
				for _, k := range keys {
					tw.AppendRow(table.Row{k.ID, k.PersonaID, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&personaID, "persona-id", "", "filter by persona")
	return cmd
}

func apikeyDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key-id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0])
			})
		},
	}
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowRelay bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg, err := app.ResolveConfig(workspace, "packdesk")
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			authCfg := server.AuthConfig{
				JWTSecret:         os.Getenv("PACKDESK_JWT_SECRET"),
				AllowRelayHeaders: allowRelay,
			}
			if authCfg.JWTSecret == "" && !allowRelay {
				return fmt.Errorf("PACKDESK_JWT_SECRET is required for bearer auth (or pass --allow-relay-headers behind a trusted proxy)")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			server.StartScheduler(cmd.Context(), e)
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Packdesk API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&allowRelay, "allow-relay-headers", false, "trust X-Tenant-Id/X-Persona-Id from an edge proxy")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := app.ResolveConfig(workspace, "packdesk")
	if err != nil {
		return err
	}
	return fn(ctx, engine.New(conn, cfg))
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func printJSONOrPlain(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newID() string {
	return uuid.New().String()
}

func newAPIKeySecret() string {
	return strings.ReplaceAll(uuid.New().String()+uuid.New().String(), "-", "")
}
