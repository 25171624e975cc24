package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
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

	"gidas/internal/config"
	"gidas/internal/db"
	"gidas/internal/engine"
	"gidas/internal/migrate"
	"gidas/internal/repo"
	"gidas/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "gidas",
	Short: "GIDAS Explorer CLI",
	Long: `GIDAS Explorer reports on municipal environmental permitting casework.
It reads the legacy case registry, classifies every case into a status
bucket (active, finished_reported, closed, closed_without_report),
aggregates per-category statistics, and projects future workload.
Run 'gidas serve' for the HTTP dashboard API or use the subcommands
for one-off reports.`,
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
	viper.SetEnvPrefix("GIDAS")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(categoryCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(caseCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(trendCmd())
	rootCmd.AddCommand(processingCmd())
	rootCmd.AddCommand(seasonalCmd())
	rootCmd.AddCommand(forecastCmd())
	rootCmd.AddCommand(capacityCmd())
	rootCmd.AddCommand(searchCmd())
	rootCmd.AddCommand(serveCmd())
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage workspace config"}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default gidas.yml with a fresh JWT secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			secret := make([]byte, 32)
			if _, err := rand.Read(secret); err != nil {
				return err
			}
			yml := config.GenerateDefault(hex.EncodeToString(secret))
			if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing config")
	return cmd
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	}
	return cmd
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			v, err := migrate.Version(conn)
			if err != nil {
				return err
			}
			fmt.Printf("Schema at version %d (%s)\n", v, db.Path(workspace))
			return nil
		},
	}
	return cmd
}

func categoryCmd() *cobra.Command {
	cat := &cobra.Command{Use: "category", Short: "Manage case categories"}
	cat.AddCommand(categoryCreateCmd())
	cat.AddCommand(categoryListCmd())
	return cat
}

func categoryCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.CreateCategory(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	return cmd
}

func categoryListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List categories",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListCategories(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Active", "Created"})
				for _, c := range items {
					tw.AppendRow(table.Row{c.ID, c.Name, c.Active, c.CreatedAt.Format("2006-01-02")})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectListCmd())
	return prj
}

func projectCreateCmd() *cobra.Command {
	var name, categoryID, folder string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a project under a category",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.CreateProject(ctx, name, categoryID, folder)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "project name")
	cmd.Flags().StringVar(&categoryID, "category", "", "category id")
	cmd.Flags().StringVar(&folder, "folder", "", "archive folder")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("category")
	return cmd
}

func projectListCmd() *cobra.Command {
	var categoryID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListProjects(ctx, categoryID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Folder", "Closed"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Name, p.Folder, p.Closed})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&categoryID, "category", "", "filter by category id")
	return cmd
}

func caseCmd() *cobra.Command {
	c := &cobra.Command{Use: "case", Short: "Manage cases"}
	c.AddCommand(caseCreateCmd())
	c.AddCommand(caseShowCmd())
	c.AddCommand(caseListCmd())
	c.AddCommand(caseFinishCmd())
	c.AddCommand(caseCloseCmd())
	c.AddCommand(caseCloseWithoutReportCmd())
	c.AddCommand(caseReopenCmd())
	c.AddCommand(caseOrderCmd())
	c.AddCommand(caseEventsCmd())
	return c
}

func caseCreateCmd() *cobra.Command {
	var opts engine.CaseCreateOptions
	var postalCode, propertyNumber int
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a case",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			if cmd.Flags().Changed("postal-code") {
				opts.PostalCode = &postalCode
			}
			if cmd.Flags().Changed("property-number") {
				opts.PropertyNumber = &propertyNumber
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.CreateCase(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "case id (random UUID if omitted)")
	cmd.Flags().StringVar(&opts.ProjectID, "project", "", "project id")
	cmd.Flags().StringVar(&opts.Note, "note", "", "free-text note")
	cmd.Flags().StringVar(&opts.Address, "address", "", "property address")
	cmd.Flags().StringVar(&opts.ParcelNumber, "parcel", "", "parcel number")
	cmd.Flags().StringVar(&opts.CaseWorker, "case-worker", "", "assigned case worker")
	cmd.Flags().IntVar(&postalCode, "postal-code", 0, "postal code")
	cmd.Flags().IntVar(&propertyNumber, "property-number", 0, "property number")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func caseShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a case with its status bucket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				st, err := e.CaseStatus(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(st)
				}
				fmt.Printf("Case %s (%s / %s)\n", st.Case.ID, st.Case.CategoryName, st.Case.ProjectName)
				fmt.Printf("  Status:  %s\n", st.Result.Bucket)
				fmt.Printf("  Created: %s\n", st.Case.CreatedAt.Format("2006-01-02"))
				if st.Case.Address != "" {
					fmt.Printf("  Address: %s\n", st.Case.Address)
				}
				if st.Case.CaseWorker != "" {
					fmt.Printf("  Worker:  %s\n", st.Case.CaseWorker)
				}
				if st.Result.HasOrder {
					overdue := ""
					if st.Result.OrderOverdue {
						overdue = " (OVERDUE)"
					}
					fmt.Printf("  Order:   issued%s\n", overdue)
				}
				return nil
			})
		},
	}
	return cmd
}

func caseListCmd() *cobra.Command {
	var f repo.CaseFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cases",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if f.Limit <= 0 {
					f.Limit = 50
				}
				items, err := e.Repo.ListCases(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				now := e.Now()
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Category", "Status", "Worker", "Address", "Created"})
				for _, c := range items {
					res := e.ClassifyCase(c, now)
					tw.AppendRow(table.Row{c.ID, c.CategoryName, res.Bucket, c.CaseWorker, c.Address, c.CreatedAt.Format("2006-01-02")})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.CategoryName, "category", "", "filter by category name")
	cmd.Flags().StringVar(&f.ProjectID, "project", "", "filter by project id")
	cmd.Flags().StringVar(&f.CaseWorker, "case-worker", "", "filter by case worker")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "max rows")
	return cmd
}

func caseTransitionCmd(use, short string, apply func(context.Context, engine.Engine, string, string) (any, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actorID := viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				out, err := apply(ctx, e, args[0], actorID)
				if err != nil {
					return err
				}
				return printJSONOrTable(out)
			})
		},
	}
}

func caseFinishCmd() *cobra.Command {
	return caseTransitionCmd("finish <id>", "Mark the closing report as filed", func(ctx context.Context, e engine.Engine, id, actorID string) (any, error) {
		return e.MarkCaseFinished(ctx, id, actorID)
	})
}

func caseCloseCmd() *cobra.Command {
	return caseTransitionCmd("close <id>", "Close a case", func(ctx context.Context, e engine.Engine, id, actorID string) (any, error) {
		return e.CloseCase(ctx, id, actorID)
	})
}

func caseCloseWithoutReportCmd() *cobra.Command {
	return caseTransitionCmd("close-without-report <id>", "Close a case without a report", func(ctx context.Context, e engine.Engine, id, actorID string) (any, error) {
		return e.CloseCaseWithoutReport(ctx, id, actorID)
	})
}

func caseReopenCmd() *cobra.Command {
	return caseTransitionCmd("reopen <id>", "Reopen a case", func(ctx context.Context, e engine.Engine, id, actorID string) (any, error) {
		return e.ReopenCase(ctx, id, actorID)
	})
}

func caseOrderCmd() *cobra.Command {
	var deadline string
	cmd := &cobra.Command{
		Use:   "order <id>",
		Short: "Issue an enforcement order on an active case",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var dl time.Time
			if deadline != "" {
				var err error
				dl, err = time.Parse("2006-01-02", deadline)
				if err != nil {
					return fmt.Errorf("invalid deadline %q (want YYYY-MM-DD)", deadline)
				}
			}
			actorID := viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.IssueOrder(ctx, args[0], dl, actorID)
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&deadline, "deadline", "", "compliance deadline (YYYY-MM-DD)")
	return cmd
}

func caseEventsCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "events <id>",
		Short: "Show case history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.CaseHistory(ctx, args[0], n)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"When", "Type", "Actor", "Note"})
				for _, ev := range events {
					tw.AppendRow(table.Row{ev.TS.Format(time.RFC3339), ev.Type, ev.ActorID, ev.Note})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 50, "number of events")
	return cmd
}

func statsCmd() *cobra.Command {
	var fromStr, toStr string
	cmd := &cobra.Command{
		Use:   "stats <category>",
		Short: "Category status counts and order summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				from, err := parseDateFlag(fromStr)
				if err != nil {
					return fmt.Errorf("invalid --from: %w", err)
				}
				to, err := parseDateFlag(toStr)
				if err != nil {
					return fmt.Errorf("invalid --to: %w", err)
				}
				cs, err := e.CategoryStats(ctx, args[0], from, to)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(cs)
				}
				fmt.Printf("%s (%s rules)\n", args[0], cs.Variant)
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Bucket", "Count"})
				tw.AppendRow(table.Row{"active", cs.Counts.Active})
				tw.AppendRow(table.Row{"finished_reported", cs.Counts.FinishedReported})
				tw.AppendRow(table.Row{"closed", cs.Counts.Closed})
				tw.AppendRow(table.Row{"closed_without_report", cs.Counts.ClosedWithoutReport})
				tw.AppendFooter(table.Row{"total", cs.Counts.Total()})
				tw.Render()
				fmt.Printf("Orders: %d total, %d on active cases, %d overdue\n", cs.OrdersTotal, cs.OrdersActive, cs.OrdersOverdue)
				fmt.Printf("Created last 12 months: %d\n", cs.CreatedLastYear)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&fromStr, "from", "", "only count cases created on or after this date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&toStr, "to", "", "only count cases created before this date (YYYY-MM-DD)")
	return cmd
}

func trendCmd() *cobra.Command {
	var year int
	cmd := &cobra.Command{
		Use:   "trend <category>",
		Short: "Monthly created/completed counts for a year",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if year == 0 {
					year = e.Now().Year()
				}
				points, err := e.MonthlyTrend(ctx, args[0], year)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(points)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Month", "Created", "Completed"})
				for _, p := range points {
					tw.AppendRow(table.Row{p.Month.String(), p.Created, p.Completed})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&year, "year", 0, "calendar year (default current)")
	return cmd
}

func processingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "processing",
		Short: "Average processing times per category",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				report, err := e.ProcessingTimes(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(report)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Category", "Avg days", "Included", "Note"})
				for _, c := range report.ByCategory {
					note := ""
					if c.Times.Insufficient() {
						note = "insufficient data"
					}
					tw.AppendRow(table.Row{c.Category, fmt.Sprintf("%.1f", c.Times.AverageDays), c.Times.Included, note})
				}
				tw.Render()
				if report.Overall.Insufficient() {
					fmt.Println("Overall: insufficient data")
				} else {
					fmt.Printf("Overall: %.1f days across %d cases\n", report.Overall.AverageDays, report.Overall.Included)
				}
				return nil
			})
		},
	}
	return cmd
}

func seasonalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seasonal <category>",
		Short: "Seasonal intake pattern",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				report, err := e.SeasonalAnalysis(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(report)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Month", "Cases", "Index", "Peak/Low"})
				for _, m := range report.Patterns {
					mark := ""
					if m.IsPeak {
						mark = "peak"
					} else if m.IsLow {
						mark = "low"
					}
					tw.AppendRow(table.Row{m.Month.String(), m.TotalCases, fmt.Sprintf("%.2f", m.SeasonalIndex), mark})
				}
				tw.Render()
				fmt.Printf("Seasonal variation: %.2f\n", report.SeasonalVariation)
				return nil
			})
		},
	}
	return cmd
}

func forecastCmd() *cobra.Command {
	var monthsAhead int
	cmd := &cobra.Command{
		Use:   "forecast <category>",
		Short: "Forecast monthly case intake",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				report, err := e.MonthlyForecast(ctx, args[0], monthsAhead)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(report)
				}
				fmt.Printf("Trend: %s (confidence %.0f%%, data quality %s)\n", report.Trend.Direction, report.Trend.Confidence, report.DataQuality)
				if len(report.Periods) == 0 {
					fmt.Println("Not enough history to forecast.")
					return nil
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Year", "Month", "Forecast"})
				for _, p := range report.Periods {
					tw.AppendRow(table.Row{p.Year, p.Month.String(), p.Forecast})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&monthsAhead, "months-ahead", 0, "months to forecast (default from config)")
	return cmd
}

func capacityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "capacity <category>",
		Short: "Capacity planning projection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				plan, err := e.CapacityPlanning(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(plan)
				}
				fmt.Printf("Active cases:        %d\n", plan.ActiveCases)
				fmt.Printf("Avg processing days: %.1f\n", plan.AvgProcessingDays)
				fmt.Printf("Workload hours:      %.0f\n", plan.WorkloadHours)
				fmt.Printf("Projected hours:     %.0f (incl. %d forecasted new cases)\n", plan.TotalProjectedHours, plan.ForecastedNewCases)
				fmt.Printf("Utilization:         %.0f%% (%s)\n", plan.CapacityUtilization, plan.Status)
				fmt.Printf("Recommended staff:   %d\n", plan.RecommendedStaff)
				return nil
			})
		},
	}
	return cmd
}

func searchCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Free-text case search",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				hits, err := e.Search(ctx, args[0], limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(hits)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Category", "Status", "Address", "Worker"})
				for _, h := range hits {
					tw.AppendRow(table.Row{h.Case.ID, h.Case.CategoryName, h.Result.Bucket, h.Case.Address, h.Case.CaseWorker})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "max hits")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP dashboard API",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return fmt.Errorf("auth.jwt_secret is required (run 'gidas config init' or set GIDAS_JWT_SECRET)")
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			if addr == "" {
				addr = cfg.Server.Addr
			}
			if basePath == "" {
				basePath = cfg.Server.BasePath
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, AppCfg: cfg})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving GIDAS API on http://%s%s (Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (default from config)")
	return cmd
}

// --- helpers ---

// loadConfig prefers gidas.yml in the workspace; without one it falls
// back to defaults with the JWT secret taken from the environment.
func loadConfig() (*config.Config, error) {
	workspace := viper.GetString("workspace")
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default(viper.GetString("jwt-secret"))
	}
	return cfg, nil
}

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
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	return fn(ctx, e)
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func parseDateFlag(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", s)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
