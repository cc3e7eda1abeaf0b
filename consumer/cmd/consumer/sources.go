package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/telhawk-systems/alertstream/consumer/internal/registry"
)

const refreshTimeout = 10 * time.Second

var (
	sourcesJSON       bool
	sourcesRefreshURL string

	addSource   registry.SourceConfig
	addDataType string
	addInactive bool
)

// openAdmin opens the writable registry. Tests replace it.
var openAdmin = func(ctx context.Context) (registry.Admin, func(), error) {
	pg, err := registry.NewPostgresRegistry(ctx, cfg.Database.Postgres.ConnString())
	if err != nil {
		return nil, nil, fmt.Errorf("connect to registry database: %w", err)
	}
	return pg, pg.Close, nil
}

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Manage alert sources in the registry",
}

var sourcesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all sources and their declared data types",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAdmin(cmd, func(ctx context.Context, admin registry.Admin) error {
			sources, err := admin.ListSources(ctx)
			if err != nil {
				return err
			}
			mapping, err := admin.GetSourceTypeMapping(ctx)
			if err != nil {
				return err
			}
			if sourcesJSON {
				return printSourcesJSON(cmd.OutOrStdout(), sources, mapping)
			}
			return printSourcesTable(cmd.OutOrStdout(), sources, mapping)
		})
	},
}

var sourcesAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a new source",
	Example: `  consumer sources add --name edr-prod --brokers kafka-1:9092,kafka-2:9092 --topic edr.alerts --type edr
  consumer sources add --name ngav --kind nats --brokers nats://nats:4222 --topic alerts.ngav --type ngav`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dt, err := registry.ParseDataType(addDataType)
		if err != nil {
			return err
		}
		src := addSource
		src.Active = !addInactive
		return withAdmin(cmd, func(ctx context.Context, admin registry.Admin) error {
			if err := admin.UpsertSource(ctx, &src); err != nil {
				return err
			}
			if dt != registry.DataTypeNone {
				if err := admin.SetDataType(ctx, src.ID, dt); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created source %s (%s)\n", src.Name, src.ID)
			return notifyRefresh(ctx, cmd.OutOrStdout())
		})
	},
}

var sourcesSetTypeCmd = &cobra.Command{
	Use:   "set-type <source> <edr|ngav|none>",
	Short: "Declare the data type carried by a source",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		typeArg := args[1]
		if strings.EqualFold(typeArg, "none") {
			typeArg = ""
		}
		dt, err := registry.ParseDataType(typeArg)
		if err != nil {
			return err
		}
		return withAdmin(cmd, func(ctx context.Context, admin registry.Admin) error {
			src, err := resolveSource(ctx, admin, args[0])
			if err != nil {
				return err
			}
			if err := admin.SetDataType(ctx, src.ID, dt); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Source %s now declares %s\n", src.Name, dt)
			return notifyRefresh(ctx, cmd.OutOrStdout())
		})
	},
}

func setActiveCmd(use, short string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <source>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdmin(cmd, func(ctx context.Context, admin registry.Admin) error {
				src, err := resolveSource(ctx, admin, args[0])
				if err != nil {
					return err
				}
				if err := admin.SetActive(ctx, src.ID, active); err != nil {
					return err
				}
				state := "disabled"
				if active {
					state = "enabled"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Source %s %s\n", src.Name, state)
				return notifyRefresh(ctx, cmd.OutOrStdout())
			})
		},
	}
}

func init() {
	sourcesCmd.PersistentFlags().StringVar(&sourcesRefreshURL, "refresh-url", "", "consumer admin API to refresh after a change (e.g. http://localhost:8090)")
	sourcesListCmd.Flags().BoolVar(&sourcesJSON, "json", false, "print JSON instead of a table")

	f := sourcesAddCmd.Flags()
	f.StringVar(&addSource.Name, "name", "", "source name (required)")
	f.StringVar((*string)(&addSource.Kind), "kind", string(registry.KindKafka), "broker kind (kafka or nats)")
	f.StringVar(&addSource.Brokers, "brokers", "", "comma separated broker addresses (required)")
	f.StringVar(&addSource.Topic, "topic", "", "topic or subject (required)")
	f.StringVar(&addSource.GroupID, "group-id", "", "consumer group (default alertstream-<name>)")
	f.StringVar(&addSource.AutoOffsetReset, "offset-reset", registry.OffsetEarliest, "earliest or latest")
	f.BoolVar(&addSource.EnableAutoCommit, "auto-commit", false, "commit offsets on receipt instead of after storage")
	f.DurationVar(&addSource.AutoCommitInterval, "auto-commit-interval", time.Second, "auto commit interval")
	f.DurationVar(&addSource.SessionTimeout, "session-timeout", 6*time.Second, "broker session timeout")
	f.StringVar(&addDataType, "type", "", "declared data type (edr or ngav)")
	f.BoolVar(&addInactive, "inactive", false, "register the source disabled")
	_ = sourcesAddCmd.MarkFlagRequired("name")
	_ = sourcesAddCmd.MarkFlagRequired("brokers")
	_ = sourcesAddCmd.MarkFlagRequired("topic")

	sourcesCmd.AddCommand(
		sourcesListCmd,
		sourcesAddCmd,
		sourcesSetTypeCmd,
		setActiveCmd("enable", "Enable a source", true),
		setActiveCmd("disable", "Disable a source", false),
	)
	rootCmd.AddCommand(sourcesCmd)
}

func withAdmin(cmd *cobra.Command, fn func(context.Context, registry.Admin) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	admin, closeFn, err := openAdmin(ctx)
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(ctx, admin)
}

// resolveSource accepts either a source ID or a unique name.
func resolveSource(ctx context.Context, admin registry.Admin, ref string) (registry.SourceConfig, error) {
	sources, err := admin.ListSources(ctx)
	if err != nil {
		return registry.SourceConfig{}, err
	}
	if id, err := uuid.Parse(ref); err == nil {
		for _, s := range sources {
			if s.ID == id {
				return s, nil
			}
		}
		return registry.SourceConfig{}, fmt.Errorf("%w: %s", registry.ErrSourceNotFound, ref)
	}

	var found []registry.SourceConfig
	for _, s := range sources {
		if s.Name == ref {
			found = append(found, s)
		}
	}
	switch len(found) {
	case 0:
		return registry.SourceConfig{}, fmt.Errorf("%w: %s", registry.ErrSourceNotFound, ref)
	case 1:
		return found[0], nil
	default:
		return registry.SourceConfig{}, fmt.Errorf("%d sources are named %q, use the ID", len(found), ref)
	}
}

// notifyRefresh asks a running consumer to reload the registry.
func notifyRefresh(ctx context.Context, out io.Writer) error {
	if sourcesRefreshURL == "" {
		fmt.Fprintln(out, "Running consumers pick this up on their next refresh")
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()

	url := strings.TrimRight(sourcesRefreshURL, "/") + "/api/v1/consumers/refresh"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return fmt.Errorf("build refresh request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("refresh consumers: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("refresh consumers: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	fmt.Fprintln(out, "Consumers refreshed")
	return nil
}

type sourceView struct {
	registry.SourceConfig
	DataType string `json:"data_type"`
}

func printSourcesJSON(w io.Writer, sources []registry.SourceConfig, mapping map[uuid.UUID]registry.DataType) error {
	views := make([]sourceView, 0, len(sources))
	for _, s := range sources {
		views = append(views, sourceView{SourceConfig: s, DataType: mapping[s.ID].String()})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(views)
}

func printSourcesTable(w io.Writer, sources []registry.SourceConfig, mapping map[uuid.UUID]registry.DataType) error {
	if len(sources) == 0 {
		_, err := fmt.Fprintln(w, "No sources registered")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tKIND\tTOPIC\tTYPE\tACTIVE")
	for _, s := range sources {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%t\n", s.ID, s.Name, s.Kind, s.Topic, mapping[s.ID], s.Active)
	}
	return tw.Flush()
}
