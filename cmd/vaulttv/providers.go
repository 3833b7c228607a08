package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/voyagen/vaulttv/internal/models"
)

var providersCmd = &cobra.Command{
	Use:     "providers",
	Aliases: []string{"provider"},
	Short:   "List, add and remove providers",
}

var providersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured providers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := bootstrap(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer a.close()

		providers, err := a.store.ListProviders(cmd.Context())
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tTYPE\tNAME\tSTATUS\tCHANNELS\tLAST SYNC")
		for _, p := range providers {
			last := "-"
			if p.LastSync != nil {
				last = p.LastSync.Local().Format(time.DateTime)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n", p.ID, p.Config.Type(), p.Name, p.Status, p.ChannelCount, last)
		}
		return tw.Flush()
	},
}

type providerFlags struct {
	typ      string
	name     string
	url      string
	username string
	password string
	epgURL   string
	noSync   bool
}

var addFlags providerFlags

var providersAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a provider and run its first full sync",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := configFromFlags()
		if err != nil {
			return err
		}
		a, err := bootstrap(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer a.close()

		p, err := a.coord.AddProvider(cmd.Context(), addFlags.name, cfg)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "added provider %s (%s)\n", p.ID, p.Name)
		if addFlags.noSync {
			return nil
		}
		res, err := a.coord.FullSync(cmd.Context(), p.ID)
		if err != nil {
			return fmt.Errorf("first sync: %w", err)
		}
		printResult(cmd, *res)
		return nil
	},
}

func configFromFlags() (models.ProviderConfig, error) {
	var cfg models.ProviderConfig
	switch models.ProviderType(addFlags.typ) {
	case models.ProviderXtream:
		cfg = models.XtreamConfig{ServerURL: addFlags.url, Username: addFlags.username, Password: addFlags.password}
	case models.ProviderM3U:
		c := models.M3UConfig{URL: addFlags.url}
		if addFlags.epgURL != "" {
			c.EPGURL = &addFlags.epgURL
		}
		cfg = c
	case models.ProviderAddon:
		cfg = models.AddonConfig{ManifestURL: addFlags.url}
	default:
		return nil, fmt.Errorf("%w: unknown type %q (want xtream, m3u or addon)", models.ErrInvalidConfig, addFlags.typ)
	}
	return cfg, cfg.Validate()
}

var providersRemoveCmd = &cobra.Command{
	Use:   "remove <provider-id>",
	Short: "Remove a provider with all of its channels and categories",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := bootstrap(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.coord.RemoveProvider(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed provider %s\n", args[0])
		return nil
	},
}

func init() {
	f := providersAddCmd.Flags()
	f.StringVar(&addFlags.typ, "type", "m3u", "Provider type: xtream, m3u or addon")
	f.StringVar(&addFlags.name, "name", "", "Display name (derived from the config when empty)")
	f.StringVar(&addFlags.url, "url", "", "Server URL (xtream), playlist URL (m3u) or manifest URL (addon)")
	f.StringVar(&addFlags.username, "username", "", "Xtream username")
	f.StringVar(&addFlags.password, "password", "", "Xtream password")
	f.StringVar(&addFlags.epgURL, "epg-url", "", "XMLTV guide URL for m3u providers")
	f.BoolVar(&addFlags.noSync, "no-sync", false, "Only store the provider; skip the first sync")
	_ = providersAddCmd.MarkFlagRequired("url")

	providersCmd.AddCommand(providersListCmd, providersAddCmd, providersRemoveCmd)
}
