package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"

	"carsearch-scraper/internal/config"
	"carsearch-scraper/internal/models"
	"carsearch-scraper/internal/search"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var searchFlags = map[string]string{
	"make":        "make display name, e.g. Toyota",
	"model":       "model display name, e.g. Camry",
	"year-min":    "minimum model year",
	"year-max":    "maximum model year",
	"price-min":   "minimum price",
	"price-max":   "maximum price",
	"mileage-max": "maximum mileage",
	"zip":         "zip code",
	"radius":      "search radius in miles",
	"condition":   "new, used or all",
}

// flag name -> query parameter understood by models.ParseCriteria
var flagParams = map[string]string{
	"make": "makeName", "model": "modelName",
	"year-min": "yearMin", "year-max": "yearMax",
	"price-min": "priceMin", "price-max": "priceMax",
	"mileage-max": "mileageMax", "zip": "zipCode",
	"radius": "radius", "condition": "condition",
}

var jsonOutput bool

func init() {
	for name, usage := range searchFlags {
		searchCmd.Flags().String(name, "", usage)
	}
	searchCmd.Flags().BoolVar(&jsonOutput, "json", false, "print the raw JSON response")
	rootCmd.AddCommand(searchCmd)
}

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Searches every enabled marketplace once.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := config.NewLogger(os.Stderr)
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		q := url.Values{}
		for name, param := range flagParams {
			if v, _ := cmd.Flags().GetString(name); v != "" {
				q.Set(param, v)
			}
		}
		criteria := models.ParseCriteria(q)

		svc := search.NewService(cfg, logger)
		defer svc.Close()

		resp := svc.Search(cmd.Context(), criteria)
		if jsonOutput {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		}
		renderResults(cmd.OutOrStdout(), resp)
		return nil
	},
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(w)
	return t
}

// renderResults prints the listings table followed by the per-source status table
func renderResults(w io.Writer, resp models.SearchResponse) {
	if resp.UsingSampleData {
		fmt.Fprintln(w, "No live listings found; showing sample data.")
	}

	t := newTable(w)
	t.AppendHeader(table.Row{"Price", "Year", "Title", "Mileage", "Location", "Source"})
	for _, l := range resp.Listings {
		t.AppendRow(table.Row{
			formatPrice(l.Price),
			formatInt(l.Year),
			l.Title,
			formatInt(l.Mileage),
			deref(l.Location),
			l.Source,
		})
	}
	t.AppendFooter(table.Row{"", "", fmt.Sprintf("%d listings", resp.TotalCount)})
	t.Render()

	s := newTable(w)
	s.AppendHeader(table.Row{"Source", "Count", "Error"})
	for _, st := range resp.Sources {
		s.AppendRow(table.Row{st.Name, st.Count, st.Error})
	}
	s.Render()
}

func formatPrice(p *int) string {
	if p == nil {
		return "-"
	}
	return "$" + strconv.Itoa(*p)
}

func formatInt(v *int) string {
	if v == nil {
		return "-"
	}
	return strconv.Itoa(*v)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
