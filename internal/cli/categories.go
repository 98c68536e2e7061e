package cli

import (
	"github.com/spf13/cobra"

	"github.com/ALT-F4-LLC/citywatch/internal/filter"
	"github.com/ALT-F4-LLC/citywatch/internal/render"
)

type categoryStat struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "List the categories present in the current issues",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := getWriter(cmd)

		criteria, err := criteriaFromFlags(cmd)
		if err != nil {
			return err
		}
		st, err := loadStore(cmd, w)
		if err != nil {
			return err
		}
		issues := filter.Apply(st.Snapshot(), criteria.Predicate())
		names := filter.Categories(issues)
		counts := filter.CountByCategory(issues)

		stats := make([]categoryStat, 0, len(names))
		for _, n := range names {
			stats = append(stats, categoryStat{Name: n, Count: counts[n]})
		}

		var message string
		if !w.JSONMode {
			message = render.RenderCategories(names, counts)
		}
		w.Success(stats, message)
		return nil
	},
}

func init() {
	addFilterFlags(categoriesCmd)
	rootCmd.AddCommand(categoriesCmd)
}
