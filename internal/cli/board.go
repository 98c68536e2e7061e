package cli

import (
	"github.com/spf13/cobra"

	"github.com/ALT-F4-LLC/citywatch/internal/filter"
	"github.com/ALT-F4-LLC/citywatch/internal/model"
	"github.com/ALT-F4-LLC/citywatch/internal/render"
)

type boardColumn struct {
	Status string         `json:"status"`
	Count  int            `json:"count"`
	Issues []*model.Issue `json:"issues"`
}

type boardResult struct {
	Columns []boardColumn `json:"columns"`
}

var boardCmd = &cobra.Command{
	Use:   "board",
	Short: "Show issues as a lifecycle board",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := getWriter(cmd)

		criteria, err := criteriaFromFlags(cmd)
		if err != nil {
			return err
		}
		closed, _ := cmd.Flags().GetBool("closed")
		opts := render.BoardOptions{Closed: closed}

		st, err := loadStore(cmd, w)
		if err != nil {
			return err
		}
		issues := filter.Apply(st.Snapshot(), criteria.Predicate())

		if w.JSONMode {
			w.Success(buildBoard(issues, opts), "")
			return nil
		}
		w.Success(nil, render.RenderBoard(issues, opts))
		return nil
	},
}

func buildBoard(issues []*model.Issue, opts render.BoardOptions) boardResult {
	groups := make(map[model.Status][]*model.Issue)
	for _, issue := range issues {
		groups[issue.Status] = append(groups[issue.Status], issue)
	}
	columns := make([]boardColumn, 0)
	for _, status := range render.BoardColumns(opts) {
		col := groups[status]
		if col == nil {
			col = []*model.Issue{}
		}
		columns = append(columns, boardColumn{Status: string(status), Count: len(col), Issues: col})
	}
	return boardResult{Columns: columns}
}

func init() {
	addFilterFlags(boardCmd)
	boardCmd.Flags().Bool("closed", false, "Include resolved, archived and duplicate columns")
	rootCmd.AddCommand(boardCmd)
}
