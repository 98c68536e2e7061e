package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/ALT-F4-LLC/citywatch/internal/api"
	"github.com/ALT-F4-LLC/citywatch/internal/classify"
	"github.com/ALT-F4-LLC/citywatch/internal/db"
	"github.com/ALT-F4-LLC/citywatch/internal/filter"
	"github.com/ALT-F4-LLC/citywatch/internal/model"
	"github.com/ALT-F4-LLC/citywatch/internal/output"
	"github.com/ALT-F4-LLC/citywatch/internal/render"
	"github.com/ALT-F4-LLC/citywatch/internal/store"
)

type queuedResult struct {
	ClientID string `json:"client_id"`
	Queued   bool   `json:"queued"`
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Report a new civic issue",
	Long: `Report a new civic issue.

The server decides whether the report is new or a duplicate of an open
issue. A report without a verdict stays queued under its client id and
can be resent with 'citywatch report retry'; resending never creates a
second issue.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		w := getWriter(cmd)
		conn := getDB(cmd)

		r, err := draftFromFlags(cmd)
		if err != nil {
			return err
		}

		if !w.JSONMode && r.Title == "" {
			st, _ := seedStore(conn)
			var categories []string
			if st != nil {
				categories = filter.Categories(st.Snapshot())
			}
			if err := reportForm(r, categories); err != nil {
				if errors.Is(err, huh.ErrUserAborted) {
					w.Info("Cancelled.")
					return nil
				}
				return cmdErr(fmt.Errorf("form error: %w", err), output.ErrGeneral)
			}
		}
		if err := r.Validate(); err != nil {
			return cmdErr(err, output.ErrValidation)
		}

		if isOffline(cmd) {
			q := db.NewPendingQueue(conn)
			if err := q.Save(model.PendingReport{Report: r}); err != nil {
				return fail(err, "queueing report")
			}
			record(cmd, model.Activity{IssueID: r.ClientID, Action: model.ActionPending, NewValue: "queued offline"})
			w.Success(queuedResult{ClientID: r.ClientID, Queued: true},
				fmt.Sprintf("Queued report %s; send it with 'citywatch report retry'", r.ClientID))
			return nil
		}

		c, err := newClassifier(cmd, w)
		if err != nil {
			return err
		}
		out, err := c.Submit(cmd.Context(), r)
		if err != nil {
			return submitFailed(cmd, r.ClientID, err)
		}
		reportOutcome(cmd, w, out)
		return nil
	},
}

var reportPendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List reports waiting for a verdict",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := getWriter(cmd)
		pending, err := db.NewPendingQueue(getDB(cmd)).List()
		if err != nil {
			return fail(err, "reading pending reports")
		}
		var message string
		if !w.JSONMode {
			message = render.RenderPending(pending)
		}
		w.Success(pending, message)
		return nil
	},
}

var reportRetryCmd = &cobra.Command{
	Use:   "retry [client-id]",
	Short: "Resend queued reports, or one by client id",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		w := getWriter(cmd)
		conn := getDB(cmd)

		c, err := newClassifier(cmd, w)
		if err != nil {
			return err
		}

		if len(args) == 1 {
			out, err := c.Retry(cmd.Context(), args[0])
			if err != nil {
				if errors.Is(err, classify.ErrNotPending) {
					return cmdErr(fmt.Errorf("no pending report %s", args[0]), output.ErrNotFound)
				}
				return submitFailed(cmd, args[0], err)
			}
			reportOutcome(cmd, w, out)
			return nil
		}

		pending, err := db.NewPendingQueue(conn).List()
		if err != nil {
			return fail(err, "reading pending reports")
		}
		if len(pending) == 0 {
			w.Success([]*classify.Outcome{}, "No reports are waiting for a verdict.")
			return nil
		}

		outcomes := make([]*classify.Outcome, 0, len(pending))
		var remaining int
		for _, p := range pending {
			out, err := c.Retry(cmd.Context(), p.Report.ClientID)
			if err != nil {
				ferr := submitFailed(cmd, p.Report.ClientID, err)
				if ferr.Code == output.ErrSessionInvalid {
					return ferr
				}
				if ferr.Code == output.ErrRetryable {
					remaining++
				}
				w.Warn("%s: %v", p.Report.ClientID, err)
				continue
			}
			outcomes = append(outcomes, out)
			noteOutcome(cmd, out)
		}

		if remaining > 0 {
			return cmdErr(fmt.Errorf("%d of %d report(s) still pending", remaining, len(pending)), output.ErrRetryable)
		}
		w.Success(outcomes, fmt.Sprintf("Classified %d report(s)", len(outcomes)))
		return nil
	},
}

var reportDiscardCmd = &cobra.Command{
	Use:   "discard <client-id>",
	Short: "Drop a queued report without sending it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		w := getWriter(cmd)
		if err := db.NewPendingQueue(getDB(cmd)).Delete(args[0]); err != nil {
			if errors.Is(err, classify.ErrNotPending) {
				return cmdErr(fmt.Errorf("no pending report %s", args[0]), output.ErrNotFound)
			}
			return fail(err, "discarding report")
		}
		record(cmd, model.Activity{IssueID: args[0], Action: model.ActionDiscarded})
		w.Success(queuedResult{ClientID: args[0]}, fmt.Sprintf("Discarded report %s", args[0]))
		return nil
	},
}

// newClassifier builds a classifier over the current issue set and the
// durable pending queue.
func newClassifier(cmd *cobra.Command, w *output.Writer) (*classify.Classifier, error) {
	client, err := newClient(cmd)
	if err != nil {
		return nil, err
	}
	st, err := loadStore(cmd, w)
	if err != nil {
		var ce *CmdError
		if !errors.As(err, &ce) || ce.Code == output.ErrSessionInvalid {
			return nil, err
		}
		// Candidates are a hint; submit against the cache.
		getLogger(cmd).Warn("refreshing issues before submit", "error", err)
		if st, err = seedStore(getDB(cmd)); err != nil {
			st = store.New()
		}
	}
	return classify.New(st, client, db.NewPendingQueue(getDB(cmd)), getLogger(cmd)), nil
}

// noteOutcome caches and journals a classified report.
func noteOutcome(cmd *cobra.Command, out *classify.Outcome) {
	switch out.Kind {
	case classify.OutcomeCreated:
		if out.Issue != nil {
			if err := db.SaveIssue(getDB(cmd), out.Issue); err != nil {
				getLogger(cmd).Warn("caching issue", "id", out.IssueID, "error", err)
			}
		}
		record(cmd, model.Activity{IssueID: out.IssueID, Action: model.ActionSubmitted, OldValue: out.ClientID})
	case classify.OutcomeDuplicate:
		record(cmd, model.Activity{IssueID: out.IssueID, Action: model.ActionDuplicate, OldValue: out.ClientID})
	}
}

func reportOutcome(cmd *cobra.Command, w *output.Writer, out *classify.Outcome) {
	noteOutcome(cmd, out)

	var message string
	switch out.Kind {
	case classify.OutcomeCreated:
		message = fmt.Sprintf("%s Reported as new issue %s", model.StatusSubmitted.Icon(), out.IssueID)
	case classify.OutcomeDuplicate:
		message = fmt.Sprintf("%s Matches existing issue %s", model.StatusDuplicate.Icon(), out.IssueID)
		if out.Issue != nil {
			message += fmt.Sprintf(": %s (%s)", out.Issue.DisplayTitle(), out.Issue.Status.Label())
		}
	}
	if out.Message != "" {
		message += "\n" + out.Message
	}
	w.Success(out, message)
}

// submitFailed journals a failed submission and maps it to an exit code.
func submitFailed(cmd *cobra.Command, clientID string, err error) *CmdError {
	var rej *api.RejectionError
	switch {
	case errors.As(err, &rej), errors.Is(err, api.ErrLocalMedia):
		record(cmd, model.Activity{IssueID: clientID, Action: model.ActionDiscarded, NewValue: err.Error()})
		return fail(err, "report rejected")
	case errors.Is(err, model.ErrInvalidReport):
		return cmdErr(err, output.ErrValidation)
	default:
		record(cmd, model.Activity{IssueID: clientID, Action: model.ActionPending, NewValue: err.Error()})
		return fail(err, "submitting report")
	}
}

// draftFromFlags builds a report from flags. The title may be empty when a
// form will fill it in.
func draftFromFlags(cmd *cobra.Command) (*model.Report, error) {
	title, _ := cmd.Flags().GetString("title")
	description, _ := cmd.Flags().GetString("description")
	category, _ := cmd.Flags().GetString("category")
	priorityFlag, _ := cmd.Flags().GetString("priority")
	address, _ := cmd.Flags().GetString("address")
	media, _ := cmd.Flags().GetStringSlice("media")
	lat, _ := cmd.Flags().GetFloat64("lat")
	lng, _ := cmd.Flags().GetFloat64("lng")
	jsonMode, _ := cmd.Flags().GetBool("json")

	if jsonMode && title == "" {
		return nil, cmdErr(fmt.Errorf("--title is required in JSON mode"), output.ErrValidation)
	}

	priority, err := model.ParsePriority(priorityFlag)
	if err != nil {
		return nil, cmdErr(err, output.ErrValidation)
	}

	hasLoc := cmd.Flags().Changed("lat") && cmd.Flags().Changed("lng")
	if title != "" && !hasLoc {
		return nil, cmdErr(fmt.Errorf("--lat and --lng are required"), output.ErrValidation)
	}

	r := model.NewReport(title, description, category, priority, model.Coordinate{Lat: lat, Lng: lng})
	r.Address = strings.TrimSpace(address)
	r.Media = media
	return r, nil
}

// reportForm fills in r interactively.
func reportForm(r *model.Report, categories []string) error {
	latStr := formatCoord(r.Location.Lat)
	lngStr := formatCoord(r.Location.Lng)
	priority := string(r.Priority)
	mediaStr := strings.Join(r.Media, ", ")

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Title").
				Value(&r.Title).
				Validate(required("title")),
			huh.NewText().
				Title("Description").
				Value(&r.Description).
				Validate(required("description")),
			huh.NewInput().
				Title("Category").
				Suggestions(categories).
				Value(&r.Category),
			huh.NewSelect[string]().
				Title("Priority").
				Options(
					huh.NewOption("low", string(model.PriorityLow)),
					huh.NewOption("medium", string(model.PriorityMedium)),
					huh.NewOption("high", string(model.PriorityHigh)),
				).
				Value(&priority),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Latitude").
				Value(&latStr).
				Validate(coordinate(-90, 90)),
			huh.NewInput().
				Title("Longitude").
				Value(&lngStr).
				Validate(coordinate(-180, 180)),
			huh.NewInput().
				Title("Address (optional)").
				Value(&r.Address),
			huh.NewInput().
				Title("Photos (comma-separated paths, optional)").
				Value(&mediaStr),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}

	r.Title = strings.TrimSpace(r.Title)
	r.Description = strings.TrimSpace(r.Description)
	r.Category = strings.TrimSpace(r.Category)
	r.Address = strings.TrimSpace(r.Address)
	r.Priority = model.Priority(priority)
	r.Location.Lat, _ = strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	r.Location.Lng, _ = strconv.ParseFloat(strings.TrimSpace(lngStr), 64)
	r.Media = nil
	for _, m := range strings.Split(mediaStr, ",") {
		if m = strings.TrimSpace(m); m != "" {
			r.Media = append(r.Media, m)
		}
	}
	return nil
}

func formatCoord(v float64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func required(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}

func coordinate(lo, hi float64) func(string) error {
	return func(s string) error {
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return fmt.Errorf("must be a number")
		}
		if v < lo || v > hi {
			return fmt.Errorf("must be within [%g, %g]", lo, hi)
		}
		return nil
	}
}

func init() {
	reportCmd.Flags().StringP("title", "t", "", "Short summary of the problem")
	reportCmd.Flags().StringP("description", "d", "", "What is wrong and where exactly")
	reportCmd.Flags().StringP("category", "c", "", "Category, e.g. Roads or Sanitation")
	reportCmd.Flags().StringP("priority", "p", "medium", "Priority: low, medium, high")
	reportCmd.Flags().Float64("lat", 0, "Latitude in degrees")
	reportCmd.Flags().Float64("lng", 0, "Longitude in degrees")
	reportCmd.Flags().String("address", "", "Street address or landmark")
	reportCmd.Flags().StringSlice("media", nil, "Photo to attach (repeatable)")

	reportCmd.AddCommand(reportPendingCmd)
	reportCmd.AddCommand(reportRetryCmd)
	reportCmd.AddCommand(reportDiscardCmd)
	rootCmd.AddCommand(reportCmd)
}
