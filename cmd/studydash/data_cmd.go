package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"studydash/internal/analytics"
	"studydash/internal/client"
	"studydash/internal/dashboard"
	"studydash/internal/session"
)

const dateLayout = "2006-01-02"

// parseDate accepts RFC3339 or a YYYY-MM-DD day in loc. A bare "to" day
// covers the whole day.
func parseDate(s string, loc *time.Location, endOfDay bool) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if loc == nil {
		loc = time.UTC
	}
	d, err := time.ParseInLocation(dateLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD or RFC3339", s)
	}
	if endOfDay {
		d = d.AddDate(0, 0, 1).Add(-time.Second)
	}
	return d, nil
}

// mappingFlags selects the question whose answers label participants
type mappingFlags struct {
	module, question, mode string
}

func (m *mappingFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&m.module, "label-module", "", "module holding the participant label question")
	cmd.Flags().StringVar(&m.question, "label-question", "", "question whose answer labels participants")
	cmd.Flags().StringVar(&m.mode, "label-mode", "", "latest or first answer")
}

func (m *mappingFlags) query() (client.MappingQuery, error) {
	if _, err := analytics.ParseMappingMode(m.mode); err != nil {
		return client.MappingQuery{}, err
	}
	return client.MappingQuery{ModuleID: m.module, QuestionID: m.question, Mode: m.mode}, nil
}

func newResponsesCmd(a *app) *cobra.Command {
	var (
		userID, moduleID, from, to, sortBy, groupBy string
		skip, limit                                 int
		mapping                                     mappingFlags
	)
	cmd := &cobra.Command{
		Use:   "responses",
		Short: "Show a page of labeled responses, grouped",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			studyID, err := a.studyID()
			if err != nil {
				return err
			}
			group, err := analytics.ParseGroupBy(groupBy)
			if err != nil {
				return err
			}
			mq, err := mapping.query()
			if err != nil {
				return err
			}
			loc := a.profile.Location()
			q := client.ResponseQuery{UserID: userID, ModuleID: moduleID, Sort: sortBy, Skip: skip, Limit: limit}
			if q.From, err = parseDate(from, loc, false); err != nil {
				return err
			}
			if q.To, err = parseDate(to, loc, true); err != nil {
				return err
			}

			ctx, cancel := a.context(cmd.Context())
			defer cancel()
			c, err := a.authedClient()
			if err != nil {
				return err
			}
			view, err := a.loader(c).Table(ctx, dashboard.TableRequest{StudyID: studyID, Query: q, GroupBy: group, Mapping: mq})
			if err != nil {
				return err
			}

			for _, g := range view.Groups {
				renderTitle(a.out, fmt.Sprintf("%s (%d)", g.Title, len(g.Rows)))
				rows := make([][]string, 0, len(g.Rows))
				for _, r := range g.Rows {
					rows = append(rows, []string{
						formatTime(r.ResponseTime, loc),
						r.UserID,
						r.ModuleName,
						formatPayload(r.Payload),
					})
				}
				renderTable(a.out, []string{"Time", "User", "Module", "Answers"}, rows)
			}
			shown := 0
			for _, g := range view.Groups {
				shown += len(g.Rows)
			}
			fmt.Fprintf(a.out, "Showing %d of %d responses from offset %d (%d participants in study)\n", shown, view.Total, skip, len(view.Facets.Users))
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&userID, "user", "", "participant ID")
	f.StringVar(&moduleID, "module", "", "module ID")
	f.StringVar(&from, "from", "", "earliest response (YYYY-MM-DD or RFC3339)")
	f.StringVar(&to, "to", "", "latest response (YYYY-MM-DD or RFC3339)")
	f.StringVar(&sortBy, "sort", "-response_time", "sort field, '-' prefix for descending")
	f.StringVar(&groupBy, "group-by", "user", "user, module or label")
	f.IntVar(&skip, "skip", 0, "rows to skip")
	f.IntVar(&limit, "limit", 50, "page size")
	mapping.register(cmd)
	return cmd
}

func newIngestCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest FILE",
		Short: "Upload a JSON array of responses to the selected study (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			studyID, err := a.studyID()
			if err != nil {
				return err
			}
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read responses: %w", err)
			}
			var batch []client.IngestResponse
			if err := json.Unmarshal(raw, &batch); err != nil {
				return fmt.Errorf("failed to parse %s: %w", args[0], err)
			}

			ctx, cancel := a.context(cmd.Context())
			defer cancel()
			c, err := a.authedClient()
			if err != nil {
				return err
			}
			n, err := c.IngestResponses(ctx, studyID, batch)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Stored %d responses\n", n)
			return nil
		},
	}
}

func newAdherenceCmd(a *app) *cobra.Command {
	var (
		mapping    mappingFlags
		serverSide bool
	)
	cmd := &cobra.Command{
		Use:   "adherence",
		Short: "Show per-participant completion for the selected study",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			studyID, err := a.studyID()
			if err != nil {
				return err
			}
			mq, err := mapping.query()
			if err != nil {
				return err
			}
			ctx, cancel := a.context(cmd.Context())
			defer cancel()
			c, err := a.authedClient()
			if err != nil {
				return err
			}

			var summaries []analytics.UserSummary
			if serverSide {
				if summaries, err = c.Adherence(ctx, studyID, mq); err != nil {
					return err
				}
			} else {
				view, err := a.loader(c).Adherence(ctx, dashboard.AdherenceRequest{StudyID: studyID, Mapping: mq})
				if err != nil {
					return err
				}
				renderTitle(a.out, fmt.Sprintf("%s: %d days", view.Study.Name, view.Structure.StudyDays))
				for _, d := range view.Degraded {
					renderWarning(a.out, d+" unavailable, using defaults")
				}
				summaries = view.Summaries
			}

			rows := make([][]string, 0, len(summaries))
			for _, s := range summaries {
				rows = append(rows, []string{
					s.Label,
					s.UserID,
					formatTime(s.Baseline, a.profile.Location()),
					strconv.Itoa(s.Completed),
					strconv.Itoa(s.Expected),
					strconv.Itoa(s.Completion) + "%",
				})
			}
			renderTable(a.out, []string{"Participant", "User ID", "Baseline", "Completed", "Expected", "Completion"}, rows)
			return nil
		},
	}
	mapping.register(cmd)
	cmd.Flags().BoolVar(&serverSide, "server-side", false, "use the server's adherence endpoint")
	return cmd
}

func newCalendarCmd(a *app) *cobra.Command {
	var mapping mappingFlags
	cmd := &cobra.Command{
		Use:   "calendar",
		Short: "Show responses per day and participant, with your notes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			studyID, err := a.studyID()
			if err != nil {
				return err
			}
			mq, err := mapping.query()
			if err != nil {
				return err
			}
			ctx, cancel := a.context(cmd.Context())
			defer cancel()
			c, err := a.authedClient()
			if err != nil {
				return err
			}
			days, err := a.loader(c).Calendar(ctx, dashboard.CalendarRequest{
				StudyID: studyID,
				Mapping: mq,
				Notes:   a.state.Notes(studyID),
			})
			if err != nil {
				return err
			}

			var rows [][]string
			for _, d := range days {
				for _, cell := range d.Cells {
					rows = append(rows, []string{d.Date, cell.Label, strconv.Itoa(cell.Count), cell.Note})
				}
			}
			renderTable(a.out, []string{"Date", "Participant", "Responses", "Note"}, rows)
			return nil
		},
	}
	mapping.register(cmd)
	return cmd
}

func newNoteCmd(a *app) *cobra.Command {
	var remove bool
	cmd := &cobra.Command{
		Use:   "note DATE USER [TEXT]",
		Short: "Attach a calendar note to a participant's day",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			studyID, err := a.studyID()
			if err != nil {
				return err
			}
			if _, err := time.Parse(dateLayout, args[0]); err != nil {
				return fmt.Errorf("invalid date %q: want YYYY-MM-DD", args[0])
			}
			text := ""
			if len(args) == 3 {
				text = args[2]
			}
			if text == "" && !remove {
				return errors.New("note text is required, or pass --delete")
			}
			if remove {
				text = ""
			}
			a.state.SetNote(studyID, args[0], args[1], text)
			if err := a.state.Save(); err != nil {
				return err
			}
			if remove {
				fmt.Fprintln(a.out, "Note deleted")
			} else {
				fmt.Fprintln(a.out, "Note saved")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&remove, "delete", false, "delete the note")
	return cmd
}

func newSleepCmd(a *app) *cobra.Command {
	var (
		roles  analytics.SleepRoles
		userID string
	)
	cmd := &cobra.Command{
		Use:   "sleep",
		Short: "Show nightly sleep derived from the chosen diary questions",
		Long: `Show nightly sleep derived from the chosen diary questions.

Role flags are remembered per study in the session; without them the saved
roles are used, then the sleep_roles of config.yaml.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			studyID, err := a.studyID()
			if err != nil {
				return err
			}
			if roles != (analytics.SleepRoles{}) {
				a.state.SetSleepRoles(studyID, roles)
				if err := a.state.Save(); err != nil {
					return err
				}
			} else {
				roles = session.ResolveSleepRoles(a.state, a.profile, studyID)
			}
			if !roles.Queryable() {
				return errors.New("sleep roles unset: pass --bedtime and --risetime question IDs")
			}

			ctx, cancel := a.context(cmd.Context())
			defer cancel()
			c, err := a.authedClient()
			if err != nil {
				return err
			}
			rows, err := c.Sleep(ctx, studyID, roles, userID)
			if err != nil {
				return err
			}

			loc := a.profile.Location()
			out := make([][]string, 0, len(rows))
			for _, r := range rows {
				bed, rise := "-", "-"
				if r.Bedtime != nil {
					bed = formatTime(*r.Bedtime, loc)
				}
				if r.Risetime != nil {
					rise = formatTime(*r.Risetime, loc)
				}
				out = append(out, []string{r.UserID, r.Date, bed, rise, formatInt(r.DurationMin), formatFloat(r.Awakenings), formatFloat(r.NapMinutes)})
			}
			renderTable(a.out, []string{"User", "Night", "Bedtime", "Risetime", "Minutes", "Awakenings", "Naps"}, out)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&roles.Bedtime, "bedtime", "", "bedtime question ID")
	f.StringVar(&roles.Risetime, "risetime", "", "risetime question ID")
	f.StringVar(&roles.DiaryDate, "diary-date", "", "diary date question ID")
	f.StringVar(&roles.Awakenings, "awakenings", "", "awakenings question ID")
	f.StringVar(&roles.NapMinutes, "nap-minutes", "", "nap minutes question ID")
	f.StringVar(&userID, "user", "", "participant ID")
	return cmd
}

func newVariablesCmd(a *app) *cobra.Command {
	var (
		vars    []string
		userID  string
		bin     string
		zscore  bool
		catalog bool
	)
	cmd := &cobra.Command{
		Use:   "variables",
		Short: "Show numeric variable series, or the catalog with --catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			studyID, err := a.studyID()
			if err != nil {
				return err
			}
			if _, err := analytics.ParseBin(bin); err != nil {
				return err
			}
			ctx, cancel := a.context(cmd.Context())
			defer cancel()
			c, err := a.authedClient()
			if err != nil {
				return err
			}

			if catalog {
				list, err := c.VariableCatalog(ctx, studyID)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(list))
				for _, v := range list {
					rows = append(rows, []string{v.ID, v.Label, strconv.Itoa(len(v.Options))})
				}
				renderTable(a.out, []string{"Variable", "Label", "Options"}, rows)
				return nil
			}

			if len(vars) == 0 {
				vars = a.profile.Variables
			}
			if len(vars) == 0 {
				return errors.New("no variables selected: pass --var module:question or set variables in config.yaml")
			}
			points, err := c.Variables(ctx, studyID, client.VariableQuery{Variables: vars, UserID: userID, Bin: bin, ZScore: zscore})
			if err != nil {
				return err
			}
			loc := a.profile.Location()
			rows := make([][]string, 0, len(points))
			for _, p := range points {
				rows = append(rows, []string{p.Label, p.Variable, formatTime(p.Timestamp, loc), strconv.FormatFloat(p.Value, 'f', 2, 64)})
			}
			renderTable(a.out, []string{"Participant", "Variable", "Time", "Value"}, rows)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringSliceVar(&vars, "var", nil, "module:question variable, repeatable")
	f.StringVar(&userID, "user", "", "participant ID")
	f.StringVar(&bin, "bin", "", "average into hour or day buckets")
	f.BoolVar(&zscore, "zscore", false, "standardize each participant's series")
	f.BoolVar(&catalog, "catalog", false, "list available variables instead")
	return cmd
}
