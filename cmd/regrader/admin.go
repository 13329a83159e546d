package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fushar/regrader"
	"github.com/fushar/regrader/datastore"
	"github.com/fushar/regrader/db"
	"github.com/fushar/regrader/internal/config"
	"github.com/fushar/regrader/sudoapi"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"
)

// withAPI opens the database for the duration of a single admin command.
func withAPI(c *cli.Context, fn func(ctx context.Context, base *sudoapi.BaseAPI) error) error {
	ctx := c.Context
	database, err := db.New(ctx, config.Database.DSN, config.Database.MaxConns)
	if err != nil {
		return err
	}
	defer database.Close()

	manager, err := datastore.NewManager(afero.NewOsFs(), config.Storage)
	if err != nil {
		return err
	}
	return fn(ctx, sudoapi.GetBaseAPI(database, manager, config.Grader.LeaseTTL.Duration))
}

func Scoreboard(c *cli.Context) error {
	view := regrader.ScoreboardView(c.String("view"))
	return withAPI(c, func(ctx context.Context, base *sudoapi.BaseAPI) error {
		if c.Bool("csv") {
			return base.ExportScoreboard(ctx, os.Stdout, c.Int("contest"), view)
		}
		sb, err := base.ContestScoreboard(ctx, c.Int("contest"), view)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprint(w, "#\tName\tInstitution")
		for _, pb := range sb.Problems {
			fmt.Fprintf(w, "\t%s", pb.Alias)
		}
		fmt.Fprintln(w, "\tSolved\tPenalty")
		for i, row := range sb.Rows {
			fmt.Fprintf(w, "%d\t%s\t%s", i+1, row.Name, row.Institution)
			for _, score := range row.Scores {
				fmt.Fprintf(w, "\t%s", scoreCell(score))
			}
			fmt.Fprintf(w, "\t%d\t%d\n", row.TotalAccepted, row.TotalPenalty)
		}
		return w.Flush()
	})
}

func scoreCell(score regrader.ProblemScore) string {
	switch {
	case score.SubmissionCount == 0:
		return "."
	case score.IsAccepted:
		return strconv.Itoa(score.SubmissionCount) + "/" + strconv.Itoa(score.TimePenalty)
	default:
		return strconv.Itoa(score.SubmissionCount) + "/-"
	}
}

func Recalculate(c *cli.Context) error {
	scope := regrader.ScoreboardScope{ContestID: c.Int("contest")}
	if c.IsSet("user") {
		v := c.Int("user")
		scope.UserID = &v
	}
	if c.IsSet("problem") {
		v := c.Int("problem")
		scope.ProblemID = &v
	}
	return withAPI(c, func(ctx context.Context, base *sudoapi.BaseAPI) error {
		return base.RecalculateScoreboard(ctx, scope)
	})
}

func Regrade(c *cli.Context) error {
	return withAPI(c, func(ctx context.Context, base *sudoapi.BaseAPI) error {
		return base.RequestRegrade(ctx, c.Int("submission"))
	})
}

func Ignore(c *cli.Context) error {
	return withAPI(c, func(ctx context.Context, base *sudoapi.BaseAPI) error {
		return base.RequestIgnore(ctx, c.Int("submission"))
	})
}

func Graders(c *cli.Context) error {
	return withAPI(c, func(ctx context.Context, base *sudoapi.BaseAPI) error {
		graders, err := base.ActiveGraders(ctx)
		if err != nil {
			return err
		}
		if len(graders) == 0 {
			slog.WarnContext(ctx, "No active graders")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "Hostname\tWorker\tLast activity\tLease until")
		for _, g := range graders {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", g.Hostname, g.WorkerID, humanize.Time(g.LastActivity), g.LeaseUntil.Format(time.DateTime))
		}
		return w.Flush()
	})
}

func Judgings(c *cli.Context) error {
	return withAPI(c, func(ctx context.Context, base *sudoapi.BaseAPI) error {
		id := c.Int("submission")
		sub, err := base.Submission(ctx, id)
		if err != nil {
			return err
		}
		judgings, err := base.Judgings(ctx, id)
		if err != nil {
			return err
		}

		fmt.Printf("Submission %d: %s\n", sub.ID, sub.Verdict)
		if sub.Verdict == regrader.VerdictCompileError {
			out, err := base.CompileOutput(ctx, id)
			if err != nil {
				slog.WarnContext(ctx, "Couldn't read compile output", slog.Any("err", err))
			}
			fmt.Print(out)
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "Testcase\tVerdict\tTime\tMemory")
		for _, j := range judgings {
			fmt.Fprintf(w, "%d\t%s\t%d ms\t%s\n", j.TestcaseID, j.Verdict, j.Time, humanize.IBytes(uint64(j.Memory)*1024))
		}
		return w.Flush()
	})
}
