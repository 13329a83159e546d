package scoreboard

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/fushar/regrader"
)

// WriteCSV exports standings as username, one column per problem alias, num_solved and penalty.
// Solved cells read "+" (or "+N" after N attempts) followed by " / hh:mm"; unsolved cells read "-N".
func WriteCSV(w io.Writer, sb *regrader.Scoreboard) error {
	wr := csv.NewWriter(w)

	header := []string{"username"}
	for _, pb := range sb.Problems {
		header = append(header, pb.Alias)
	}
	header = append(header, "num_solved", "penalty")
	if err := wr.Write(header); err != nil {
		return err
	}

	for _, row := range sb.Rows {
		line := []string{row.Username}
		for _, score := range row.Scores {
			line = append(line, formatCell(score))
		}
		line = append(line, strconv.Itoa(row.TotalAccepted), strconv.Itoa(row.TotalPenalty))
		if err := wr.Write(line); err != nil {
			return err
		}
	}
	wr.Flush()
	return wr.Error()
}

func formatCell(score regrader.ProblemScore) string {
	if score.SubmissionCount == 0 {
		return "-"
	}
	if !score.IsAccepted {
		return strconv.Itoa(-score.SubmissionCount)
	}
	col := "+"
	if score.SubmissionCount > 1 {
		col += strconv.Itoa(score.SubmissionCount)
	}
	h, m := score.TimePenalty/60, score.TimePenalty%60
	return col + fmt.Sprintf(" / %02d:%02d", h, m)
}
