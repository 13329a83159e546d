package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/fushar/regrader"
	"github.com/fushar/regrader/datastore"
	"github.com/fushar/regrader/eval"
)

const compileOutputLimit = 4500 // runes

type CompileRequest struct {
	SubmissionID int
	Language     *regrader.Language
	Problem      *regrader.Problem
}

type CompileResponse struct {
	Output   string
	ExitCode int
	Success  bool
}

// Forbidden is a forbidden keyword occurrence.
type Forbidden struct {
	Line    int
	Keyword string
}

// ScanForbidden returns every (line, keyword) hit, ordered by line and then by
// keyword order. Keywords are literal words, never patterns.
func ScanForbidden(code string, keywords []string) []Forbidden {
	type matcher struct {
		kw string
		re *regexp.Regexp
	}
	matchers := make([]matcher, 0, len(keywords))
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		matchers = append(matchers, matcher{kw, regexp.MustCompile(`\b` + regexp.QuoteMeta(kw) + `\b`)})
	}
	if len(matchers) == 0 {
		return nil
	}

	var hits []Forbidden
	for i, line := range strings.Split(code, "\n") {
		for _, m := range matchers {
			if m.re.MatchString(line) {
				hits = append(hits, Forbidden{Line: i + 1, Keyword: m.kw})
			}
		}
	}
	return hits
}

// FormatForbidden renders the compile output reported for forbidden keywords.
func FormatForbidden(sourceName string, hits []Forbidden) string {
	var sb strings.Builder
	for _, hit := range hits {
		fmt.Fprintf(&sb, "%s:%d: forbidden keyword '%s'\n", sourceName, hit.Line, hit.Keyword)
	}
	return sb.String()
}

// Compiler turns a stored submission source into an executable next to it.
type Compiler struct {
	Store  *datastore.StorageManager
	Runner eval.CommandRunner
	Logger *slog.Logger
}

// Compile never reports a failed compilation as an error: that is a
// CompileResponse with Success false. Errors are infrastructure failures.
func (c *Compiler) Compile(ctx context.Context, req *CompileRequest) (*CompileResponse, error) {
	lang := req.Language
	code, err := c.Store.ReadSource(req.SubmissionID, lang)
	if err != nil {
		return nil, fmt.Errorf("couldn't read submission source: %w", err)
	}

	resp := &CompileResponse{}
	if hits := ScanForbidden(string(code), lang.Keywords()); len(hits) > 0 {
		resp.Output = FormatForbidden(lang.SourceName, hits)
		resp.ExitCode = 1
	} else {
		resp.Output, resp.ExitCode, err = c.runCompiler(ctx, req)
		if err != nil {
			return nil, err
		}
	}
	resp.Success = resp.ExitCode == 0

	if err := c.Store.WriteCompileOutput(req.SubmissionID, []byte(resp.Output)); err != nil {
		return nil, fmt.Errorf("couldn't save compile output: %w", err)
	}
	return resp, nil
}

func (c *Compiler) runCompiler(ctx context.Context, req *CompileRequest) (string, int, error) {
	sourceDir := c.Store.SourceDir(req.SubmissionID)
	subs := eval.Substitutions{Path: sourceDir}
	if req.Problem != nil {
		subs.TimeLimit = req.Problem.TimeLimit
		subs.MemoryLimit = req.Problem.MemoryLimit
	}
	cmd, err := eval.MakeCommand(req.Language.CompileCommand, subs)
	if err != nil {
		c.Logger.WarnContext(ctx, "Invalid compile command", slog.String("language", req.Language.Name), slog.Any("err", err))
		return err.Error() + "\n", 1, nil
	}

	out, exitCode, err := c.Runner.Run(ctx, sourceDir, cmd)
	if err != nil {
		return "", 0, fmt.Errorf("couldn't run compiler: %w", err)
	}
	return trimCompileOutput(string(out), sourceDir), exitCode, nil
}

// trimCompileOutput makes paths relative to the source directory and caps the length.
func trimCompileOutput(out, sourceDir string) string {
	out = strings.ReplaceAll(out, sourceDir+"/", "")

	combinedOutRunes := []rune(out)
	if len(combinedOutRunes) > compileOutputLimit {
		combinedOutRunes = append(combinedOutRunes[:compileOutputLimit], []rune("... (compilation output trimmed)")...)
	}
	return string(combinedOutRunes)
}
