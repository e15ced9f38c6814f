package repair

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/structmine/docbatch/internal/common"
	"github.com/structmine/docbatch/internal/core"
	"github.com/structmine/docbatch/internal/schema"
	"github.com/structmine/docbatch/internal/tracking"
)

// ExitToken ends an interactive repair session.
const ExitToken = "q"

// Candidate is one tracking log an operator may select for repair.
type Candidate struct {
	Group          common.Group
	LogPath        string
	TrackingCount  int
	ResponseCount  int
	FinalExists    bool
	FinalPath      string
	ArtifactExists bool
}

// Tool re-runs polling, retrieval and reconciliation for operator-selected
// tracking logs. It never resubmits requests.
type Tool struct {
	proc   *core.Processor
	logger *slog.Logger
}

func NewTool(proc *core.Processor, logger *slog.Logger) *Tool {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tool{proc: proc, logger: logger}
}

// ScanCandidates lists every tracking log across all groups with the
// per-log counts the operator selects on. A group whose tracking directory
// cannot be read is logged and skipped.
func (t *Tool) ScanCandidates(groups []common.Group) []Candidate {
	var out []Candidate
	for _, g := range groups {
		logs, err := tracking.FindLogs(g.TrackingDir)
		if err != nil {
			t.logger.Warn("repair.scan_group_failed", "group", g.Name, "error", err)
			continue
		}
		for _, logPath := range logs {
			l := tracking.OpenLog(logPath, t.logger)
			cand := Candidate{Group: g, LogPath: logPath}

			contents, err := l.Read()
			if err != nil {
				t.logger.Warn("repair.scan_log_failed", "log", logPath, "error", err)
			} else {
				cand.TrackingCount = len(contents.Tracking)
				cand.ResponseCount = len(contents.Responses)
			}

			cand.FinalPath = filepath.Join(g.OutputDir, l.Stem()+tracking.FinalResultSuffix)
			if _, err := os.Stat(cand.FinalPath); err == nil {
				cand.FinalExists = true
			}
			if _, err := os.Stat(l.DebugArtifactPath()); err == nil {
				cand.ArtifactExists = true
			}
			out = append(out, cand)
		}
	}
	return out
}

// Describe renders one candidate line for the selection listing.
func (c Candidate) Describe(index int) string {
	final := "no final output"
	if c.FinalExists {
		final = "final output exists"
	}
	return fmt.Sprintf("[%d] %s %s — responses %d / tracking %d, %s",
		index, c.Group.Name, filepath.Base(c.LogPath),
		c.ResponseCount, c.TrackingCount, final)
}

// ParseSelection parses an operator selection: a comma-separated list of
// 1-based indices, or the exit token. Returns (indices, quit, error).
func ParseSelection(input string, n int) ([]int, bool, error) {
	input = strings.TrimSpace(input)
	if strings.EqualFold(input, ExitToken) || strings.EqualFold(input, "quit") || strings.EqualFold(input, "exit") {
		return nil, true, nil
	}
	if input == "" {
		return nil, false, fmt.Errorf("empty selection: %w", common.ErrInvalidInput)
	}
	seen := map[int]struct{}{}
	var out []int
	for _, part := range strings.Split(input, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		idx, err := strconv.Atoi(part)
		if err != nil {
			return nil, false, fmt.Errorf("selection %q is not a number: %w", part, common.ErrInvalidInput)
		}
		if idx < 1 || idx > n {
			return nil, false, fmt.Errorf("selection %d out of range 1..%d: %w", idx, n, common.ErrInvalidInput)
		}
		if _, dup := seen[idx]; dup {
			continue
		}
		seen[idx] = struct{}{}
		out = append(out, idx)
	}
	if len(out) == 0 {
		return nil, false, fmt.Errorf("no valid selections: %w", common.ErrInvalidInput)
	}
	return out, false, nil
}

// Outcome reports one repaired (or unrepairable) selection.
type Outcome struct {
	Candidate    Candidate
	OutputPath   string
	Responses    int
	Unrepairable bool
	Err          error
}

// Repair re-runs the check pipeline for the selected candidates (1-based
// indices). An unrepairable log — no tracking records and no debug
// artifact — is reported and skipped; the remaining selections still run.
func (t *Tool) Repair(ctx context.Context, candidates []Candidate, selection []int) []Outcome {
	schemas := map[string]*jsonschema.Schema{}
	outcomes := make([]Outcome, 0, len(selection))

	for _, idx := range selection {
		cand := candidates[idx-1]
		out := Outcome{Candidate: cand}

		var compiled *jsonschema.Schema
		if cand.Group.SchemaFile != "" {
			var ok bool
			if compiled, ok = schemas[cand.Group.SchemaFile]; !ok {
				var err error
				compiled, err = schema.Compile(cand.Group.SchemaFile)
				if err != nil {
					out.Err = err
					t.logger.Error("repair.schema_failed", "log", cand.LogPath, "error", err)
					outcomes = append(outcomes, out)
					continue
				}
				schemas[cand.Group.SchemaFile] = compiled
			}
		}

		res := t.proc.ProcessLog(ctx, cand.Group, cand.LogPath, compiled, "repair-"+filepath.Base(cand.LogPath))
		out.OutputPath = res.OutputPath
		out.Unrepairable = res.Unrepairable
		out.Err = res.Err
		if res.Result != nil {
			out.Responses = len(res.Result.Responses)
		}

		if res.Unrepairable {
			t.logger.Warn("repair.unrepairable",
				"log", cand.LogPath,
				"reason", "no batch ids in log and no submission debug artifact")
		} else if res.Err == nil {
			t.logger.Info("repair.log.ok",
				"log", cand.LogPath,
				"responses", out.Responses,
				"output", res.OutputPath)
		}
		outcomes = append(outcomes, out)
	}
	return outcomes
}
