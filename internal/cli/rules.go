package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hupe1980/kpsport/internal/rules"
)

// ---------------------------------------------------------------------------
// remap-jobs
// ---------------------------------------------------------------------------

type remapOptions struct {
	outputOptions

	input    string
	output   string
	mappings []string
}

func newRemapJobsCommand() *cobra.Command {
	opts := &remapOptions{}

	cmd := &cobra.Command{
		Use:   "remap-jobs",
		Short: "Rename job filters in a rules file",
		Long: `Replace every literal job="<old>" with job="<new>" in the rules file.

Mappings come from the job-mappings list of the config file, or from
repeated --map old=new flags, and are applied in order. The command reports
how often each mapping was applied and which job filters remain.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRemapJobs(cmd, opts)
		},
	}

	registerOutputFlags(cmd, &opts.outputOptions)

	f := cmd.Flags()
	f.StringVarP(&opts.input, "input", "i", filepath.Join(defaultRulesDir, rulesFile), "rules file to read")
	f.StringVarP(&opts.output, "output", "o", filepath.Join(defaultRulesDir, updatedRulesFile), "rules file to write")
	f.StringArrayVar(&opts.mappings, "map", nil, "job mapping old=new (repeatable, replaces the configured list)")

	return cmd
}

func runRemapJobs(cmd *cobra.Command, opts *remapOptions) error {
	s := newSession(cmd, &opts.outputOptions)

	mappings := s.cfg.Rules.JobMappings

	if len(opts.mappings) > 0 {
		mappings = make([]rules.JobMapping, 0, len(opts.mappings))

		for _, raw := range opts.mappings {
			m, err := rules.ParseJobMapping(raw)
			if err != nil {
				return &ExitError{Code: 2, Err: err}
			}

			mappings = append(mappings, m)
		}
	}

	data, err := readRequired(opts.input)
	if err != nil {
		return err
	}

	text, report := rules.RemapJobs(string(data), mappings)

	if _, err := rules.Parse([]byte(text)); err != nil && !errors.Is(err, rules.ErrNoGroups) {
		s.logger.Warn("remapped file is not a valid rules file", slog.String("error", err.Error()))
	}

	emitted, err := s.emitter.Emit(opts.output, []byte(text))
	if err != nil {
		return err
	}

	for _, c := range report.Changes {
		fmt.Fprintf(s.report, "  %-25s -> %-30s (%d changes)\n", c.From, c.To, c.Count)
	}

	if len(report.Changes) == 0 {
		fmt.Fprintln(s.report, "No job names changed.")
	} else {
		fmt.Fprintf(s.report, "Remapped %d jobs, %d changes\n", len(report.Changes), report.Total())
	}

	if emitted.Written {
		fmt.Fprintf(s.report, "Wrote %s\n", emitted.Path)
	}

	if len(report.Remaining) > 0 {
		fmt.Fprintln(s.report, "Remaining job filters:")
		printJobCounts(s.report, report.Remaining)
		fmt.Fprintln(s.report, "Add job mappings for these jobs if needed and run remap-jobs again.")
	}

	return nil
}

// ---------------------------------------------------------------------------
// clean-rules
// ---------------------------------------------------------------------------

type cleanOptions struct {
	outputOptions

	input   string
	output  string
	allowed []string
}

func newCleanRulesCommand() *cobra.Command {
	opts := &cleanOptions{}

	cmd := &cobra.Command{
		Use:   "clean-rules",
		Short: "Drop rules that select jobs outside the allow-list",
		Long: `Keep every rule whose expression has no job="..." filter, or one that names
an allowed job. Groups left without rules are dropped.

The default substring matching counts any job="<allowed>" text in the
expression. --job-match selector parses the expression and only looks at
equality matchers on the job label.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCleanRules(cmd, opts)
		},
	}

	registerOutputFlags(cmd, &opts.outputOptions)

	f := cmd.Flags()
	f.StringVarP(&opts.input, "input", "i", filepath.Join(defaultRulesDir, updatedRulesFile), "rules file to read")
	f.StringVarP(&opts.output, "output", "o", filepath.Join(defaultRulesDir, cleanRulesFile), "rules file to write")
	f.StringSliceVar(&opts.allowed, "allow", nil, "allowed jobs (replaces the configured list)")
	f.String("job-match", string(rules.MatchSubstring), "job filter matching: substring, selector")

	return cmd
}

func runCleanRules(cmd *cobra.Command, opts *cleanOptions) error {
	s := newSession(cmd, &opts.outputOptions)

	allowed := s.cfg.Rules.AllowedJobs
	if len(opts.allowed) > 0 {
		allowed = opts.allowed
	}

	mode, err := rules.ParseMatchMode(s.cfg.JobMatch)
	if err != nil {
		return &ExitError{Code: 2, Err: err}
	}

	data, err := readRequired(opts.input)
	if err != nil {
		return err
	}

	doc, err := rules.Parse(data)

	switch {
	case errors.Is(err, rules.ErrNoGroups):
		s.logger.Warn("no groups found, writing an empty rule set", slog.String("file", opts.input))

		doc = rules.Document{Groups: []rules.Group{}}
	case err != nil:
		s.logger.Warn("skipping unparsable rules file", slog.String("file", opts.input), slog.String("error", err.Error()))
		fmt.Fprintf(s.report, "Skipped %s: %v\n", opts.input, err)

		return nil
	}

	cleaned, report := rules.FilterByJob(doc, allowed, mode)

	for _, r := range report.RemovedRules {
		s.logger.Info("removed rule", slog.String("group", r.Group), slog.String("rule", r.Rule))
	}

	for _, g := range report.RemovedGroups {
		s.logger.Info("removed group", slog.String("group", g))
	}

	out, err := rules.MarshalOrdered(cleaned)
	if err != nil {
		return err
	}

	emitted, err := s.emitter.Emit(opts.output, out)
	if err != nil {
		return err
	}

	for _, g := range report.Kept {
		fmt.Fprintf(s.report, "  kept %s (%d rules)\n", g.Name, g.Rules)
	}

	fmt.Fprintf(s.report, "Removed %d groups and %d rules; %d groups with %d rules remain\n",
		len(report.RemovedGroups), len(report.RemovedRules), len(cleaned.Groups), cleaned.RuleCount())

	if emitted.Written {
		fmt.Fprintf(s.report, "Wrote %s\n", emitted.Path)
	}

	if jobs := rules.JobFrequencies(string(out)); len(jobs) > 0 {
		fmt.Fprintln(s.report, "Job distribution:")
		printJobCounts(s.report, jobs)
	}

	return nil
}

func printJobCounts(w io.Writer, jobs []rules.JobCount) {
	for _, j := range jobs {
		fmt.Fprintf(w, "  %-35s (%d)\n", j.Job, j.Count)
	}
}
