package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/yuya-takeyama/strict-tree-sync/pkg/executor"
	"github.com/yuya-takeyama/strict-tree-sync/pkg/job"
	"github.com/yuya-takeyama/strict-tree-sync/pkg/manifest"
	"github.com/yuya-takeyama/strict-tree-sync/pkg/plan"
)

// NewRootCommand returns the strict-tree-sync command tree.
func NewRootCommand(version string) *cobra.Command {
	var f Flags
	root := &cobra.Command{
		Use:   "strict-tree-sync",
		Short: "Compare and copy directory trees between object stores and hierarchical filesystems",
		Long: `strict-tree-sync lists a source and a destination tree, diffs them by path and
metadata, splits the resulting pairs into balanced groups and copies or
verifies each group with a bounded worker pool and CRC64NVME checksums.`,
		Version: version,
	}
	AddFlags(root, &f)

	root.AddCommand(
		newCompareCommand(&f),
		newCopyCommand(&f),
		newPlanCommand(&f),
		NewRunGroupCommand(&f),
	)
	return root
}

// pathArgs accepts <src> <dest>, or nothing when a manifest seed is given.
func pathArgs(manifestPath *string) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if *manifestPath != "" {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.ExactArgs(2)(cmd, args)
	}
}

func splitArgs(args []string) (string, string) {
	if len(args) < 2 {
		return "", ""
	}
	return args[0], args[1]
}

func newCompareCommand(f *Flags) *cobra.Command {
	var manifestPath string
	cmd := &cobra.Command{
		Use:   "compare <src> <dest>",
		Short: "Diff two trees by metadata and verify checksums of matched files",
		Args:  pathArgs(&manifestPath),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := Setup(cmd, f)
			if err != nil {
				return err
			}
			opts := env.JobOptions(splitArgs(args))
			opts.Manifest = manifestPath

			report, err := env.Job(opts).Compare(cmd.Context())
			if err != nil {
				return err
			}
			return env.Finish(report)
		},
	}
	cmd.Flags().StringVar(&manifestPath, "manifest", "", "Manifest seed to verify instead of walking both trees")
	return cmd
}

func newCopyCommand(f *Flags) *cobra.Command {
	var (
		manifestPath string
		skipExisting bool
	)
	cmd := &cobra.Command{
		Use:   "copy <src> <dest>",
		Short: "Copy a tree to the destination",
		Args:  pathArgs(&manifestPath),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := Setup(cmd, f)
			if err != nil {
				return err
			}
			opts := env.JobOptions(splitArgs(args))
			opts.Manifest = manifestPath
			opts.SkipExisting = skipExisting

			report, err := env.Job(opts).Copy(cmd.Context())
			if err != nil {
				return err
			}
			return env.Finish(report)
		},
	}
	cmd.Flags().StringVar(&manifestPath, "manifest", "", "Manifest seed to copy instead of walking the source")
	cmd.Flags().BoolVar(&skipExisting, "skip-existing", false, "Copy only entries missing from the destination or differing in metadata")
	return cmd
}

func newPlanCommand(f *Flags) *cobra.Command {
	var (
		manifestPath string
		manifestOut  string
		mode         string
		skipExisting bool
	)
	cmd := &cobra.Command{
		Use:   "plan <src> <dest>",
		Short: "Stage balanced groups for the batch framework without executing them",
		Args:  pathArgs(&manifestPath),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := ParseMode(mode)
			if err != nil {
				return err
			}
			env, err := Setup(cmd, f)
			if err != nil {
				return err
			}
			opts := env.JobOptions(splitArgs(args))
			opts.Manifest = manifestPath
			opts.SkipExisting = skipExisting

			p, err := env.Job(opts).Plan(cmd.Context(), m)
			if err != nil {
				return err
			}
			return printPlan(env, p, manifestOut)
		},
	}
	cmd.Flags().StringVar(&manifestPath, "manifest", "", "Manifest seed to plan instead of walking the trees")
	cmd.Flags().StringVar(&manifestOut, "manifest-out", "", "Write the planned file pairs as a manifest seed to this local file")
	cmd.Flags().StringVar(&mode, "mode", string(executor.ModeCopy), "Work to plan: copy or verify")
	cmd.Flags().BoolVar(&skipExisting, "skip-existing", false, "Plan only entries missing from the destination or differing in metadata")
	return cmd
}

func printPlan(env *Env, p *job.Plan, manifestOut string) error {
	if p.Diff != nil && !env.Flags.Quiet {
		for _, item := range plan.Describe(*p.Diff, false) {
			if item.Action == plan.ActionSkip {
				continue
			}
			fmt.Fprintf(env.Stdout, "%s: %s (%s)\n", item.Action, item.Path, item.Reason)
		}
	}

	fmt.Fprintf(env.Stdout, "run %s: %d pairs in %d groups\n", p.RunID, len(p.Pairs), len(p.Groups))
	for _, g := range p.Groups {
		fmt.Fprintf(env.Stdout, "  %s -> %s\n", g.Summary, g.Path)
	}

	if manifestOut != "" {
		out, err := os.Create(manifestOut)
		if err != nil {
			return fmt.Errorf("failed to create manifest: %w", err)
		}
		defer out.Close()
		if _, err := manifest.WritePairs(out, p.Pairs); err != nil {
			return fmt.Errorf("failed to write manifest: %w", err)
		}
	}
	return nil
}

// NewRunGroupCommand returns the command the batch framework invokes once
// per staged group.
func NewRunGroupCommand(f *Flags) *cobra.Command {
	var mode string
	cmd := &cobra.Command{
		Use:   "run-group <group-path>",
		Short: "Execute one staged group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := ParseMode(mode)
			if err != nil {
				return err
			}
			env, err := Setup(cmd, f)
			if err != nil {
				return err
			}

			report, err := env.Job(env.JobOptions("", "")).RunGroup(cmd.Context(), args[0], m)
			if err != nil {
				return err
			}
			return env.Finish(report)
		},
	}
	cmd.Flags().StringVar(&mode, "mode", string(executor.ModeCopy), "Work to run: copy or verify")
	return cmd
}
