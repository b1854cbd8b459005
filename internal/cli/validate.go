package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/orbit/internal/compiler"
	"github.com/roach88/orbit/internal/ir"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool                       `json:"valid"`
	Plans  []string                   `json:"plans"`
	Errors []compiler.ValidationError `json:"errors,omitempty"`
}

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	PlanName string
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <plan.cue>",
		Short: "Validate plans without simulating them",
		Long: `Validate CUE plans without simulating them.

Compiles every plan in the file or directory, resolves anchors and checks
each directive against the model's activity types and parameters.
Faster than simulate for development feedback.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.PlanName, "plan", "", "validate only this plan")

	return cmd
}

func runValidate(opts *ValidateOptions, planPath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	var plans []*ir.Plan
	if opts.PlanName != "" {
		plan, err := LoadPlan(planPath, opts.PlanName)
		if err != nil {
			return outputLoadError(formatter, err)
		}
		plans = []*ir.Plan{plan}
	} else {
		var err error
		plans, err = LoadPlans(planPath)
		if err != nil {
			return outputLoadError(formatter, err)
		}
	}

	activities := opts.model().Activities
	var errs []compiler.ValidationError
	names := make([]string, len(plans))
	for i, plan := range plans {
		names[i] = plan.Name
		formatter.VerboseLog("Validating plan: %s (%d activities)", plan.Name, len(plan.Directives))
		for _, e := range compiler.Validate(plan, activities) {
			e.Field = plan.Name + "." + e.Field
			errs = append(errs, e)
		}
	}

	if len(errs) > 0 {
		return outputValidationErrors(formatter, errs)
	}

	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Plans: names})
	}
	fmt.Fprintf(formatter.Writer, "✓ %d plan(s) valid\n", len(plans))
	return nil
}

// outputValidationErrors outputs validation errors (exit code 1).
func outputValidationErrors(formatter *OutputFormatter, errs []compiler.ValidationError) error {
	if formatter.Format == "json" {
		err := formatter.Response(CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: errs},
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		})
		if err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, err := range errs {
		fmt.Fprintf(formatter.Writer, "  %s %s: %s\n", err.Code, err.Field, err.Message)
	}

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
