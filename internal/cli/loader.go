package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue/token"

	"github.com/roach88/orbit/internal/compiler"
	"github.com/roach88/orbit/internal/ir"
)

// LoadError represents an error that occurred while loading plans.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Line returns the source line of the error, or 0 when unknown.
func (e *LoadError) Line() int {
	if e.Pos.IsValid() {
		return e.Pos.Line()
	}
	return 0
}

// LoadPlans compiles every plan at path, a CUE file or a directory of them.
// Errors are *LoadError.
func LoadPlans(path string) ([]*ir.Plan, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("plan path not found: %s", path)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing plan path: %v", err)}
	}

	if info.IsDir() {
		files, err := FindCUEFiles(path)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}
		}
		if len(files) == 0 {
			return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", path)}
		}
	}

	plans, err := compiler.LoadPlans(path)
	if err != nil {
		return nil, convertCompileError(err)
	}
	return plans, nil
}

// LoadPlan compiles the plan called name at path. An empty name selects the
// only plan.
func LoadPlan(path, name string) (*ir.Plan, error) {
	plans, err := LoadPlans(path)
	if err != nil {
		return nil, err
	}
	if name == "" {
		if len(plans) > 1 {
			names := make([]string, len(plans))
			for i, p := range plans {
				names[i] = p.Name
			}
			return nil, &LoadError{
				Code:    ErrCodeAmbiguousPlan,
				Message: fmt.Sprintf("%s defines %d plans (%s): choose one with --plan", path, len(plans), strings.Join(names, ", ")),
			}
		}
		return plans[0], nil
	}
	for _, p := range plans {
		if p.Name == name {
			return p, nil
		}
	}
	return nil, &LoadError{Code: ErrCodePlanNotFound, Message: fmt.Sprintf("%s has no plan %q", path, name)}
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error) *LoadError {
	var compileErr *compiler.CompileError
	var cycleErr *compiler.AnchorCycleError
	switch {
	case errors.As(err, &compileErr):
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Message: compileErr.Message,
			Pos:     compileErr.Pos,
		}
	case errors.As(err, &cycleErr):
		return &LoadError{Code: ErrCodeAnchor, Message: cycleErr.Error()}
	}
	return &LoadError{Code: ErrCodeLoadFailed, Message: err.Error()}
}

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric       = "E001" // Generic/unknown error
	ErrCodeScanError     = "E002" // Directory scan error
	ErrCodeNoFiles       = "E003" // No CUE files found
	ErrCodeLoadFailed    = "E004" // CUE load failed
	ErrCodeNotFound      = "E005" // Path not found
	ErrCodeBuildFailed   = "E006" // CUE build failed
	ErrCodeAmbiguousPlan = "E007" // Several plans and none chosen
	ErrCodePlanNotFound  = "E008" // Chosen plan does not exist
	ErrCodeRunNotFound   = "E009" // Run id not in the store

	// Plan compile errors
	ErrCodeNoPlan       = "E010" // No plan block
	ErrCodeStart        = "E011" // Missing or malformed start
	ErrCodeDuration     = "E012" // Missing or malformed duration
	ErrCodeActivityType = "E013" // Activity without a type
	ErrCodeActivityID   = "E014" // Missing or duplicate activity id
	ErrCodeArgs         = "E015" // Arguments not a concrete struct
	ErrCodeAnchor       = "E016" // Unknown anchor or anchor cycle
	ErrCodeOffset       = "E017" // Malformed offset
)

// MapFieldToErrorCode maps a compiler error field to an error code. Fields
// inside an activity are matched on their last element, so
// "activities[2].anchor" maps like "anchor".
func MapFieldToErrorCode(field string) string {
	if i := strings.LastIndex(field, "."); i >= 0 && strings.HasPrefix(field, "activities[") {
		field = field[i+1:]
	}
	switch field {
	case "cue":
		return ErrCodeBuildFailed
	case "plan":
		return ErrCodeNoPlan
	case "start":
		return ErrCodeStart
	case "duration":
		return ErrCodeDuration
	case "type":
		return ErrCodeActivityType
	case "id":
		return ErrCodeActivityID
	case "args":
		return ErrCodeArgs
	case "anchor":
		return ErrCodeAnchor
	case "offset":
		return ErrCodeOffset
	default:
		return ErrCodeGeneric
	}
}
