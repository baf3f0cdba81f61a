package cli

import "context"

// Run parses args for the project at workDir and executes the command.
// It is the whole program minus process exit, for black-box tests.
func Run(ctx context.Context, workDir string, args []string, opts Options) (Result, error) {
	inv, err := ParseInvocation(workDir, args)
	if err != nil {
		reportInvocationError(opts, err)
		return Result{ExitCode: ExitCode(err)}, err
	}
	return ExecuteWith(ctx, inv, opts)
}
