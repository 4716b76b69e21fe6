// Package analysis drives a solver through its lifecycle.
//
// A [Stage] is built from project parameters. It constructs the solver named
// in solver_settings and the processes listed under processes and
// output_processes, and then runs the phases in a fixed order:
//
//	Unconstructed -> ModelImported -> VariablesAdded -> DofsAdded ->
//	Initialized -> SolutionLoop -> Finalized
//
// # Solution Loop
//
// While the time is below problem_data.end_time every step runs
//
//	AdvanceInTime, InitializeSolutionStep, Predict, SolveSolutionStep,
//	FinalizeSolutionStep, OutputSolutionStep
//
// and then notifies the observers. Cancelling the context passed to
// [Stage.Run] stops the loop between two steps.
//
// # Processes
//
//   - assign_scalar_variable_process: sets, and optionally fixes, a nodal value
//   - json_output: records nodal values per step into a JSON file
//   - check_results: compares nodal values against a recorded JSON file
//   - result_store: saves a per-step summary into the run store
package analysis
