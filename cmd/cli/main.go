// ais-cli - Command-line tool for compiling, running, and replaying plans.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/smilemakc/ais-go/pkg/documents"
	"github.com/smilemakc/ais-go/pkg/engine"
	"github.com/smilemakc/ais-go/pkg/executor"
	"github.com/smilemakc/ais-go/pkg/planner"
	"github.com/smilemakc/ais-go/pkg/resolver"
	"github.com/smilemakc/ais-go/pkg/trace"
	"github.com/smilemakc/ais-go/pkg/value"
	"github.com/smilemakc/ais-go/pkg/visualization"
)

const (
	version = "1.0.0"
	usage   = `ais-cli - cross-chain plan engine tool

USAGE:
    ais-cli <command> [options]

COMMANDS:
    plan compile      Compile a workflow document into a plan and print its node order
    plan show         Render a compiled plan as a Mermaid diagram
    plan run          Compile and run a plan to completion (or stall)
    trace replay      Replay a JSONL event trace into per-node timelines
    checkpoint show   Print a checkpoint document's run id and per-node status
    version           Show version information
    help              Show this help message

PLAN COMPILE/SHOW/RUN OPTIONS:
    -workflow <file>     Workflow document YAML (required)
    -protocol <file>     Protocol document YAML (repeatable)

PLAN SHOW OPTIONS:
    -direction <dir>      Diagram direction: TB, LR, RL, BT, elk (default: TB)
    -output <file>        Save to file instead of stdout

PLAN RUN OPTIONS:
    -runtime <file>        Optional JSON file seeding the initial runtime tree
    -dry-run               Force every node to simulate instead of execute
    -redaction <mode>      Trace redaction mode: default, audit, off (default: default)
    -trace-out <file>      Write the run's JSONL event trace to this file
    -checkpoint-out <file> Write the final checkpoint document to this file

TRACE REPLAY OPTIONS:
    -trace <file>         JSONL event trace to replay (required)

CHECKPOINT SHOW OPTIONS:
    -checkpoint <file>    Checkpoint document JSON (required)

PLAN RUN additionally honors:
    -max-sweeps <n>        Maximum sweeps to perform before giving up (default 128)
    -until <node-id>        Stop once this node reaches a terminal status

EXAMPLES:
    ais-cli plan show -workflow swap.yaml -protocol uniswap.yaml -direction LR
    ais-cli plan run -workflow swap.yaml -protocol uniswap.yaml -trace-out run.jsonl
    ais-cli trace replay -trace run.jsonl
    ais-cli checkpoint show -checkpoint run.checkpoint.json
`
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	godotenv.Load()

	command := os.Args[1]

	switch command {
	case "plan":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Error: plan command requires a subcommand (compile, show, run)")
			os.Exit(1)
		}
		switch os.Args[2] {
		case "compile":
			handlePlanCompile(os.Args[3:])
		case "show":
			handlePlanShow(os.Args[3:])
		case "run":
			handlePlanRun(os.Args[3:])
		default:
			fmt.Fprintf(os.Stderr, "Error: unknown plan subcommand: %s\n", os.Args[2])
			os.Exit(1)
		}

	case "trace":
		if len(os.Args) < 3 || os.Args[2] != "replay" {
			fmt.Fprintln(os.Stderr, "Error: trace command requires subcommand: replay")
			os.Exit(1)
		}
		handleTraceReplay(os.Args[3:])

	case "checkpoint":
		if len(os.Args) < 3 || os.Args[2] != "show" {
			fmt.Fprintln(os.Stderr, "Error: checkpoint command requires subcommand: show")
			os.Exit(1)
		}
		handleCheckpointShow(os.Args[3:])

	case "version":
		fmt.Printf("ais-cli version %s\n", version)

	case "help", "-h", "--help":
		fmt.Print(usage)

	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command: %s\n", command)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

// compileFromFiles loads a workflow document plus zero or more protocol
// documents and compiles them into an executable plan.
func compileFromFiles(workflowPath string, protocolPaths []string) (*documents.Plan, error) {
	if workflowPath == "" {
		return nil, fmt.Errorf("-workflow is required")
	}

	raw, err := os.ReadFile(workflowPath)
	if err != nil {
		return nil, fmt.Errorf("reading workflow file: %w", err)
	}
	wf, err := documents.LoadWorkflowYAML(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing workflow file: %w", err)
	}

	registry := planner.ProtocolRegistry{}
	for _, p := range protocolPaths {
		praw, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("reading protocol file %s: %w", p, err)
		}
		proto, err := documents.LoadProtocolYAML(praw)
		if err != nil {
			return nil, fmt.Errorf("parsing protocol file %s: %w", p, err)
		}
		registry[proto.ID+"@"+proto.Version] = proto
	}

	plan, err := planner.CompileWorkflow(wf, planner.CompileOptions{Protocols: registry})
	if err != nil {
		return nil, fmt.Errorf("compiling workflow: %w", err)
	}
	return plan, nil
}

func handlePlanCompile(args []string) {
	fs := flag.NewFlagSet("plan compile", flag.ExitOnError)
	workflowPath := fs.String("workflow", "", "workflow document YAML")
	protocolFlags := multiFlag{}
	fs.Var(&protocolFlags, "protocol", "protocol document YAML (repeatable)")
	fs.Parse(args)

	plan, err := compileFromFiles(*workflowPath, protocolFlags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("schema: %s\n", plan.Schema)
	fmt.Printf("nodes (%d), in topological order:\n", len(plan.Nodes))
	for _, n := range plan.Nodes {
		fmt.Printf("  %-20s kind=%-10s chain=%-10s deps=%v\n", n.ID, n.Kind, n.Chain, n.Deps)
	}
}

func handlePlanShow(args []string) {
	fs := flag.NewFlagSet("plan show", flag.ExitOnError)
	workflowPath := fs.String("workflow", "", "workflow document YAML")
	protocolFlags := multiFlag{}
	fs.Var(&protocolFlags, "protocol", "protocol document YAML (repeatable)")
	direction := fs.String("direction", "TB", "diagram direction")
	output := fs.String("output", "", "save to file instead of stdout")
	fs.Parse(args)

	plan, err := compileFromFiles(*workflowPath, protocolFlags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	renderer := visualization.NewMermaidRenderer()
	opts := visualization.DefaultRenderOptions()
	opts.Direction = *direction

	diagram, err := renderer.Render(plan, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: rendering plan: %v\n", err)
		os.Exit(1)
	}

	if *output != "" {
		if err := os.WriteFile(*output, []byte(diagram), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "Error: writing output file: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("diagram written to %s\n", *output)
		return
	}
	fmt.Print(diagram)
}

func handlePlanRun(args []string) {
	fs := flag.NewFlagSet("plan run", flag.ExitOnError)
	workflowPath := fs.String("workflow", "", "workflow document YAML")
	protocolFlags := multiFlag{}
	fs.Var(&protocolFlags, "protocol", "protocol document YAML (repeatable)")
	runtimePath := fs.String("runtime", "", "optional JSON file seeding the initial runtime tree")
	dryRun := fs.Bool("dry-run", false, "force every node to simulate")
	redactionMode := fs.String("redaction", "default", "trace redaction mode: default, audit, off")
	traceOut := fs.String("trace-out", "", "write the JSONL event trace to this file")
	checkpointOut := fs.String("checkpoint-out", "", "write the final checkpoint document to this file")
	maxSweeps := fs.Int("max-sweeps", trace.DefaultMaxReplaySteps, "maximum sweeps before giving up")
	untilNode := fs.String("until", "", "stop once this node reaches a terminal status")
	fs.Parse(args)

	plan, err := compileFromFiles(*workflowPath, protocolFlags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *dryRun {
		forceSimulate(plan)
	}

	runtime, err := loadRuntime(*runtimePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	rctx := resolver.WithRuntime(runtime)
	runID := uuid.New().String()
	state := engine.NewRunnerState(runID, plan, rctx)

	router := executor.NewRouter()
	router.Register("default", "evm:*", &executor.EVMCallExecutor{ChainID: "evm"})
	router.Register("default", "solana:*", &executor.SolanaCallExecutor{Cluster: "solana"})
	router.Register("default", "*", executor.Unsupported("no executor registered for this chain"))

	runner := engine.NewRunner(router)

	// run_plan_once performs exactly one sweep per call (spec §4.G); the
	// CLI, like any caller, loops and stops on a terminal status or a
	// repeated paused_reason that no further sweep could resolve without
	// new commands.
	var allEvents []engine.EventRecord
	var report engine.Report
	lastPausedReason := state.PausedReason
	firstSweep := true
	sweeps := 0
	for ; sweeps < *maxSweeps; sweeps++ {
		report = runner.RunPlanOnce(context.Background(), state, nil)
		allEvents = append(allEvents, report.Events...)

		if *untilNode != "" && state.IsCompleted(*untilNode) {
			break
		}
		if report.Status == engine.StatusCompleted || report.Status == engine.StatusStopped {
			break
		}
		if !firstSweep && state.PausedReason != "" && state.PausedReason == lastPausedReason {
			break
		}
		lastPausedReason = state.PausedReason
		firstSweep = false
	}

	performed := sweeps
	if sweeps < *maxSweeps {
		performed++ // left through a break, after sweep number sweeps+1
	}
	fmt.Printf("run %s: status=%s after %d sweep(s)\n", report.RunID, report.Status, performed)
	for _, n := range plan.Nodes {
		fmt.Printf("  %-20s %s\n", n.ID, state.Status(n.ID))
	}
	if reason := state.PausedReason; reason != "" {
		fmt.Fprintf(os.Stderr, "paused_reason: %s\n", reason)
	}

	if *traceOut != "" {
		f, err := os.Create(*traceOut)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: creating trace file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		if err := trace.WriteTraceJSONL(f, allEvents); err != nil {
			fmt.Fprintf(os.Stderr, "Error: writing trace file: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("trace written to %s\n", *traceOut)
	}

	if *checkpointOut != "" {
		mode := parseRedactionMode(*redactionMode)
		doc, err := trace.BuildCheckpoint(state, time.Now(), trace.Redactor{Mode: mode})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: building checkpoint: %v\n", err)
			os.Exit(1)
		}
		raw, err := trace.MarshalCheckpoint(doc)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: marshaling checkpoint: %v\n", err)
			os.Exit(1)
		}
		if err := os.WriteFile(*checkpointOut, raw, 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "Error: writing checkpoint file: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("checkpoint written to %s\n", *checkpointOut)
	}

	if report.Status == engine.StatusPaused && state.PausedReason != "" {
		os.Exit(1)
	}
}

func handleTraceReplay(args []string) {
	fs := flag.NewFlagSet("trace replay", flag.ExitOnError)
	tracePath := fs.String("trace", "", "JSONL event trace to replay")
	fs.Parse(args)

	if *tracePath == "" {
		fmt.Fprintln(os.Stderr, "Error: -trace is required")
		os.Exit(1)
	}

	f, err := os.Open(*tracePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: opening trace file: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	records, err := trace.ReplayTraceJSONL(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: replaying trace: %v\n", err)
		os.Exit(1)
	}

	timelines := trace.ReplayTraceEvents(records)
	for nodeID, tl := range timelines {
		fmt.Printf("%-20s status=%-10s attempts=%d first_event=%s last_event=%s\n",
			nodeID, tl.FinalStatus, tl.Attempts, tl.FirstEventAt.Format(time.RFC3339), tl.LastEventAt.Format(time.RFC3339))
		for _, e := range tl.Errors {
			fmt.Printf("    error: %s\n", e)
		}
	}
}

func handleCheckpointShow(args []string) {
	fs := flag.NewFlagSet("checkpoint show", flag.ExitOnError)
	checkpointPath := fs.String("checkpoint", "", "checkpoint document JSON")
	fs.Parse(args)

	if *checkpointPath == "" {
		fmt.Fprintln(os.Stderr, "Error: -checkpoint is required")
		os.Exit(1)
	}

	raw, err := os.ReadFile(*checkpointPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: reading checkpoint file: %v\n", err)
		os.Exit(1)
	}

	doc, err := trace.UnmarshalCheckpoint(raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: unmarshaling checkpoint: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("run_id: %s\n", doc.RunID)
	fmt.Printf("taken_at: %s\n", doc.TakenAt.Format(time.RFC3339))
	fmt.Printf("plan_schema: %s\n", doc.PlanSchema)
	fmt.Printf("plan_hash: %s\n", doc.PlanHash)
	fmt.Printf("paused_reason: %s\n", doc.PausedReason)
	fmt.Printf("completed nodes (%d):\n", len(doc.CompletedNodeIDs))
	for _, id := range doc.CompletedNodeIDs {
		fmt.Printf("  %s\n", id)
	}
	if len(doc.PendingRetries) > 0 {
		fmt.Printf("pending retries (%d):\n", len(doc.PendingRetries))
		for id, pr := range doc.PendingRetries {
			fmt.Printf("  %-20s attempt=%d waited_ms=%d\n", id, pr.Attempt, pr.WaitedMs)
		}
	}
}

func parseRedactionMode(s string) trace.Mode {
	switch s {
	case "audit":
		return trace.Audit
	case "off":
		return trace.Off
	default:
		return trace.Default
	}
}

func forceSimulate(plan *documents.Plan) {
	for i := range plan.Nodes {
		plan.Nodes[i].Simulate = value.Bool(true)
	}
}

// loadRuntime reads an optional JSON file into the initial runtime
// tree handed to resolver.WithRuntime, defaulting to an empty map.
func loadRuntime(path string) (value.Value, error) {
	if path == "" {
		return value.Map(map[string]value.Value{}), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return value.Value{}, fmt.Errorf("reading runtime file: %w", err)
	}
	var tree interface{}
	if err := json.Unmarshal(raw, &tree); err != nil {
		return value.Value{}, fmt.Errorf("parsing runtime file: %w", err)
	}
	v, err := value.FromInterface(tree)
	if err != nil {
		return value.Value{}, fmt.Errorf("converting runtime file: %w", err)
	}
	return v, nil
}

// multiFlag collects repeated -protocol flags into a slice.
type multiFlag []string

func (m *multiFlag) String() string { return fmt.Sprint([]string(*m)) }
func (m *multiFlag) Set(v string) error {
	*m = append(*m, v)
	return nil
}
