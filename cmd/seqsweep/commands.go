package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/seqsweep/internal/api"
	"github.com/banshee-data/seqsweep/internal/compiler"
	"github.com/banshee-data/seqsweep/internal/compilesvc"
	"github.com/banshee-data/seqsweep/internal/config"
	"github.com/banshee-data/seqsweep/internal/db"
	"github.com/banshee-data/seqsweep/internal/fsutil"
	"github.com/banshee-data/seqsweep/internal/monitoring"
	"github.com/banshee-data/seqsweep/internal/plot"
	"github.com/banshee-data/seqsweep/internal/streamfeed"
	"github.com/banshee-data/seqsweep/internal/sweep"
	"github.com/banshee-data/seqsweep/internal/version"
)

// fsys is replaced in tests.
var fsys fsutil.FileSystem = fsutil.OSFileSystem{}

func loadDefinition(path string) (*config.SweepDefinition, error) {
	if path == "" {
		return nil, fmt.Errorf("-config is required")
	}
	return config.Load(fsys, path)
}

func runCompile(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("compile", flag.ContinueOnError)
	fs.SetOutput(stdout)
	cfgPath := fs.String("config", config.ExampleConfigPath, "Sweep definition JSON file")
	asJSON := fs.Bool("json", false, "Print the plan as JSON instead of the program listing")
	outDir := fs.String("out", "", "Write program.txt and plan.json to this directory")
	dbPath := fs.String("db", "", "Store the plan in this database")
	remote := fs.String("remote", "", "Compile on a seqsweep gRPC server at this address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	def, err := loadDefinition(*cfgPath)
	if err != nil {
		return err
	}

	var plan *compiler.Plan
	if *remote != "" {
		client, err := compilesvc.NewClient(*remote)
		if err != nil {
			return err
		}
		defer client.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		var id string
		plan, id, err = client.Compile(ctx, def)
		if err != nil {
			return err
		}
		if id != "" {
			fmt.Fprintf(stdout, "stored remotely as %s\n", id)
		}
	} else {
		res, err := compiler.Compile(def)
		if err != nil {
			return err
		}
		plan = res.Plan
	}

	planJSON, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return err
	}
	if *outDir != "" {
		if _, err := fsutil.WriteArtifact(fsys, *outDir, "program.txt", []byte(plan.Program)); err != nil {
			return err
		}
		if _, err := fsutil.WriteArtifact(fsys, *outDir, "plan.json", planJSON); err != nil {
			return err
		}
	}
	if *dbPath != "" {
		database, err := db.NewDB(*dbPath)
		if err != nil {
			return err
		}
		defer database.Close()
		id, err := database.InsertPlan(def, plan)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "stored plan %s\n", id)
	}

	if *asJSON {
		fmt.Fprintln(stdout, string(planJSON))
		return nil
	}
	printPlan(stdout, plan)
	return nil
}

func printPlan(w io.Writer, plan *compiler.Plan) {
	fmt.Fprintf(w, "sequence %s: shape %v, %d iterations, %s\n", plan.Sequence, plan.Shape, plan.Size, plan.StreamMode)
	for _, a := range plan.Axes {
		line := fmt.Sprintf("  axis %d: %-14s len=%-4d %s", a.Index, a.Strategy, a.Length, strings.Join(a.Parameters, ", "))
		if a.Progression != nil {
			line += fmt.Sprintf(" (start=%g step=%g stop=%g, %d words saved)",
				a.Progression.Start, a.Progression.Step, a.Progression.Stop, a.WordsSaved)
		}
		fmt.Fprintln(w, line)
	}
	for _, s := range plan.InputStreams {
		fmt.Fprintf(w, "  input stream %s size=%d\n", s.Name, s.Size)
	}
	for _, g := range plan.Gettables {
		fmt.Fprintf(w, "  gettable %s can_resume=%v\n", g.Name, g.CanResume)
	}
	for _, warn := range plan.Warnings {
		fmt.Fprintf(w, "  warning: %s\n", warn)
	}
	fmt.Fprint(w, plan.Program)
}

func runPlot(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("plot", flag.ContinueOnError)
	fs.SetOutput(stdout)
	cfgPath := fs.String("config", config.ExampleConfigPath, "Sweep definition JSON file")
	outDir := fs.String("out", "plots", "Output directory")
	html := fs.Bool("html", true, "Also write setpoints.html")
	if err := fs.Parse(args); err != nil {
		return err
	}

	def, err := loadDefinition(*cfgPath)
	if err != nil {
		return err
	}
	seq, err := compiler.Build(def)
	if err != nil {
		return err
	}
	series := plot.SeriesFromSet(seq.Sweeps())
	paths, err := plot.WriteSetpointPlots(fsys, *outDir, series)
	if err != nil {
		return err
	}
	if *html {
		page, err := plot.SetpointsHTML(def.Sequence+" setpoints", series)
		if err != nil {
			return err
		}
		p, err := fsutil.WriteArtifact(fsys, *outDir, "setpoints.html", page)
		if err != nil {
			return err
		}
		paths = append(paths, p)
	}
	for _, p := range paths {
		fmt.Fprintln(stdout, p)
	}
	return nil
}

func runPlans(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("plans", flag.ContinueOnError)
	fs.SetOutput(stdout)
	dbPath := fs.String("db", defaultDB, "Plan database")
	seqName := fs.String("sequence", "", "Only list plans of this sequence")
	limit := fs.Int("limit", 20, "Maximum number of plans to list")
	if err := fs.Parse(args); err != nil {
		return err
	}

	database, err := db.NewDB(*dbPath)
	if err != nil {
		return err
	}
	defer database.Close()

	action := "list"
	if fs.NArg() > 0 {
		action = fs.Arg(0)
	}
	switch action {
	case "list":
		plans, err := database.ListPlans(*seqName, *limit)
		if err != nil {
			return err
		}
		for _, p := range plans {
			fmt.Fprintf(stdout, "%s  %s  %-12s shape=%v size=%d warnings=%d\n",
				p.ID, p.CreatedAt.Format(time.RFC3339), p.Sequence, p.Shape, p.SweepSize, p.Warnings)
		}
		return nil
	case "show":
		if fs.NArg() < 2 {
			return fmt.Errorf("usage: seqsweep plans show <id>")
		}
		rec, err := database.GetPlan(fs.Arg(1))
		if err != nil {
			return err
		}
		printPlan(stdout, rec.Plan)
		return nil
	case "delete":
		if fs.NArg() < 2 {
			return fmt.Errorf("usage: seqsweep plans delete <id>")
		}
		if err := database.DeletePlan(fs.Arg(1)); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "deleted %s\n", fs.Arg(1))
		return nil
	default:
		return fmt.Errorf("unknown plans action %q (list, show, delete)", action)
	}
}

func runMigrate(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(stdout)
	dbPath := fs.String("db", defaultDB, "Plan database")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return db.RunMigrateCommand(fs.Args(), *dbPath, stdout)
}

func runServe(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stdout)
	listen := fs.String("listen", defaultListen, "gRPC listen address")
	httpAddr := fs.String("http", "", "Also serve the HTTP plans API on this address")
	dbPath := fs.String("db", "", "Store compiled plans in this database")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *listen == "" {
		return fmt.Errorf("listen address is required")
	}

	var database *db.DB
	var store compilesvc.PlanStore
	if *dbPath != "" {
		var err error
		database, err = db.NewDB(*dbPath)
		if err != nil {
			return err
		}
		defer database.Close()
		store = database
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		wg      sync.WaitGroup
		httpErr error
	)
	if *httpAddr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if httpErr = api.NewServer(database).ListenAndServe(ctx, *httpAddr); httpErr != nil {
				stop()
			}
		}()
	}
	err := compilesvc.Serve(ctx, *listen, compilesvc.NewServer(store))
	stop()
	wg.Wait()
	return errors.Join(err, httpErr)
}

// streamValues collects repeated -values stream=spec flags.
type streamValues map[string]string

func (v streamValues) String() string {
	parts := make([]string, 0, len(v))
	for k, s := range v {
		parts = append(parts, k+"="+s)
	}
	return strings.Join(parts, " ")
}

func (v streamValues) Set(s string) error {
	name, spec, ok := strings.Cut(s, "=")
	if !ok || name == "" || spec == "" {
		return fmt.Errorf("expected stream=values, got %q", s)
	}
	v[name] = spec
	return nil
}

func runFeed(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("feed", flag.ContinueOnError)
	fs.SetOutput(stdout)
	cfgPath := fs.String("config", "", "Sweep definition JSON file with streamed axes")
	port := fs.String("port", "/dev/ttyUSB0", "Serial port of the sequencer host")
	baud := fs.Int("baud", 115200, "Baud rate")
	values := streamValues{}
	fs.Var(values, "values", "Values for a stream as name=start:stop:step or name=v1,v2,... (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	def, err := loadDefinition(*cfgPath)
	if err != nil {
		return err
	}
	res, err := compiler.Compile(def)
	if err != nil {
		return err
	}
	if len(res.Program.InputStreams) == 0 {
		return fmt.Errorf("%s declares no input streams", def.Sequence)
	}

	serialPort, err := streamfeed.OpenSerial(*port, streamfeed.PortOptions{BaudRate: *baud})
	if err != nil {
		return err
	}
	feeder := streamfeed.NewFeeder(serialPort, res.Program.InputStreams...)
	defer feeder.Close()
	if err := enqueueValues(feeder, values); err != nil {
		return err
	}
	for name, size := range feeder.Streams() {
		fmt.Fprintf(stdout, "feeding %s (size %d, %d chunks queued)\n", name, size, feeder.Pending(name))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := feeder.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	monitoring.Logf("feed terminated")
	return nil
}

func enqueueValues[T streamfeed.Port](f *streamfeed.Feeder[T], values streamValues) error {
	for name, spec := range values {
		vals, err := sweep.ParseValueList(spec)
		if err != nil {
			return fmt.Errorf("values of %s: %w", name, err)
		}
		if err := f.EnqueueAll(name, vals); err != nil {
			return err
		}
	}
	return nil
}

func runVersion(stdout io.Writer) error {
	fmt.Fprintln(stdout, version.String())
	return nil
}
