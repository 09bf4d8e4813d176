package main

import (
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"

	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
)

const usageLine = "Usage: customer-batch [-job name] [-restart] [-schedule cron] [--] key=value|-key=value ...\n" +
	"  -key=value is a non-identifying job parameter. It may come before or after the flags\n" +
	"  unless key names a flag; everything after -- is a job parameter.\n"

// commandLine holds the parsed flags and job parameters.
type commandLine struct {
	JobName  string
	Restart  bool
	Schedule string
	Params   model.JobParameters
}

// parseCommandLine parses the flags and job parameters in args, in any order.
// Errors and -h print the usage to output.
func parseCommandLine(args []string, output io.Writer) (commandLine, error) {
	var cl commandLine
	flags := flag.NewFlagSet("customer-batch", flag.ContinueOnError)
	flags.SetOutput(output)
	flags.StringVar(&cl.JobName, "job", "", "job to run (default surfin.batch.job_name)")
	flags.BoolVar(&cl.Restart, "restart", false, "restart the last FAILED or STOPPED execution with these parameters")
	flags.StringVar(&cl.Schedule, "schedule", "", "cron expression; relaunch the job on every tick until interrupted")
	flags.Usage = func() {
		fmt.Fprint(flags.Output(), usageLine)
		flags.PrintDefaults()
	}

	flagArgs, paramArgs := splitArgs(flags, args)
	if err := flags.Parse(flagArgs); err != nil {
		return cl, err
	}
	params, err := parseJobParameters(append(paramArgs, flags.Args()...))
	if err != nil {
		fmt.Fprintln(flags.Output(), err)
		flags.Usage()
		return cl, err
	}
	cl.Params = params
	return cl, nil
}

// splitArgs separates the flag arguments from the job parameters. The flag package
// stops at the first argument that is not a flag, so a -key=value parameter could not
// otherwise follow key=value. An argument starting with '-' is a flag when its name
// is defined in flags or it has no value.
func splitArgs(flags *flag.FlagSet, args []string) (flagArgs, paramArgs []string) {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			return flagArgs, append(paramArgs, args[i+1:]...)
		}
		if !strings.HasPrefix(arg, "-") {
			paramArgs = append(paramArgs, arg)
			continue
		}
		name, _, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		f := flags.Lookup(name)
		if f == nil && hasValue {
			paramArgs = append(paramArgs, arg)
			continue
		}
		// Unknown flags without a value are left for Parse to report.
		flagArgs = append(flagArgs, arg)
		if f != nil && !hasValue && !isBoolFlag(f) && i+1 < len(args) {
			i++
			flagArgs = append(flagArgs, args[i])
		}
	}
	return flagArgs, paramArgs
}

func isBoolFlag(f *flag.Flag) bool {
	b, ok := f.Value.(interface{ IsBoolFlag() bool })
	return ok && b.IsBoolFlag()
}

// parseJobParameters turns key=value arguments into job parameters. Integers become
// int64 and true/false become bool; anything else stays a string. A key prefixed
// with '-' is non-identifying.
func parseJobParameters(args []string) (model.JobParameters, error) {
	params := model.NewJobParameters()
	for _, arg := range args {
		key, raw, ok := strings.Cut(arg, "=")
		if !ok {
			return params, fmt.Errorf("job parameter '%s' is not of the form key=value", arg)
		}
		identifying := true
		if strings.HasPrefix(key, "-") {
			key, identifying = strings.TrimPrefix(key, "-"), false
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return params, fmt.Errorf("job parameter '%s' has an empty key", arg)
		}

		value := parseValue(raw)
		if identifying {
			params = params.With(key, value)
		} else {
			params = params.WithNonIdentifying(key, value)
		}
	}
	return params, nil
}

func parseValue(raw string) interface{} {
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n
	}
	switch raw {
	case "true":
		return true
	case "false":
		return false
	}
	return raw
}
