package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"
	"github.com/posener/complete/v2"
	"github.com/posener/complete/v2/predict"

	"github.com/etnz/portfolio-tracker/cmd"
)

func main() {
	name := path.Base(os.Args[0])
	commander := subcommands.NewCommander(flag.CommandLine, name)
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	cmd.Register(commander)

	completion(commander).Complete(name)

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}

// completion describes the commands and their flags for shell completion.
// It is installed with COMP_INSTALL=1 pcs.
func completion(commander *subcommands.Commander) *complete.Command {
	root := &complete.Command{
		Sub:   map[string]*complete.Command{},
		Flags: flags(flag.CommandLine),
	}
	root.Flags["db"] = predict.Files("*.db")
	commander.VisitCommands(func(_ *subcommands.CommandGroup, c subcommands.Command) {
		f := flag.NewFlagSet(c.Name(), flag.ContinueOnError)
		c.SetFlags(f)
		sub := &complete.Command{Flags: flags(f)}
		if c.Name() == "import-prices" {
			sub.Args = predict.Files("*.json")
		}
		if c.Name() == "declare" {
			sub.Flags["type"] = predict.Set{"stock", "etf", "reit", "other"}
		}
		root.Sub[c.Name()] = sub
	})
	return root
}

// flags predicts a value for every flag of f but the boolean ones.
func flags(f *flag.FlagSet) map[string]complete.Predictor {
	res := map[string]complete.Predictor{}
	f.VisitAll(func(fl *flag.Flag) {
		if b, ok := fl.Value.(interface{ IsBoolFlag() bool }); ok && b.IsBoolFlag() {
			res[fl.Name] = predict.Nothing
			return
		}
		res[fl.Name] = predict.Something
	})
	return res
}
