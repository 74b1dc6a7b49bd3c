package main

import (
	"flag"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/abelbrown/iasi/internal/config"
)

func runConfig(args []string) error {
	fs := flag.NewFlagSet("config", flag.ExitOnError)
	write := fs.Bool("write", false, "Write the effective configuration to the config file")
	fs.Parse(args)

	e, err := setup("config")
	if err != nil {
		return err
	}
	defer e.close("config")

	if *write {
		path := config.Path(e.cfg.DataDir)
		if err := e.cfg.Save(path); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", path)
		return nil
	}
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(e.cfg)
}
