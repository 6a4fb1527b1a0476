package main

import (
	"io"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/wikiwriter/config"
)

func main() {
	var cfgPath string
	var root = &cobra.Command{
		Use:           "wikiwriter",
		Short:         "Generate encyclopedia-style articles with a staged LLM crew",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config.json)")

	root.AddCommand(serveCMD(&cfgPath), generateCMD(&cfgPath))
	if err := root.Execute(); err != nil {
		log.Printf("error: %v", err)
		os.Exit(1)
	}
}

// configureLogging must run before any component logger is created: they
// capture log.Writer() at construction.
func configureLogging(general config.GeneralConfig) {
	switch strings.ToLower(general.LogLevel) {
	case "off", "silent", "none":
		log.SetOutput(io.Discard)
	}
	if general.Debug {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}
}
