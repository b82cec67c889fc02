package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/askrelay/daemon/internal/daemon"
)

var version = "dev"

func main() {
	dir := flag.String("dir", "", "Path to config directory (default ~/.askrelay)")
	showVersion := flag.Bool("version", false, "Show version")
	flag.Parse()

	if *showVersion {
		fmt.Printf("askrelayd version %s\n", version)
		os.Exit(0)
	}

	configDir := *dir
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot determine home directory: %v\n", err)
			os.Exit(1)
		}
		configDir = filepath.Join(home, ".askrelay")
	}

	d, err := daemon.New(configDir, version)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := d.Run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
