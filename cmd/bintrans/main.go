package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/KetchuppOfficial/Binary-Translator/pkg/bytecode"
	"github.com/KetchuppOfficial/Binary-Translator/pkg/codecache"
	"github.com/KetchuppOfficial/Binary-Translator/pkg/jit"
	"github.com/KetchuppOfficial/Binary-Translator/pkg/ram"
)

// Config represents the configuration loaded from the JSON file
type Config struct {
	CacheDir   string `json:"cache_dir"`   // Translation cache directory, empty disables caching
	CachePrune bool   `json:"cache_prune"` // Drop cache entries of other catalog versions
	RAMBase    uint64 `json:"ram_base"`    // Address of the data window
	RAMSize    int    `json:"ram_size"`    // Size of the data window in bytes
	Listing    string `json:"listing"`     // Native listing output file
	Output     string `json:"output"`      // Raw image output file; skips execution
	Verbose    bool   `json:"verbose"`

	List bool `json:"-"` // Print the bytecode listing and exit
}

func defaultConfig() Config {
	return Config{
		RAMBase: ram.DefaultBase,
		RAMSize: ram.DefaultSize,
	}
}

// parseArgs builds the configuration from the command line. Values from
// -config-path are read first; flags given explicitly override them.
func parseArgs(args []string) (Config, string, error) {
	fs := flag.NewFlagSet("bintrans", flag.ContinueOnError)
	configPath := fs.String("config-path", "", "Path to a JSON configuration file")
	cacheDir := fs.String("cache-dir", "", "Directory of the translation cache")
	cachePrune := fs.Bool("cache-prune", false, "Remove cache entries made by other catalog versions")
	list := fs.Bool("list", false, "Print the bytecode listing and exit")
	listing := fs.String("listing", "", "Write the native listing to this file")
	output := fs.String("o", "", "Write the native image to this file instead of running it")
	ramBase := fs.Uint64("ram-base", ram.DefaultBase, "Address of the data window")
	ramSize := fs.Int("ram-size", ram.DefaultSize, "Size of the data window in bytes")
	verbose := fs.Bool("verbose", false, "Log translation progress")

	if err := fs.Parse(args); err != nil {
		return Config{}, "", err
	}

	config := defaultConfig()
	if *configPath != "" {
		configData, err := os.ReadFile(*configPath)
		if err != nil {
			return Config{}, "", fmt.Errorf("failed to read config file: %w", err)
		}
		if err := json.Unmarshal(configData, &config); err != nil {
			return Config{}, "", fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "cache-dir":
			config.CacheDir = *cacheDir
		case "cache-prune":
			config.CachePrune = *cachePrune
		case "listing":
			config.Listing = *listing
		case "o":
			config.Output = *output
		case "ram-base":
			config.RAMBase = *ramBase
		case "ram-size":
			config.RAMSize = *ramSize
		case "verbose":
			config.Verbose = *verbose
		}
	})
	config.List = *list

	if fs.NArg() != 1 {
		return Config{}, "", fmt.Errorf("expected exactly one bytecode file, got %d arguments", fs.NArg())
	}
	return config, fs.Arg(0), nil
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

// run executes one invocation. Every resource it opens is released before
// it returns, on success and on failure.
func run(args []string, stdout io.Writer) error {
	config, path, err := parseArgs(args)
	if err != nil {
		return err
	}

	code, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read bytecode: %w", err)
	}

	if config.List {
		text, err := bytecode.Disassemble(code)
		if err != nil {
			return fmt.Errorf("failed to list bytecode: %w", err)
		}
		_, err = io.WriteString(stdout, text)
		return err
	}

	opts := jit.Options{Verbose: config.Verbose}
	if config.CacheDir != "" {
		cache, err := codecache.Open(config.CacheDir)
		if err != nil {
			return fmt.Errorf("failed to open translation cache: %w", err)
		}
		defer cache.Close()

		if config.CachePrune {
			removed, err := cache.Prune(jit.Fingerprint())
			if err != nil {
				return fmt.Errorf("failed to prune translation cache: %w", err)
			}
			log.Printf("Pruned %d stale cache entries", removed)
		}
		opts.Cache = cache
	}

	session, err := jit.NewSession(code, opts)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	defer session.Close()

	if err := session.Translate(); err != nil {
		return fmt.Errorf("translation failed: %w", err)
	}
	stats := session.Stats()
	if config.Verbose {
		log.Printf("Translated %d bytes of bytecode into %d native bytes (%d instructions, %d relocations, cache hit %v)",
			stats.SourceLen, stats.NativeLen, stats.Instructions, stats.Relocations, stats.CacheHit)
	}

	if config.Listing != "" {
		text, err := session.Listing()
		if err != nil {
			return fmt.Errorf("failed to disassemble native code: %w", err)
		}
		if err := os.WriteFile(config.Listing, []byte(text), 0o644); err != nil {
			return fmt.Errorf("failed to write listing: %w", err)
		}
	}

	if config.Output != "" {
		if err := os.WriteFile(config.Output, session.Image(), 0o644); err != nil {
			return fmt.Errorf("failed to write native image: %w", err)
		}
		log.Printf("Wrote %d native bytes to %s", stats.NativeLen, config.Output)
		return nil
	}

	window, err := ram.Map(config.RAMBase, config.RAMSize)
	if err != nil {
		return fmt.Errorf("failed to map data window: %w", err)
	}
	defer window.Unmap()

	if err := session.Run(); err != nil {
		return fmt.Errorf("execution failed: %w", err)
	}
	return nil
}
