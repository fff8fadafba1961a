package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"

	yml "gopkg.in/yaml.v2"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "scopesync.yml"

	// EnvPrefix marks environment variables that override the config file,
	// e.g. SCOPESYNC_RESOURCE=192.168.1.20:5025
	EnvPrefix = "SCOPESYNC_"
	k         = koanf.New(".")
)

func setupconfig() {
	k.Load(structs.Provider(DefaultConfig(), "koanf"), nil)
	if err := k.Load(file.Provider(ConfigFileName), yaml.Parser()); err != nil {
		errtxt := err.Error()
		if !strings.Contains(errtxt, "no such") { // file missing, who cares
			log.Fatalf("error loading config: %v", err)
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey(k.Keys())), nil); err != nil {
		log.Fatalf("error loading environment: %v", err)
	}
}

// envKey maps SCOPESYNC_POLLINTERVAL onto the PollInterval key, matching
// case-insensitively against the known keys
func envKey(keys []string) func(string) string {
	known := map[string]string{}
	for _, key := range keys {
		known[strings.ToLower(key)] = key
	}
	return func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		if key, ok := known[s]; ok {
			return key
		}
		return s
	}
}

func root() {
	str := `scopesync keeps a Rohde & Schwarz oscilloscope in sync with a set of
process variables served over HTTP, and publishes the waveforms it acquires
each time the scope triggers.

Usage:
	scopesync <command>

Commands:
	run
	help
	mkconf
	conf
	version`
	fmt.Println(str)
}

func help() {
	str := `scopesync is amenable to configuration via its .yaml file.  For a primer on YAML, see
https://yaml.org/start.html

Use mkconf to write the defaults to scopesync.yml, then edit it.  Any key may
be overridden from the environment with the SCOPESYNC_ prefix, for example
SCOPESYNC_RESOURCE=192.168.1.20:5025 or SCOPESYNC_VERBOSITY=2.

Resource is host:port for LAN (SCPI raw socket, port 5025 on most R&S scopes)
or a device path such as /dev/ttyUSB0 with Serial: true.

Durations are written like 1s or 250ms.

Once running, every variable is served under <Prefix>/pv.  POST
{"value": "Start"} to <Prefix>/pv/server to begin acquiring.`
	fmt.Println(str)
}

func mkconf() {
	c := Config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	f, err := os.Create(ConfigFileName)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	err = yml.NewEncoder(f).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func printconf() {
	c := Config{}
	k.Unmarshal("", &c)
	err := yml.NewEncoder(os.Stdout).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func pversion() {
	fmt.Printf("scopesync version %v\n", Version)
}

func main() {
	var cmd string
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	setupconfig()
	cmd = args[1]
	cmd = strings.ToLower(cmd)
	switch cmd {
	case "help":
		help()
		return
	case "mkconf":
		mkconf()
		return
	case "conf":
		printconf()
		return
	case "run":
		c := Config{}
		if err := k.Unmarshal("", &c); err != nil {
			log.Fatal(err)
		}
		os.Exit(run(c))
	case "version":
		pversion()
		return
	default:
		log.Fatal("unknown command")
	}
}
