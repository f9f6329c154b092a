// Package config loads ntpsync settings from an ntp.conf style file or YAML.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/AndrewLester/ntpsync/pkg/ntp"
	"github.com/AndrewLester/ntpsync/pkg/tz"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPath      = "/etc/ntpsync.conf"
	DefaultStateFile = "/var/lib/ntpsync/state.db"
	DefaultTimeoutMs = 5000
)

var ErrParse = errors.New("config parse error")

type Server struct {
	Host string `yaml:"host"`
	Port uint16 `yaml:"port"`
}

type Config struct {
	Servers   []Server `yaml:"servers"`
	TimeZone  string   `yaml:"timezone"`
	AutoSync  uint32   `yaml:"autosync"` // seconds, 0 disables
	TimeoutMs int      `yaml:"timeout"`
	LocalPort int      `yaml:"localport"`
	StateFile string   `yaml:"statefile"`
	TOS       int      `yaml:"tos"`
	TTL       int      `yaml:"ttl"`
	DryRun    bool     `yaml:"dryrun"`
}

func Default() Config {
	return Config{
		TimeZone:  "UTC",
		TimeoutMs: DefaultTimeoutMs,
		StateFile: DefaultStateFile,
	}
}

func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// Rule resolves the configured timezone name.
func (c Config) Rule() (tz.Rule, error) {
	rule, ok := tz.Lookup(c.TimeZone)
	if !ok {
		return tz.Rule{}, fmt.Errorf("%w: unknown timezone %q", ErrParse, c.TimeZone)
	}
	return rule, nil
}

func (c Config) Validate() error {
	for _, server := range c.Servers {
		if server.Host == "" {
			return fmt.Errorf("%w: server with empty host", ErrParse)
		}
	}
	if _, err := c.Rule(); err != nil {
		return err
	}
	if c.TimeoutMs <= 0 {
		return fmt.Errorf("%w: timeout must be positive", ErrParse)
	}
	if c.LocalPort < 0 || c.LocalPort > 65535 {
		return fmt.Errorf("%w: localport %d out of range", ErrParse, c.LocalPort)
	}
	if c.TOS < 0 || c.TOS > 255 {
		return fmt.Errorf("%w: tos %d out of range", ErrParse, c.TOS)
	}
	if c.TTL < 0 || c.TTL > 255 {
		return fmt.Errorf("%w: ttl %d out of range", ErrParse, c.TTL)
	}
	return nil
}

// Load reads path, choosing the YAML decoder for .yaml and .yml files.
func Load(path string) (Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer file.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(file)
	default:
		return Parse(file)
	}
}

func ParseYAML(r io.Reader) (Config, error) {
	config := Default()
	if err := yaml.NewDecoder(r).Decode(&config); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	for i := range config.Servers {
		if config.Servers[i].Port == 0 {
			config.Servers[i].Port = ntp.Port
		}
	}
	return config, config.Validate()
}

// Parse reads the line format:
//
//	server <host> [port N]
//	timezone <name>
//	autosync <seconds>
//	timeout <ms>
//	localport <N>
//	statefile <path>
//	tos <N>
//	ttl <N>
//	dryrun
func Parse(r io.Reader) (Config, error) {
	config := Default()

	scanner := bufio.NewScanner(r)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		arguments := strings.Fields(scanner.Text())
		if len(arguments) == 0 || strings.HasPrefix(arguments[0], "#") {
			continue
		}

		if err := parseLine(&config, arguments); err != nil {
			return Config{}, fmt.Errorf("line %d: %w", lineNumber, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return Config{}, err
	}
	return config, config.Validate()
}

func parseLine(config *Config, arguments []string) error {
	command := arguments[0]

	switch command {
	case "server":
		if len(arguments) < 2 {
			return parseError("missing required argument \"address\"")
		}
		port, err := integerArgument("port", ntp.Port, &arguments)
		if err != nil {
			return err
		}
		if port <= 0 || port > 65535 {
			return parseError("port out of range: ", port)
		}
		if len(arguments) > 2 {
			return parseError("invalid arguments supplied to command. One was: \"", arguments[2], "\"")
		}
		config.Servers = append(config.Servers, Server{Host: arguments[1], Port: uint16(port)})
	case "timezone", "statefile":
		if len(arguments) != 2 {
			return parseError(command, " takes exactly one argument")
		}
		if command == "timezone" {
			config.TimeZone = arguments[1]
		} else {
			config.StateFile = arguments[1]
		}
	case "autosync", "timeout", "localport", "tos", "ttl":
		if len(arguments) != 2 {
			return parseError(command, " takes exactly one argument")
		}
		value, err := strconv.Atoi(arguments[1])
		if err != nil || value < 0 {
			return parseError(command, " requires a non-negative integer value")
		}
		switch command {
		case "autosync":
			config.AutoSync = uint32(value)
		case "timeout":
			config.TimeoutMs = value
		case "localport":
			config.LocalPort = value
		case "tos":
			config.TOS = value
		case "ttl":
			config.TTL = value
		}
	case "dryrun":
		config.DryRun = true
	default:
		return parseError("invalid command: ", command)
	}
	return nil
}

func integerArgument(name string, initial int, arguments *[]string) (int, error) {
	valueStr, err := stringArgument(name, strconv.Itoa(initial), arguments)
	if err != nil {
		return 0, err
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, parseError(name, " argument requires an integer value")
	}
	return value, nil
}

func stringArgument(name string, initial string, arguments *[]string) (string, error) {
	for i, argument := range *arguments {
		if name == argument {
			if i == len(*arguments)-1 {
				return "", parseError("no value supplied for argument: ", argument)
			}

			value := (*arguments)[i+1]
			*arguments = append((*arguments)[:i:i], (*arguments)[i+2:]...)
			return value, nil
		}
	}
	return initial, nil
}

func parseError(args ...any) error {
	return fmt.Errorf("%w: %s", ErrParse, fmt.Sprint(args...))
}
