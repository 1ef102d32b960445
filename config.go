package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	bind           string
	database       string
	hostGrace      time.Duration
	maxPlayers     int
	maxRooms       int
	maxScore       int
	port           int
	prefix         string
	profile        bool
	sessionTimeout time.Duration
	songs          string
	tlsCert        string
	tlsKey         string
	verbose        bool
	version        bool
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.maxPlayers < 1 {
		return fmt.Errorf("invalid player limit (must be at least 1): %d", c.maxPlayers)
	}
	if c.maxRooms < 0 {
		return fmt.Errorf("invalid room limit (must be 0 or greater): %d", c.maxRooms)
	}
	if c.maxScore < 1 {
		return fmt.Errorf("invalid winning score (must be at least 1): %d", c.maxScore)
	}
	if c.hostGrace <= 0 {
		return fmt.Errorf("invalid host grace period (must be positive): %s", c.hostGrace)
	}
	if c.sessionTimeout <= 0 {
		return fmt.Errorf("invalid session timeout (must be positive): %s", c.sessionTimeout)
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("BEATGUESSR")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "beatguessr...",
		Short:         "A browser-based music trivia party game, with a realtime multiplayer buzzer mode.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: BEATGUESSR_BIND)")
	fs.StringVar(&cfg.database, "database", "beatguessr.db", "path to the song library database (env: BEATGUESSR_DATABASE)")
	fs.DurationVar(&cfg.hostGrace, "host-grace", 2*time.Minute, "time a buzzer room survives after its host disconnects (env: BEATGUESSR_HOST_GRACE)")
	fs.IntVar(&cfg.maxPlayers, "max-players", 8, "maximum players per buzzer room (env: BEATGUESSR_MAX_PLAYERS)")
	fs.IntVar(&cfg.maxRooms, "max-rooms", 0, "maximum concurrent buzzer rooms, 0 for unlimited (env: BEATGUESSR_MAX_ROOMS)")
	fs.IntVar(&cfg.maxScore, "max-score", 10, "default winning score for buzzer rooms (env: BEATGUESSR_MAX_SCORE)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: BEATGUESSR_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: BEATGUESSR_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: BEATGUESSR_PROFILE)")
	fs.DurationVar(&cfg.sessionTimeout, "session-timeout", 60*time.Minute, "time before idle buzzer rooms are ended (env: BEATGUESSR_SESSION_TIMEOUT)")
	fs.StringVar(&cfg.songs, "songs", "", "path to a songs.json file to import into the library at startup (env: BEATGUESSR_SONGS)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: BEATGUESSR_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: BEATGUESSR_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: BEATGUESSR_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: BEATGUESSR_VERSION)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("beatguessr v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
