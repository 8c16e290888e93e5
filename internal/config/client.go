package config

import (
	"errors"
	"flag"
	"path/filepath"
	"time"
)

// Client configures cmd/cli.
type Client struct {
	Server     string        `yaml:"server"`
	CACert     string        `yaml:"ca_cert"`
	Insecure   bool          `yaml:"insecure"`
	Plaintext  bool          `yaml:"plaintext"`
	DataDir    string        `yaml:"data_dir"`
	RPCTimeout time.Duration `yaml:"rpc_timeout"`
	AutoLogin  bool          `yaml:"auto_login"`
	Workers    int           `yaml:"workers"`
	Debug      bool          `yaml:"debug"`
	// FederatedAssertion is the broker-signed token used by login-federated.
	FederatedAssertion string `yaml:"federated_assertion"`

	// PurchaseBatch bounds movie ids per checkout call. Keep it at or below
	// the server's max_batch.
	PurchaseBatch int `yaml:"purchase_batch"`

	TMDB struct {
		APIKey    string        `yaml:"api_key"`
		BaseURL   string        `yaml:"base_url"`
		ListTTL   time.Duration `yaml:"list_ttl"`
		DetailTTL time.Duration `yaml:"detail_ttl"`
	} `yaml:"tmdb"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
}

// DefaultClient returns the built-in CLI defaults.
func DefaultClient(env Lookup) Client {
	c := Client{
		Server:     "localhost:8443",
		DataDir:    DefaultDataDir(env),
		RPCTimeout: 30 * time.Second,
		Workers:    4,

		PurchaseBatch: 100,
	}
	c.TMDB.BaseURL = "https://api.themoviedb.org/3"
	c.TMDB.ListTTL = 10 * time.Minute
	c.TMDB.DetailTTL = time.Hour
	return c
}

// LoadClient layers defaults, YAML, environment and args. It returns the
// arguments left after global flags, i.e. the subcommand and its flags.
func LoadClient(args []string, env Lookup) (*Client, []string, error) {
	cfg, rest, err := load("cinecart", args, env, DefaultClient(env), bindClient, clientEnv)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, rest, nil
}

// Validate checks required settings.
func (c *Client) Validate() error {
	switch {
	case c.Server == "":
		return errors.New("server address is required")
	case c.DataDir == "":
		return errors.New("data dir is required")
	case c.RPCTimeout <= 0:
		return errors.New("rpc timeout must be positive")
	case c.PurchaseBatch <= 0:
		return errors.New("purchase batch must be positive")
	}
	return nil
}

// CachePath is the SQLite file holding the durable session.
func (c *Client) CachePath() string { return filepath.Join(c.DataDir, "session.db") }

// LogPath is the rotating CLI log file.
func (c *Client) LogPath() string { return filepath.Join(c.DataDir, "cinecart.log") }

func bindClient(fs *flag.FlagSet, c *Client) *string {
	path := fs.String("config", "", "YAML config file")
	fs.StringVar(&c.Server, "addr", c.Server, "server addr")
	fs.StringVar(&c.CACert, "cacert", c.CACert, "CA cert (PEM)")
	fs.BoolVar(&c.Insecure, "insecure", c.Insecure, "skip cert verify (dev)")
	fs.BoolVar(&c.Plaintext, "plaintext", c.Plaintext, "connect without TLS (dev)")
	fs.StringVar(&c.DataDir, "data-dir", c.DataDir, "local cache and log directory")
	fs.DurationVar(&c.RPCTimeout, "timeout", c.RPCTimeout, "per-command timeout")
	fs.BoolVar(&c.AutoLogin, "auto-login", c.AutoLogin, "sign in right after registration")
	fs.BoolVar(&c.Debug, "debug", c.Debug, "verbose development logging")
	fs.StringVar(&c.TMDB.APIKey, "tmdb-key", c.TMDB.APIKey, "TMDB API key")
	fs.StringVar(&c.Redis.Addr, "redis", c.Redis.Addr, "Redis address for catalog caching (optional)")
	return path
}

func clientEnv(r *envReader, c *Client) {
	r.str("CINECART_SERVER", &c.Server)
	r.str("CINECART_CA_CERT", &c.CACert)
	r.boolean("CINECART_INSECURE", &c.Insecure)
	r.boolean("CINECART_PLAINTEXT", &c.Plaintext)
	r.str("CINECART_DATA_DIR", &c.DataDir)
	r.duration("CINECART_RPC_TIMEOUT", &c.RPCTimeout)
	r.boolean("CINECART_AUTO_LOGIN", &c.AutoLogin)
	r.integer("CINECART_WORKERS", &c.Workers)
	r.integer("CINECART_PURCHASE_BATCH", &c.PurchaseBatch)
	r.boolean("CINECART_DEBUG", &c.Debug)
	r.str("CINECART_FEDERATED_ASSERTION", &c.FederatedAssertion)
	r.str("TMDB_API_KEY", &c.TMDB.APIKey)
	r.str("CINECART_TMDB_API_KEY", &c.TMDB.APIKey)
	r.str("CINECART_TMDB_BASE_URL", &c.TMDB.BaseURL)
	r.duration("CINECART_TMDB_LIST_TTL", &c.TMDB.ListTTL)
	r.duration("CINECART_TMDB_DETAIL_TTL", &c.TMDB.DetailTTL)
	r.str("CINECART_REDIS_ADDR", &c.Redis.Addr)
	r.str("CINECART_REDIS_PASSWORD", &c.Redis.Password)
	r.integer("CINECART_REDIS_DB", &c.Redis.DB)
}
