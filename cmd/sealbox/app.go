package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sealbox/sealbox"
	"github.com/sealbox/sealbox/access"
	"github.com/sealbox/sealbox/audit/bolt"
	"github.com/sealbox/sealbox/crypto"
	"github.com/sealbox/sealbox/crypto/aead"
	"github.com/sealbox/sealbox/engine"
	"github.com/sealbox/sealbox/store/blob"
	"github.com/sealbox/sealbox/store/blob/fs"
	"github.com/sealbox/sealbox/store/blob/s3"
	"github.com/sealbox/sealbox/store/kv"
	"github.com/sealbox/sealbox/store/meta"
	ucli "github.com/urfave/cli/v2"
	"golang.org/x/xerrors"
	"gopkg.in/yaml.v2"
)

// config holds the settings shared by every command. Flags override the
// values read from the configuration file.
type config struct {
	DB     string `yaml:"db"`
	Dir    string `yaml:"dir"`
	Bucket string `yaml:"bucket"`
	Region string `yaml:"region"`
	Secret string `yaml:"secret"`
	Match  string `yaml:"match"`
}

func makeApp() *ucli.App {
	app := &ucli.App{
		Name:  "sealbox",
		Usage: "access-controlled encrypted blob vault",
		Flags: []ucli.Flag{
			&ucli.StringFlag{
				Name:  "config",
				Usage: "path to a YAML configuration file",
			},
			&ucli.StringFlag{
				Name:  "db",
				Value: "sealbox.db",
				Usage: "path of the metadata and audit database",
			},
			&ucli.StringFlag{
				Name:  "dir",
				Value: "blobs",
				Usage: "directory of the local blob store",
			},
			&ucli.StringFlag{
				Name:  "bucket",
				Usage: "S3 bucket to use instead of the local blob store",
			},
			&ucli.StringFlag{
				Name:  "region",
				Usage: "region of the S3 bucket",
			},
			&ucli.StringFlag{
				Name:    "secret",
				Usage:   "secret the data key is derived from",
				EnvVars: []string{"SEALBOX_SECRET"},
			},
			&ucli.StringFlag{
				Name:  "match",
				Value: "any",
				Usage: "policy match rule, 'any' or 'all'",
			},
		},
		Commands: []*ucli.Command{
			{
				Name:  "upload",
				Usage: "encrypt a file and bind it to a policy",
				Flags: []ucli.Flag{
					&ucli.StringFlag{Name: "owner", Required: true},
					&ucli.StringFlag{Name: "file", Required: true},
					&ucli.StringFlag{Name: "policy", Required: true,
						Usage: "comma-separated allowed roles"},
				},
				Action: uploadAction,
			},
			{
				Name:  "access",
				Usage: "request the data of an owner",
				Flags: []ucli.Flag{
					&ucli.StringFlag{Name: "user", Required: true},
					&ucli.StringFlag{Name: "attrs", Required: true,
						Usage: "comma-separated attributes of the user"},
					&ucli.StringFlag{Name: "owner", Required: true},
					&ucli.StringFlag{Name: "out",
						Usage: "write the payload to this file instead of stdout"},
				},
				Action: accessAction,
			},
			{
				Name:  "revoke",
				Usage: "revoke a user under an owner",
				Flags: []ucli.Flag{
					&ucli.StringFlag{Name: "owner", Required: true},
					&ucli.StringFlag{Name: "user", Required: true},
				},
				Action: revokeAction,
			},
			{
				Name:  "unrevoke",
				Usage: "lift a revocation",
				Flags: []ucli.Flag{
					&ucli.StringFlag{Name: "owner", Required: true},
					&ucli.StringFlag{Name: "user", Required: true},
				},
				Action: unrevokeAction,
			},
			{
				Name:   "audit",
				Usage:  "print the audit trail",
				Action: auditAction,
			},
		},
	}

	return app
}

func loadConfig(c *ucli.Context) (config, error) {
	cfg := config{
		DB:    c.String("db"),
		Dir:   c.String("dir"),
		Match: c.String("match"),
	}

	path := c.String("config")
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, xerrors.Errorf("failed to read config: %v", err)
		}

		err = yaml.Unmarshal(data, &cfg)
		if err != nil {
			return cfg, xerrors.Errorf("failed to parse config: %v", err)
		}
	}

	for _, name := range []string{"db", "dir", "bucket", "region", "secret", "match"} {
		if !c.IsSet(name) {
			continue
		}

		switch name {
		case "db":
			cfg.DB = c.String(name)
		case "dir":
			cfg.Dir = c.String(name)
		case "bucket":
			cfg.Bucket = c.String(name)
		case "region":
			cfg.Region = c.String(name)
		case "secret":
			cfg.Secret = c.String(name)
		case "match":
			cfg.Match = c.String(name)
		}
	}

	return cfg, nil
}

// makeEngine wires an engine from the configuration. The returned closer
// releases the database.
func makeEngine(cfg config) (*engine.Engine, func() error, error) {
	var cipher crypto.Cipher
	var err error

	if cfg.Secret != "" {
		cipher, err = aead.NewCipherFromSecret(cfg.Secret)
	} else {
		cipher, err = aead.NewCipher()
	}

	if err != nil {
		return nil, nil, xerrors.Errorf("failed to create cipher: %v", err)
	}

	rule := access.MatchAny
	if cfg.Match == "all" {
		rule = access.MatchAll
	}

	var blobs blob.Store
	if cfg.Bucket != "" {
		blobs, err = s3.NewStoreFromRegion(cfg.Region, cfg.Bucket)
	} else {
		blobs, err = fs.NewStore(cfg.Dir)
	}

	if err != nil {
		return nil, nil, xerrors.Errorf("failed to create blob store: %v", err)
	}

	db, err := kv.New(cfg.DB)
	if err != nil {
		return nil, nil, xerrors.Errorf("failed to open db: %v", err)
	}

	metaStore, err := meta.NewStore(db)
	if err != nil {
		db.Close()

		return nil, nil, xerrors.Errorf("failed to create metadata store: %v", err)
	}

	trail, err := bolt.NewTrail(db)
	if err != nil {
		db.Close()

		return nil, nil, xerrors.Errorf("failed to create audit trail: %v", err)
	}

	for _, collector := range sealbox.PromCollectors {
		// Already-registered collectors are fine when several commands run
		// in one process, as in the tests.
		prometheus.DefaultRegisterer.Unregister(collector)
		prometheus.DefaultRegisterer.MustRegister(collector)
	}

	eng := engine.New(cipher, access.NewEvaluator(rule), blobs, metaStore, trail)

	return eng, db.Close, nil
}

func uploadAction(c *ucli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	eng, closer, err := makeEngine(cfg)
	if err != nil {
		return err
	}

	defer closer()

	payload, err := os.ReadFile(c.String("file"))
	if err != nil {
		return xerrors.Errorf("failed to read file: %v", err)
	}

	owner := eng.DataOwner(c.String("owner"))

	key, err := owner.Upload(c.Context, payload, splitList(c.String("policy")))
	if err != nil {
		return err
	}

	fmt.Fprintln(c.App.Writer, key)

	return nil
}

func accessAction(c *ucli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	eng, closer, err := makeEngine(cfg)
	if err != nil {
		return err
	}

	defer closer()

	user, err := eng.CloudUser(c.String("user"), splitList(c.String("attrs")))
	if err != nil {
		return err
	}

	payload, err := user.RequestAccess(c.Context, c.String("owner"))
	if err != nil {
		return err
	}

	out := c.String("out")
	if out != "" {
		return os.WriteFile(out, payload, 0600)
	}

	_, err = c.App.Writer.Write(payload)

	return err
}

func revokeAction(c *ucli.Context) error {
	return withEngine(c, func(eng *engine.Engine) error {
		return eng.Authority().Revoke(c.String("owner"), c.String("user"))
	})
}

func unrevokeAction(c *ucli.Context) error {
	return withEngine(c, func(eng *engine.Engine) error {
		return eng.Authority().Unrevoke(c.String("owner"), c.String("user"))
	})
}

func auditAction(c *ucli.Context) error {
	return withEngine(c, func(eng *engine.Engine) error {
		records, err := eng.Auditor().Audit()
		if err != nil {
			return err
		}

		for _, record := range records {
			reason := record.Reason
			if reason == "" {
				reason = "-"
			}

			fmt.Fprintf(c.App.Writer, "%d\t%s\t%s\t%s\t%s\t%s\n",
				record.Seq,
				record.Timestamp.Format("2006-01-02T15:04:05Z07:00"),
				record.User,
				record.Owner,
				record.Decision,
				reason)
		}

		return nil
	})
}

func withEngine(c *ucli.Context, fn func(*engine.Engine) error) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	eng, closer, err := makeEngine(cfg)
	if err != nil {
		return err
	}

	defer closer()

	return fn(eng)
}

func splitList(value string) []string {
	list := []string{}
	for _, item := range strings.Split(value, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			list = append(list, item)
		}
	}

	return list
}
