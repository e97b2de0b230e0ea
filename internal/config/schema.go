// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package config

import (
	"bytes"
	"encoding/json"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/samber/oops"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

// SchemaID is the $id of the config file schema.
const SchemaID = "https://holomush.dev/schemas/gatekeep-config.schema.json"

// durationPattern matches Go duration strings such as "15m" or "1h30m".
const durationPattern = `^([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$`

// fileDocument mirrors Config as it is written in YAML. Durations are strings.
type fileDocument struct {
	DatabaseURL string          `json:"database_url,omitempty" jsonschema:"description=PostgreSQL connection URL"`
	LogFormat   string          `json:"log_format,omitempty" jsonschema:"pattern=^([jJ][sS][oO][nN]|[tT][eE][xX][tT])$"`
	MetricsAddr string          `json:"metrics_addr,omitempty" jsonschema:"description=host:port of the janitor observability server"`
	Session     *sessionDoc     `json:"session,omitempty"`
	Reset       *resetDoc       `json:"reset,omitempty"`
	Throttle    *throttleDoc    `json:"throttle,omitempty"`
	SMTP        *smtpDoc        `json:"smtp,omitempty"`
	Janitor     *janitorDoc `json:"janitor,omitempty"`
}

type sessionDoc struct {
	Secret string `json:"secret,omitempty" jsonschema:"minLength=32"`
	TTL    string `json:"ttl,omitempty"`
	Issuer string `json:"issuer,omitempty" jsonschema:"minLength=1"`
}

type resetDoc struct {
	TTL      string `json:"ttl,omitempty"`
	LinkBase string `json:"link_base,omitempty" jsonschema:"format=uri"`
}

type throttleDoc struct {
	Enabled       bool   `json:"enabled,omitempty"`
	RedisAddr     string `json:"redis_addr,omitempty"`
	RedisPassword string `json:"redis_password,omitempty"`
	RedisDB       int    `json:"redis_db,omitempty" jsonschema:"minimum=0"`
}

type smtpDoc struct {
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty" jsonschema:"minimum=1,maximum=65535"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	From     string `json:"from,omitempty" jsonschema:"format=email"`
	FromName string `json:"from_name,omitempty"`
	UseTLS   bool   `json:"use_tls,omitempty"`
}

type janitorDoc struct {
	Interval string `json:"interval,omitempty"`
}

var (
	compiledOnce   sync.Once
	compiledSchema *jschema.Schema
	compileErr     error
)

// GenerateSchema returns the JSON Schema for gatekeep config files.
func GenerateSchema() ([]byte, error) {
	r := jsonschema.Reflector{DoNotReference: true}
	schema := r.Reflect(&fileDocument{})
	schema.ID = jsonschema.ID(SchemaID)
	schema.Title = "gatekeep configuration"
	schema.Description = "Schema for gatekeep config.yaml files"

	for _, section := range []string{"session", "reset"} {
		constrainDuration(schema, section, "ttl")
	}
	constrainDuration(schema, "janitor", "interval")

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, oops.Code("CONFIG_SCHEMA_FAILED").With("operation", "marshal schema").Wrap(err)
	}
	return data, nil
}

// constrainDuration adds the duration pattern to section.field.
func constrainDuration(schema *jsonschema.Schema, section, field string) {
	sec, ok := schema.Properties.Get(section)
	if !ok || sec == nil {
		return
	}
	if prop, ok := sec.Properties.Get(field); ok && prop != nil {
		prop.Pattern = durationPattern
	}
}

// ValidateDocument checks YAML config data against the schema. Unknown keys
// are rejected. An empty document is valid.
func ValidateDocument(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return oops.Code("CONFIG_SCHEMA_INVALID").With("operation", "parse yaml").Wrap(err)
	}
	if doc == nil {
		return nil
	}

	// Round-trip through JSON so numbers reach the validator as json.Number.
	raw, err := json.Marshal(doc)
	if err != nil {
		return oops.Code("CONFIG_SCHEMA_INVALID").With("operation", "convert yaml").Wrap(err)
	}
	inst, err := jschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return oops.Code("CONFIG_SCHEMA_INVALID").With("operation", "convert yaml").Wrap(err)
	}

	sch, err := compiled()
	if err != nil {
		return err
	}
	if err := sch.Validate(inst); err != nil {
		return oops.Code("CONFIG_SCHEMA_INVALID").Wrap(err)
	}
	return nil
}

func compiled() (*jschema.Schema, error) {
	compiledOnce.Do(func() {
		data, err := GenerateSchema()
		if err != nil {
			compileErr = err
			return
		}
		doc, err := jschema.UnmarshalJSON(bytes.NewReader(data))
		if err != nil {
			compileErr = oops.Code("CONFIG_SCHEMA_FAILED").With("operation", "parse schema").Wrap(err)
			return
		}
		c := jschema.NewCompiler()
		if err := c.AddResource(SchemaID, doc); err != nil {
			compileErr = oops.Code("CONFIG_SCHEMA_FAILED").With("operation", "add schema resource").Wrap(err)
			return
		}
		compiledSchema, compileErr = c.Compile(SchemaID)
		if compileErr != nil {
			compileErr = oops.Code("CONFIG_SCHEMA_FAILED").With("operation", "compile schema").Wrap(compileErr)
		}
	})
	return compiledSchema, compileErr
}
