// Package session is the contract between the provisioner and the runtime
// service that consumes the provisioned identity. The runtime reads its
// connection parameters from the environment and authenticates through the
// same workload-identity federation the provisioner established; this
// package assembles those parameters and nothing more.
package session

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

// DeploymentEnv selects how the runtime authenticates.
type DeploymentEnv string

const (
	// EnvAWS uses workload identity: no secret is present anywhere.
	EnvAWS DeploymentEnv = "AWS"

	// EnvDocker uses a programmatic access token from the environment, for
	// local container testing only.
	EnvDocker DeploymentEnv = "DOCKER"

	// EnvLocal is local development; credentials come from the developer's
	// own configuration, not from this package.
	EnvLocal DeploymentEnv = "LOCAL"
)

// Environment variable names shared with the provisioner's output contract.
const (
	VarDeploymentEnv = "DEPLOYMENT_ENV"
	VarAccount       = "SNOWFLAKE_ACCOUNT"
	VarUser          = "SNOWFLAKE_USER"
	VarPassword      = "SNOWFLAKE_PASSWORD"
	VarRole          = "SNOWFLAKE_ROLE"
	VarWarehouse     = "SNOWFLAKE_WAREHOUSE"
	VarDatabase      = "DEMO_DATABASE"
	VarTimeout       = "SNOWFLAKE_CONNECTION_TIMEOUT"
)

const (
	defaultWarehouse = "COMPUTE_WH"

	// defaultTimeout fails fast instead of waiting out the driver's 60s+.
	defaultTimeout = 15 * time.Second
)

// Params are the resolved connection parameters for one session.
type Params struct {
	Env       DeploymentEnv
	Account   string
	User      string
	Password  string
	Role      string
	Warehouse string
	Database  string

	// Authenticator is non-empty only for federated logins.
	Authenticator string

	// WorkloadProvider names the cloud IAM system for federated logins.
	WorkloadProvider string

	LoginTimeout   time.Duration
	NetworkTimeout time.Duration
}

// FromEnv resolves session parameters from the environment, dispatching on
// DEPLOYMENT_ENV exactly like the runtime service does.
func FromEnv() (Params, error) {
	env := DeploymentEnv(getenv(VarDeploymentEnv, string(EnvLocal)))
	timeout := timeoutFromEnv()

	p := Params{
		Env:            env,
		Account:        os.Getenv(VarAccount),
		User:           os.Getenv(VarUser),
		Role:           os.Getenv(VarRole),
		Warehouse:      getenv(VarWarehouse, defaultWarehouse),
		Database:       os.Getenv(VarDatabase),
		LoginTimeout:   timeout,
		NetworkTimeout: timeout,
	}

	switch env {
	case EnvAWS:
		p.Authenticator = "WORKLOAD_IDENTITY"
		p.WorkloadProvider = "AWS"
		if p.Account == "" || p.User == "" {
			return p, fmt.Errorf("%s and %s must be set for workload-identity sessions", VarAccount, VarUser)
		}
	case EnvDocker:
		p.Password = os.Getenv(VarPassword)
		if p.Account == "" || p.User == "" || p.Password == "" {
			return p, fmt.Errorf("%s, %s and %s must be set for container sessions", VarAccount, VarUser, VarPassword)
		}
	case EnvLocal:
		// local development reads its own config; nothing to resolve here
	default:
		return p, fmt.Errorf("unknown deployment environment %q", env)
	}

	return p, nil
}

// DSN renders the parameters in the snowflake driver's DSN format.
func (p Params) DSN() string {
	dsn := url.QueryEscape(p.User)
	if p.Password != "" {
		dsn += ":" + url.QueryEscape(p.Password)
	}
	dsn += "@" + p.Account
	if p.Database != "" {
		dsn += "/" + p.Database
	}

	query := url.Values{}
	if p.Authenticator != "" {
		query.Set("authenticator", p.Authenticator)
	}
	if p.WorkloadProvider != "" {
		query.Set("workloadIdentityProvider", p.WorkloadProvider)
	}
	if p.Role != "" {
		query.Set("role", p.Role)
	}
	if p.Warehouse != "" {
		query.Set("warehouse", p.Warehouse)
	}
	if p.LoginTimeout > 0 {
		query.Set("loginTimeout", strconv.Itoa(int(p.LoginTimeout.Seconds())))
	}
	if p.NetworkTimeout > 0 {
		query.Set("networkTimeout", strconv.Itoa(int(p.NetworkTimeout.Seconds())))
	}
	if encoded := query.Encode(); encoded != "" {
		dsn += "?" + encoded
	}
	return dsn
}

func timeoutFromEnv() time.Duration {
	raw := os.Getenv(VarTimeout)
	if raw == "" {
		return defaultTimeout
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs <= 0 {
		return defaultTimeout
	}
	return time.Duration(secs) * time.Second
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
