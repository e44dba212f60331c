package transport

import (
	"context"

	"mangrove/catalog"
)

// Metadata keys carrying dial-out credentials.
const (
	AccessKeyIDHeader     = "x-mangrove-access-key-id"
	SecretAccessKeyHeader = "x-mangrove-secret-access-key"
)

// accessKeyCredentials implements credentials.PerRPCCredentials.
type accessKeyCredentials struct {
	creds  catalog.Credentials
	secure bool
}

func (c accessKeyCredentials) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{
		AccessKeyIDHeader:     c.creds.AccessKeyID,
		SecretAccessKeyHeader: c.creds.SecretAccessKey,
	}, nil
}

func (c accessKeyCredentials) RequireTransportSecurity() bool {
	return c.secure
}
