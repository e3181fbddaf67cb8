package origins

import (
	"context"
	"crypto/sha256"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"github.com/cdnforge/edgevideo/internal/config"
)

func credentialsToAws(c v4Credentials) aws.Credentials {
	return aws.Credentials{
		AccessKeyID:     c.AccessKeyID,
		SecretAccessKey: c.SecretAccessKey,
		SessionToken:    c.SessionToken,
	}
}

// Authenticator applies a source's configured auth scheme to an outbound
// request before it is sent to the origin.
type Authenticator interface {
	Authenticate(ctx context.Context, req *http.Request, body []byte) error
}

// NewAuthenticator builds the Authenticator described by ac, or nil if ac
// is nil (the source requires no authentication).
func NewAuthenticator(ac *config.AuthConfig) (Authenticator, error) {
	if ac == nil {
		return nil, nil
	}
	switch ac.Type {
	case config.AuthAwsSig:
		return newAwsSigAuthenticator(ac)
	case config.AuthBearer:
		return bearerAuthenticator{tokenVar: ac.TokenVar}, nil
	case config.AuthHeader:
		return headerAuthenticator{headers: ac.Headers}, nil
	case config.AuthQuery:
		return queryAuthenticator{query: ac.Query}, nil
	case config.AuthBasic:
		return basicAuthenticator{userVar: ac.UserVar, passVar: ac.PassVar}, nil
	default:
		return nil, fmt.Errorf("origins: unknown auth type %q", ac.Type)
	}
}

// awsSigAuthenticator signs requests with AWS SigV4, for remote and fallback
// sources served by S3-compatible HTTP endpoints. Object-store sources are
// read through the S3 client binding and do not use this authenticator.
type awsSigAuthenticator struct {
	credentials credentialsRetriever
	region      string
	service     string
	signer      *v4.Signer
}

type credentialsRetriever interface {
	Retrieve(ctx context.Context) (v4Credentials, error)
}

// v4Credentials mirrors the aws.Credentials fields the signer needs;
// credentialsToAws converts it back to aws.Credentials for SignHTTP.
type v4Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

type chainRetriever struct {
	accessKeyVar, secretKeyVar string
}

func (c chainRetriever) Retrieve(ctx context.Context) (v4Credentials, error) {
	if c.accessKeyVar != "" && c.secretKeyVar != "" {
		ak := os.Getenv(c.accessKeyVar)
		sk := os.Getenv(c.secretKeyVar)
		if ak != "" && sk != "" {
			return v4Credentials{AccessKeyID: ak, SecretAccessKey: sk}, nil
		}
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return v4Credentials{}, err
	}
	creds, err := cfg.Credentials.Retrieve(ctx)
	if err != nil {
		return v4Credentials{}, err
	}
	return v4Credentials{AccessKeyID: creds.AccessKeyID, SecretAccessKey: creds.SecretAccessKey, SessionToken: creds.SessionToken}, nil
}

func newAwsSigAuthenticator(ac *config.AuthConfig) (*awsSigAuthenticator, error) {
	region := ac.Region
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}
	if region == "" {
		region = "us-east-1"
	}
	service := ac.Service
	if service == "" {
		service = "s3"
	}
	return &awsSigAuthenticator{
		credentials: chainRetriever{accessKeyVar: ac.AccessKeyVar, secretKeyVar: ac.SecretKeyVar},
		region:      region,
		service:     service,
		signer:      v4.NewSigner(),
	}, nil
}

func (a *awsSigAuthenticator) Authenticate(ctx context.Context, req *http.Request, body []byte) error {
	creds, err := a.credentials.Retrieve(ctx)
	if err != nil {
		return fmt.Errorf("origins: retrieving aws credentials: %w", err)
	}
	payloadHash := fmt.Sprintf("%x", sha256.Sum256(body))
	return a.signer.SignHTTP(ctx, credentialsToAws(creds), req, payloadHash, a.service, a.region, time.Now())
}

type bearerAuthenticator struct{ tokenVar string }

func (b bearerAuthenticator) Authenticate(_ context.Context, req *http.Request, _ []byte) error {
	token := os.Getenv(b.tokenVar)
	if token == "" {
		return fmt.Errorf("origins: bearer token env var %q is unset", b.tokenVar)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

type headerAuthenticator struct{ headers map[string]string }

func (h headerAuthenticator) Authenticate(_ context.Context, req *http.Request, _ []byte) error {
	for k, v := range h.headers {
		req.Header.Set(k, os.ExpandEnv(v))
	}
	return nil
}

type queryAuthenticator struct{ query map[string]string }

func (q queryAuthenticator) Authenticate(_ context.Context, req *http.Request, _ []byte) error {
	qs := req.URL.Query()
	for k, v := range q.query {
		qs.Set(k, os.ExpandEnv(v))
	}
	req.URL.RawQuery = qs.Encode()
	return nil
}

type basicAuthenticator struct{ userVar, passVar string }

func (b basicAuthenticator) Authenticate(_ context.Context, req *http.Request, _ []byte) error {
	user := os.Getenv(b.userVar)
	pass := os.Getenv(b.passVar)
	if user == "" {
		return fmt.Errorf("origins: basic auth user env var %q is unset", b.userVar)
	}
	req.SetBasicAuth(user, pass)
	return nil
}
