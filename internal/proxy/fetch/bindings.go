package fetch

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// BindingSpec names one object-store binding: a bucket plus the
// environment variables holding its credentials and region. Bindings are
// declared alongside origins (the binding_name a SourceConfig references),
// not in OriginConfig itself, so the same binding can back multiple origins.
type BindingSpec struct {
	Bucket       string
	Region       string
	AccessKeyVar string
	SecretKeyVar string
}

// S3Binder resolves a binding name to a lazily-constructed S3 client,
// using per-binding static credentials when configured, falling back to
// the default AWS credential chain otherwise.
type S3Binder struct {
	specs map[string]BindingSpec

	mtx     sync.Mutex
	clients map[string]*s3.Client
}

// NewS3Binder returns a binder over the given named specs.
func NewS3Binder(specs map[string]BindingSpec) *S3Binder {
	return &S3Binder{specs: specs, clients: make(map[string]*s3.Client)}
}

func (b *S3Binder) Bind(bindingName string) (*s3.Client, string, error) {
	spec, ok := b.specs[bindingName]
	if !ok {
		return nil, "", fmt.Errorf("fetch: no object store binding named %q", bindingName)
	}

	b.mtx.Lock()
	defer b.mtx.Unlock()
	if c, ok := b.clients[bindingName]; ok {
		return c, spec.Bucket, nil
	}

	ctx := context.Background()
	var optFns []func(*awsconfig.LoadOptions) error
	if spec.Region != "" {
		optFns = append(optFns, awsconfig.WithRegion(spec.Region))
	}
	if spec.AccessKeyVar != "" && spec.SecretKeyVar != "" {
		ak := os.Getenv(spec.AccessKeyVar)
		sk := os.Getenv(spec.SecretKeyVar)
		if ak != "" && sk != "" {
			optFns = append(optFns, awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(ak, sk, ""),
			))
		}
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, "", fmt.Errorf("fetch: loading aws config for binding %q: %w", bindingName, err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if spec.Region != "" {
			o.Region = spec.Region
		}
	})
	b.clients[bindingName] = client
	return client, spec.Bucket, nil
}

// BindingSpecsFromEnv builds a spec per binding name using a fixed
// environment variable naming convention: EDGEVIDEO_BINDING_<NAME>_BUCKET,
// _REGION, _ACCESS_KEY_VAR, _SECRET_KEY_VAR (the last two name further
// env vars holding the actual key material, kept one level of indirection
// away from the binding's own declaration).
func BindingSpecsFromEnv(bindingNames []string) map[string]BindingSpec {
	out := make(map[string]BindingSpec, len(bindingNames))
	for _, name := range bindingNames {
		prefix := "EDGEVIDEO_BINDING_" + strings.ToUpper(name) + "_"
		out[name] = BindingSpec{
			Bucket:       os.Getenv(prefix + "BUCKET"),
			Region:       os.Getenv(prefix + "REGION"),
			AccessKeyVar: os.Getenv(prefix + "ACCESS_KEY_VAR"),
			SecretKeyVar: os.Getenv(prefix + "SECRET_KEY_VAR"),
		}
	}
	return out
}
