package aws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

type secretValueAPI interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// SecretsClient loads the JSON key/value secrets the sales service boots from.
// Decoded secrets are kept for the process lifetime.
type SecretsClient struct {
	api     secretValueAPI
	mu      sync.Mutex
	decoded map[string]map[string]string
}

func NewSecretsClient(cfg sdkaws.Config) *SecretsClient {
	return newSecretsClient(secretsmanager.NewFromConfig(cfg))
}

func newSecretsClient(api secretValueAPI) *SecretsClient {
	return &SecretsClient{api: api, decoded: make(map[string]map[string]string)}
}

// GetSecretJSON returns the secret's fields. Non-string JSON values keep their
// literal text, so {"port": 5432} yields "5432".
func (s *SecretsClient) GetSecretJSON(ctx context.Context, name string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fields, ok := s.decoded[name]; ok {
		return fields, nil
	}

	out, err := s.api.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: sdkaws.String(name)})
	if err != nil {
		return nil, fmt.Errorf("failed to get secret %s: %w", name, err)
	}
	if out.SecretString == nil {
		return nil, fmt.Errorf("secret %s has no string value", name)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(*out.SecretString), &raw); err != nil {
		return nil, fmt.Errorf("secret %s is not a JSON object: %w", name, err)
	}
	fields := make(map[string]string, len(raw))
	for k, v := range raw {
		var str string
		if err := json.Unmarshal(v, &str); err == nil {
			fields[k] = str
			continue
		}
		fields[k] = string(v)
	}
	s.decoded[name] = fields
	return fields, nil
}
