package aws

import (
	"context"
	"errors"
	"testing"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSecretValues struct {
	values map[string]*string
	calls  int
}

func (f *fakeSecretValues) GetSecretValue(_ context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	f.calls++
	v, ok := f.values[sdkaws.ToString(in.SecretId)]
	if !ok {
		return nil, errors.New("ResourceNotFoundException")
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: v}, nil
}

func TestSecretsClient_GetSecretJSON(t *testing.T) {
	api := &fakeSecretValues{values: map[string]*string{
		"sales/DB_CREDENTIALS": sdkaws.String(`{"username":"sales","password":"pw","port":5432}`),
		"sales/BROKEN":         sdkaws.String(`not json`),
		"sales/BINARY":         nil,
	}}
	c := newSecretsClient(api)
	ctx := context.Background()

	tests := []struct {
		name    string
		secret  string
		want    map[string]string
		wantErr string
	}{
		{"decodes fields", "sales/DB_CREDENTIALS", map[string]string{"username": "sales", "password": "pw", "port": "5432"}, ""},
		{"rejects non object", "sales/BROKEN", nil, "not a JSON object"},
		{"rejects binary secret", "sales/BINARY", nil, "no string value"},
		{"missing secret", "sales/NOPE", nil, "failed to get secret sales/NOPE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.GetSecretJSON(ctx, tt.secret)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSecretsClient_CachesDecodedSecret(t *testing.T) {
	api := &fakeSecretValues{values: map[string]*string{"sales/JWT_SECRET": sdkaws.String(`{"JWT_SECRET":"s3cret"}`)}}
	c := newSecretsClient(api)

	for i := 0; i < 3; i++ {
		got, err := c.GetSecretJSON(context.Background(), "sales/JWT_SECRET")
		require.NoError(t, err)
		assert.Equal(t, "s3cret", got["JWT_SECRET"])
	}
	assert.Equal(t, 1, api.calls)
}
